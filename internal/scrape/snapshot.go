package scrape

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// SnapshotSink archives raw page HTML to the local filesystem so failed
// extractions can be replayed. A nil sink discards snapshots.
type SnapshotSink struct {
	baseDir string
}

// NewSnapshotSink creates the base directory and verifies it is writable.
func NewSnapshotSink(baseDir string) (*SnapshotSink, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	probe := filepath.Join(baseDir, ".writable_probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return nil, fmt.Errorf("snapshot directory is not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("clean up probe file: %w", err)
	}
	return &SnapshotSink{baseDir: baseDir}, nil
}

// Save writes one page snapshot, partitioned by date and host, named by the
// content hash. Returns the file path.
func (s *SnapshotSink) Save(rawURL, html string) (string, error) {
	if s == nil {
		return "", nil
	}
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	sum := sha256.Sum256([]byte(html))
	name := hex.EncodeToString(sum[:])[:16] + ".html"
	dir := filepath.Join(s.baseDir, time.Now().UTC().Format("2006-01-02"), host)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create snapshot partition: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(html), 0o600); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return path, nil
}
