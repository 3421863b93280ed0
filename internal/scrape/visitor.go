// Package scrape implements the four-stage catalog crawl: navigation
// headings, categories, product listings, and product detail pages.
package scrape

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"
)

// Visitor loads a page and returns its parsed DOM.
type Visitor interface {
	Visit(ctx context.Context, rawURL string) (*goquery.Document, error)
	Close()
}

// HostLimiter throttles visits per hostname.
type HostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	qps      rate.Limit
	burst    int
}

// NewHostLimiter builds a limiter allowing qps requests per second per host.
// A non-positive qps disables throttling.
func NewHostLimiter(qps float64) *HostLimiter {
	limit := rate.Limit(qps)
	if qps <= 0 {
		limit = rate.Inf
	}
	return &HostLimiter{
		limiters: make(map[string]*rate.Limiter),
		qps:      limit,
		burst:    1,
	}
}

// Wait blocks until the host's bucket has a token or the context ends.
func (l *HostLimiter) Wait(ctx context.Context, rawURL string) error {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	l.mu.Lock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(l.qps, l.burst)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", host, err)
	}
	return nil
}
