package scrape

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHostLimiterThrottlesPerHost(t *testing.T) {
	t.Parallel()

	// 10 QPS means one token every 100ms after the initial burst.
	l := NewHostLimiter(10)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.test/page1"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://a.test/page2"))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)

	// A different host has its own bucket.
	start = time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.test/page1"))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestHostLimiterDisabled(t *testing.T) {
	t.Parallel()

	l := NewHostLimiter(0)
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(ctx, "https://a.test/"))
	}
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestHostLimiterHonorsContext(t *testing.T) {
	t.Parallel()

	l := NewHostLimiter(0.001)
	ctx := context.Background()
	require.NoError(t, l.Wait(ctx, "https://a.test/"))

	ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(ctx, "https://a.test/"))
}
