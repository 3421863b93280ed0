// Package scheduler coordinates crawl runs: a mutual-exclusion guard around
// the composite refresh, a recurring interval trigger, and a one-shot
// startup bootstrap.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/bookscout/bookscout/internal/catalog"
	"github.com/bookscout/bookscout/internal/scrape"
	"github.com/bookscout/bookscout/internal/store"
)

// ErrBusy is returned when a composite refresh is already in flight.
var ErrBusy = errors.New("a scrape run is already in progress")

// Runner is the stage surface the coordinator drives. *scrape.Scraper
// satisfies it.
type Runner interface {
	ScrapeNavigation(ctx context.Context) (catalog.StageResult, error)
	ScrapeCategories(ctx context.Context, headingID string) (catalog.StageResult, error)
	ScrapeProducts(ctx context.Context, categoryID string, limit int) (catalog.StageResult, error)
	ScrapeProductDetails(ctx context.Context, productID string) (catalog.DetailResult, error)
}

var _ Runner = (*scrape.Scraper)(nil)

// Coordinator serializes composite refreshes. At most one runs at a time;
// concurrent triggers are dropped with a warning rather than queued.
type Coordinator struct {
	runner  Runner
	store   store.Store
	log     *zap.Logger
	running atomic.Bool
}

// NewCoordinator builds a Coordinator.
func NewCoordinator(runner Runner, st store.Store, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{runner: runner, store: st, log: log}
}

// Running reports whether a composite refresh is in flight.
func (c *Coordinator) Running() bool {
	return c.running.Load()
}

// RunComposite runs navigation, categories, and products in order. Returns
// ErrBusy without side effects when a run is already in flight. The guard is
// released on every exit path.
func (c *Coordinator) RunComposite(ctx context.Context, productLimit int) (catalog.StageResult, error) {
	if !c.running.CompareAndSwap(false, true) {
		c.log.Warn("composite refresh already running, trigger dropped")
		return catalog.StageResult{}, ErrBusy
	}
	defer c.running.Store(false)

	job, err := c.store.RecordJob(ctx, catalog.CrawlJob{
		Type:       catalog.JobTypeComposite,
		Status:     catalog.JobStatusRunning,
		Parameters: map[string]any{"limit": productLimit},
	})
	if err != nil {
		c.log.Warn("composite job record failed", zap.Error(err))
	}

	result, runErr := c.runStages(ctx, productLimit)

	if job.ID != "" {
		status := catalog.JobStatusCompleted
		errText := ""
		if runErr != nil {
			status = catalog.JobStatusFailed
			errText = runErr.Error()
		}
		if err := c.store.FinishJob(ctx, job.ID, status, result.Count, errText); err != nil {
			c.log.Warn("composite job finish failed", zap.Error(err))
		}
	}
	return result, runErr
}

func (c *Coordinator) runStages(ctx context.Context, productLimit int) (catalog.StageResult, error) {
	nav, err := c.runner.ScrapeNavigation(ctx)
	if err != nil {
		return catalog.StageResult{}, fmt.Errorf("composite navigation stage: %w", err)
	}
	cats, err := c.runner.ScrapeCategories(ctx, "")
	if err != nil {
		return catalog.StageResult{}, fmt.Errorf("composite categories stage: %w", err)
	}
	products, err := c.runner.ScrapeProducts(ctx, "", productLimit)
	if err != nil {
		return catalog.StageResult{}, fmt.Errorf("composite products stage: %w", err)
	}

	c.log.Info("composite refresh finished",
		zap.Int("headings", nav.Count),
		zap.Int("categories", cats.Count),
		zap.Int("products", products.Count))
	return catalog.StageResult{Success: true, Count: nav.Count + cats.Count + products.Count}, nil
}
