package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/bookscout/bookscout/internal/scrape"
	"github.com/bookscout/bookscout/internal/store"
)

// BootstrapProductLimit bounds the first-run composite so an empty database
// fills quickly without hammering the source.
const BootstrapProductLimit = 10

// Config controls the interval scheduler and startup bootstrap.
type Config struct {
	Enabled      bool
	Interval     time.Duration
	StartupDelay time.Duration
}

// Scheduler periodically triggers a composite refresh through the
// Coordinator, plus a one-shot bootstrap shortly after startup when the
// catalog is empty.
type Scheduler struct {
	cfg         Config
	coordinator *Coordinator
	store       store.Store
	log         *zap.Logger
}

// New builds a Scheduler.
func New(cfg Config, coordinator *Coordinator, st store.Store, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{cfg: cfg, coordinator: coordinator, store: st, log: log}
}

// Run blocks until the context ends, firing the bootstrap once and then a
// full refresh every interval. Busy ticks are skipped, never queued.
func (s *Scheduler) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		s.log.Info("scheduler disabled")
		return
	}

	select {
	case <-time.After(s.cfg.StartupDelay):
		s.bootstrap(ctx)
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	s.log.Info("scheduler started", zap.Duration("interval", s.cfg.Interval))

	for {
		select {
		case <-ticker.C:
			result, err := s.coordinator.RunComposite(ctx, scrape.DefaultProductLimit)
			switch {
			case errors.Is(err, ErrBusy):
				s.log.Warn("scheduled refresh skipped, previous run still active")
			case err != nil:
				s.log.Error("scheduled refresh failed", zap.Error(err))
			default:
				s.log.Info("scheduled refresh finished", zap.Int("records", result.Count))
			}
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		}
	}
}

// bootstrap seeds an empty catalog with a small composite run. A populated
// catalog skips it.
func (s *Scheduler) bootstrap(ctx context.Context) {
	count, err := s.store.CountProducts(ctx)
	if err != nil {
		s.log.Error("bootstrap product count failed", zap.Error(err))
		return
	}
	if count > 0 {
		s.log.Info("bootstrap skipped, catalog already populated", zap.Int("products", count))
		return
	}

	s.log.Info("bootstrapping empty catalog", zap.Int("limit", BootstrapProductLimit))
	result, err := s.coordinator.RunComposite(ctx, BootstrapProductLimit)
	if err != nil {
		s.log.Error("bootstrap refresh failed", zap.Error(err))
		return
	}
	s.log.Info("bootstrap refresh finished", zap.Int("records", result.Count))
}
