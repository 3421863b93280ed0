// Package app wires configuration, logging, storage, and the scrape
// pipeline into one composition root shared by all commands.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bookscout/bookscout/internal/config"
	"github.com/bookscout/bookscout/internal/logging"
	"github.com/bookscout/bookscout/internal/metrics"
	"github.com/bookscout/bookscout/internal/scheduler"
	"github.com/bookscout/bookscout/internal/scrape"
	"github.com/bookscout/bookscout/internal/store"
	"github.com/bookscout/bookscout/internal/store/memory"
	"github.com/bookscout/bookscout/internal/store/postgres"
)

// App holds the assembled service components.
type App struct {
	cfg         config.Config
	log         *zap.Logger
	store       store.Store
	visitor     scrape.Visitor
	scraper     *scrape.Scraper
	coordinator *scheduler.Coordinator
	scheduler   *scheduler.Scheduler
}

// New loads configuration and assembles the full component graph. An empty
// db.dsn selects the in-memory store.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	metrics.Init()

	st, err := buildStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	visitor, err := buildVisitor(cfg)
	if err != nil {
		st.Close()
		return nil, err
	}

	var snapshots *scrape.SnapshotSink
	if cfg.Scraper.SnapshotDir != "" {
		snapshots, err = scrape.NewSnapshotSink(cfg.Scraper.SnapshotDir)
		if err != nil {
			visitor.Close()
			st.Close()
			return nil, fmt.Errorf("build snapshot sink: %w", err)
		}
	}

	scraper, err := scrape.New(
		scrape.Config{
			BaseURL:     cfg.Source.BaseURL,
			VisitBudget: cfg.Scraper.RequestTimeout,
		},
		st,
		visitor,
		scrape.NewHostLimiter(cfg.Scraper.HostQPS),
		snapshots,
		log.Named("scrape"),
	)
	if err != nil {
		visitor.Close()
		st.Close()
		return nil, fmt.Errorf("build scraper: %w", err)
	}

	coordinator := scheduler.NewCoordinator(scraper, st, log.Named("coordinator"))
	sched := scheduler.New(
		scheduler.Config{
			Enabled:      cfg.Scheduler.Enabled,
			Interval:     cfg.Scheduler.Interval,
			StartupDelay: cfg.Scheduler.StartupDelay,
		},
		coordinator,
		st,
		log.Named("scheduler"),
	)

	return &App{
		cfg:         cfg,
		log:         log,
		store:       st,
		visitor:     visitor,
		scraper:     scraper,
		coordinator: coordinator,
		scheduler:   sched,
	}, nil
}

// Close releases all held resources.
func (a *App) Close() {
	if a.visitor != nil {
		a.visitor.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger { return a.log }

// Catalog returns the persistence layer.
func (a *App) Catalog() store.Store { return a.store }

// Scraper returns the stage runner.
func (a *App) Scraper() *scrape.Scraper { return a.scraper }

// Coordinator returns the composite run guard.
func (a *App) Coordinator() *scheduler.Coordinator { return a.coordinator }

// Scheduler returns the interval scheduler.
func (a *App) Scheduler() *scheduler.Scheduler { return a.scheduler }

func buildStore(ctx context.Context, cfg config.Config, log *zap.Logger) (store.Store, error) {
	if cfg.DB.DSN == "" {
		log.Info("no database configured, using in-memory store")
		return memory.New(), nil
	}
	pg, err := postgres.New(ctx, postgres.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("connect store: %w", err)
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		pg.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	log.Info("postgres store ready")
	return pg, nil
}

func buildVisitor(cfg config.Config) (scrape.Visitor, error) {
	if !cfg.Scraper.RenderEnabled {
		return scrape.NewStaticVisitor(scrape.StaticConfig{
			UserAgent: cfg.Scraper.UserAgent,
			Timeout:   cfg.Scraper.NavTimeout,
		}), nil
	}
	visitor, err := scrape.NewRenderedVisitor(scrape.RenderedConfig{
		UserAgent:         cfg.Scraper.UserAgent,
		MaxTabs:           cfg.Scraper.MaxRenderTabs,
		NavigationTimeout: cfg.Scraper.NavTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("build rendered visitor: %w", err)
	}
	return visitor, nil
}
