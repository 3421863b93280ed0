// Package cmd defines the bookscout command line interface.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bookscout/bookscout/internal/app"
	"github.com/bookscout/bookscout/internal/config"
	"github.com/bookscout/bookscout/internal/scheduler"
	"github.com/bookscout/bookscout/internal/scrape"
	"github.com/bookscout/bookscout/internal/store"
)

var cfgFile string

type appKeyType string

const appKey appKeyType = "app"

// App is the application surface commands use. An interface so tests can
// inject a fake application.
type App interface {
	Close()
	Config() config.Config
	Logger() *zap.Logger
	Catalog() store.Store
	Scraper() *scrape.Scraper
	Coordinator() *scheduler.Coordinator
	Scheduler() *scheduler.Scheduler
}

// newApp is the application factory, replaceable in tests.
var newApp = func(ctx context.Context) (App, error) {
	return app.New(ctx, cfgFile)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bookscout",
		Short: "Catalog crawler and API for an online book store.",
		Long: `bookscout discovers a book store's navigation, categories, and
products in staged crawls, persists them with upsert semantics, and serves
the collected catalog over HTTP.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("initialize application: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newScrapeCmd())
	return cmd
}

func appFromContext(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application not initialized")
	}
	return appInstance, nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
