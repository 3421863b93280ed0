package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bookscout/bookscout/internal/api"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background scheduler.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := appFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), appInstance)
		},
	}
}

func runServe(ctx context.Context, appInstance App) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := appInstance.Logger()
	server := api.NewServer(
		appInstance.Catalog(),
		appInstance.Scraper(),
		appInstance.Coordinator(),
		log.Named("api"),
	)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", appInstance.Config().Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go appInstance.Scheduler().Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
