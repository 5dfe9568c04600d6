package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/feedsync/internal/api"
	"github.com/JakeFAU/feedsync/internal/scheduler"
)

// newServeCmd creates the 'serve' subcommand, which runs syncs on a schedule and
// exposes the HTTP API.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs syncs on a cron schedule and serves the HTTP API",
		Long: `Starts an HTTP server exposing health, metrics, stats and run endpoints, and
runs a sync on the configured cron schedule. Runs never overlap: a tick that fires
while a run is active is skipped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return serve(cmd.Context(), appInstance)
		},
	}
}

func serve(ctx context.Context, a App) error {
	cfg := a.Config().Server
	logger := a.Logger()

	sched, err := scheduler.New(ctx, a.Run, logger)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	if cfg.Schedule != "" {
		if err := sched.Schedule(cfg.Schedule); err != nil {
			return fmt.Errorf("schedule syncs: %w", err)
		}
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.Port)),
		Handler:           api.NewServer(sched, a.Store(), a, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sched.Start()
	if cfg.RunOnStart {
		if err := sched.Trigger(); err != nil {
			logger.Warn("initial run not started", zap.Error(err))
		}
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", zap.Error(err))
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Warn("scheduler stop failed", zap.Error(err))
	}
	return runErr
}
