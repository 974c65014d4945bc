package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/orca-mail/orca/internal/api"
	"github.com/orca-mail/orca/internal/config"
	"github.com/orca-mail/orca/internal/dispatch"
	"github.com/orca-mail/orca/internal/job"
	"github.com/orca-mail/orca/internal/metrics"
	"github.com/orca-mail/orca/internal/registry"
)

// App is the main application
type App struct {
	config    *config.Config
	store     *job.Store
	registry  *registry.Registry
	worker    *dispatch.Worker
	apiServer *api.Server
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New creates a new application
func New(cfg *config.Config) (*App, error) {
	logger := setupLogger(cfg.Logging)

	store, err := job.NewStore(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open job store: %w", err)
	}

	reg := registry.New(cfg.Users)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		logger.Info("metrics enabled", "path", cfg.Metrics.Path)
	}

	senders := dispatch.RelayFactory(cfg.Dispatch.RelayTimeout)

	worker := dispatch.New(store, reg, senders, m, logger, dispatch.Config{
		Workers:      cfg.Dispatch.Workers,
		PollInterval: cfg.Dispatch.ProcessInterval,
		Concurrency:  cfg.Dispatch.SendConcurrency,
	})

	apiServer := api.NewServer(store, reg, senders, m, cfg, logger)
	apiServer.SetWorkerProbe(worker.Running)

	return &App{
		config:    cfg,
		store:     store,
		registry:  reg,
		worker:    worker,
		apiServer: apiServer,
		metrics:   m,
		logger:    logger,
	}, nil
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting orca",
		"api_addr", a.config.Server.ListenAddr,
		"workers", a.config.Dispatch.Workers,
		"users", len(a.config.Users))

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a.worker.Start()

	errCh := make(chan error, 1)
	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
		cancel()
	}

	return a.Shutdown(context.Background())
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Stop claiming new jobs before cutting the API off
	a.worker.Stop()

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	if err := a.store.Close(); err != nil {
		a.logger.Error("job store close error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}

// setupLogger creates a logger based on configuration
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
