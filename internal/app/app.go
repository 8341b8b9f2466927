// Package app wires the CopyPitch components together and runs them.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rcdvgn/copypitch/internal/api"
	"github.com/rcdvgn/copypitch/internal/auth"
	"github.com/rcdvgn/copypitch/internal/billing"
	"github.com/rcdvgn/copypitch/internal/config"
	"github.com/rcdvgn/copypitch/internal/metrics"
	"github.com/rcdvgn/copypitch/internal/store"
	"github.com/rcdvgn/copypitch/internal/usage"
)

// App is the main application
type App struct {
	config    *config.Config
	store     *store.Store
	apiServer *api.Server
	collector *metrics.Collector
	logger    *slog.Logger
}

// New creates a new application
func New(cfg *config.Config) (*App, error) {
	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	var m *metrics.Metrics
	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		m = metrics.New()
		metrics.SetGlobal(m)
		collector = metrics.NewCollector(m, cfg.Storage.Path, 0)
		logger.Info("metrics enabled")
	}

	checker := usage.NewChecker(st, cfg.Plans())
	tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	billingHandler := billing.NewHandler(st, cfg.Billing.PricePlans, logger)

	apiServer := api.NewServer(st, checker, tokens, billingHandler, m,
		cfg, logger.With("component", "api"))

	return &App{
		config:    cfg,
		store:     st,
		apiServer: apiServer,
		collector: collector,
		logger:    logger,
	}, nil
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting copypitch",
		"addr", a.config.Server.ListenAddr,
		"storage", a.config.Storage.Path,
	)

	// Create context that listens for signals
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if a.collector != nil {
		a.collector.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
		cancel()
	}

	// Graceful shutdown
	return a.Shutdown(context.Background())
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	if a.collector != nil {
		a.collector.Stop()
	}

	if err := a.store.Close(); err != nil {
		a.logger.Error("storage close error", "error", err)
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
