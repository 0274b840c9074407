// Package main is the entry point for the tweetrelay API server.
//
// It loads configuration, opens the database pool, builds the HTTP server
// with the core chassis (middleware, routing, health checks), mounts the
// schedule and poll handlers, and serves until a shutdown signal arrives.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"tweetrelay/internal/api/handlers"
	"tweetrelay/internal/config"
	"tweetrelay/internal/core"
	"tweetrelay/internal/db"
	"tweetrelay/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("tweetrelay API starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	repo := db.NewScheduleRepository(pool)

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.HealthProbes = append(srv.HealthProbes, db.NewProbe(pool))

	scheduleHandler := handlers.NewScheduleHandler(repo, srv.Validator, logger, cfg.Location())

	poller := scheduler.NewPoller(scheduler.PollerConfig{
		Repo: repo,
		Window: scheduler.SelectionWindow{
			Lookback:  cfg.Dispatch.PullLookback,
			Lookahead: cfg.Dispatch.PullLookahead,
		},
		MaxAttempts: cfg.Dispatch.MaxAttempts,
		Limit:       cfg.Dispatch.BatchLimit,
		Logger:      logger,
	})
	pollHandler := handlers.NewPollHandler(poller, logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		scheduleHandler.RegisterRoutes,
		pollHandler.RegisterRoutes,
	)
	srv.MountRoutes()

	return serve(ctx, srv, cfg, logger)
}

// serve runs the HTTP server until the context is cancelled, then drains
// in-flight requests within the configured shutdown timeout.
func serve(ctx context.Context, srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("initiating graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
