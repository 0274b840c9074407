// Package main is the entry point for the tweetrelay push dispatcher daemon.
//
// It wakes on a fixed cadence, selects due scheduled items, and delivers them
// to the configured webhook receiver with bounded retries. The process runs
// until it receives SIGINT or SIGTERM.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"tweetrelay/internal/config"
	"tweetrelay/internal/db"
	"tweetrelay/internal/scheduler"
	"tweetrelay/internal/webhook"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("tweetrelay dispatcher starting",
		"environment", cfg.Environment,
		"interval", cfg.Dispatch.Interval.String(),
		"max_attempts", cfg.Dispatch.MaxAttempts,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	dispatcher := scheduler.NewDispatcher(scheduler.DispatcherConfig{
		Repo:      db.NewScheduleRepository(pool),
		Deliverer: webhook.NewClient(cfg.Webhook),
		Policy: scheduler.RetryPolicy{
			MaxAttempts: cfg.Dispatch.MaxAttempts,
			BaseDelay:   cfg.Dispatch.RetryBaseDelay,
			MaxDelay:    cfg.Dispatch.RetryMaxDelay,
		},
		Window: scheduler.SelectionWindow{
			Lookback:  cfg.Dispatch.PushLookback,
			Lookahead: cfg.Dispatch.PushLookahead,
		},
		BatchLimit: cfg.Dispatch.BatchLimit,
		Timeout:    cfg.Webhook.Timeout,
		Logger:     logger,
	})

	// A cycle never outlives the cadence that started it.
	trigger, err := scheduler.NewPushTrigger(cfg.Dispatch.Interval, cfg.Dispatch.Interval, dispatcher, logger)
	if err != nil {
		return fmt.Errorf("creating push trigger: %w", err)
	}

	trigger.Run(ctx)

	logger.Info("dispatcher stopped cleanly")
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
