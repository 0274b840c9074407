package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"tweetrelay/internal/types"
)

// CycleRunner is the single operation the trigger drives each tick.
type CycleRunner interface {
	RunCycle(ctx context.Context) (CycleStats, error)
}

// PushTrigger is the periodic driver of the push path. It wakes on a fixed
// cadence and runs one dispatch cycle; it holds no state of its own, so a
// restart resumes cleanly with nothing persisted but the items themselves.
type PushTrigger struct {
	interval     time.Duration
	cycleTimeout time.Duration
	runner       CycleRunner
	logger       *slog.Logger
}

// NewPushTrigger creates a PushTrigger with the given cadence. cycleTimeout
// bounds a whole cycle; zero disables the bound.
func NewPushTrigger(interval, cycleTimeout time.Duration, runner CycleRunner, logger *slog.Logger) (*PushTrigger, error) {
	if interval <= 0 {
		return nil, errors.New("trigger interval must be > 0")
	}
	if runner == nil {
		return nil, errors.New("trigger runner must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PushTrigger{
		interval:     interval,
		cycleTimeout: cycleTimeout,
		runner:       runner,
		logger:       logger,
	}, nil
}

// Run blocks, firing one cycle immediately and then one per interval, until
// the context is canceled. Cycle errors are logged and never stop the loop;
// the next tick always fires.
func (t *PushTrigger) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.logger.Info("push trigger started", "interval", t.interval.String())

	t.safeCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("push trigger stopping")
			return
		case <-ticker.C:
			t.safeCycle(ctx)
		}
	}
}

// safeCycle runs one cycle with panic recovery and the optional cycle timeout.
func (t *PushTrigger) safeCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("dispatch cycle panic recovered", "panic", r)
		}
	}()

	cctx := ctx
	if t.cycleTimeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, t.cycleTimeout)
		defer cancel()
	}

	start := time.Now()
	_, err := t.runner.RunCycle(cctx)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeConfigMissing {
			t.logger.Warn("dispatch cycle skipped, receiver not configured", "error", err)
		} else {
			t.logger.Error("dispatch cycle failed", "error", err)
		}
		return
	}

	t.logger.Debug("dispatch cycle tick completed",
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
