// Package scheduler implements the scheduled dispatch engine: due-item
// selection windows, the retry policy, the Dispatcher state machine, and the
// periodic push trigger that drives it.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tweetrelay/internal/types"
)

// ScheduleRepo abstracts the persistence operations the Dispatcher needs from
// the schedule repository. Using an interface allows clean testing without
// database dependencies.
type ScheduleRepo interface {
	// SelectDue returns pending items inside the window with attempts left,
	// ordered by scheduled time ascending.
	SelectDue(ctx context.Context, now time.Time, lookback, lookahead time.Duration, maxAttempts, limit int) ([]*types.ScheduledItem, error)

	// Claim atomically flips a pending item to sent; false means another
	// selector got there first.
	Claim(ctx context.Context, id int64, sentAt time.Time) (bool, error)

	// ReleaseForRetry reverts a claimed item to pending with a deferred
	// scheduled time and the failure reason recorded.
	ReleaseForRetry(ctx context.Context, id int64, attempts int, nextAt time.Time, reason string) (bool, error)

	// MarkFailed transitions a claimed item to the terminal failed state.
	MarkFailed(ctx context.Context, id int64, attempts int, reason string) (bool, error)
}

// Deliverer performs the actual push to the external receiver.
type Deliverer interface {
	// CheckReady reports whether delivery is possible at all (receiver URL
	// configured). A non-nil error short-circuits the whole cycle.
	CheckReady() error

	// Deliver pushes one item. The context carries the per-attempt timeout.
	Deliver(ctx context.Context, item *types.ScheduledItem) error
}

// CycleStats summarizes one dispatch pass for logging and tests.
type CycleStats struct {
	Selected int
	Sent     int
	Retried  int
	Failed   int
	Skipped  int
}

// Dispatcher walks due items and drives each through the delivery state
// machine: pending -> sent on acknowledgment, pending(deferred) on a failed
// attempt with attempts left, failed once attempts are exhausted.
//
// Items are processed sequentially in ascending scheduled order. Every item
// outcome is persisted before the next item starts, and one item's failure
// never aborts the rest of the batch.
type Dispatcher struct {
	repo       ScheduleRepo
	deliverer  Deliverer
	policy     RetryPolicy
	window     SelectionWindow
	batchLimit int
	timeout    time.Duration
	clock      types.Clock
	logger     *slog.Logger
}

// DispatcherConfig holds the configuration for creating a Dispatcher.
type DispatcherConfig struct {
	Repo       ScheduleRepo
	Deliverer  Deliverer
	Policy     RetryPolicy
	Window     SelectionWindow
	BatchLimit int
	// Timeout bounds each delivery attempt so a hung receiver cannot stall
	// the remaining due items beyond it.
	Timeout time.Duration
	Clock   types.Clock
	Logger  *slog.Logger
}

// NewDispatcher creates a Dispatcher with the given configuration.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := cfg.BatchLimit
	if limit <= 0 {
		limit = 100
	}
	return &Dispatcher{
		repo:       cfg.Repo,
		deliverer:  cfg.Deliverer,
		policy:     cfg.Policy,
		window:     cfg.Window,
		batchLimit: limit,
		timeout:    timeout,
		clock:      clock,
		logger:     logger,
	}
}

// RunCycle executes one dispatch pass: select due items, then claim and
// deliver each in order. It returns the cycle statistics.
//
// Only whole-cycle failures (missing receiver configuration, an unreachable
// store) produce an error; individual delivery failures are absorbed into the
// retry state machine and surface solely through stats and item rows.
func (d *Dispatcher) RunCycle(ctx context.Context) (CycleStats, error) {
	var stats CycleStats

	if err := d.deliverer.CheckReady(); err != nil {
		// No item-level retry can fix a missing destination; skip the pass.
		return stats, types.NewAppError(types.ErrCodeConfigMissing, "dispatch cycle aborted", err)
	}

	now := d.clock.Now()
	items, err := d.repo.SelectDue(ctx, now, d.window.Lookback, d.window.Lookahead, d.policy.MaxAttempts, d.batchLimit)
	if err != nil {
		return stats, fmt.Errorf("selecting due items: %w", err)
	}
	stats.Selected = len(items)

	for _, item := range items {
		d.dispatchOne(ctx, item, &stats)
	}

	d.logger.InfoContext(ctx, "dispatch cycle complete",
		"selected", stats.Selected,
		"sent", stats.Sent,
		"retried", stats.Retried,
		"failed", stats.Failed,
		"skipped", stats.Skipped,
	)

	return stats, nil
}

// dispatchOne claims and delivers a single item. The claim happens before the
// delivery attempt so that a racing poll call can never hand out an item this
// pass is already pushing; a failed delivery releases the claim back to
// pending with a deferred scheduled time.
func (d *Dispatcher) dispatchOne(ctx context.Context, item *types.ScheduledItem, stats *CycleStats) {
	now := d.clock.Now()

	claimed, err := d.repo.Claim(ctx, item.ID, now)
	if err != nil {
		stats.Skipped++
		d.logger.ErrorContext(ctx, "failed to claim item",
			"item_id", item.ID,
			"error", err,
		)
		return
	}
	if !claimed {
		// Consumed by a racing selector between SelectDue and here.
		stats.Skipped++
		d.logger.DebugContext(ctx, "item already claimed, skipping",
			"item_id", item.ID,
		)
		return
	}

	attemptCtx, cancel := context.WithTimeout(ctx, d.timeout)
	deliverErr := d.deliverer.Deliver(attemptCtx, item)
	cancel()

	if deliverErr == nil {
		stats.Sent++
		d.logger.InfoContext(ctx, "item delivered",
			"item_id", item.ID,
			"group", item.Group,
			"attempts", item.Attempts,
		)
		return
	}

	attempts := item.Attempts + 1
	reason := deliverErr.Error()

	if attempts < d.policy.MaxAttempts {
		nextAt := now.Add(BackoffDelay(d.policy, attempts))
		if _, err := d.repo.ReleaseForRetry(ctx, item.ID, attempts, nextAt, reason); err != nil {
			d.logger.ErrorContext(ctx, "failed to reschedule item after delivery failure",
				"item_id", item.ID,
				"error", err,
			)
			return
		}
		stats.Retried++
		d.logger.WarnContext(ctx, "delivery failed, rescheduled",
			"item_id", item.ID,
			"attempt", attempts,
			"max_attempts", d.policy.MaxAttempts,
			"next_at", nextAt.Format(time.RFC3339),
			"reason", reason,
		)
		return
	}

	if _, err := d.repo.MarkFailed(ctx, item.ID, attempts, reason); err != nil {
		d.logger.ErrorContext(ctx, "failed to mark item failed",
			"item_id", item.ID,
			"error", err,
		)
		return
	}
	stats.Failed++
	d.logger.ErrorContext(ctx, "delivery permanently failed",
		"item_id", item.ID,
		"attempt", attempts,
		"reason", reason,
	)
}
