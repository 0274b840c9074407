package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tweetrelay/internal/types"
)

// Poller implements the pull delivery path: an external poller calls in, and
// every item handed back is immediately marked sent. Calling poll IS the
// delivery acknowledgment; there is no retry once an item is in a response.
// This is a deliberately weaker, at-most-once contract than the push path.
//
// The claim is a conditional status flip per item, so any number of
// concurrent poll calls (or a racing push cycle) hand out each item exactly
// once: losers of the race simply omit the item from their response.
type Poller struct {
	repo        ScheduleRepo
	window      SelectionWindow
	maxAttempts int
	limit       int
	clock       types.Clock
	logger      *slog.Logger
}

// PollerConfig holds the configuration for creating a Poller.
type PollerConfig struct {
	Repo        ScheduleRepo
	Window      SelectionWindow
	MaxAttempts int
	Limit       int
	Clock       types.Clock
	Logger      *slog.Logger
}

// NewPoller creates a Poller with the given configuration.
func NewPoller(cfg PollerConfig) *Poller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = 100
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Poller{
		repo:        cfg.Repo,
		window:      cfg.Window,
		maxAttempts: maxAttempts,
		limit:       limit,
		clock:       clock,
		logger:      logger,
	}
}

// PollResult is the outcome of one poll call.
type PollResult struct {
	Items     []*types.ScheduledItem
	Timestamp time.Time
	Window    SelectionWindow
}

// Poll selects due items with the pull-path window and claims each one.
// Only successfully claimed items appear in the result; an item consumed by a
// concurrent caller between selection and claim is silently dropped, which is
// what keeps double hand-outs impossible.
func (p *Poller) Poll(ctx context.Context) (*PollResult, error) {
	now := p.clock.Now()

	due, err := p.repo.SelectDue(ctx, now, p.window.Lookback, p.window.Lookahead, p.maxAttempts, p.limit)
	if err != nil {
		return nil, fmt.Errorf("selecting due items for poll: %w", err)
	}

	result := &PollResult{Timestamp: now, Window: p.window}
	for _, item := range due {
		claimed, err := p.repo.Claim(ctx, item.ID, now)
		if err != nil {
			p.logger.ErrorContext(ctx, "failed to claim item for poll",
				"item_id", item.ID,
				"error", err,
			)
			continue
		}
		if !claimed {
			p.logger.DebugContext(ctx, "item claimed elsewhere, omitting from poll response",
				"item_id", item.ID,
			)
			continue
		}

		item.Status = types.StatusSent
		at := now
		item.SentAt = &at
		item.LastError = ""
		result.Items = append(result.Items, item)
	}

	p.logger.InfoContext(ctx, "poll served",
		"selected", len(due),
		"claimed", len(result.Items),
	)

	return result, nil
}
