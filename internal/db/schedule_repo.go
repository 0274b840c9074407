package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"tweetrelay/internal/types"
)

// scheduleColumns is the canonical column list scanned into a ScheduledItem.
const scheduleColumns = `id, external_ref, group_name, content, metadata,
	scheduled_at, status, attempts, last_error, created_at, updated_at, sent_at`

// ScheduleRepository provides data access for the scheduled_items table.
//
// All state-transition updates are conditional on the current status so that
// two concurrent selectors (a push cycle racing a poll call) can never both
// claim the same item: zero affected rows means "already claimed, skip".
// The repository holds no policy; it never decides what "due" means.
type ScheduleRepository struct {
	db DBTX
}

// NewScheduleRepository creates a new ScheduleRepository backed by the given
// database connection (pool or transaction).
func NewScheduleRepository(db DBTX) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// Insert persists a new scheduled item. The database assigns the surrogate id
// and the audit timestamps; status is forced to pending with zero attempts
// regardless of what the caller set. The item is updated in place with the
// generated values.
func (r *ScheduleRepository) Insert(ctx context.Context, item *types.ScheduledItem) error {
	row := r.db.QueryRow(ctx,
		`INSERT INTO scheduled_items
		 (external_ref, group_name, content, metadata, scheduled_at, status, attempts)
		 VALUES ($1, $2, $3, $4, $5, 'pending', 0)
		 RETURNING id, status, attempts, created_at, updated_at`,
		item.ExternalRef,
		item.Group,
		item.Content,
		item.Metadata,
		item.ScheduledAt.UTC(),
	)
	if err := row.Scan(&item.ID, &item.Status, &item.Attempts, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert scheduled item", err)
	}
	return nil
}

// GetByID retrieves a single item by its surrogate id.
func (r *ScheduleRepository) GetByID(ctx context.Context, id int64) (*types.ScheduledItem, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+scheduleColumns+`
		 FROM scheduled_items
		 WHERE id = $1`,
		id,
	)

	item, err := scanItemFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSchedule, "schedule item not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get scheduled item", err)
	}
	return item, nil
}

// List returns items matching the filter, ordered by scheduled_at ascending.
// An empty filter returns everything; StatusAll (or empty) skips the status
// predicate.
func (r *ScheduleRepository) List(ctx context.Context, filter types.ScheduleFilter) ([]*types.ScheduledItem, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Group != "" {
		args = append(args, filter.Group)
		conds = append(conds, fmt.Sprintf("group_name = $%d", len(args)))
	}
	if filter.Status != "" && filter.Status != types.StatusAll {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + scheduleColumns + ` FROM scheduled_items`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY scheduled_at ASC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list scheduled items", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

// SelectDue returns pending items whose canonical time falls inside the
// two-sided window [now-lookback, now+lookahead] and that have attempts left.
// The lookback absorbs clock drift and missed trigger cycles; the lookahead
// lets a trigger run slightly ahead of schedule. Earlier-due items sort first
// so they are always attempted first within a batch.
func (r *ScheduleRepository) SelectDue(ctx context.Context, now time.Time, lookback, lookahead time.Duration, maxAttempts, limit int) ([]*types.ScheduledItem, error) {
	if limit <= 0 {
		limit = 100
	}
	now = now.UTC()

	rows, err := r.db.Query(ctx,
		`SELECT `+scheduleColumns+`
		 FROM scheduled_items
		 WHERE status = 'pending'
		   AND attempts < $1
		   AND scheduled_at >= $2
		   AND scheduled_at <= $3
		 ORDER BY scheduled_at ASC
		 LIMIT $4`,
		maxAttempts,
		now.Add(-lookback),
		now.Add(lookahead),
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to select due items", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

// Claim atomically flips a pending item to sent, recording sentAt and clearing
// last_error. It returns false when the item was not pending anymore (already
// claimed by a racing selector, edited away, or terminal), which callers must
// treat as "skip".
//
// Claiming before delivering is what makes both paths at-most-once: a crash
// after the claim cannot double-send the item on restart.
func (r *ScheduleRepository) Claim(ctx context.Context, id int64, sentAt time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE scheduled_items SET
			status = 'sent',
			sent_at = $1,
			last_error = '',
			updated_at = NOW()
		 WHERE id = $2 AND status = 'pending'`,
		sentAt.UTC(),
		id,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to claim scheduled item", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ReleaseForRetry reverts a claimed item back to pending after a failed
// delivery attempt, deferring scheduled_at to nextAt and recording the failure
// reason. The condition on status='sent' makes it a no-op unless the caller
// actually holds the claim.
func (r *ScheduleRepository) ReleaseForRetry(ctx context.Context, id int64, attempts int, nextAt time.Time, reason string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE scheduled_items SET
			status = 'pending',
			attempts = $1,
			scheduled_at = $2,
			last_error = $3,
			sent_at = NULL,
			updated_at = NOW()
		 WHERE id = $4 AND status = 'sent'`,
		attempts,
		nextAt.UTC(),
		reason,
		id,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to release item for retry", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkFailed transitions a claimed item to the terminal failed state once its
// attempts are exhausted.
func (r *ScheduleRepository) MarkFailed(ctx context.Context, id int64, attempts int, reason string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE scheduled_items SET
			status = 'failed',
			attempts = $1,
			last_error = $2,
			sent_at = NULL,
			updated_at = NOW()
		 WHERE id = $3 AND status = 'sent'`,
		attempts,
		reason,
		id,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to mark item failed", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpdatePending applies an edit to an item that is still pending. It returns
// the updated row, or conflict_item_not_pending when the item exists but has
// already been claimed or finished, or not_found_schedule_item when the id is
// unknown. The status check and the update are a single statement, so an edit
// can never race a concurrent dispatch into a terminal row.
func (r *ScheduleRepository) UpdatePending(ctx context.Context, id int64, upd types.PendingUpdate) (*types.ScheduledItem, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE scheduled_items SET
			content = COALESCE($1, content),
			metadata = COALESCE($2, metadata),
			scheduled_at = COALESCE($3, scheduled_at),
			updated_at = NOW()
		 WHERE id = $4 AND status = 'pending'
		 RETURNING `+scheduleColumns,
		upd.Content,
		nilIfNilMetadata(upd.Metadata),
		nilIfNilTime(upd.ScheduledAt),
		id,
	)

	item, err := scanItemFromRow(row)
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to update scheduled item", err)
	}

	// Zero rows: distinguish missing from non-pending.
	existing, getErr := r.GetByID(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	return nil, types.NewAppErrorWithDetails(
		types.ErrCodeConflictNotPending,
		"only pending items can be edited",
		nil,
		map[string]any{"status": string(existing.Status)},
	)
}

// nilIfNilMetadata dereferences an optional metadata blob so the driver sees
// either SQL NULL or a JSONB value, never a nil pointer.
func nilIfNilMetadata(m *types.Metadata) any {
	if m == nil {
		return nil
	}
	return *m
}

// nilIfNilTime converts an optional UTC instant into a driver-friendly value.
func nilIfNilTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// scanItemFromRow scans a single ScheduledItem from a pgx.Row.
func scanItemFromRow(row pgx.Row) (*types.ScheduledItem, error) {
	var (
		item      types.ScheduledItem
		status    string
		lastError *string
		sentAt    *time.Time
	)
	err := row.Scan(
		&item.ID,
		&item.ExternalRef,
		&item.Group,
		&item.Content,
		&item.Metadata,
		&item.ScheduledAt,
		&status,
		&item.Attempts,
		&lastError,
		&item.CreatedAt,
		&item.UpdatedAt,
		&sentAt,
	)
	if err != nil {
		return nil, err
	}

	item.Status = types.ScheduleStatus(status)
	if lastError != nil {
		item.LastError = *lastError
	}
	item.SentAt = sentAt
	item.ScheduledAt = item.ScheduledAt.UTC()
	return &item, nil
}

// collectItems drains pgx.Rows into a slice of ScheduledItems.
func collectItems(rows pgx.Rows) ([]*types.ScheduledItem, error) {
	var results []*types.ScheduledItem
	for rows.Next() {
		item, err := scanItemFromRow(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan scheduled item", err)
		}
		results = append(results, item)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating scheduled items", err)
	}
	return results, nil
}
