// Package types defines the shared domain model for the tweetrelay dispatch
// engine: the scheduled item entity, its status machine, the application error
// taxonomy, and the pure time-normalization logic every other package relies on.
package types

import "time"

// ScheduledItem is the sole durable entity of the dispatch engine: one piece
// of reviewed content to be delivered to the receiver at a specific instant.
//
// ScheduledAt is the canonical dispatch time and is always UTC. It is the only
// time value scheduling logic may compare against. CreatedAt/UpdatedAt/SentAt
// are audit timestamps for display and debugging only.
type ScheduledItem struct {
	ID          int64          `json:"id"`
	ExternalRef string         `json:"external_ref"`
	Group       string         `json:"group"`
	Content     string         `json:"content"`
	Metadata    Metadata       `json:"metadata,omitempty"`
	ScheduledAt time.Time      `json:"scheduled_at_utc"`
	Status      ScheduleStatus `json:"status"`
	Attempts    int            `json:"attempts"`
	LastError   string         `json:"last_error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	SentAt      *time.Time     `json:"sent_at,omitempty"`
}

// ScheduleFilter narrows List queries. Zero values mean "no constraint";
// Status may be StatusAll (or empty) to include every status.
type ScheduleFilter struct {
	Group  string
	Status ScheduleStatus
}

// PendingUpdate carries the editable fields of a pending item. Nil pointers
// leave the corresponding column untouched.
type PendingUpdate struct {
	Content     *string
	Metadata    *Metadata
	ScheduledAt *time.Time
}

// IsEmpty reports whether the update would change nothing.
func (u PendingUpdate) IsEmpty() bool {
	return u.Content == nil && u.Metadata == nil && u.ScheduledAt == nil
}
