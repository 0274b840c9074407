package types

// ScheduleStatus is the lifecycle state of a scheduled item.
//
// Legal transitions:
//
//	pending -> sent             (delivery acknowledged, or claimed by a poll)
//	pending -> pending          (failed attempt rescheduled with backoff)
//	pending -> failed           (attempts exhausted)
//
// sent and failed are terminal.
type ScheduleStatus string

const (
	StatusPending ScheduleStatus = "pending"
	StatusSent    ScheduleStatus = "sent"
	StatusFailed  ScheduleStatus = "failed"

	// StatusAll is a filter-only pseudo status accepted by the list API.
	// It is never stored.
	StatusAll ScheduleStatus = "all"
)

// IsValid reports whether s is a storable status value.
func (s ScheduleStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusSent, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether s permits no further transitions.
func (s ScheduleStatus) IsTerminal() bool {
	return s == StatusSent || s == StatusFailed
}
