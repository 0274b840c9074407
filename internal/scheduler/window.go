package scheduler

import "time"

// SelectionWindow is the two-sided due-item window around "now". Lookback
// absorbs clock drift and missed trigger cycles; lookahead is a small forward
// buffer so a trigger running slightly ahead of schedule does not push an
// item to the next cycle.
type SelectionWindow struct {
	Lookback  time.Duration
	Lookahead time.Duration
}

// DefaultPushWindow matches the push-path reference window: five minutes on
// either side of the trigger tick.
func DefaultPushWindow() SelectionWindow {
	return SelectionWindow{Lookback: 5 * time.Minute, Lookahead: 5 * time.Minute}
}

// DefaultPullWindow is wider on the lookback side because poll cadence is
// receiver-controlled and less frequent than the push trigger.
func DefaultPullWindow() SelectionWindow {
	return SelectionWindow{Lookback: 15 * time.Minute, Lookahead: 5 * time.Minute}
}

// LookbackMinutes returns the lookback side in whole minutes, as reported in
// the poll response body.
func (w SelectionWindow) LookbackMinutes() int {
	return int(w.Lookback / time.Minute)
}
