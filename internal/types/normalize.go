package types

import (
	"strings"
	"time"
)

// localLayouts are the wall-clock formats accepted from the review UI, in
// order of preference. None of them carry zone information; the zone comes
// from either the explicit offset or the host timezone.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// NormalizeLocalTime converts a client-supplied local wall-clock time into the
// canonical UTC instant used by all scheduling logic.
//
// If offsetMinutes is non-nil it is the number of minutes to ADD to the local
// time to reach UTC (positive = local is behind UTC, the JavaScript
// getTimezoneOffset convention). If offsetMinutes is nil, raw is interpreted
// in loc using tz-database semantics, so DST transitions are handled by the
// timezone rules rather than a fixed offset.
//
// Inputs that already carry an explicit zone (RFC 3339) are absolute; the
// offset argument is ignored for them.
//
// The function is pure: the same inputs always yield the same output. A value
// that cannot be parsed is a hard validation_malformed_timestamp error, never
// silently replaced with the current time.
func NormalizeLocalTime(raw string, offsetMinutes *int, loc *time.Location) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, NewAppError(ErrCodeValidationMalformedTimestamp, "timestamp is empty", nil)
	}
	if loc == nil {
		loc = time.UTC
	}

	// Zone-qualified input is already an absolute instant.
	if t, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return t.UTC(), nil
	}

	for _, layout := range localLayouts {
		if offsetMinutes != nil {
			t, err := time.Parse(layout, trimmed)
			if err != nil {
				continue
			}
			return t.Add(time.Duration(*offsetMinutes) * time.Minute).UTC(), nil
		}
		t, err := time.ParseInLocation(layout, trimmed, loc)
		if err != nil {
			continue
		}
		return t.UTC(), nil
	}

	return time.Time{}, NewAppErrorWithDetails(
		ErrCodeValidationMalformedTimestamp,
		"timestamp could not be parsed",
		nil,
		map[string]any{"value": raw},
	)
}
