package types

import (
	"errors"
	"testing"
	"time"
)

func intPtr(v int) *int { return &v }

func TestNormalizeLocalTime_ExplicitOffset(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		offset int
		want   time.Time
	}{
		{
			name:   "behind UTC (US Eastern standard, +300)",
			raw:    "2024-01-15T13:30:00",
			offset: 300,
			want:   time.Date(2024, 1, 15, 18, 30, 0, 0, time.UTC),
		},
		{
			name:   "ahead of UTC (CET, -60)",
			raw:    "2024-01-15T19:30:00",
			offset: -60,
			want:   time.Date(2024, 1, 15, 18, 30, 0, 0, time.UTC),
		},
		{
			name:   "zero offset",
			raw:    "2024-06-01T00:00:00",
			offset: 0,
			want:   time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "space separator, half-hour offset (India, -330)",
			raw:    "2024-03-10 09:15:30",
			offset: -330,
			want:   time.Date(2024, 3, 10, 3, 45, 30, 0, time.UTC),
		},
		{
			name:   "minute precision without seconds",
			raw:    "2024-03-10T09:15",
			offset: 0,
			want:   time.Date(2024, 3, 10, 9, 15, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeLocalTime(tt.raw, intPtr(tt.offset), time.UTC)
			if err != nil {
				t.Fatalf("NormalizeLocalTime(%q) error: %v", tt.raw, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("NormalizeLocalTime(%q) = %v, want %v", tt.raw, got, tt.want)
			}
			if got.Location() != time.UTC {
				t.Errorf("result must be in UTC, got %v", got.Location())
			}
		})
	}
}

// TestNormalizeLocalTime_RoundTrip verifies that converting to UTC and
// re-expressing in the original offset reproduces the local wall clock
// exactly, including seconds.
func TestNormalizeLocalTime_RoundTrip(t *testing.T) {
	offsets := []int{-720, -330, -60, 0, 300, 480, 720}
	const raw = "2024-01-15T18:30:45"
	local, _ := time.Parse("2006-01-02T15:04:05", raw)

	for _, off := range offsets {
		got, err := NormalizeLocalTime(raw, intPtr(off), nil)
		if err != nil {
			t.Fatalf("offset %d: %v", off, err)
		}
		back := got.Add(-time.Duration(off) * time.Minute)
		if !back.Equal(local) {
			t.Errorf("offset %d: round trip = %v, want %v", off, back, local)
		}
	}
}

func TestNormalizeLocalTime_HostTimezoneDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	// January: EST is UTC-5.
	got, err := NormalizeLocalTime("2024-01-15T13:30:00", nil, loc)
	if err != nil {
		t.Fatalf("winter: %v", err)
	}
	if want := time.Date(2024, 1, 15, 18, 30, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("winter = %v, want %v", got, want)
	}

	// July: EDT is UTC-4. The tz rule, not a fixed offset, must apply.
	got, err = NormalizeLocalTime("2024-07-15T13:30:00", nil, loc)
	if err != nil {
		t.Fatalf("summer: %v", err)
	}
	if want := time.Date(2024, 7, 15, 17, 30, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("summer = %v, want %v", got, want)
	}
}

func TestNormalizeLocalTime_RFC3339IgnoresOffsetArg(t *testing.T) {
	// Zone-qualified input is absolute; the offset argument must not be
	// applied a second time.
	got, err := NormalizeLocalTime("2024-01-15T13:30:00-05:00", intPtr(300), time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := time.Date(2024, 1, 15, 18, 30, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestNormalizeLocalTime_Malformed(t *testing.T) {
	cases := []string{
		"",
		"   ",
		"not-a-date",
		"2024-13-45T99:99:99",
		"15/01/2024 18:30",
	}

	for _, raw := range cases {
		_, err := NormalizeLocalTime(raw, nil, time.UTC)
		if err == nil {
			t.Errorf("NormalizeLocalTime(%q) expected error, got none", raw)
			continue
		}
		var appErr *AppError
		if !errors.As(err, &appErr) {
			t.Errorf("NormalizeLocalTime(%q) error is not an AppError: %v", raw, err)
			continue
		}
		if appErr.Code != ErrCodeValidationMalformedTimestamp {
			t.Errorf("NormalizeLocalTime(%q) code = %s, want %s", raw, appErr.Code, ErrCodeValidationMalformedTimestamp)
		}
	}
}

// TestNormalizeLocalTime_Pure verifies repeated calls yield identical results.
func TestNormalizeLocalTime_Pure(t *testing.T) {
	first, err := NormalizeLocalTime("2024-01-15T18:30:00", intPtr(120), time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := NormalizeLocalTime("2024-01-15T18:30:00", intPtr(120), time.UTC)
		if err != nil {
			t.Fatal(err)
		}
		if !again.Equal(first) {
			t.Fatalf("call %d produced %v, want %v", i, again, first)
		}
	}
}
