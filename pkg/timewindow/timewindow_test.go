package timewindow

import (
	"errors"
	"testing"
	"time"
)

func mustClock(t *testing.T, s string) Clock {
	t.Helper()
	c, err := ParseClock(s)
	if err != nil {
		t.Fatalf("ParseClock(%q) failed: %v", s, err)
	}
	return c
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		expected  Clock
		expectErr bool
	}{
		{"full format", "22:00:00", 22 * 3600, false},
		{"with seconds", "06:30:15", 6*3600 + 30*60 + 15, false},
		{"single digit hour", "6:00:00", 6 * 3600, false},
		{"no seconds", "23:45", 23*3600 + 45*60, false},
		{"midnight", "00:00:00", 0, false},
		{"surrounding whitespace", " 12:00:00 ", 12 * 3600, false},
		{"hour out of range", "24:00:00", 0, true},
		{"minute out of range", "12:60:00", 0, true},
		{"negative", "-1:00:00", 0, true},
		{"garbage", "noon", 0, true},
		{"too many fields", "12:00:00:00", 0, true},
		{"empty", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseClock(tt.input)
			if tt.expectErr {
				if err == nil {
					t.Errorf("ParseClock(%q) expected error, got %v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseClock(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("ParseClock(%q) = %d, want %d", tt.input, got, tt.expected)
			}
		})
	}
}

func TestClockString(t *testing.T) {
	if got := Clock(22*3600 + 5*60 + 7).String(); got != "22:05:07" {
		t.Errorf("String() = %q, want %q", got, "22:05:07")
	}
}

func TestIsNight(t *testing.T) {
	tests := []struct {
		name     string
		start    string
		now      string
		stop     string
		expected bool
	}{
		{"day window inside", "06:00:00", "10:00:00", "18:00:00", true},
		{"day window before", "06:00:00", "02:00:00", "18:00:00", false},
		{"day window after", "06:00:00", "20:00:00", "18:00:00", false},
		{"wrapping window midday", "18:00:00", "10:00:00", "06:00:00", false},
		{"wrapping window after midnight", "18:00:00", "02:00:00", "06:00:00", true},
		{"wrapping window before midnight", "18:00:00", "20:00:00", "06:00:00", true},
		{"night 22-06 at 23:30", "22:00:00", "23:30:00", "06:00:00", true},
		{"night 22-06 at 02:00", "22:00:00", "02:00:00", "06:00:00", true},
		{"night 22-06 at 12:00", "22:00:00", "12:00:00", "06:00:00", false},
		{"exactly at start is outside", "22:00:00", "22:00:00", "06:00:00", false},
		{"exactly at stop is outside", "22:00:00", "06:00:00", "06:00:00", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IsNight(mustClock(t, tt.now), mustClock(t, tt.start), mustClock(t, tt.stop))
			if err != nil {
				t.Fatalf("IsNight unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("IsNight(now=%s, %s->%s) = %v, want %v", tt.now, tt.start, tt.stop, got, tt.expected)
			}
		})
	}
}

func TestIsNight_AmbiguousWindow(t *testing.T) {
	start := mustClock(t, "10:00:00")
	for _, now := range []string{"09:00:00", "10:00:00", "11:00:00"} {
		got, err := IsNight(mustClock(t, now), start, start)
		if !errors.Is(err, ErrAmbiguousWindow) {
			t.Errorf("IsNight(now=%s) error = %v, want ErrAmbiguousWindow", now, err)
		}
		if got {
			t.Errorf("IsNight(now=%s) returned true alongside an error", now)
		}
	}
}

func TestNewWindow(t *testing.T) {
	w, err := NewWindow("22:00:00", "06:00:00")
	if err != nil {
		t.Fatalf("NewWindow failed: %v", err)
	}
	if w.Start != 22*3600 || w.Stop != 6*3600 {
		t.Errorf("NewWindow = %+v", w)
	}

	if _, err := NewWindow("10:00:00", "10:00:00"); !errors.Is(err, ErrAmbiguousWindow) {
		t.Errorf("NewWindow(equal) error = %v, want ErrAmbiguousWindow", err)
	}
	if _, err := NewWindow("bogus", "06:00:00"); err == nil {
		t.Error("NewWindow(bad start) expected error")
	}
	if _, err := NewWindow("22:00:00", "bogus"); err == nil {
		t.Error("NewWindow(bad stop) expected error")
	}
}

func TestWindowContains_UsesTimeOwnLocation(t *testing.T) {
	w, err := NewWindow("22:00:00", "06:00:00")
	if err != nil {
		t.Fatalf("NewWindow failed: %v", err)
	}

	berlin := time.FixedZone("CEST", 2*3600)
	lateEvening := time.Date(2026, 10, 14, 23, 30, 0, 0, berlin)
	if !w.Contains(lateEvening) {
		t.Error("23:30 local should be inside the night window")
	}

	// Same instant seen from UTC is 21:30, outside the window.
	if w.Contains(lateEvening.UTC()) {
		t.Error("21:30 UTC should be outside the night window")
	}

	if w.Contains(time.Date(2026, 10, 14, 12, 0, 0, 0, berlin)) {
		t.Error("noon should be outside the night window")
	}
}

func TestWindowContains_SubSecondEdges(t *testing.T) {
	w, err := NewWindow("22:00:00", "06:00:00")
	if err != nil {
		t.Fatalf("NewWindow failed: %v", err)
	}

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"exactly start", time.Date(2026, 10, 14, 22, 0, 0, 0, time.UTC), false},
		{"half a second past start", time.Date(2026, 10, 14, 22, 0, 0, 5e8, time.UTC), true},
		{"just before stop", time.Date(2026, 10, 15, 5, 59, 59, 999e6, time.UTC), true},
		{"exactly stop", time.Date(2026, 10, 15, 6, 0, 0, 0, time.UTC), false},
		{"half a second past stop", time.Date(2026, 10, 15, 6, 0, 0, 5e8, time.UTC), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := w.Contains(tt.at); got != tt.want {
				t.Errorf("Contains(%s) = %v, want %v", tt.at.Format("15:04:05.000"), got, tt.want)
			}
		})
	}
}

func TestWindowContains_ZeroWindow(t *testing.T) {
	var w Window
	if w.Contains(time.Now()) {
		t.Error("zero window should never contain a time")
	}
}

func TestWindowString(t *testing.T) {
	w, err := NewWindow("22:00", "06:30:15")
	if err != nil {
		t.Fatalf("NewWindow failed: %v", err)
	}
	if got := w.String(); got != "22:00:00-06:30:15" {
		t.Errorf("String() = %q", got)
	}
}
