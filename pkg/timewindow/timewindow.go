// Package timewindow decides whether a time of day falls inside a window
// that may wrap past midnight, such as a station's night schedule.
package timewindow

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrAmbiguousWindow is returned when a window starts and stops at the same
// time of day, which could mean either "always" or "never".
var ErrAmbiguousWindow = errors.New("ambiguous time window")

const secondsPerDay = 24 * 60 * 60

// Clock is a time of day with second resolution, counted from midnight.
type Clock int

// ParseClock parses "HH:MM:SS" (single-digit hours and a missing seconds
// field are accepted).
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time of day %q: want HH:MM:SS", s)
	}

	limits := []int{24, 60, 60}
	fields := make([]int, 3)
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n >= limits[i] {
			return 0, fmt.Errorf("invalid time of day %q: bad field %q", s, part)
		}
		fields[i] = n
	}

	return Clock(fields[0]*3600 + fields[1]*60 + fields[2]), nil
}

// ClockOf returns the time of day of t in t's own location.
func ClockOf(t time.Time) Clock {
	h, m, s := t.Clock()
	return Clock(h*3600 + m*60 + s)
}

// Duration is the offset of c from midnight.
func (c Clock) Duration() time.Duration {
	return time.Duration(c) * time.Second
}

// sinceMidnight is the wall-clock time of day of t at full resolution.
func sinceMidnight(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second + time.Duration(t.Nanosecond())
}

func (c Clock) String() string {
	c = ((c % secondsPerDay) + secondsPerDay) % secondsPerDay
	return fmt.Sprintf("%02d:%02d:%02d", c/3600, (c/60)%60, c%60)
}

// IsNight reports whether now lies strictly inside the window start->stop,
// treating the window as wrapping past midnight when stop is before start.
func IsNight(now, start, stop Clock) (bool, error) {
	if start == stop {
		return false, fmt.Errorf("%w: %s->%s", ErrAmbiguousWindow, start, stop)
	}

	return inside(now.Duration(), start.Duration(), stop.Duration()), nil
}

func inside(now, start, stop time.Duration) bool {
	afterStart := start < now
	beforeStop := now < stop
	if start < stop {
		return afterStart && beforeStop
	}
	return afterStart || beforeStop
}

// Window is a validated start->stop time of day window.
type Window struct {
	Start Clock
	Stop  Clock
}

// NewWindow parses and validates a window. The ambiguous start == stop case
// is rejected here so that Contains never has to fail.
func NewWindow(start, stop string) (Window, error) {
	startClock, err := ParseClock(start)
	if err != nil {
		return Window{}, fmt.Errorf("start: %w", err)
	}
	stopClock, err := ParseClock(stop)
	if err != nil {
		return Window{}, fmt.Errorf("stop: %w", err)
	}
	if startClock == stopClock {
		return Window{}, fmt.Errorf("%w: %s->%s", ErrAmbiguousWindow, startClock, stopClock)
	}
	return Window{Start: startClock, Stop: stopClock}, nil
}

// Contains reports whether t's time of day lies inside the window. Unlike
// IsNight it compares below second resolution, so 22:00:00.5 is already
// past a 22:00:00 start. The zero Window contains nothing.
func (w Window) Contains(t time.Time) bool {
	if w.Start == w.Stop {
		return false
	}
	return inside(sinceMidnight(t), w.Start.Duration(), w.Stop.Duration())
}

func (w Window) String() string {
	return w.Start.String() + "-" + w.Stop.String()
}
