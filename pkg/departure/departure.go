// Package departure turns decoded API records into board departures and
// merges the per-direction batches of a station into one ordered list.
package departure

import (
	"slices"
	"time"

	"departureboard/pkg/config"
	"departureboard/pkg/types"
)

// Discard reasons reported by Normalize.
const (
	ReasonNone        = ""
	ReasonUnscheduled = "unscheduled"
	ReasonTooSoon     = "too_soon"
)

// Normalize converts a raw record into a Departure for st. The reason is
// ReasonNone on success; otherwise the record has no departure time or
// leaves before the station's minimum time and must be discarded.
func Normalize(raw types.RawDeparture, st config.Station, now time.Time) (types.Departure, string) {
	if raw.When == nil {
		return types.Departure{}, ReasonUnscheduled
	}

	// Sub compares instants, so the record's own UTC offset is honored
	// whatever zone now is expressed in.
	timeLeft := raw.When.Sub(now).Minutes()
	if timeLeft < st.MinTime {
		return types.Departure{}, ReasonTooSoon
	}

	var delay float64
	if raw.Delay != nil {
		delay = *raw.Delay / 60
	}

	return types.Departure{
		ID:        raw.TripID,
		Line:      raw.LineID,
		Direction: raw.Direction,
		TimeLeft:  timeLeft,
		Delay:     delay,
		Product:   raw.Product,
		Reachable: timeLeft > st.TimeNeeded,
	}, ReasonNone
}

// Merge removes repeated trips, keeping the first occurrence, and orders the
// rest by time left. Ties keep their input order. Nothing is truncated and
// the result is never nil.
func Merge(batch []types.Departure) []types.Departure {
	seen := make(map[string]struct{}, len(batch))
	merged := make([]types.Departure, 0, len(batch))
	for _, dep := range batch {
		if _, dup := seen[dep.ID]; dup {
			continue
		}
		seen[dep.ID] = struct{}{}
		merged = append(merged, dep)
	}

	slices.SortStableFunc(merged, func(a, b types.Departure) int {
		switch {
		case a.Before(b):
			return -1
		case b.Before(a):
			return 1
		}
		return 0
	})
	return merged
}
