package parser

import (
	"context"
	"errors"
	"testing"
	"time"

	"departureboard/pkg/types"
)

const sampleResponse = `{
	"departures": [
		{
			"tripId": "1|32667|11|86|14102026",
			"when": "2026-10-14T12:10:00+02:00",
			"plannedWhen": "2026-10-14T12:09:00+02:00",
			"direction": "S Westend (Berlin)",
			"delay": 60,
			"line": {"id": "s41", "name": "S41", "product": "suburban"}
		},
		{
			"tripId": "1|45001|3|86|14102026",
			"when": null,
			"direction": "U Warschauer Str.",
			"delay": null,
			"line": {"id": "u1", "product": "subway"}
		}
	],
	"realtimeDataUpdatedAt": 1792000000
}`

func TestParseDepartures(t *testing.T) {
	parser := NewDepartureParser()

	deps, err := parser.ParseDepartures(context.Background(), []byte(sampleResponse))
	if err != nil {
		t.Fatalf("ParseDepartures failed: %v", err)
	}
	if len(deps) != 2 {
		t.Fatalf("expected 2 records, got %d", len(deps))
	}

	first := deps[0]
	if first.TripID != "1|32667|11|86|14102026" {
		t.Errorf("TripID = %q", first.TripID)
	}
	if first.When == nil {
		t.Fatal("When should be set")
	}
	want := time.Date(2026, 10, 14, 10, 10, 0, 0, time.UTC)
	if !first.When.Equal(want) {
		t.Errorf("When = %v, want %v", first.When, want)
	}
	if _, offset := first.When.Zone(); offset != 2*3600 {
		t.Errorf("When should keep its +02:00 offset, got %d", offset)
	}
	if first.Direction != "S Westend (Berlin)" {
		t.Errorf("Direction = %q", first.Direction)
	}
	if first.Delay == nil || *first.Delay != 60 {
		t.Errorf("Delay = %v, want 60", first.Delay)
	}
	if first.LineID != "s41" || first.Product != types.ProductSuburban {
		t.Errorf("line = %q/%q", first.LineID, first.Product)
	}

	second := deps[1]
	if second.When != nil {
		t.Error("null when should decode to nil")
	}
	if second.Delay != nil {
		t.Error("null delay should decode to nil")
	}
	if second.Product != types.ProductSubway {
		t.Errorf("Product = %q", second.Product)
	}
}

func TestParseDepartures_SkipsMalformedRecords(t *testing.T) {
	body := `{"departures": [
		{"tripId": "ok-1", "when": "2026-10-14T12:10:00+02:00", "direction": "A", "delay": 0, "line": {"id": "m10", "product": "tram"}},
		{"when": "2026-10-14T12:11:00+02:00", "direction": "no trip id", "line": {"id": "m10", "product": "tram"}},
		{"tripId": "bad-when", "when": "soon", "direction": "B", "line": {"id": "m10", "product": "tram"}},
		{"tripId": "no-line", "when": "2026-10-14T12:12:00+02:00", "direction": "C"},
		{"tripId": "null-line-id", "when": "2026-10-14T12:12:00+02:00", "line": {"id": null, "product": "bus"}},
		{"tripId": "numeric-line-id", "when": "2026-10-14T12:12:30+02:00", "line": {"id": 7}},
		{"tripId": "bad-delay", "when": "2026-10-14T12:13:00+02:00", "delay": "late", "line": {"id": "m10"}},
		"not an object",
		{"tripId": "ok-2", "when": "2026-10-14T12:20:00+02:00", "direction": null, "line": {"id": "n5"}}
	]}`

	deps, err := NewDepartureParser().ParseDepartures(context.Background(), []byte(body))
	if err != nil {
		t.Fatalf("ParseDepartures failed: %v", err)
	}
	if len(deps) != 3 {
		t.Fatalf("expected 3 valid records, got %d: %+v", len(deps), deps)
	}
	if deps[0].TripID != "ok-1" || deps[1].TripID != "null-line-id" || deps[2].TripID != "ok-2" {
		t.Errorf("kept %q, %q and %q", deps[0].TripID, deps[1].TripID, deps[2].TripID)
	}
	if deps[1].LineID != "" || deps[1].Product != types.ProductBus {
		t.Errorf("null line id should decode to empty with product kept, got %q/%q", deps[1].LineID, deps[1].Product)
	}
	if deps[2].Direction != "" {
		t.Errorf("null direction should decode to empty, got %q", deps[2].Direction)
	}
	if deps[2].Product != "" {
		t.Errorf("missing product should stay empty, got %q", deps[2].Product)
	}
}

func TestParseDepartures_BodyErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"whitespace body", "   \n"},
		{"invalid JSON", `{"departures": [`},
		{"html error page", `<html><body>502 Bad Gateway</body></html>`},
		{"departures not an array", `{"departures": "none"}`},
	}

	parser := NewDepartureParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps, err := parser.ParseDepartures(context.Background(), []byte(tt.body))
			if err == nil {
				t.Errorf("expected error, got %d records", len(deps))
			}
		})
	}
}

func TestParseDepartures_NoDepartures(t *testing.T) {
	parser := NewDepartureParser()
	for _, body := range []string{`{}`, `{"departures": []}`, `{"departures": null}`} {
		deps, err := parser.ParseDepartures(context.Background(), []byte(body))
		if err != nil {
			t.Errorf("ParseDepartures(%s) unexpected error: %v", body, err)
		}
		if len(deps) != 0 {
			t.Errorf("ParseDepartures(%s) = %d records, want 0", body, len(deps))
		}
	}
}

func TestParseDepartures_BareArray(t *testing.T) {
	body := `[{"tripId": "legacy", "when": "2026-10-14T12:10:00Z", "line": {"id": "100", "product": "bus"}}]`

	deps, err := NewDepartureParser().ParseDepartures(context.Background(), []byte(body))
	if err != nil {
		t.Fatalf("ParseDepartures failed: %v", err)
	}
	if len(deps) != 1 || deps[0].TripID != "legacy" {
		t.Fatalf("expected the legacy record, got %+v", deps)
	}
}

func TestParseRecord_MalformedErrorsWrapSentinel(t *testing.T) {
	_, err := parseRecord(map[string]interface{}{"when": nil})
	if !errors.Is(err, ErrMalformedRecord) {
		t.Errorf("error = %v, want ErrMalformedRecord", err)
	}
}
