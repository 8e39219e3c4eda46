package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"departureboard/pkg/metrics"
	"departureboard/pkg/types"

	"github.com/clbanning/mxj/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ErrMalformedRecord is wrapped by errors describing a single bad record.
var ErrMalformedRecord = errors.New("malformed departure record")

type DepartureParser struct {
	tracer trace.Tracer
}

func NewDepartureParser() *DepartureParser {
	return &DepartureParser{
		tracer: otel.Tracer("departure-parser"),
	}
}

// ParseDepartures decodes a departures response body. An undecodable body is
// an error; individual malformed records are skipped so the rest of the
// batch survives.
func (p *DepartureParser) ParseDepartures(ctx context.Context, body []byte) ([]types.RawDeparture, error) {
	ctx, span := p.tracer.Start(ctx, "parser.parse_departures",
		trace.WithAttributes(
			attribute.Int("json_size_bytes", len(body)),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.ParseDuration.Record(ctx, time.Since(start).Seconds())
	}()
	metrics.ParserPayloadSize.Record(ctx, int64(len(body)))

	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		err := errors.New("empty response body")
		span.RecordError(err)
		return nil, err
	}

	// Older API versions answer with a bare array of departures.
	if body[0] == '[' {
		body = append(append([]byte(`{"departures":`), body...), '}')
	}

	// Parse JSON to map
	jsonMap, err := mxj.NewMapJson(body)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	records, err := departureRecords(jsonMap)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	departures := make([]types.RawDeparture, 0, len(records))
	failed := 0
	for i, record := range records {
		dep, err := parseRecord(record)
		if err != nil {
			failed++
			slog.Debug("Skipping malformed departure record", "index", i, "error", err)
			continue
		}
		departures = append(departures, dep)
	}

	metrics.ParserRecordsExtracted.Add(ctx, int64(len(departures)))
	if failed > 0 {
		metrics.ParserRecordsFailed.Add(ctx, int64(failed), metric.WithAttributes(attribute.String("reason", "malformed")))
	}

	span.SetAttributes(
		attribute.Int("records_count", len(records)),
		attribute.Int("departures_count", len(departures)),
		attribute.Int("malformed_count", failed),
	)

	return departures, nil
}

func departureRecords(jsonMap mxj.Map) ([]interface{}, error) {
	raw, ok := jsonMap["departures"]
	if !ok || raw == nil {
		return nil, nil
	}

	records, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("departures field is %T, not an array", raw)
	}
	return records, nil
}

func parseRecord(record interface{}) (types.RawDeparture, error) {
	fields, ok := record.(map[string]interface{})
	if !ok {
		return types.RawDeparture{}, fmt.Errorf("%w: record is %T", ErrMalformedRecord, record)
	}

	dep := types.RawDeparture{}

	tripID, ok := fields["tripId"].(string)
	if !ok || strings.TrimSpace(tripID) == "" {
		return dep, fmt.Errorf("%w: missing tripId", ErrMalformedRecord)
	}
	dep.TripID = tripID

	// A null "when" marks a cancelled or unscheduled trip and is kept so the
	// normalizer can discard it explicitly.
	switch when := fields["when"].(type) {
	case nil:
	case string:
		parsed, err := time.Parse(time.RFC3339, when)
		if err != nil {
			return dep, fmt.Errorf("%w: when: %v", ErrMalformedRecord, err)
		}
		dep.When = &parsed
	default:
		return dep, fmt.Errorf("%w: when is %T", ErrMalformedRecord, when)
	}

	switch direction := fields["direction"].(type) {
	case nil:
	case string:
		dep.Direction = direction
	default:
		return dep, fmt.Errorf("%w: direction is %T", ErrMalformedRecord, direction)
	}

	switch delay := fields["delay"].(type) {
	case nil:
	case float64:
		dep.Delay = &delay
	default:
		return dep, fmt.Errorf("%w: delay is %T", ErrMalformedRecord, delay)
	}

	rec := mxj.Map(fields)
	if _, ok := fields["line"].(map[string]interface{}); !ok {
		return dep, fmt.Errorf("%w: missing line", ErrMalformedRecord)
	}
	// A null or absent line id is kept; the board falls back to the
	// product icon.
	if v, err := rec.ValueForPath("line.id"); err == nil {
		switch lineID := v.(type) {
		case nil:
		case string:
			dep.LineID = lineID
		default:
			return dep, fmt.Errorf("%w: line.id is %T", ErrMalformedRecord, lineID)
		}
	}
	if v, err := rec.ValueForPath("line.product"); err == nil {
		if product, ok := v.(string); ok {
			dep.Product = types.Product(product)
		}
	}

	return dep, nil
}
