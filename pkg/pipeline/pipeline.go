package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"departureboard/pkg/board"
	"departureboard/pkg/config"
	"departureboard/pkg/metrics"
	internalotel "departureboard/pkg/otel"
	"departureboard/pkg/station"
	"departureboard/pkg/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DefaultInterval matches the refresh rate of the station panels.
const DefaultInterval = 10 * time.Second

// Fetcher produces one result per station for a tick.
type Fetcher interface {
	FetchAll(ctx context.Context, stations []config.Station, now time.Time) []station.Result
}

// Sink receives every tick's snapshot.
type Sink interface {
	Update(ctx context.Context, snap board.Snapshot)
}

type Config struct {
	Stations []config.Station
	Interval time.Duration
	// Once runs a single tick and returns.
	Once bool
}

type Pipeline struct {
	config  Config
	fetcher Fetcher
	sink    Sink
	tracer  trace.Tracer
	now     func() time.Time
}

func New(config Config, fetcher Fetcher, sink Sink) (*Pipeline, error) {
	if len(config.Stations) == 0 {
		return nil, fmt.Errorf("at least one station is required")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}

	return &Pipeline{
		config:  config,
		fetcher: fetcher,
		sink:    sink,
		tracer:  otel.Tracer("pipeline"),
		now:     time.Now,
	}, nil
}

// Run processes immediately, then on every interval until ctx is done.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.config.Once {
		return p.processOnce(ctx)
	}

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	slog.Info("Pipeline started", "interval", p.config.Interval, "stations", len(p.config.Stations))

	if err := p.processOnce(ctx); err != nil {
		slog.Error("Error in initial processing", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("Pipeline stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := p.processOnce(ctx); err != nil {
				slog.Error("Error processing", "error", err)
			}
		}
	}
}

var errAllStationsFailed = errors.New("all stations failed")

func (p *Pipeline) processOnce(ctx context.Context) error {
	ctx, span := p.tracer.Start(ctx, "pipeline.process_once",
		trace.WithAttributes(attribute.Int("stations_count", len(p.config.Stations))),
	)
	defer span.End()

	start := time.Now()
	now := p.now()

	results := p.fetcher.FetchAll(ctx, p.config.Stations, now)

	failed, produced := 0, 0
	for _, r := range results {
		if r.Failed {
			failed++
		}
		produced += len(r.Departures)
	}

	p.sink.Update(ctx, board.Snapshot{Time: now, Stations: results})

	duration := time.Since(start)
	span.SetAttributes(
		attribute.Int("departures_produced", produced),
		attribute.Int("failed_stations", failed),
		attribute.String("processing_duration", duration.String()),
	)

	status := "success"
	var err error
	switch {
	case failed == len(results):
		status = "failure"
		err = fmt.Errorf("%w: %d of %d", errAllStationsFailed, failed, len(results))
		internalotel.RecordError(span, err, internalotel.ErrorTypeNetwork, true)
	case failed > 0:
		status = "partial"
	}
	if err == nil {
		internalotel.SetSpanOk(span)
		metrics.RecordLastSuccessTimestamp()
	}

	attrs := metric.WithAttributes(attribute.String("status", status))
	metrics.PipelineCyclesTotal.Add(ctx, 1, attrs)
	metrics.PipelineCycleDuration.Record(ctx, duration.Seconds(), attrs)
	metrics.PipelineDeparturesProduced.Add(ctx, int64(produced))

	slog.Debug("Tick processed",
		"stations", len(results),
		"failed", failed,
		"departures", produced,
		"duration", duration,
	)
	return err
}

// JSONSink writes each snapshot as one JSON line, for piping the board data
// into other tools.
type JSONSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewJSONSink(w io.Writer) *JSONSink {
	return &JSONSink{w: w}
}

type jsonStation struct {
	ID         string            `json:"id"`
	Title      string            `json:"title"`
	Failed     bool              `json:"failed"`
	Departures []types.Departure `json:"departures"`
}

type jsonSnapshot struct {
	Time     time.Time     `json:"time"`
	Stations []jsonStation `json:"stations"`
}

func (s *JSONSink) Update(_ context.Context, snap board.Snapshot) {
	out := jsonSnapshot{Time: snap.Time, Stations: make([]jsonStation, 0, len(snap.Stations))}
	for _, r := range snap.Stations {
		out.Stations = append(out.Stations, jsonStation{
			ID:         r.Station.ID,
			Title:      r.Station.Title,
			Failed:     r.Failed,
			Departures: r.Departures,
		})
	}

	data, err := json.Marshal(out)
	if err != nil {
		slog.Error("Failed to marshal snapshot", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "%s\n", data); err != nil {
		slog.Error("Failed to write snapshot", "error", err)
	}
}
