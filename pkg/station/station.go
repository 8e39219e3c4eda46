// Package station builds the departure list of each configured stop by
// querying every direction of its active window and merging the results.
package station

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"departureboard/pkg/config"
	"departureboard/pkg/departure"
	"departureboard/pkg/metrics"
	internalotel "departureboard/pkg/otel"
	"departureboard/pkg/transport"
	"departureboard/pkg/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Fetcher performs one departures query.
type Fetcher interface {
	FetchDepartures(ctx context.Context, req transport.Request) (*transport.Response, error)
}

// Parser decodes a departures payload.
type Parser interface {
	ParseDepartures(ctx context.Context, body []byte) ([]types.RawDeparture, error)
}

// Result is the outcome of one station for one tick.
type Result struct {
	Station    config.Station
	Departures []types.Departure
	// Failed is set when every queried direction failed.
	Failed bool
}

type Aggregator struct {
	fetcher Fetcher
	parser  Parser
	tracer  trace.Tracer
}

func NewAggregator(fetcher Fetcher, parser Parser) *Aggregator {
	return &Aggregator{
		fetcher: fetcher,
		parser:  parser,
		tracer:  otel.Tracer("station"),
	}
}

// FetchDepartures returns the merged departures of st at now. Failed
// directions are logged and skipped, so the result is never nil and may be
// empty.
func (a *Aggregator) FetchDepartures(ctx context.Context, st config.Station, now time.Time) []types.Departure {
	deps, _ := a.fetch(ctx, st, now)
	return deps
}

// FetchAll fetches every station concurrently. Results are in the order of
// stations.
func (a *Aggregator) FetchAll(ctx context.Context, stations []config.Station, now time.Time) []Result {
	results := make([]Result, len(stations))

	var g errgroup.Group
	for i, st := range stations {
		g.Go(func() error {
			metrics.PipelineStationsInFlight.Add(ctx, 1)
			defer metrics.PipelineStationsInFlight.Add(ctx, -1)

			deps, failed := a.fetch(ctx, st, now)
			results[i] = Result{Station: st, Departures: deps, Failed: failed}

			attrs := metric.WithAttributes(attribute.String("station", st.ID))
			metrics.PipelineStationsProcessed.Add(ctx, 1, attrs)
			if failed {
				metrics.PipelineStationsFailed.Add(ctx, 1, attrs)
			}
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	return results
}

type directionResult struct {
	departures []types.Departure
	err        error
}

func (a *Aggregator) fetch(ctx context.Context, st config.Station, now time.Time) ([]types.Departure, bool) {
	night := st.IsNight(now)
	ctx, span := a.tracer.Start(ctx, "station.fetch_departures",
		trace.WithAttributes(
			attribute.String("station", st.ID),
			attribute.String("station.title", st.Title),
			attribute.Bool("night", night),
		),
	)
	defer span.End()

	opts := st.Active(now)
	if opts == nil {
		slog.Debug("No options for current window, skipping station", "station", st.ID, "night", night)
		span.SetAttributes(attribute.Int("directions", 0))
		internalotel.SetSpanOk(span)
		return []types.Departure{}, false
	}
	span.SetAttributes(attribute.Int("directions", len(opts.Directions)))

	// Each goroutine owns one slot, so the merge below always sees the
	// configured direction order.
	slots := make([]directionResult, len(opts.Directions))
	var g errgroup.Group
	for i, dir := range opts.Directions {
		g.Go(func() error {
			deps, err := a.fetchDirection(ctx, st, dir, opts.Products, now)
			slots[i] = directionResult{departures: deps, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var batch []types.Departure
	failures := 0
	for i, slot := range slots {
		if slot.err != nil {
			failures++
			slog.Warn("Failed to fetch departures",
				"station", st.ID,
				"direction", opts.Directions[i],
				"error", slot.err,
			)
			continue
		}
		batch = append(batch, slot.departures...)
	}

	merged := departure.Merge(batch)
	if dups := len(batch) - len(merged); dups > 0 {
		metrics.DeparturesDuplicated.Add(ctx, int64(dups), metric.WithAttributes(attribute.String("station", st.ID)))
	}

	failed := len(slots) > 0 && failures == len(slots)
	span.SetAttributes(
		attribute.Int("directions.failed", failures),
		attribute.Int("departures", len(merged)),
	)
	if failed {
		internalotel.RecordError(span, errors.New("all directions failed"), internalotel.ErrorTypeNetwork, true)
	} else {
		internalotel.SetSpanOk(span)
	}

	return merged, failed
}

// fetchDirection queries, decodes and normalizes one direction.
func (a *Aggregator) fetchDirection(ctx context.Context, st config.Station, dir string, products types.Products, now time.Time) ([]types.Departure, error) {
	start := time.Now()
	attrs := []attribute.KeyValue{
		attribute.String("station", st.ID),
		attribute.String("direction", dir),
	}
	defer func() {
		metrics.DirectionFetchDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
	}()

	resp, err := a.fetcher.FetchDepartures(ctx, transport.Request{
		StopID:    st.ID,
		Direction: dir,
		Products:  products,
		MinTime:   st.MinTime,
		Duration:  st.MaxTime - st.MinTime,
		Results:   st.MaxDepartures,
	})
	if err != nil {
		countFetchError(ctx, fetchErrorType(err), attrs)
		return nil, err
	}

	raws, err := a.parser.ParseDepartures(ctx, resp.Body)
	if err != nil {
		countFetchError(ctx, internalotel.ErrorTypeParse, attrs)
		return nil, err
	}

	deps := make([]types.Departure, 0, len(raws))
	for _, raw := range raws {
		dep, reason := departure.Normalize(raw, st, now)
		if reason != departure.ReasonNone {
			metrics.DeparturesDiscarded.Add(ctx, 1, metric.WithAttributes(append(attrs, attribute.String("reason", reason))...))
			continue
		}
		deps = append(deps, dep)
	}

	slog.Debug("Fetched direction",
		"station", st.ID,
		"direction", dir,
		"records", len(raws),
		"departures", len(deps),
		"attempts", resp.Attempts,
	)
	return deps, nil
}

func fetchErrorType(err error) string {
	var statusErr *transport.StatusError
	if errors.As(err, &statusErr) {
		return internalotel.ErrorTypeHTTP
	}
	return internalotel.ClassifyError(err)
}

func countFetchError(ctx context.Context, errorType string, attrs []attribute.KeyValue) {
	metrics.FetchErrorsTotal.Add(ctx, 1, metric.WithAttributes(append(attrs, attribute.String("error.type", errorType))...))
}
