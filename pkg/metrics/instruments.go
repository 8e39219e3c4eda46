package metrics

import (
	"go.opentelemetry.io/otel/metric"
)

// HTTP Client Metrics (OTEL Semantic Conventions)
var (
	// HTTPClientRequestDuration measures the duration of HTTP client requests
	HTTPClientRequestDuration metric.Float64Histogram

	// HTTPClientResponseBodySize measures the size of HTTP response bodies
	HTTPClientResponseBodySize metric.Int64Histogram
)

// Pipeline Metrics
var (
	// PipelineCyclesTotal counts refresh ticks
	PipelineCyclesTotal metric.Int64Counter

	// PipelineCycleDuration measures the duration of refresh ticks
	PipelineCycleDuration metric.Float64Histogram

	// PipelineStationsProcessed counts stations fetched
	PipelineStationsProcessed metric.Int64Counter

	// PipelineStationsFailed counts stations where every direction failed
	PipelineStationsFailed metric.Int64Counter

	// PipelineStationsInFlight tracks concurrent station fetches
	PipelineStationsInFlight metric.Int64UpDownCounter

	// PipelineDeparturesProduced counts departures handed to the board
	PipelineDeparturesProduced metric.Int64Counter
)

// Station Metrics
var (
	// DirectionFetchDuration measures fetch+parse time per direction
	DirectionFetchDuration metric.Float64Histogram

	// FetchErrorsTotal counts failed direction fetches by error type
	FetchErrorsTotal metric.Int64Counter

	// DeparturesDiscarded counts raw records dropped during normalization
	DeparturesDiscarded metric.Int64Counter

	// DeparturesDuplicated counts repeated trips removed while merging
	DeparturesDuplicated metric.Int64Counter
)

// Parser Metrics
var (
	// ParseDuration measures departures JSON parsing duration
	ParseDuration metric.Float64Histogram

	// ParserRecordsExtracted counts successfully decoded records
	ParserRecordsExtracted metric.Int64Counter

	// ParserRecordsFailed counts records that failed to decode
	ParserRecordsFailed metric.Int64Counter

	// ParserPayloadSize measures the size of JSON payloads being parsed
	ParserPayloadSize metric.Int64Histogram
)

// Departures API Metrics
var (
	// APIRequestsTotal counts HTTP attempts against the departures API
	APIRequestsTotal metric.Int64Counter

	// FetchRetries counts retry attempts
	FetchRetries metric.Int64Counter
)

// initializeInstruments creates all metric instruments
func initializeInstruments() error {
	var err error

	// HTTP Client Metrics - following OTEL semantic conventions
	HTTPClientRequestDuration, err = Meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("Duration of HTTP client requests"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 0.75, 1.0, 2.5, 5.0, 7.5, 10.0),
	)
	if err != nil {
		return err
	}

	HTTPClientResponseBodySize, err = Meter.Int64Histogram(
		"http.client.response.body.size",
		metric.WithDescription("Size of HTTP response bodies"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(1024, 10240, 102400, 1048576, 10485760), // 1KB to 10MB
	)
	if err != nil {
		return err
	}

	// Pipeline Metrics
	PipelineCyclesTotal, err = Meter.Int64Counter(
		"pipeline.cycles.total",
		metric.WithDescription("Total number of refresh ticks"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return err
	}

	PipelineCycleDuration, err = Meter.Float64Histogram(
		"pipeline.cycle.duration",
		metric.WithDescription("Duration of refresh ticks"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0),
	)
	if err != nil {
		return err
	}

	PipelineStationsProcessed, err = Meter.Int64Counter(
		"pipeline.stations.processed",
		metric.WithDescription("Number of stations fetched"),
		metric.WithUnit("{station}"),
	)
	if err != nil {
		return err
	}

	PipelineStationsFailed, err = Meter.Int64Counter(
		"pipeline.stations.failed",
		metric.WithDescription("Stations where every direction fetch failed"),
		metric.WithUnit("{station}"),
	)
	if err != nil {
		return err
	}

	PipelineStationsInFlight, err = Meter.Int64UpDownCounter(
		"pipeline.stations.in_flight",
		metric.WithDescription("Number of stations currently being fetched"),
		metric.WithUnit("{station}"),
	)
	if err != nil {
		return err
	}

	PipelineDeparturesProduced, err = Meter.Int64Counter(
		"pipeline.departures.produced",
		metric.WithDescription("Departures handed to the board"),
		metric.WithUnit("{departure}"),
	)
	if err != nil {
		return err
	}

	// Station Metrics
	DirectionFetchDuration, err = Meter.Float64Histogram(
		"station.direction.duration",
		metric.WithDescription("Fetch and parse duration per direction"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return err
	}

	FetchErrorsTotal, err = Meter.Int64Counter(
		"departures.fetch.errors",
		metric.WithDescription("Failed direction fetches by error type"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	DeparturesDiscarded, err = Meter.Int64Counter(
		"departures.discarded",
		metric.WithDescription("Raw records dropped during normalization by reason"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return err
	}

	DeparturesDuplicated, err = Meter.Int64Counter(
		"departures.duplicated",
		metric.WithDescription("Repeated trips removed while merging directions"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return err
	}

	// Parser Metrics
	ParseDuration, err = Meter.Float64Histogram(
		"parser.parse.duration",
		metric.WithDescription("Duration of departures JSON parsing"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25),
	)
	if err != nil {
		return err
	}

	ParserRecordsExtracted, err = Meter.Int64Counter(
		"parser.records.extracted",
		metric.WithDescription("Departure records successfully decoded"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return err
	}

	ParserRecordsFailed, err = Meter.Int64Counter(
		"parser.records.failed",
		metric.WithDescription("Departure records that failed to decode"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return err
	}

	ParserPayloadSize, err = Meter.Int64Histogram(
		"parser.payload.size",
		metric.WithDescription("Size of JSON payloads being parsed"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(1024, 10240, 102400, 1048576, 10485760), // 1KB to 10MB
	)
	if err != nil {
		return err
	}

	// Departures API Metrics
	APIRequestsTotal, err = Meter.Int64Counter(
		"departures.api.requests.total",
		metric.WithDescription("Total departures API requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	FetchRetries, err = Meter.Int64Counter(
		"departures.api.retries",
		metric.WithDescription("Retry attempts for departures API requests"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return err
	}

	return nil
}
