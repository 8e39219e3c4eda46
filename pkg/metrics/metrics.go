package metrics

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"departureboard/pkg/otel"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "departureboard"

// DefaultExportInterval is used when OTEL_METRIC_EXPORT_INTERVAL is unset.
const DefaultExportInterval = 60 * time.Second

var (
	meterProvider *sdkmetric.MeterProvider

	// Meter is the meter all instruments are created from
	Meter metric.Meter

	// lastSuccessTimestamp tracks the last refresh tick that produced a
	// board update (Unix timestamp)
	lastSuccessTimestamp atomic.Int64

	// staleStations is the number of panels currently showing the failure notice
	staleStations atomic.Int64

	enabled atomic.Bool
)

// Instruments start out bound to the global meter, which is a no-op until
// InitMetrics installs a provider, so recording is always safe.
func init() {
	Meter = otelapi.Meter(meterName)
	if err := initializeInstruments(); err != nil {
		panic(err)
	}
}

// InitMetrics installs an OTLP meter provider when OTEL_METRICS_ENABLED is
// set. Exporter failures degrade to no-op metrics; the returned shutdown
// function is always non-nil.
func InitMetrics(ctx context.Context) (func(), error) {
	if !otel.IsMetricsEnabled() {
		slog.Debug("OpenTelemetry metrics is disabled")
		return func() {}, nil
	}

	cfg := otel.GetExporterConfig(otel.SignalMetrics)
	exporter, err := otel.NewMetricExporter(ctx, cfg)
	if err != nil {
		slog.Warn("Failed to create OTLP metric exporter, using noop", "error", err)
		return func() {}, nil
	}

	res, err := otel.NewResource(ctx)
	if err != nil {
		slog.Warn("Failed to create resource, using noop", "error", err)
		return func() {}, nil
	}

	interval := DefaultExportInterval
	if v, err := time.ParseDuration(getEnv("OTEL_METRIC_EXPORT_INTERVAL", "")); err == nil && v > 0 {
		interval = v
	}

	meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
		sdkmetric.WithResource(res),
	)
	otelapi.SetMeterProvider(meterProvider)
	Meter = meterProvider.Meter(meterName)

	if err := initializeInstruments(); err != nil {
		slog.Error("Failed to initialize metric instruments", "error", err)
		return func() {}, nil
	}
	if err := registerObservables(); err != nil {
		slog.Warn("Failed to register observable gauges", "error", err)
	}

	enabled.Store(true)
	slog.Debug("OpenTelemetry metrics initialized",
		"endpoint", cfg.Endpoint,
		"protocol", cfg.Protocol,
		"interval", interval,
	)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		enabled.Store(false)
		if err := meterProvider.Shutdown(ctx); err != nil {
			slog.Error("Error shutting down meter provider", "error", err)
		}
	}, nil
}

// registerObservables registers the board gauges and a runtime snapshot
// that reads MemStats once per collection.
func registerObservables() error {
	goroutines, err := Meter.Int64ObservableGauge("runtime.go.goroutines",
		metric.WithDescription("Number of goroutines"),
		metric.WithUnit("{goroutine}"))
	if err != nil {
		return err
	}
	heapAlloc, err := Meter.Int64ObservableGauge("runtime.go.mem.heap_alloc",
		metric.WithDescription("Heap memory allocated"),
		metric.WithUnit("By"))
	if err != nil {
		return err
	}
	heapSys, err := Meter.Int64ObservableGauge("runtime.go.mem.heap_sys",
		metric.WithDescription("Heap memory obtained from OS"),
		metric.WithUnit("By"))
	if err != nil {
		return err
	}
	gcCount, err := Meter.Int64ObservableCounter("runtime.go.gc.count",
		metric.WithDescription("Number of completed GC cycles"),
		metric.WithUnit("{gc}"))
	if err != nil {
		return err
	}
	lastSuccess, err := Meter.Int64ObservableGauge("pipeline.last_success.timestamp",
		metric.WithDescription("Unix timestamp of the last refresh tick that updated the board"),
		metric.WithUnit("s"))
	if err != nil {
		return err
	}
	stale, err := Meter.Int64ObservableGauge("board.stations.stale",
		metric.WithDescription("Station panels showing the fetch failure notice"),
		metric.WithUnit("{station}"))
	if err != nil {
		return err
	}

	_, err = Meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		o.ObserveInt64(goroutines, int64(runtime.NumGoroutine()))
		o.ObserveInt64(heapAlloc, int64(m.HeapAlloc))
		o.ObserveInt64(heapSys, int64(m.HeapSys))
		o.ObserveInt64(gcCount, int64(m.NumGC))
		if ts := lastSuccessTimestamp.Load(); ts > 0 {
			o.ObserveInt64(lastSuccess, ts)
		}
		o.ObserveInt64(stale, staleStations.Load())
		return nil
	}, goroutines, heapAlloc, heapSys, gcCount, lastSuccess, stale)
	return err
}

// RecordLastSuccessTimestamp records the current time as the last successful cycle
func RecordLastSuccessTimestamp() {
	lastSuccessTimestamp.Store(time.Now().Unix())
}

// SetStaleStations records how many panels show the failure notice.
func SetStaleStations(n int) {
	staleStations.Store(int64(n))
}

// IsEnabled returns true if metrics are exported
func IsEnabled() bool {
	return enabled.Load()
}

// LastSuccess returns the time of the last successful refresh tick, or the
// zero time if none succeeded yet.
func LastSuccess() time.Time {
	ts := lastSuccessTimestamp.Load()
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0)
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
