package profiling

import (
	"log/slog"
	"os"
	"strings"

	"departureboard/pkg/otel"

	"github.com/grafana/pyroscope-go"
)

// InitProfiling starts continuous profiling when PYROSCOPE_PROFILING_ENABLED
// is set. A profiler that fails to start is logged and skipped.
func InitProfiling() (func(), error) {
	if !isTrue(getEnv("PYROSCOPE_PROFILING_ENABLED", "false")) {
		slog.Debug("Pyroscope profiling is disabled")
		return func() {}, nil
	}

	cfg := pyroscope.Config{
		ApplicationName: getEnv("PYROSCOPE_APPLICATION_NAME", otel.ServiceName),
		ServerAddress:   getEnv("PYROSCOPE_SERVER_ADDRESS", "http://localhost:4040"),
		Logger:          pyroscope.StandardLogger,
		Tags: map[string]string{
			"service":  otel.ServiceName,
			"version":  otel.Version,
			"instance": otel.ServiceInstanceID(),
		},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
		},
	}

	user := getEnv("PYROSCOPE_BASIC_AUTH_USER", "")
	password := getEnv("PYROSCOPE_BASIC_AUTH_PASSWORD", "")
	if user != "" && password != "" {
		cfg.BasicAuthUser = user
		cfg.BasicAuthPassword = password
	}

	profiler, err := pyroscope.Start(cfg)
	if err != nil {
		slog.Warn("Failed to start Pyroscope profiler", "error", err)
		return func() {}, nil
	}

	slog.Debug("Pyroscope profiling started", "server", cfg.ServerAddress, "application", cfg.ApplicationName)

	return func() {
		if err := profiler.Stop(); err != nil {
			slog.Error("Error stopping Pyroscope profiler", "error", err)
		}
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func isTrue(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
