package otel

import (
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Protocol represents OTLP transport protocol
type Protocol string

const (
	ProtocolGRPC         Protocol = "grpc"
	ProtocolHTTPProtobuf Protocol = "http/protobuf"
	ProtocolHTTPJSON     Protocol = "http/json"
)

// SignalType represents the OTEL signal type
type SignalType string

const (
	SignalTraces  SignalType = "traces"
	SignalMetrics SignalType = "metrics"
)

const defaultExportTimeout = 10 * time.Second

// ExporterConfig holds parsed OTLP exporter configuration for a signal
type ExporterConfig struct {
	Endpoint    string
	Protocol    Protocol
	Headers     map[string]string
	Timeout     time.Duration
	Insecure    bool
	Compression string
}

// IsTracingEnabled returns true if OTEL tracing is enabled
func IsTracingEnabled() bool {
	return isTrue(os.Getenv("OTEL_TRACING_ENABLED"))
}

// IsMetricsEnabled returns true if OTEL metrics is enabled
func IsMetricsEnabled() bool {
	return isTrue(os.Getenv("OTEL_METRICS_ENABLED"))
}

// signalEnv looks up OTEL_EXPORTER_OTLP_<SIGNAL>_<KEY>, falling back to
// OTEL_EXPORTER_OTLP_<KEY>.
type signalEnv struct {
	signal SignalType
}

func (e signalEnv) specific(key string) string {
	return os.Getenv("OTEL_EXPORTER_OTLP_" + strings.ToUpper(string(e.signal)) + "_" + key)
}

func (e signalEnv) base(key string) string {
	return os.Getenv("OTEL_EXPORTER_OTLP_" + key)
}

func (e signalEnv) get(key, defaultValue string) string {
	if v := e.specific(key); v != "" {
		return v
	}
	if v := e.base(key); v != "" {
		return v
	}
	return defaultValue
}

// GetExporterConfig resolves the exporter configuration for a signal from
// the standard OTLP environment variables.
func GetExporterConfig(signal SignalType) ExporterConfig {
	env := signalEnv{signal: signal}

	cfg := ExporterConfig{
		Protocol:    parseProtocol(env.get("PROTOCOL", string(ProtocolHTTPProtobuf))),
		Headers:     parseHeaders(env.get("HEADERS", "")),
		Timeout:     parseDuration(env.get("TIMEOUT", ""), defaultExportTimeout),
		Compression: env.get("COMPRESSION", ""),
	}

	// A signal-specific endpoint is used as-is; a base endpoint gets the
	// signal path appended for HTTP protocols.
	switch {
	case env.specific("ENDPOINT") != "":
		cfg.Endpoint = normalizeEndpoint(env.specific("ENDPOINT"), cfg.Protocol)
	case env.base("ENDPOINT") != "":
		cfg.Endpoint = appendSignalPath(normalizeEndpoint(env.base("ENDPOINT"), cfg.Protocol), signal, cfg.Protocol)
	case cfg.Protocol == ProtocolGRPC:
		cfg.Endpoint = "localhost:4317"
	default:
		cfg.Endpoint = "http://localhost:4318/v1/" + string(signal)
	}

	if v := env.get("INSECURE", ""); v != "" {
		cfg.Insecure = isTrue(v)
	} else {
		cfg.Insecure = strings.HasPrefix(cfg.Endpoint, "http://")
	}

	return cfg
}

func parseProtocol(s string) Protocol {
	switch Protocol(strings.ToLower(strings.TrimSpace(s))) {
	case ProtocolGRPC:
		return ProtocolGRPC
	case ProtocolHTTPJSON:
		return ProtocolHTTPJSON
	default:
		return ProtocolHTTPProtobuf
	}
}

// normalizeEndpoint reduces gRPC endpoints to host:port and makes sure HTTP
// endpoints carry a scheme.
func normalizeEndpoint(endpoint string, protocol Protocol) string {
	if protocol == ProtocolGRPC {
		endpoint = strings.TrimPrefix(endpoint, "http://")
		endpoint = strings.TrimPrefix(endpoint, "https://")
		host, _, _ := strings.Cut(endpoint, "/")
		return host
	}

	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	return endpoint
}

func appendSignalPath(endpoint string, signal SignalType, protocol Protocol) string {
	if protocol == ProtocolGRPC {
		return endpoint
	}

	signalPath := "/v1/" + string(signal)
	u, err := url.Parse(endpoint)
	if err != nil {
		return strings.TrimSuffix(endpoint, "/") + signalPath
	}
	if strings.HasSuffix(u.Path, signalPath) {
		return endpoint
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + signalPath
	return u.String()
}

// isTrue checks if a string represents a true value
func isTrue(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

// parseHeaders parses "key1=value1,key2=value2". Values are kept verbatim
// after the first '=' so base64 credentials survive.
func parseHeaders(headerStr string) map[string]string {
	headers := make(map[string]string)
	for _, pair := range strings.Split(headerStr, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		headers[key] = value
		slog.Debug("Parsed OTEL header", "key", key, "value_length", len(value))
	}
	return headers
}

// parseDuration accepts Go durations ("10s") and OTEL-style milliseconds ("10000").
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(s); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultVal
}
