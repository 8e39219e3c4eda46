package otel

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// ServiceName is reported on every trace, metric and profile.
const ServiceName = "departureboard"

// Version is set at build time via -ldflags
// e.g., go build -ldflags="-X departureboard/pkg/otel.Version=1.2.3"
var Version = "dev"

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// ServiceInstanceID identifies this board instance.
// Priority: OTEL_SERVICE_INSTANCE_ID > hostname > process ID.
func ServiceInstanceID() string {
	if id := os.Getenv("OTEL_SERVICE_INSTANCE_ID"); id != "" {
		return id
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return hostname
	}
	return fmt.Sprintf("%s-%d", ServiceName, os.Getpid())
}

// NewResource creates the resource shared by the tracer and meter providers.
func NewResource(ctx context.Context) (*resource.Resource, error) {
	return resource.New(ctx,
		// OTEL_SERVICE_NAME and OTEL_RESOURCE_ATTRIBUTES
		resource.WithFromEnv(),
		resource.WithHost(),
		resource.WithProcess(),
		resource.WithAttributes(
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(Version),
			semconv.ServiceNamespace(getEnvOrDefault("OTEL_SERVICE_NAMESPACE", "transit")),
			semconv.ServiceInstanceID(ServiceInstanceID()),
			semconv.DeploymentEnvironment(getEnvOrDefault("OTEL_DEPLOYMENT_ENVIRONMENT", "production")),
			semconv.ProcessRuntimeName("go"),
			semconv.ProcessRuntimeVersion(runtime.Version()),
			semconv.TelemetrySDKLanguageGo,
		),
	)
}
