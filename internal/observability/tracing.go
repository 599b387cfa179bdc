// Package observability wires OpenTelemetry tracing into Genkit's
// TracerProvider. Spans are exported over OTLP HTTP to a local
// collector; the collector owns authentication and forwarding, so the
// app never carries backend credentials.
package observability

import (
	"context"
	"log/slog"
	"os"

	"github.com/firebase/genkit/go/core/tracing"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// DefaultCollectorHost is the default OTLP HTTP endpoint.
const DefaultCollectorHost = "localhost:4318"

// Config for trace export.
type Config struct {
	// CollectorHost is the OTLP HTTP endpoint (default: localhost:4318).
	CollectorHost string
	// Environment is the deployment environment (dev, staging, prod).
	Environment string
	// ServiceName is the name spans are reported under.
	ServiceName string
}

// Setup registers an OTLP exporter with Genkit's TracerProvider and
// returns a shutdown function that flushes pending spans. Exporter
// construction failure disables tracing rather than failing startup:
// the assistant must work without a collector.
func Setup(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	host := cfg.CollectorHost
	if host == "" {
		host = DefaultCollectorHost
	}

	// Genkit's TracerProvider reads service identity from the standard
	// OTEL environment variables.
	if cfg.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.ServiceName)
	}
	if cfg.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(host),
		otlptracehttp.WithInsecure(), // local collector, no TLS
	)
	if err != nil {
		slog.Warn("failed to create trace exporter, tracing disabled", "error", err)
		return func(context.Context) error { return nil }, nil
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	slog.Debug("tracing enabled",
		"collector", host,
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
	)

	return tracing.TracerProvider().Shutdown, nil
}
