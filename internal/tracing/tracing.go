// Package tracing wires OpenTelemetry span export for the orchestration core.
//
// Init installs an OTLP pipeline when an endpoint is configured, via the
// tracing config section or the OTEL_EXPORTER_OTLP_ENDPOINT environment
// variable. Until then Tracer hands out no-op tracers, so instrumented code
// paths cost nothing when tracing is off.
package tracing

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const defaultServiceName = "waaah-core"

// Config controls span export. The zero value leaves tracing disabled unless
// OTEL_EXPORTER_OTLP_ENDPOINT is set.
type Config struct {
	Endpoint    string
	ServiceName string
	Insecure    bool
}

var (
	mu          sync.Mutex
	provider    trace.TracerProvider = noop.NewTracerProvider()
	sdkProvider *sdktrace.TracerProvider
)

// Init installs the OTLP trace pipeline. Called once at startup, before any
// component captures a tracer. Without an endpoint it is a no-op.
func Init(ctx context.Context, cfg Config) error {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if endpoint == "" {
		return nil
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(stripScheme(endpoint))}
	if cfg.Insecure || strings.HasPrefix(endpoint, "http://") {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("create otlp exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		res = resource.Default()
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	mu.Lock()
	sdkProvider = tp
	provider = tp
	mu.Unlock()
	otel.SetTracerProvider(tp)
	return nil
}

// Tracer returns a named tracer from the installed provider.
func Tracer(name string) trace.Tracer {
	mu.Lock()
	defer mu.Unlock()
	return provider.Tracer(name)
}

// Shutdown flushes pending spans and tears the pipeline down. Subsequent
// Tracer calls get no-op tracers again.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	tp := sdkProvider
	sdkProvider = nil
	provider = noop.NewTracerProvider()
	mu.Unlock()

	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}

// stripScheme drops the URL scheme; otlptracehttp wants a bare host:port.
func stripScheme(endpoint string) string {
	for _, prefix := range []string{"https://", "http://"} {
		if strings.HasPrefix(endpoint, prefix) {
			return strings.TrimPrefix(endpoint, prefix)
		}
	}
	return endpoint
}
