package observability

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "phelnav"

// Tracer returns the tracer of the currently installed provider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

type TracingConfig struct {
	Endpoint    string
	ServiceName string
	SessionID   string
}

// InitTracing installs an OTLP/gRPC exporter when an endpoint is configured.
// The returned shutdown flushes pending spans; it is a no-op when tracing is off.
func InitTracing(ctx context.Context, cfg TracingConfig) (func(context.Context) error, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	name := cfg.ServiceName
	if name == "" {
		name = instrumentationName
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", name),
			attribute.String("phelnav.session", cfg.SessionID),
		)),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
