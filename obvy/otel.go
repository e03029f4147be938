package obvy

import (
	"context"
	"fmt"

	"github.com/honeycombio/otel-config-go/otelconfig"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerName identifies spans emitted by this module
const TracerName = "github.com/sirius-geo/ringdeform"

// Exporter choices for InitTracing
const (
	TracingOff       = ""
	TracingHoneycomb = "honeycomb"
	TracingOTLP      = "otlp"
)

// InitOTelHNY uses the Honeycomb library to interface with OTel
func InitOTelHNY() (func(), error) {
	otelShutdown, err := otelconfig.ConfigureOpenTelemetry()
	if err != nil {
		return nil, fmt.Errorf("failed to configure OpenTelemetry: %w", err)
	}
	return func() { otelShutdown() }, nil
}

// InitOTelGRF exports over OTLP/HTTP with Baggage for propagation.
// The endpoint comes from the standard OTEL_EXPORTER_OTLP_* variables.
func InitOTelGRF(ctx context.Context) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient())
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))
	return tp, nil
}

// InitTracing installs the named exporter and returns its shutdown.
// With TracingOff spans go to the no-op provider.
func InitTracing(ctx context.Context, kind string) (func(context.Context) error, error) {
	switch kind {
	case TracingOff:
		return func(context.Context) error { return nil }, nil
	case TracingHoneycomb:
		shutdown, err := InitOTelHNY()
		if err != nil {
			return nil, err
		}
		return func(context.Context) error { shutdown(); return nil }, nil
	case TracingOTLP:
		tp, err := InitOTelGRF(ctx)
		if err != nil {
			return nil, err
		}
		return tp.Shutdown, nil
	}
	return nil, fmt.Errorf("unknown tracing exporter: %s", kind)
}

// Tracer returns the module tracer from the global provider
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}
