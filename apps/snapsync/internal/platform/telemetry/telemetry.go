package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Options configure the OTLP exporters.
type Options struct {
	Enabled     bool
	ServiceName string
	// Endpoint is the collector's gRPC address. Empty means the exporters
	// read OTEL_EXPORTER_OTLP_ENDPOINT (default localhost:4317).
	Endpoint       string
	MetricInterval time.Duration
}

// Telemetry holds a shutdown function that flushes and closes all OTEL providers.
// Callers use the global otel.Tracer() / otel.Meter() functions; providers
// are registered globally in New.
type Telemetry struct {
	Shutdown func(ctx context.Context) error
}

// New initialises OpenTelemetry SDK providers and registers them globally.
// When disabled the global providers remain as noops.
func New(ctx context.Context, opts Options) (*Telemetry, error) {
	if !opts.Enabled {
		return &Telemetry{Shutdown: func(context.Context) error { return nil }}, nil
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "snapsync"
	}
	if opts.MetricInterval <= 0 {
		opts.MetricInterval = 10 * time.Second
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(opts.ServiceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	// --- Traces ---
	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithInsecure()}
	if opts.Endpoint != "" {
		traceOpts = append(traceOpts, otlptracegrpc.WithEndpoint(opts.Endpoint))
	}
	traceExp, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	// --- Metrics ---
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
	if opts.Endpoint != "" {
		metricOpts = append(metricOpts, otlpmetricgrpc.WithEndpoint(opts.Endpoint))
	}
	metricExp, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp,
			sdkmetric.WithInterval(opts.MetricInterval),
		)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	shutdown := func(ctx context.Context) error {
		var errs []error
		if err := tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace provider shutdown: %w", err))
		}
		if err := mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
		return errors.Join(errs...)
	}

	return &Telemetry{Shutdown: shutdown}, nil
}
