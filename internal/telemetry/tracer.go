package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// tracingEnabled reports whether cfg asks for spans to be exported
func (c *Config) tracingEnabled() bool {
	return c != nil && c.Enabled && c.Tracing != nil && c.Tracing.Enabled
}

// NewTracerProvider builds the span pipeline for cfg and installs it globally.
// A nil or disabled cfg yields a no-op provider. An SDK provider must be shut
// down by the caller.
func NewTracerProvider(ctx context.Context, cfg *Config) (trace.TracerProvider, error) {
	if !cfg.tracingEnabled() {
		slog.Debug("Tracing disabled")
		return noop.NewTracerProvider(), nil
	}

	res, err := newResource(ctx, cfg.GetServiceName(), cfg.GetServiceVersion())
	if err != nil {
		return nil, err
	}

	exportOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.GetEndpoint())}
	if cfg.Insecure {
		exportOpts = append(exportOpts, otlptracehttp.WithInsecure())
		slog.Warn("Exporting spans without TLS")
	}
	exporter, err := otlptracehttp.New(ctx, exportOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	ratio := cfg.Tracing.GetSampling()
	// Sync runs start their own root spans; API requests carrying a sampled
	// parent stay sampled so a caller's trace is not cut in half.
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	slog.Info("Tracing initialized", "endpoint", cfg.GetEndpoint(), "sampling_ratio", ratio)
	return tp, nil
}
