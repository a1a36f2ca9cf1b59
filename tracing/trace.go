// Package tracing wires an OpenTelemetry tracer provider exporting to
// Jaeger, and exposes a thin span-start helper used across every
// orchestrator phase.
package tracing

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
)

func newJaegerExporter(endpoint string) (tracesdk.SpanExporter, error) {
	return jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(endpoint)))
}

// Options configures the tracer provider built by InitTracerProvider.
type Options struct {
	Endpoint string
	// SampleRatio, when in (0, 1), samples that fraction of traces via a
	// parent-based ratio sampler. Outside that range every trace is
	// sampled, matching the behavior of a build with tracing enabled but
	// no explicit sampling budget configured.
	SampleRatio float64
}

func sampler(ratio float64) tracesdk.Sampler {
	if ratio > 0 && ratio < 1 {
		return tracesdk.ParentBased(tracesdk.TraceIDRatioBased(ratio))
	}
	return tracesdk.AlwaysSample()
}

// InitTracerProvider builds and globally registers a TracerProvider that
// batches spans out to a Jaeger collector at opts.Endpoint, sampled per
// opts.SampleRatio.
func InitTracerProvider(log logr.Logger, opts Options) (*tracesdk.TracerProvider, error) {
	exp, err := newJaegerExporter(opts.Endpoint)
	if err != nil {
		log.Error(err, "failed to create jaeger exporter")
		return nil, err
	}

	tp := tracesdk.NewTracerProvider(
		tracesdk.WithSampler(sampler(opts.SampleRatio)),
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("protoc-integration"),
		)),
	)

	otel.SetTracerProvider(tp)
	return tp, nil
}

// Shutdown flushes and stops tp, bounded by a 5s timeout.
func Shutdown(ctx context.Context, log logr.Logger, tp *tracesdk.TracerProvider) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := tp.Shutdown(ctx); err != nil {
		log.Error(err, "error shutting down tracer provider")
	}
}

// StartNewSpan starts a span named name as a child of ctx's current
// span, attaching attrs, and returns the span-bearing context along with
// the span itself so callers can End() it.
func StartNewSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("").Start(ctx, name)
	span.SetAttributes(attrs...)
	return ctx, span
}
