// Package observability wires OpenTelemetry tracing around the one
// suspension point spec.md §5 calls out as a bounded blocking call: outbound
// worker RPC (C10). Metrics live alongside the REST surface in internal/api,
// which is where the teacher's own MCP-proxy metrics are registered.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/sunrayhq/control-plane/internal/workerclient"
)

const tracerName = "github.com/sunrayhq/control-plane/internal/workerclient"

// NewTracerProvider builds an SDK tracer provider exporting spans via OTLP
// over HTTP, the same exporter shape the teacher wires for its MCP proxy
// traces. endpoint may be empty, in which case the default exporter target
// (OTEL_EXPORTER_OTLP_ENDPOINT, or localhost:4318) is used.
func NewTracerProvider(ctx context.Context, serviceName, endpoint string) (*sdktrace.TracerProvider, error) {
	var opts []otlptracehttp.Option
	if endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(endpoint))
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("observability: build otlp exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("observability: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}

// InstrumentedWorkerClient wraps a workerclient.Client so every cache-clear
// RPC emits a span carrying scope, domain and force-refresh attributes.
type InstrumentedWorkerClient struct {
	inner  *workerclient.Client
	tracer trace.Tracer
}

func NewInstrumentedWorkerClient(inner *workerclient.Client) *InstrumentedWorkerClient {
	return &InstrumentedWorkerClient{inner: inner, tracer: otel.Tracer(tracerName)}
}

func (c *InstrumentedWorkerClient) ClearCache(ctx context.Context, domain, apiKey string, inv workerclient.Invalidation, forceRefresh bool) error {
	ctx, span := c.tracer.Start(ctx, "workerclient.ClearCache",
		trace.WithAttributes(
			attribute.String("sunray.cache_clear.scope", string(inv.Scope)),
			attribute.String("sunray.cache_clear.domain", domain),
			attribute.Bool("sunray.cache_clear.force_refresh", forceRefresh),
		))
	defer span.End()

	err := c.inner.ClearCache(ctx, domain, apiKey, inv, forceRefresh)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
