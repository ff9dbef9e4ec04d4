// Package tracing installs the process tracer provider. Finished spans are
// written to the structured log at debug level.
package tracing

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"simrelease/internal/platform/config"
)

// Setup installs a global tracer provider when tracing is enabled and returns
// its shutdown func. With tracing disabled the otel no-op provider stays in
// place and shutdown does nothing.
func Setup(cfg config.TracingConfig, logger *slog.Logger) func(context.Context) error {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }
	}
	tp := NewProvider(cfg.ServiceName, logger)
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}

// NewProvider builds a provider that logs every finished span.
func NewProvider(serviceName string, logger *slog.Logger) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
		sdktrace.WithSpanProcessor(&logProcessor{logger: logger}),
	)
}

type logProcessor struct {
	logger *slog.Logger
}

func (p *logProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (p *logProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	args := []any{
		"trace_id", s.SpanContext().TraceID().String(),
		"span_id", s.SpanContext().SpanID().String(),
		"span", s.Name(),
		"status", s.Status().Code.String(),
		"duration_ms", s.EndTime().Sub(s.StartTime()).Milliseconds(),
	}
	if s.Parent().IsValid() {
		args = append(args, "parent_span_id", s.Parent().SpanID().String())
	}
	for _, kv := range s.Attributes() {
		args = append(args, string(kv.Key), kv.Value.Emit())
	}
	p.logger.Debug("span finished", args...)
}

func (p *logProcessor) Shutdown(context.Context) error   { return nil }
func (p *logProcessor) ForceFlush(context.Context) error { return nil }
