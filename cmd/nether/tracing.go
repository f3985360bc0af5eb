package main

import (
	"context"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	loggingpkg "github.com/drblury/nether/internal/runtime/logging"
)

// logSpanProcessor writes every finished span to the service logger at trace level.
type logSpanProcessor struct {
	logger loggingpkg.ServiceLogger
}

func newTracerProvider(logger loggingpkg.ServiceLogger) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(logSpanProcessor{logger: logger}),
	)
}

func (p logSpanProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (p logSpanProcessor) OnEnd(span sdktrace.ReadOnlySpan) {
	if !p.logger.Enabled(loggingpkg.LevelTrace) {
		return
	}
	fields := loggingpkg.LogFields{
		"span":     span.Name(),
		"trace_id": span.SpanContext().TraceID().String(),
		"duration": span.EndTime().Sub(span.StartTime()).String(),
		"status":   span.Status().Code.String(),
	}
	for _, attr := range span.Attributes() {
		fields[string(attr.Key)] = attr.Value.Emit()
	}
	p.logger.Trace("Span finished", fields)
}

func (p logSpanProcessor) Shutdown(context.Context) error   { return nil }
func (p logSpanProcessor) ForceFlush(context.Context) error { return nil }
