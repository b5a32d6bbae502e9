package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type runIDCtxKey struct{}
type collectionCtxKey struct{}
type loggerCtxKey struct{}

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 4)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	if id := RunIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("run.id", id))
	}
	if name := CollectionFromContext(ctx); name != "" {
		fields = append(fields, zap.String("collection", name))
	}

	return fields
}

// TraceContext carries ctx to the OpenTelemetry log bridge so bridged records
// are linked to the span active in ctx. Local encoders skip the field.
func TraceContext(ctx context.Context) zap.Field {
	return zap.Field{Key: "context", Type: zapcore.SkipType, Interface: ctx}
}

// WithRunID tags ctx with the identifier of the current rebuild or inspect run.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDCtxKey{}, id)
}

// RunIDFromContext returns the run identifier, or "" when none is set.
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDCtxKey{}).(string)
	return id
}

// WithCollection tags ctx with the target collection name.
func WithCollection(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, collectionCtxKey{}, name)
}

// CollectionFromContext returns the collection name, or "" when none is set.
func CollectionFromContext(ctx context.Context) string {
	name, _ := ctx.Value(collectionCtxKey{}).(string)
	return name
}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return Nop()
}
