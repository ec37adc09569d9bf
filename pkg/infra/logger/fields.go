// Package logger provides structured logging with fields carried in the context.
package logger

import (
	"context"

	"github.com/kart-io/logger"
	"github.com/kart-io/logger/core"
	"go.opentelemetry.io/otel/trace"
)

type fieldsKey struct{}

// WithRequestID adds request_id to the context logger fields.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return WithFields(ctx, "request_id", requestID)
}

// WithFields adds key-value pairs to the context logger fields. A key that
// is already present is overwritten in place. A trailing key without a value
// and non-string keys are ignored.
func WithFields(ctx context.Context, keysAndValues ...any) context.Context {
	if len(keysAndValues) < 2 {
		return ctx
	}

	existing := GetContextFields(ctx)
	fields := make([]any, len(existing), len(existing)+len(keysAndValues))
	copy(fields, existing)

	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields = set(fields, key, keysAndValues[i+1])
	}
	return context.WithValue(ctx, fieldsKey{}, fields)
}

func set(fields []any, key string, value any) []any {
	for i := 0; i < len(fields); i += 2 {
		if fields[i] == key {
			fields[i+1] = value
			return fields
		}
	}
	return append(fields, key, value)
}

// GetContextFields returns the fields stored in ctx in insertion order.
func GetContextFields(ctx context.Context) []any {
	fields, _ := ctx.Value(fieldsKey{}).([]any)
	return fields
}

// GetLogger returns the global logger enriched with the context fields and,
// when ctx carries a valid span, its trace_id and span_id.
func GetLogger(ctx context.Context) core.Logger {
	fields := GetContextFields(ctx)

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields[:len(fields):len(fields)],
			"trace_id", sc.TraceID().String(),
			"span_id", sc.SpanID().String(),
		)
	}

	if len(fields) == 0 {
		return logger.Global()
	}
	return logger.Global().With(fields...)
}
