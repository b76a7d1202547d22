package logging

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

type contextKey string

const (
	updateIDKey contextKey = "update_id"
	urlKey      contextKey = "url"
	pathKey     contextKey = "path"
	topicKey    contextKey = "topic"
)

// contextKeys is the order fields are emitted in.
var contextKeys = []contextKey{updateIDKey, urlKey, pathKey, topicKey}

// WithUpdateID attaches the id of the data update being applied.
func WithUpdateID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, updateIDKey, id)
}

// UpdateID returns the update id attached to ctx, or "".
func UpdateID(ctx context.Context) string {
	return stringValue(ctx, updateIDKey)
}

// WithURL attaches the URL being fetched.
func WithURL(ctx context.Context, url string) context.Context {
	return context.WithValue(ctx, urlKey, url)
}

// URL returns the URL attached to ctx, or "".
func URL(ctx context.Context) string {
	return stringValue(ctx, urlKey)
}

// WithPath attaches the store path being written.
func WithPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, pathKey, path)
}

// Path returns the store path attached to ctx, or "".
func Path(ctx context.Context) string {
	return stringValue(ctx, pathKey)
}

// WithTopic attaches the pub/sub topic a notification arrived on.
func WithTopic(ctx context.Context, topic string) context.Context {
	return context.WithValue(ctx, topicKey, topic)
}

// Topic returns the topic attached to ctx, or "".
func Topic(ctx context.Context) string {
	return stringValue(ctx, topicKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// contextFields returns the attributes attached to ctx, followed by the
// ids of the active span if there is one.
func contextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var fields []slog.Attr
	for _, key := range contextKeys {
		if v := stringValue(ctx, key); v != "" {
			fields = append(fields, slog.String(string(key), v))
		}
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()))
	}
	return fields
}

// FromContext returns logger extended with the fields attached to ctx. It is
// useful for handing a scoped logger to code that logs without a context.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	fields := contextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	args := make([]any, len(fields))
	for i, f := range fields {
		args[i] = f
	}
	return logger.With(args...)
}
