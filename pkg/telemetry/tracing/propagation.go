package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/propagation"
)

var propagator = propagation.NewCompositeTextMapPropagator(
	propagation.TraceContext{},
	propagation.Baggage{},
)

// Propagator returns the W3C trace context and baggage propagator.
func Propagator() propagation.TextMapPropagator { return propagator }

// Inject writes the traceparent and tracestate headers of the span in ctx.
// Nothing is written when ctx carries no span.
func Inject(ctx context.Context, headers http.Header) {
	propagator.Inject(ctx, propagation.HeaderCarrier(headers))
}

// Extract returns ctx extended with the remote span context in headers.
func Extract(ctx context.Context, headers http.Header) context.Context {
	return propagator.Extract(ctx, propagation.HeaderCarrier(headers))
}
