// Package tracing exports OpenTelemetry spans for data updates and fetches.
//
// New builds a Tracer from config.TracingConfig. A disabled configuration
// yields a no-op tracer, so callers always hold a usable trace.Tracer:
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	u := updater.New(cfg.Client, client, f, st, updater.WithTracer(tracer.Tracer()))
//
// Spans are exported over OTLP gRPC. The W3C trace context of the active
// span is carried to data sources and callbacks by Inject.
package tracing
