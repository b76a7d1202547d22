// Package telemetry groups the observability packages of policysync.
//
// # Components
//
//   - logging: slog setup with redaction of secrets in fetch configs and URLs
//   - metrics: Prometheus collector for updates, fetches and bundles
//   - tracing: OpenTelemetry tracer with OTLP export and W3C propagation
//   - health: liveness and readiness probes
//
// # Usage
//
//	cfg := config.GetConfig()
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	checker := health.New(0)
//	checker.Register("store", func(ctx context.Context) error { ... })
//
// The probes and the collector handler are served by package server.
package telemetry
