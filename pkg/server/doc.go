// Package server runs the telemetry HTTP endpoint of long-running commands.
//
// It serves the liveness and readiness probes of a health.Checker and, when
// metrics are enabled, the Prometheus handler, behind a bearer token when
// one is configured:
//
//	srv := server.New(cfg.Telemetry.Metrics, checker, collector.Handler())
//	if err := srv.Start(ctx); err != nil {
//	    return err
//	}
//	defer srv.Shutdown(context.Background())
//
// Start returns once the listener is bound; the server shuts itself down
// when ctx is done.
package server
