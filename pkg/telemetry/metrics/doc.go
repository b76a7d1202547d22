// Package metrics provides Prometheus metrics for policysync.
//
// # Metrics Categories
//
//   - Fetch Metrics: finished fetch events, durations, failure handler calls
//     and queue depth
//   - Update Metrics: entry outcomes, update durations and received
//     notifications per topic
//   - Bundle Metrics: built bundles by kind, build durations, module counts
//     and published policy notifications
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	engine := fetcher.NewEngine(&cfg.Fetcher, fetcher.WithMetrics(collector))
//
//	mux := http.NewServeMux()
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
//
// Every recording method is a no-op on a nil *Collector or when metrics are
// disabled in configuration.
package metrics
