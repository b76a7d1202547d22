package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/policysync/pkg/config"
)

// FetchMetrics tracks the fetching engine.
//
// Metrics:
//   - policysync_fetch_events_total: finished fetch tasks by provider and outcome
//   - policysync_fetch_duration_seconds: fetch task duration, retries included
//   - policysync_fetch_failures_total: failure handler invocations
//   - policysync_fetch_queue_depth: queued fetch events
type FetchMetrics struct {
	eventsTotal   *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	failuresTotal *prometheus.CounterVec
	queueDepth    prometheus.Gauge
}

// NewFetchMetrics creates and registers fetch metrics.
func NewFetchMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *FetchMetrics {
	fm := &FetchMetrics{
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "fetch_events_total",
				Help:      "Total number of finished fetch events",
			},
			[]string{"provider", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "fetch_duration_seconds",
				Help:      "Duration of fetch events in seconds, retries included",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
			},
			[]string{"provider"},
		),
		failuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "fetch_failures_total",
				Help:      "Total number of failure handler invocations",
			},
			[]string{"provider"},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "fetch_queue_depth",
				Help:      "Number of fetch events waiting for a worker",
			},
		),
	}

	registry.MustRegister(fm.eventsTotal, fm.duration, fm.failuresTotal, fm.queueDepth)
	return fm
}

// RecordFetch records a finished fetch event.
func (fm *FetchMetrics) RecordFetch(provider, outcome string, duration time.Duration) {
	fm.eventsTotal.WithLabelValues(provider, outcome).Inc()
	fm.duration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordFailure counts a failure handler invocation.
func (fm *FetchMetrics) RecordFailure(provider string) {
	fm.failuresTotal.WithLabelValues(provider).Inc()
}

// SetQueueDepth sets the queue depth gauge.
func (fm *FetchMetrics) SetQueueDepth(depth int) {
	fm.queueDepth.Set(float64(depth))
}
