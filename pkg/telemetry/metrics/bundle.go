package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/policysync/pkg/config"
)

// BundleMetrics tracks bundle building and change publishing.
//
// Metrics:
//   - policysync_bundles_total: built bundles by kind
//   - policysync_bundle_build_duration_seconds: bundle build duration
//   - policysync_bundle_modules: modules per bundle
//   - policysync_policy_notifications_published_total: published notifications
//   - policysync_policy_notification_topics: topics per published notification
type BundleMetrics struct {
	bundlesTotal   *prometheus.CounterVec
	buildDuration  *prometheus.HistogramVec
	modules        *prometheus.HistogramVec
	publishedTotal prometheus.Counter
	topics         prometheus.Histogram
}

// NewBundleMetrics creates and registers bundle metrics.
func NewBundleMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *BundleMetrics {
	bm := &BundleMetrics{
		bundlesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "bundles_total",
				Help:      "Total number of built policy bundles",
			},
			[]string{"kind"},
		),
		buildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "bundle_build_duration_seconds",
				Help:      "Duration of building a policy bundle in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8), // 1ms to ~16s
			},
			[]string{"kind"},
		),
		modules: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "bundle_modules",
				Help:      "Number of data and policy modules per bundle",
				Buckets:   []float64{0, 1, 5, 10, 50, 100, 500, 1000},
			},
			[]string{"kind"},
		),
		publishedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "policy_notifications_published_total",
				Help:      "Total number of published policy update notifications",
			},
		),
		topics: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "policy_notification_topics",
				Help:      "Number of topics per published policy notification",
				Buckets:   []float64{1, 2, 5, 10, 50, 100},
			},
		),
	}

	registry.MustRegister(bm.bundlesTotal, bm.buildDuration, bm.modules, bm.publishedTotal, bm.topics)
	return bm
}

// RecordBundle records a built bundle.
func (bm *BundleMetrics) RecordBundle(kind string, modules int, duration time.Duration) {
	bm.bundlesTotal.WithLabelValues(kind).Inc()
	bm.buildDuration.WithLabelValues(kind).Observe(duration.Seconds())
	bm.modules.WithLabelValues(kind).Observe(float64(modules))
}

// RecordPublish records a published notification.
func (bm *BundleMetrics) RecordPublish(topics int) {
	bm.publishedTotal.Inc()
	bm.topics.Observe(float64(topics))
}
