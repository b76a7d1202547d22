package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/policysync/pkg/config"
)

// UpdateMetrics tracks the data updater.
//
// Metrics:
//   - policysync_update_entries_total: data source entries by outcome
//   - policysync_update_duration_seconds: time to apply a whole update
//   - policysync_update_entries: entries per applied update
//   - policysync_notifications_total: received notifications by topic
type UpdateMetrics struct {
	entriesTotal       *prometheus.CounterVec
	duration           prometheus.Histogram
	entriesPerUpdate   prometheus.Histogram
	notificationsTotal *prometheus.CounterVec
}

// NewUpdateMetrics creates and registers updater metrics.
func NewUpdateMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *UpdateMetrics {
	um := &UpdateMetrics{
		entriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "update_entries_total",
				Help:      "Total number of processed data source entries",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "update_duration_seconds",
				Help:      "Duration of applying a data update in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8), // 5ms to ~80s
			},
		),
		entriesPerUpdate: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "update_entries",
				Help:      "Number of entries per applied data update",
				Buckets:   []float64{1, 2, 5, 10, 25, 50, 100},
			},
		),
		notificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "notifications_total",
				Help:      "Total number of received update notifications",
			},
			[]string{"topic"},
		),
	}

	registry.MustRegister(um.entriesTotal, um.duration, um.entriesPerUpdate, um.notificationsTotal)
	return um
}

// RecordEntry counts an entry outcome.
func (um *UpdateMetrics) RecordEntry(outcome string) {
	um.entriesTotal.WithLabelValues(outcome).Inc()
}

// RecordUpdate observes an applied update.
func (um *UpdateMetrics) RecordUpdate(duration time.Duration, entries int) {
	um.duration.Observe(duration.Seconds())
	um.entriesPerUpdate.Observe(float64(entries))
}

// RecordNotification counts a notification.
func (um *UpdateMetrics) RecordNotification(topic string) {
	um.notificationsTotal.WithLabelValues(topic).Inc()
}
