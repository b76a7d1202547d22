package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/policysync/pkg/config"
)

// otherLabel replaces label values once the cardinality limit is reached.
const otherLabel = "other"

// Collector owns every policysync metric. All methods are safe to call on a
// nil *Collector, which lets components treat metrics as optional.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	fetchMetrics  *FetchMetrics
	updateMetrics *UpdateMetrics
	bundleMetrics *BundleMetrics

	topicLimiter *CardinalityLimiter
}

// NewCollector creates a collector registered on registry. A nil registry
// gets a fresh private one.
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	http.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}

	return &Collector{
		config:        cfg,
		registry:      registry,
		fetchMetrics:  NewFetchMetrics(cfg, registry),
		updateMetrics: NewUpdateMetrics(cfg, registry),
		bundleMetrics: NewBundleMetrics(cfg, registry),
		topicLimiter:  NewCardinalityLimiter(1000),
	}
}

func (c *Collector) enabled() bool {
	return c != nil && c.config.Enabled
}

// RecordFetch records a finished fetch task.
//
// Parameters:
//   - provider: fetch provider name (e.g., "http", "file")
//   - outcome: "success" or "failure"
//   - duration: time from dequeue to callback, retries included
func (c *Collector) RecordFetch(provider, outcome string, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.fetchMetrics.RecordFetch(provider, outcome, duration)
}

// RecordFetchFailure counts one failure handler invocation.
func (c *Collector) RecordFetchFailure(provider string) {
	if !c.enabled() {
		return
	}
	c.fetchMetrics.RecordFailure(provider)
}

// SetQueueDepth reports the number of queued fetch events.
func (c *Collector) SetQueueDepth(depth int) {
	if !c.enabled() {
		return
	}
	c.fetchMetrics.SetQueueDepth(depth)
}

// RecordEntry records the outcome of one data source entry.
// Outcomes: "saved", "fetch_failed", "save_failed".
func (c *Collector) RecordEntry(outcome string) {
	if !c.enabled() {
		return
	}
	c.updateMetrics.RecordEntry(outcome)
}

// RecordUpdate records an applied data update.
func (c *Collector) RecordUpdate(duration time.Duration, entries int) {
	if !c.enabled() {
		return
	}
	c.updateMetrics.RecordUpdate(duration, entries)
}

// RecordNotification counts a received notification on topic. Topics beyond
// the cardinality limit are aggregated under "other".
func (c *Collector) RecordNotification(topic string) {
	if !c.enabled() {
		return
	}
	if !c.topicLimiter.Allow(topic) {
		topic = otherLabel
	}
	c.updateMetrics.RecordNotification(topic)
}

// RecordBundle records a built bundle.
//
// Parameters:
//   - kind: "full", "diff" or "resync"
//   - modules: data plus policy modules in the bundle
//   - duration: build time
func (c *Collector) RecordBundle(kind string, modules int, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.bundleMetrics.RecordBundle(kind, modules, duration)
}

// RecordPublish counts a published policy notification.
func (c *Collector) RecordPublish(topics int) {
	if !c.enabled() {
		return
	}
	c.bundleMetrics.RecordPublish(topics)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter caps the number of distinct label values a collector
// will emit.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a limiter admitting up to maxCardinality
// distinct values.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether value is already known or still fits under the
// limit, remembering it in the latter case.
func (cl *CardinalityLimiter) Allow(value string) bool {
	cl.mu.RLock()
	_, exists := cl.current[value]
	cl.mu.RUnlock()
	if exists {
		return true
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[value]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[value] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
