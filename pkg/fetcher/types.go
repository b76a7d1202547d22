package fetcher

import (
	"context"
	"time"

	"mercator-hq/policysync/pkg/config"
)

// ProviderConfigKey is the config key overriding the provider of QueueURL.
const ProviderConfigKey = "fetcher"

// DefaultProvider is used when an event names no provider.
const DefaultProvider = "http"

// RetryPolicy controls how often and how fast a failing fetch is retried.
// Zero fields fall back to the engine's configured policy.
type RetryPolicy struct {
	MaxAttempts         uint          `json:"max_attempts,omitempty" yaml:"max_attempts"`
	InitialInterval     time.Duration `json:"initial_interval,omitempty" yaml:"initial_interval"`
	MaxInterval         time.Duration `json:"max_interval,omitempty" yaml:"max_interval"`
	Multiplier          float64       `json:"multiplier,omitempty" yaml:"multiplier"`
	RandomizationFactor float64       `json:"randomization_factor,omitempty" yaml:"randomization_factor"`
}

// RetryPolicyFromConfig converts the configured retry section.
func RetryPolicyFromConfig(cfg config.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:         cfg.MaxAttempts,
		InitialInterval:     cfg.InitialInterval,
		MaxInterval:         cfg.MaxInterval,
		Multiplier:          cfg.Multiplier,
		RandomizationFactor: cfg.RandomizationFactor,
	}
}

// merge returns p with its zero fields taken from base.
func (p RetryPolicy) merge(base RetryPolicy) RetryPolicy {
	if p.MaxAttempts == 0 {
		p.MaxAttempts = base.MaxAttempts
	}
	if p.InitialInterval == 0 {
		p.InitialInterval = base.InitialInterval
	}
	if p.MaxInterval == 0 {
		p.MaxInterval = base.MaxInterval
	}
	if p.Multiplier == 0 {
		p.Multiplier = base.Multiplier
	}
	if p.RandomizationFactor == 0 {
		p.RandomizationFactor = base.RandomizationFactor
	}
	return p
}

// FetchEvent describes one resource to fetch. ID is assigned when the event
// is queued.
type FetchEvent struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name,omitempty"`
	URL      string         `json:"url"`
	Provider string         `json:"fetcher,omitempty"`
	Config   map[string]any `json:"config,omitempty"`
	Retry    *RetryPolicy   `json:"retry,omitempty"`
}

// Callback receives the processed result of a successful fetch. An error
// returned by the callback is reported to the failure handlers.
type Callback func(ctx context.Context, result any) error

// FailureHandler is told about every failed task.
type FailureHandler func(ctx context.Context, err error, event *FetchEvent)

// Recorder receives engine statistics.
type Recorder interface {
	RecordFetch(provider, outcome string, duration time.Duration)
	RecordFetchFailure(provider string)
	SetQueueDepth(depth int)
}
