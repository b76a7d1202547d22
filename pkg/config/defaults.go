package config

import "time"

// Default values for configuration fields.
const (
	// Repository defaults
	DefaultGitBranch       = "main"
	DefaultGitAuthType     = "none"
	DefaultGitPollEnabled  = true
	DefaultGitPollInterval = 30 * time.Second
	DefaultGitPollTimeout  = 10 * time.Second

	// Bundle defaults
	DefaultBundleExtension    = ".rego"
	DefaultBundleDirectory    = "."
	DefaultBundleManifestPath = ".manifest"
	DefaultBundleTopicPrefix  = "policy:"

	// Fetcher defaults
	DefaultFetcherWorkers           = 5
	DefaultFetcherQueueSize         = 100
	DefaultFetcherFetchTimeout      = 60 * time.Second
	DefaultRetryMaxAttempts         = uint(200)
	DefaultRetryInitialInterval     = 500 * time.Millisecond
	DefaultRetryMaxInterval         = 60 * time.Second
	DefaultRetryMultiplier          = 2.0
	DefaultRetryRandomizationFactor = 0.5
	DefaultHTTPTimeout              = 30 * time.Second
	DefaultTLSMinVersion            = "1.2"
	DefaultTLSReloadInterval        = 5 * time.Minute

	// Secrets defaults
	DefaultSecretsEnvPrefix = "POLICYSYNC_SECRET_"
	DefaultSecretsCacheTTL  = 5 * time.Minute

	// Client defaults
	DefaultClientDataTopic       = "policy_data"
	DefaultClientShutdownTimeout = 10 * time.Second

	// Store defaults
	DefaultStoreBackend           = "memory"
	DefaultStoreSQLitePath        = "data/policysync.db"
	DefaultStoreSQLiteDriver      = "sqlite"
	DefaultStoreSQLiteBusyTimeout = 5 * time.Second

	// PubSub defaults
	DefaultPubSubBackend        = "socketio"
	DefaultPubSubNamespace      = "/"
	DefaultPubSubConnectTimeout = 15 * time.Second

	// Telemetry defaults
	DefaultLoggingLevel         = "info"
	DefaultLoggingFormat        = "json"
	DefaultLoggingRedactSecrets = true
	DefaultMetricsEnabled       = true
	DefaultMetricsPath          = "/metrics"
	DefaultMetricsNamespace     = "policysync"
	DefaultTracingSampler       = "ratio"
	DefaultTracingSampleRatio   = 0.1
	DefaultTracingEndpoint      = "localhost:4317"
	DefaultTracingTimeout       = 10 * time.Second
	DefaultTracingServiceName   = "policysync"
)

// ApplyDefaults fills zero-valued fields with their defaults.
// Boolean fields are not touched: a zero value cannot be told apart from an
// explicit false, so boolean defaults are seeded by newSeededConfig before
// the YAML document is decoded.
func ApplyDefaults(cfg *Config) {
	applyRepositoryDefaults(&cfg.Repository)
	applyBundleDefaults(&cfg.Bundle)
	applyFetcherDefaults(&cfg.Fetcher)
	applyClientDefaults(&cfg.Client)
	applyStoreDefaults(&cfg.Store)
	applyPubSubDefaults(&cfg.PubSub)
	applySecretsDefaults(&cfg.Secrets)
	applyTelemetryDefaults(&cfg.Telemetry)
}

// NewDefaultConfig returns a configuration with every default applied.
func NewDefaultConfig() *Config {
	cfg := newSeededConfig()
	ApplyDefaults(cfg)
	return cfg
}

// newSeededConfig returns an empty configuration with boolean defaults set.
func newSeededConfig() *Config {
	cfg := &Config{}
	cfg.Repository.Poll.Enabled = DefaultGitPollEnabled
	cfg.Telemetry.Logging.RedactSecrets = DefaultLoggingRedactSecrets
	cfg.Telemetry.Metrics.Enabled = DefaultMetricsEnabled
	return cfg
}

func applyRepositoryDefaults(cfg *GitPolicyConfig) {
	if cfg.Branch == "" {
		cfg.Branch = DefaultGitBranch
	}
	if cfg.Auth.Type == "" {
		cfg.Auth.Type = DefaultGitAuthType
	}
	if cfg.Poll.Interval == 0 {
		cfg.Poll.Interval = DefaultGitPollInterval
	}
	if cfg.Poll.Timeout == 0 {
		cfg.Poll.Timeout = DefaultGitPollTimeout
	}
}

func applyBundleDefaults(cfg *BundleConfig) {
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = []string{DefaultBundleExtension}
	}
	if len(cfg.Directories) == 0 {
		cfg.Directories = []string{DefaultBundleDirectory}
	}
	if cfg.ManifestPath == "" {
		cfg.ManifestPath = DefaultBundleManifestPath
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultBundleTopicPrefix
	}
}

func applyFetcherDefaults(cfg *FetcherConfig) {
	if cfg.Workers == 0 {
		cfg.Workers = DefaultFetcherWorkers
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = DefaultFetcherQueueSize
	}
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = DefaultFetcherFetchTimeout
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = DefaultRetryMaxAttempts
	}
	if cfg.Retry.InitialInterval == 0 {
		cfg.Retry.InitialInterval = DefaultRetryInitialInterval
	}
	if cfg.Retry.MaxInterval == 0 {
		cfg.Retry.MaxInterval = DefaultRetryMaxInterval
	}
	if cfg.Retry.Multiplier == 0 {
		cfg.Retry.Multiplier = DefaultRetryMultiplier
	}
	if cfg.Retry.RandomizationFactor == 0 {
		cfg.Retry.RandomizationFactor = DefaultRetryRandomizationFactor
	}
	if cfg.HTTP.Timeout == 0 {
		cfg.HTTP.Timeout = DefaultHTTPTimeout
	}
	if cfg.HTTP.TLS.MinVersion == "" {
		cfg.HTTP.TLS.MinVersion = DefaultTLSMinVersion
	}
	if cfg.HTTP.TLS.ReloadInterval == 0 {
		cfg.HTTP.TLS.ReloadInterval = DefaultTLSReloadInterval
	}
}

func applySecretsDefaults(cfg *SecretsConfig) {
	if cfg.EnvPrefix == "" {
		cfg.EnvPrefix = DefaultSecretsEnvPrefix
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = DefaultSecretsCacheTTL
	}
}

func applyClientDefaults(cfg *ClientConfig) {
	if len(cfg.DataTopics) == 0 {
		cfg.DataTopics = []string{DefaultClientDataTopic}
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultClientShutdownTimeout
	}
}

func applyStoreDefaults(cfg *StoreConfig) {
	if cfg.Backend == "" {
		cfg.Backend = DefaultStoreBackend
	}
	if cfg.SQLite.Path == "" {
		cfg.SQLite.Path = DefaultStoreSQLitePath
	}
	if cfg.SQLite.Driver == "" {
		cfg.SQLite.Driver = DefaultStoreSQLiteDriver
	}
	if cfg.SQLite.BusyTimeout == 0 {
		cfg.SQLite.BusyTimeout = DefaultStoreSQLiteBusyTimeout
	}
}

func applyPubSubDefaults(cfg *PubSubConfig) {
	if cfg.Backend == "" {
		cfg.Backend = DefaultPubSubBackend
	}
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultPubSubNamespace
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = DefaultPubSubConnectTimeout
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Tracing.Sampler == "" {
		cfg.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if cfg.Tracing.Endpoint == "" {
		cfg.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Tracing.Timeout == 0 {
		cfg.Tracing.Timeout = DefaultTracingTimeout
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = DefaultTracingServiceName
	}
}
