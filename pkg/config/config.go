package config

import "time"

// Config is the root configuration structure for policysync.
// It contains the sections for the policy repository, bundle building, the
// fetching engine, the data update client, the local policy store, the
// pub/sub transport and telemetry.
type Config struct {
	// Repository contains git repository configuration for the policy
	// source of truth.
	Repository GitPolicyConfig `yaml:"repository"`

	// Bundle contains the filters used when turning commits into bundles.
	Bundle BundleConfig `yaml:"bundle"`

	// Fetcher contains fetching engine configuration shared by the data
	// updater and the callbacks reporter.
	Fetcher FetcherConfig `yaml:"fetcher"`

	// Client contains data updater configuration.
	Client ClientConfig `yaml:"client"`

	// Store contains configuration for the local policy store.
	Store StoreConfig `yaml:"store"`

	// PubSub contains the topic transport configuration.
	PubSub PubSubConfig `yaml:"pubsub"`

	// Secrets configures resolution of ${secret:name} references in fetch
	// headers.
	Secrets SecretsConfig `yaml:"secrets"`

	// Telemetry contains configuration for logging and metrics.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// GitPolicyConfig configures the policy repository.
type GitPolicyConfig struct {
	// Repository URL (HTTPS or SSH) or local filesystem path.
	// Example: "https://github.com/company/policies.git"
	// Example: "git@github.com:company/policies.git"
	Repository string `yaml:"repository"`

	// Branch to track (supports environment variable expansion).
	// Default: "main"
	Branch string `yaml:"branch"`

	// Auth configures Git authentication.
	Auth GitAuthConfig `yaml:"auth"`

	// Poll configures change detection.
	Poll GitPollConfig `yaml:"poll"`

	// Clone configures the local checkout.
	Clone GitCloneConfig `yaml:"clone"`
}

// GitAuthConfig configures Git authentication.
type GitAuthConfig struct {
	// Type: "token", "ssh", "none"
	// Default: "none"
	Type string `yaml:"type"`

	// Token for HTTPS authentication (supports env vars).
	// Required when Type is "token".
	Token string `yaml:"token"`

	// SSHKeyPath for SSH authentication.
	// Required when Type is "ssh".
	SSHKeyPath string `yaml:"ssh_key_path"`

	// SSHKeyPassphrase for encrypted SSH keys.
	SSHKeyPassphrase string `yaml:"ssh_key_passphrase"`
}

// GitPollConfig configures change detection.
type GitPollConfig struct {
	// Enabled determines if polling is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Interval between polls.
	// Default: 30s
	Interval time.Duration `yaml:"interval"`

	// Timeout for Git operations.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// GitCloneConfig configures the local checkout.
type GitCloneConfig struct {
	// Depth for shallow clones (0 = full clone). Diff bundles need the old
	// commit to be present, so shallow clones limit how far back a client
	// can catch up incrementally.
	// Default: 0
	Depth int `yaml:"depth"`

	// LocalPath where repository is cloned.
	// Default: system temp directory
	LocalPath string `yaml:"local_path"`

	// CleanOnStart removes local repo before cloning.
	// Default: false
	CleanOnStart bool `yaml:"clean_on_start"`
}

// BundleConfig configures which files of a commit make up a bundle.
type BundleConfig struct {
	// Extensions lists the file extensions included as policy modules.
	// Files named data.json are always included as data modules.
	// Default: [".rego"]
	Extensions []string `yaml:"extensions"`

	// Directories restricts bundles to files under these repository paths.
	// Default: ["."]
	Directories []string `yaml:"directories"`

	// Ignore lists glob patterns for paths excluded from bundles.
	Ignore []string `yaml:"ignore"`

	// ManifestPath is the location of the root manifest, either a file or a
	// directory containing a ".manifest" file.
	// Default: ".manifest"
	ManifestPath string `yaml:"manifest_path"`

	// TopicPrefix is prepended to changed directories to form the topics of
	// published policy notifications.
	// Default: "policy:"
	TopicPrefix string `yaml:"topic_prefix"`
}

// FetcherConfig configures the fetching engine.
type FetcherConfig struct {
	// Workers is the number of concurrent fetch workers.
	// Default: 5
	Workers int `yaml:"workers"`

	// QueueSize is the capacity of the pending fetch queue.
	// Default: 100
	QueueSize int `yaml:"queue_size"`

	// EnqueueTimeout bounds how long callers wait on a full queue.
	// Zero fails immediately when the queue is full.
	// Default: 0
	EnqueueTimeout time.Duration `yaml:"enqueue_timeout"`

	// FetchTimeout bounds a synchronous fetch (HandleURL).
	// Default: 60s
	FetchTimeout time.Duration `yaml:"fetch_timeout"`

	// Retry is the default retry policy applied to every fetch.
	Retry RetryConfig `yaml:"retry"`

	// HTTP configures the client used by the http provider.
	HTTP HTTPClientConfig `yaml:"http"`
}

// HTTPClientConfig configures the http fetch provider's client.
type HTTPClientConfig struct {
	// Timeout bounds a single request.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout"`

	// TLS configures server verification and client certificates.
	TLS ClientTLSConfig `yaml:"tls"`
}

// ClientTLSConfig configures outgoing TLS connections.
type ClientTLSConfig struct {
	// CAFile is a PEM bundle trusted in addition to the system roots.
	CAFile string `yaml:"ca_file"`

	// CertFile and KeyFile are the client certificate presented to servers
	// requesting one. Both or neither must be set.
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`

	// MinVersion is "1.2" or "1.3".
	// Default: "1.2"
	MinVersion string `yaml:"min_version"`

	// InsecureSkipVerify disables server certificate verification.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`

	// ReloadInterval is how often the client certificate files are checked
	// for changes.
	// Default: 5m
	ReloadInterval time.Duration `yaml:"reload_interval"`
}

// SecretsConfig configures secret providers. Providers are tried in order:
// the directory first, then the environment.
type SecretsConfig struct {
	// EnvPrefix is prepended to the upper-cased secret name to form the
	// environment variable holding it.
	// Default: "POLICYSYNC_SECRET_"
	EnvPrefix string `yaml:"env_prefix"`

	// Directory holds one file per secret, named after the secret.
	Directory string `yaml:"directory"`

	// Watch clears cached directory secrets when files change.
	// Default: false
	Watch bool `yaml:"watch"`

	// CacheTTL is how long resolved values are reused.
	// Default: 5m
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// RetryConfig configures randomized exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts before giving up.
	// Default: 200
	MaxAttempts uint `yaml:"max_attempts"`

	// InitialInterval is the first backoff interval.
	// Default: 500ms
	InitialInterval time.Duration `yaml:"initial_interval"`

	// MaxInterval caps a single backoff interval.
	// Default: 60s
	MaxInterval time.Duration `yaml:"max_interval"`

	// Multiplier grows the interval after each attempt.
	// Default: 2.0
	Multiplier float64 `yaml:"multiplier"`

	// RandomizationFactor jitters each interval.
	// Default: 0.5
	RandomizationFactor float64 `yaml:"randomization_factor"`
}

// ClientConfig configures the data updater.
type ClientConfig struct {
	// DataTopics are the topics the client subscribes to for data updates.
	// Default: ["policy_data"]
	DataTopics []string `yaml:"data_topics"`

	// DataSourcesURL is fetched on every (re)connect to obtain the base
	// data-source configuration.
	DataSourcesURL string `yaml:"data_sources_url"`

	// DataSourcesFile is a local YAML or JSON data-source configuration.
	// When set it takes precedence over DataSourcesURL and is watched for
	// changes.
	DataSourcesFile string `yaml:"data_sources_file"`

	// SplitRoot writes each top-level key of a root payload to its own path
	// instead of replacing the whole document.
	// Default: false
	SplitRoot bool `yaml:"split_root"`

	// ReportUpdates delivers a report to registered callbacks after every
	// applied update.
	// Default: false
	ReportUpdates bool `yaml:"report_updates"`

	// ShutdownTimeout bounds how long Stop waits for in-flight updates.
	// Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Callbacks are registered at startup and receive every update report.
	Callbacks []CallbackConfig `yaml:"callbacks"`
}

// CallbackConfig describes a report destination.
type CallbackConfig struct {
	// Key identifies the callback. When empty a key is derived from the URL
	// and config.
	Key string `yaml:"key"`

	// URL receives the report.
	URL string `yaml:"url"`

	// Config is passed to the fetch provider delivering the report.
	Config map[string]any `yaml:"config"`
}

// StoreConfig configures the local policy store.
type StoreConfig struct {
	// Backend selects the store implementation.
	// Options: "memory", "sqlite"
	// Default: "memory"
	Backend string `yaml:"backend"`

	// SQLite contains SQLite backend configuration.
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// SQLiteConfig configures the durable SQLite store.
type SQLiteConfig struct {
	// Path is the database file path.
	// Default: "data/policysync.db"
	Path string `yaml:"path"`

	// Driver selects the database/sql driver.
	// Options: "sqlite" (pure Go), "sqlite3" (cgo)
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// PubSubConfig configures the topic transport.
type PubSubConfig struct {
	// Backend selects the transport.
	// Options: "memory", "socketio"
	// Default: "socketio"
	Backend string `yaml:"backend"`

	// URL of the pub/sub server.
	// Example: "http://localhost:7002/ws"
	URL string `yaml:"url"`

	// Namespace is the socket.io namespace.
	// Default: "/"
	Namespace string `yaml:"namespace"`

	// InsecureSkipVerify disables TLS certificate verification.
	// Default: false
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`

	// ConnectTimeout bounds the initial connection attempt for publishers.
	// Default: 15s
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactSecrets masks credentials found in logged fetch configs.
	// Default: true
	RedactSecrets bool `yaml:"redact_secrets"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// ListenAddress serves the Prometheus endpoint when non-empty.
	// Example: "127.0.0.1:9090"
	ListenAddress string `yaml:"listen_address"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "policysync"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	Subsystem string `yaml:"subsystem"`

	// BearerToken, when set, is required on requests to Path. Health
	// probes are served without it.
	BearerToken string `yaml:"bearer_token"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether spans are exported.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Only used when Sampler is "ratio".
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP gRPC collector address.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS towards the collector.
	Insecure bool `yaml:"insecure"`

	// Timeout bounds a single export.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`

	// ServiceName is the service name attached to every span.
	// Default: "policysync"
	ServiceName string `yaml:"service_name"`
}
