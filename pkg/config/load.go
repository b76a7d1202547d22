package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment variable override.
const EnvPrefix = "POLICYSYNC_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// The configuration is not modified by environment variables; use LoadConfigWithEnvOverrides
// for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse decodes a YAML document and applies defaults without validating.
// Environment variable references of the form ${NAME} are expanded before
// decoding; ${secret:name} references are kept for the secrets manager.
func Parse(data []byte) (*Config, error) {
	cfg := newSeededConfig()
	expanded := os.Expand(string(data), func(name string) string {
		if strings.HasPrefix(name, "secret:") {
			return "${" + name + "}"
		}
		return os.Getenv(name)
	})
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention POLICYSYNC_SECTION_FIELD (e.g., POLICYSYNC_FETCHER_WORKERS).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Repository overrides
	envString("REPOSITORY_URL", &cfg.Repository.Repository)
	envString("REPOSITORY_BRANCH", &cfg.Repository.Branch)
	envString("REPOSITORY_AUTH_TYPE", &cfg.Repository.Auth.Type)
	envString("REPOSITORY_AUTH_TOKEN", &cfg.Repository.Auth.Token)
	envString("REPOSITORY_AUTH_SSH_KEY_PATH", &cfg.Repository.Auth.SSHKeyPath)
	envDuration("REPOSITORY_POLL_INTERVAL", &cfg.Repository.Poll.Interval)
	envBool("REPOSITORY_POLL_ENABLED", &cfg.Repository.Poll.Enabled)
	envString("REPOSITORY_CLONE_LOCAL_PATH", &cfg.Repository.Clone.LocalPath)

	// Bundle overrides
	envList("BUNDLE_EXTENSIONS", &cfg.Bundle.Extensions)
	envList("BUNDLE_DIRECTORIES", &cfg.Bundle.Directories)
	envList("BUNDLE_IGNORE", &cfg.Bundle.Ignore)
	envString("BUNDLE_MANIFEST_PATH", &cfg.Bundle.ManifestPath)

	// Fetcher overrides
	envInt("FETCHER_WORKERS", &cfg.Fetcher.Workers)
	envInt("FETCHER_QUEUE_SIZE", &cfg.Fetcher.QueueSize)
	envDuration("FETCHER_FETCH_TIMEOUT", &cfg.Fetcher.FetchTimeout)
	if val := os.Getenv(EnvPrefix + "FETCHER_RETRY_MAX_ATTEMPTS"); val != "" {
		if n, err := strconv.ParseUint(val, 10, 32); err == nil {
			cfg.Fetcher.Retry.MaxAttempts = uint(n)
		}
	}

	envDuration("FETCHER_HTTP_TIMEOUT", &cfg.Fetcher.HTTP.Timeout)
	envString("FETCHER_HTTP_TLS_CA_FILE", &cfg.Fetcher.HTTP.TLS.CAFile)
	envString("FETCHER_HTTP_TLS_CERT_FILE", &cfg.Fetcher.HTTP.TLS.CertFile)
	envString("FETCHER_HTTP_TLS_KEY_FILE", &cfg.Fetcher.HTTP.TLS.KeyFile)

	// Secrets overrides
	envString("SECRETS_ENV_PREFIX", &cfg.Secrets.EnvPrefix)
	envString("SECRETS_DIRECTORY", &cfg.Secrets.Directory)

	// Client overrides
	envList("CLIENT_DATA_TOPICS", &cfg.Client.DataTopics)
	envString("CLIENT_DATA_SOURCES_URL", &cfg.Client.DataSourcesURL)
	envString("CLIENT_DATA_SOURCES_FILE", &cfg.Client.DataSourcesFile)
	envBool("CLIENT_SPLIT_ROOT", &cfg.Client.SplitRoot)
	envBool("CLIENT_REPORT_UPDATES", &cfg.Client.ReportUpdates)
	envDuration("CLIENT_SHUTDOWN_TIMEOUT", &cfg.Client.ShutdownTimeout)

	// Store overrides
	envString("STORE_BACKEND", &cfg.Store.Backend)
	envString("STORE_SQLITE_PATH", &cfg.Store.SQLite.Path)
	envString("STORE_SQLITE_DRIVER", &cfg.Store.SQLite.Driver)

	// PubSub overrides
	envString("PUBSUB_BACKEND", &cfg.PubSub.Backend)
	envString("PUBSUB_URL", &cfg.PubSub.URL)
	envString("PUBSUB_NAMESPACE", &cfg.PubSub.Namespace)

	// Telemetry overrides
	envString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envString("TELEMETRY_METRICS_LISTEN_ADDRESS", &cfg.Telemetry.Metrics.ListenAddress)
	envString("TELEMETRY_METRICS_BEARER_TOKEN", &cfg.Telemetry.Metrics.BearerToken)
	envBool("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
}

func envString(name string, dst *string) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		*dst = val
	}
}

func envBool(name string, dst *bool) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envInt(name string, dst *int) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

// envList reads a comma-separated list.
func envList(name string, dst *[]string) {
	val := os.Getenv(EnvPrefix + name)
	if val == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) > 0 {
		*dst = out
	}
}
