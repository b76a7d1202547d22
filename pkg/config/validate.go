package config

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "fetcher.workers").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateRepository(&cfg.Repository)...)
	errs = append(errs, validateBundle(&cfg.Bundle)...)
	errs = append(errs, validateFetcher(&cfg.Fetcher)...)
	if cfg.Secrets.CacheTTL < 0 {
		errs = append(errs, FieldError{Field: "secrets.cache_ttl", Message: "must not be negative"})
	}
	errs = append(errs, validateClient(&cfg.Client)...)
	errs = append(errs, validateStore(&cfg.Store)...)
	errs = append(errs, validatePubSub(&cfg.PubSub)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

func validateRepository(cfg *GitPolicyConfig) []FieldError {
	var errs []FieldError

	switch cfg.Auth.Type {
	case "none", "":
	case "token":
		if cfg.Auth.Token == "" {
			errs = append(errs, FieldError{Field: "repository.auth.token", Message: "token auth requires a token"})
		}
	case "ssh":
		if cfg.Auth.SSHKeyPath == "" {
			errs = append(errs, FieldError{Field: "repository.auth.ssh_key_path", Message: "ssh auth requires a key path"})
		}
	default:
		errs = append(errs, FieldError{Field: "repository.auth.type", Message: fmt.Sprintf("unknown auth type %q", cfg.Auth.Type)})
	}

	if cfg.Poll.Interval < 0 {
		errs = append(errs, FieldError{Field: "repository.poll.interval", Message: "must not be negative"})
	}
	if cfg.Poll.Timeout < 0 {
		errs = append(errs, FieldError{Field: "repository.poll.timeout", Message: "must not be negative"})
	}
	if cfg.Clone.Depth < 0 {
		errs = append(errs, FieldError{Field: "repository.clone.depth", Message: "must not be negative"})
	}

	return errs
}

func validateBundle(cfg *BundleConfig) []FieldError {
	var errs []FieldError

	for i, ext := range cfg.Extensions {
		if !strings.HasPrefix(ext, ".") {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("bundle.extensions[%d]", i),
				Message: fmt.Sprintf("extension %q must start with a dot", ext),
			})
		}
	}
	for i, pattern := range cfg.Ignore {
		if _, err := path.Match(pattern, ""); err != nil {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("bundle.ignore[%d]", i),
				Message: fmt.Sprintf("invalid glob %q: %v", pattern, err),
			})
		}
	}
	if strings.HasPrefix(cfg.ManifestPath, "/") {
		errs = append(errs, FieldError{Field: "bundle.manifest_path", Message: "must be relative to the repository root"})
	}

	return errs
}

func validateFetcher(cfg *FetcherConfig) []FieldError {
	var errs []FieldError

	if cfg.Workers < 1 {
		errs = append(errs, FieldError{Field: "fetcher.workers", Message: "must be at least 1"})
	}
	if cfg.QueueSize < 1 {
		errs = append(errs, FieldError{Field: "fetcher.queue_size", Message: "must be at least 1"})
	}
	if cfg.EnqueueTimeout < 0 {
		errs = append(errs, FieldError{Field: "fetcher.enqueue_timeout", Message: "must not be negative"})
	}
	if cfg.Retry.Multiplier < 1 {
		errs = append(errs, FieldError{Field: "fetcher.retry.multiplier", Message: "must be at least 1"})
	}
	if cfg.Retry.RandomizationFactor < 0 || cfg.Retry.RandomizationFactor > 1 {
		errs = append(errs, FieldError{Field: "fetcher.retry.randomization_factor", Message: "must be between 0 and 1"})
	}
	if cfg.Retry.MaxInterval < cfg.Retry.InitialInterval {
		errs = append(errs, FieldError{Field: "fetcher.retry.max_interval", Message: "must not be less than initial_interval"})
	}
	if cfg.HTTP.Timeout < 0 {
		errs = append(errs, FieldError{Field: "fetcher.http.timeout", Message: "must not be negative"})
	}
	tls := cfg.HTTP.TLS
	if (tls.CertFile == "") != (tls.KeyFile == "") {
		errs = append(errs, FieldError{Field: "fetcher.http.tls.cert_file", Message: "cert_file and key_file must be set together"})
	}
	if tls.MinVersion != "1.2" && tls.MinVersion != "1.3" {
		errs = append(errs, FieldError{Field: "fetcher.http.tls.min_version", Message: "must be 1.2 or 1.3"})
	}

	return errs
}

func validateClient(cfg *ClientConfig) []FieldError {
	var errs []FieldError

	if cfg.DataSourcesURL != "" {
		if err := validateURL(cfg.DataSourcesURL); err != nil {
			errs = append(errs, FieldError{Field: "client.data_sources_url", Message: err.Error()})
		}
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{Field: "client.shutdown_timeout", Message: "must not be negative"})
	}
	for i, cb := range cfg.Callbacks {
		if err := validateURL(cb.URL); err != nil {
			errs = append(errs, FieldError{Field: fmt.Sprintf("client.callbacks[%d].url", i), Message: err.Error()})
		}
	}

	return errs
}

func validateStore(cfg *StoreConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "store.sqlite.path", Message: "required for sqlite backend"})
		}
		if cfg.SQLite.Driver != "sqlite" && cfg.SQLite.Driver != "sqlite3" {
			errs = append(errs, FieldError{Field: "store.sqlite.driver", Message: fmt.Sprintf("unknown driver %q", cfg.SQLite.Driver)})
		}
	default:
		errs = append(errs, FieldError{Field: "store.backend", Message: fmt.Sprintf("unknown backend %q", cfg.Backend)})
	}

	return errs
}

func validatePubSub(cfg *PubSubConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
	case "socketio":
		if cfg.URL != "" {
			if err := validateURL(cfg.URL); err != nil {
				errs = append(errs, FieldError{Field: "pubsub.url", Message: err.Error()})
			}
		}
	default:
		errs = append(errs, FieldError{Field: "pubsub.backend", Message: fmt.Sprintf("unknown backend %q", cfg.Backend)})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, FieldError{Field: "telemetry.logging.level", Message: fmt.Sprintf("unknown level %q", cfg.Logging.Level)})
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, FieldError{Field: "telemetry.logging.format", Message: fmt.Sprintf("unknown format %q", cfg.Logging.Format)})
	}
	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "must start with /"})
	}
	switch cfg.Tracing.Sampler {
	case "always", "never", "ratio":
	default:
		errs = append(errs, FieldError{Field: "telemetry.tracing.sampler", Message: fmt.Sprintf("unknown sampler %q", cfg.Tracing.Sampler)})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, FieldError{Field: "telemetry.tracing.sample_ratio", Message: "must be between 0 and 1"})
	}

	return errs
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("URL %q must include scheme and host", raw)
	}
	return nil
}
