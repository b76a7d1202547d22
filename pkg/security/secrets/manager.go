package secrets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"

	"go.uber.org/multierr"

	"mercator-hq/policysync/pkg/config"
)

var secretRef = regexp.MustCompile(`\$\{secret:([^}]+)\}`)

// Manager resolves secrets through an ordered list of providers.
type Manager struct {
	providers []Provider
	cache     *Cache
	logger    *slog.Logger
}

// NewManager creates a manager trying providers in order.
func NewManager(cache *Cache, providers ...Provider) *Manager {
	if cache == nil {
		cache = NewCache(0, 0)
	}
	return &Manager{
		providers: providers,
		cache:     cache,
		logger:    slog.Default().With("component", "secrets"),
	}
}

// New builds a manager from cfg: the directory provider, when configured,
// followed by the environment provider.
func New(cfg config.SecretsConfig) (*Manager, error) {
	var providers []Provider
	if cfg.Directory != "" {
		fp, err := NewFileProvider(cfg.Directory, cfg.Watch)
		if err != nil {
			return nil, err
		}
		providers = append(providers, fp)
	}
	providers = append(providers, NewEnvProvider(cfg.EnvPrefix))
	return NewManager(NewCache(cfg.CacheTTL, DefaultCacheSize), providers...), nil
}

// GetSecret returns the value from the first provider holding name.
func (m *Manager) GetSecret(ctx context.Context, name string) (string, error) {
	if v, ok := m.cache.Get(name); ok {
		return v, nil
	}

	var errs error
	for _, p := range m.providers {
		v, err := p.GetSecret(ctx, name)
		if err == nil {
			m.cache.Set(name, v)
			m.logger.Debug("secret resolved", "name", redactName(name), "provider", p.Name())
			return v, nil
		}
		if !errors.Is(err, ErrSecretNotFound) {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	if errs != nil {
		return "", fmt.Errorf("failed to resolve secret %q: %w", name, errs)
	}
	return "", fmt.Errorf("%q: %w", name, ErrSecretNotFound)
}

// Resolve replaces every ${secret:name} reference in s. Unresolvable
// references are left in place and reported together.
func (m *Manager) Resolve(ctx context.Context, s string) (string, error) {
	var errs error
	out := secretRef.ReplaceAllStringFunc(s, func(ref string) string {
		name := secretRef.FindStringSubmatch(ref)[1]
		v, err := m.GetSecret(ctx, name)
		if err != nil {
			errs = multierr.Append(errs, err)
			return ref
		}
		return v
	})
	return out, errs
}

// HasReferences reports whether s contains a secret reference.
func HasReferences(s string) bool {
	return secretRef.MatchString(s)
}

// Refresh clears the cache and every refreshable provider.
func (m *Manager) Refresh(ctx context.Context) error {
	m.cache.Clear()
	var errs error
	for _, p := range m.providers {
		if r, ok := p.(RefreshableProvider); ok {
			errs = multierr.Append(errs, r.Refresh(ctx))
		}
	}
	return errs
}

// Close releases providers holding resources.
func (m *Manager) Close() error {
	var errs error
	for _, p := range m.providers {
		if c, ok := p.(io.Closer); ok {
			errs = multierr.Append(errs, c.Close())
		}
	}
	return errs
}

func redactName(name string) string {
	if len(name) <= 4 {
		return "***"
	}
	return name[:2] + "..." + name[len(name)-2:]
}
