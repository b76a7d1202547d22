package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EnvProvider reads secrets from environment variables named
// prefix + upper-cased name, with dashes and dots turned into underscores.
type EnvProvider struct {
	prefix string
}

// NewEnvProvider creates an environment provider.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{prefix: prefix}
}

// GetSecret looks up the variable for name. Empty variables count as unset.
func (p *EnvProvider) GetSecret(_ context.Context, name string) (string, error) {
	v, ok := os.LookupEnv(p.VarName(name))
	if !ok || v == "" {
		return "", fmt.Errorf("%s: %w in environment", p.VarName(name), ErrSecretNotFound)
	}
	return v, nil
}

// Name implements Provider.
func (p *EnvProvider) Name() string { return "env" }

// VarName returns the environment variable holding name.
func (p *EnvProvider) VarName(name string) string {
	r := strings.NewReplacer("-", "_", ".", "_")
	return p.prefix + strings.ToUpper(r.Replace(name))
}
