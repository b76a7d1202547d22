package secrets

import (
	"context"
	"errors"
)

// ErrSecretNotFound is returned when no provider holds a secret.
var ErrSecretNotFound = errors.New("secret not found")

// Provider is a source of secret values.
type Provider interface {
	// GetSecret returns the value of name, or an error wrapping
	// ErrSecretNotFound.
	GetSecret(ctx context.Context, name string) (string, error)

	// Name identifies the provider in logs.
	Name() string
}

// RefreshableProvider can drop internally cached values.
type RefreshableProvider interface {
	Provider
	Refresh(ctx context.Context) error
}
