package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"sync"
)

var (
	// ErrMissingToken is returned when a request carries no token.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken is returned for tokens not known to the validator.
	ErrInvalidToken = errors.New("invalid bearer token")
)

// TokenValidator accepts a fixed set of tokens. Comparisons run in
// constant time over token digests.
type TokenValidator struct {
	mu     sync.RWMutex
	tokens map[[sha256.Size]byte]struct{}
}

// NewTokenValidator creates a validator accepting tokens. Empty tokens are
// ignored.
func NewTokenValidator(tokens ...string) *TokenValidator {
	v := &TokenValidator{tokens: make(map[[sha256.Size]byte]struct{})}
	for _, t := range tokens {
		v.Add(t)
	}
	return v
}

// Add accepts token from now on.
func (v *TokenValidator) Add(token string) {
	if token == "" {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tokens[sha256.Sum256([]byte(token))] = struct{}{}
}

// Remove stops accepting token.
func (v *TokenValidator) Remove(token string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.tokens, sha256.Sum256([]byte(token)))
}

// Len returns the number of accepted tokens.
func (v *TokenValidator) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.tokens)
}

// Validate checks token against every accepted token.
func (v *TokenValidator) Validate(token string) error {
	if token == "" {
		return ErrMissingToken
	}
	sum := sha256.Sum256([]byte(token))

	v.mu.RLock()
	defer v.mu.RUnlock()

	match := 0
	for known := range v.tokens {
		match |= subtle.ConstantTimeCompare(sum[:], known[:])
	}
	if match == 0 {
		return ErrInvalidToken
	}
	return nil
}
