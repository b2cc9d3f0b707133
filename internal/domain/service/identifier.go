// Package service holds the domain services and the interfaces the
// application layer depends on for external capabilities.
package service

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/dmirchev92/server-maystorfix-sub010/pkg/errors"
)

const (
	// publicIDBytes yields a 16 character URL-safe public identifier.
	publicIDBytes = 12
	// tokenBytes yields a 22 character token value carrying 128 bits of
	// entropy, comfortably above the 122-bit design floor.
	tokenBytes = 16
)

// IdentifierGenerator produces unguessable URL-safe identifiers and token
// values. Both methods are pure draws from crypto/rand with no state; output
// is never derivable from provider ids or timestamps.
type IdentifierGenerator struct{}

// NewIdentifierGenerator returns the generator.
func NewIdentifierGenerator() *IdentifierGenerator {
	return &IdentifierGenerator{}
}

// NewPublicIdentifier draws a fresh public identifier for a provider.
func (g *IdentifierGenerator) NewPublicIdentifier() (string, error) {
	return randomURLSafe(publicIDBytes)
}

// NewTokenValue draws a fresh chat token value.
func (g *IdentifierGenerator) NewTokenValue() (string, error) {
	return randomURLSafe(tokenBytes)
}

func randomURLSafe(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.ErrInternal("failed to read random bytes").WithCause(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
