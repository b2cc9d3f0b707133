// Package repository defines the persistence contracts of the chat access
// domain. Implementations live under internal/infrastructure/persistence;
// all cross-request invariants are enforced with conditional writes in the
// store, never with in-process locks, so multiple service instances stay safe.
package repository

import (
	"context"
	"time"

	"github.com/dmirchev92/server-maystorfix-sub010/internal/domain/models"
)

// ProviderRepository persists provider identities.
type ProviderRepository interface {
	// Save inserts a new identity. It returns AllocationConflict when the
	// public identifier is already taken, so callers can retry with a fresh
	// value, and ProviderExists semantics are handled by FindByProviderID
	// before calling Save.
	Save(ctx context.Context, identity *models.ProviderIdentity) error

	// FindByProviderID returns the identity for an internal provider id,
	// or ProviderNotFound.
	FindByProviderID(ctx context.Context, providerID string) (*models.ProviderIdentity, error)

	// FindByPublicID resolves a public identifier back to its identity,
	// or ProviderNotFound.
	FindByPublicID(ctx context.Context, publicID string) (*models.ProviderIdentity, error)
}

// TokenRepository persists chat tokens and enforces the single-active and
// single-consume invariants through conditional updates.
type TokenRepository interface {
	// Mint atomically supersedes the provider's currently issued token (if
	// any) and inserts the new one, in a single transaction. It returns the
	// number of tokens superseded (0 or 1 in a healthy store).
	Mint(ctx context.Context, token *models.ChatToken) (superseded int64, err error)

	// FindByValue looks up a token by provider and raw value, or TokenNotFound.
	FindByValue(ctx context.Context, providerID, value string) (*models.ChatToken, error)

	// FindIssuedByProvider returns every token currently in the issued state
	// for the provider. A healthy store returns zero or one entries; callers
	// treat more as an invariant violation.
	FindIssuedByProvider(ctx context.Context, providerID string) ([]*models.ChatToken, error)

	// ConsumeAndBindSession atomically moves the token from issued to
	// consumed and inserts the session bound to it, in one transaction.
	// It returns false without error when the conditional update matched
	// nothing, meaning a concurrent caller already consumed the token.
	ConsumeAndBindSession(ctx context.Context, tokenID string, session *models.ChatSession) (bool, error)

	// ExpireIssuedBefore bulk-moves issued tokens whose expiry precedes the
	// cutoff into the expired state and returns the count. Idempotent.
	ExpireIssuedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Stats aggregates the provider's token counts by state.
	Stats(ctx context.Context, providerID string) (*models.TokenStats, error)
}

// SessionRepository persists chat sessions.
type SessionRepository interface {
	// FindByID returns the session or SessionNotFound.
	FindByID(ctx context.Context, sessionID string) (*models.ChatSession, error)

	// FindByTokenID returns the session bound to a consumed token, or
	// SessionNotFound when the bind never happened.
	FindByTokenID(ctx context.Context, tokenID string) (*models.ChatSession, error)

	// TouchLastValidated bumps the session's last validation timestamp.
	TouchLastValidated(ctx context.Context, sessionID string, at time.Time) error
}
