// Package models contains the domain entities of the chat access service.
package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmirchev92/server-maystorfix-sub010/pkg/constants"
)

// ChatToken is a single-use credential granting entry into a chat with one
// provider. Lifecycle: issued -> consumed (terminal, first valid use),
// issued -> superseded (a newer mint replaced it), issued -> expired (aged
// out by the sweep). A provider has at most one issued token at a time.
type ChatToken struct {
	ID         string               `json:"id" db:"id"`
	ProviderID string               `json:"provider_id" db:"provider_id"`
	Value      string               `json:"value" db:"value"`
	State      constants.TokenState `json:"state" db:"state"`
	CreatedAt  time.Time            `json:"created_at" db:"created_at"`
	ExpiresAt  time.Time            `json:"expires_at" db:"expires_at"`
	ConsumedAt *time.Time           `json:"consumed_at,omitempty" db:"consumed_at"`
}

// NewChatToken mints a token in the issued state with the given TTL.
func NewChatToken(providerID, value string, ttl time.Duration) *ChatToken {
	now := time.Now().UTC()
	return &ChatToken{
		ID:         uuid.NewString(),
		ProviderID: providerID,
		Value:      value,
		State:      constants.TokenStateIssued,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
}

// IsExpired reports whether the token is past its time-to-live, regardless
// of whether the sweep has recorded that yet.
func (t *ChatToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// IsConsumable reports whether a validation at the given instant may convert
// the token into a session.
func (t *ChatToken) IsConsumable(now time.Time) bool {
	return t.State == constants.TokenStateIssued && !t.IsExpired(now)
}

// TokenStats summarizes a provider's token history for the admin surface.
type TokenStats struct {
	ProviderID      string     `json:"provider_id"`
	IssuedCount     int64      `json:"issued_count"`
	ConsumedCount   int64      `json:"consumed_count"`
	SupersededCount int64      `json:"superseded_count"`
	ExpiredCount    int64      `json:"expired_count"`
	LastIssuedAt    *time.Time `json:"last_issued_at,omitempty"`
	LastConsumedAt  *time.Time `json:"last_consumed_at,omitempty"`
}
