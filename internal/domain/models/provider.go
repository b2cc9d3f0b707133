package models

import "time"

// ProviderIdentity binds an internal provider id to its public, unguessable
// chat identifier. Identities are immutable once allocated; the public
// identifier never changes for the lifetime of the provider.
type ProviderIdentity struct {
	ProviderID string    `json:"provider_id" db:"provider_id"`
	PublicID   string    `json:"public_id" db:"public_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// NewProviderIdentity creates an identity record for a provider.
func NewProviderIdentity(providerID, publicID string) *ProviderIdentity {
	return &ProviderIdentity{
		ProviderID: providerID,
		PublicID:   publicID,
		CreatedAt:  time.Now().UTC(),
	}
}
