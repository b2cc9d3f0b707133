// Package memory implements the repository contracts in process. It backs
// the dev storage driver and the service-level tests, mirroring the
// conditional-update semantics of the postgres implementation under a mutex.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dmirchev92/server-maystorfix-sub010/internal/domain/models"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/constants"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/errors"
)

// Store holds all in-memory state and hands out the repository views.
type Store struct {
	mu        sync.Mutex
	providers map[string]*models.ProviderIdentity // by providerID
	publicIDs map[string]string                   // publicID -> providerID
	tokens    map[string]*models.ChatToken        // by token id
	sessions  map[string]*models.ChatSession      // by session id
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		providers: make(map[string]*models.ProviderIdentity),
		publicIDs: make(map[string]string),
		tokens:    make(map[string]*models.ChatToken),
		sessions:  make(map[string]*models.ChatSession),
	}
}

// Providers returns the provider repository view.
func (s *Store) Providers() *ProviderRepo { return &ProviderRepo{store: s} }

// Tokens returns the token repository view.
func (s *Store) Tokens() *TokenRepo { return &TokenRepo{store: s} }

// Sessions returns the session repository view.
func (s *Store) Sessions() *SessionRepo { return &SessionRepo{store: s} }

// ProviderRepo is the in-memory ProviderRepository.
type ProviderRepo struct {
	store *Store
}

func (r *ProviderRepo) Save(_ context.Context, identity *models.ProviderIdentity) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.publicIDs[identity.PublicID]; taken {
		return errors.ErrAllocationConflict()
	}
	if _, exists := s.providers[identity.ProviderID]; exists {
		return errors.ErrAllocationConflict()
	}

	cp := *identity
	s.providers[identity.ProviderID] = &cp
	s.publicIDs[identity.PublicID] = identity.ProviderID
	return nil
}

func (r *ProviderRepo) FindByProviderID(_ context.Context, providerID string) (*models.ProviderIdentity, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.providers[providerID]
	if !ok {
		return nil, errors.ErrProviderNotFound(providerID)
	}
	cp := *identity
	return &cp, nil
}

func (r *ProviderRepo) FindByPublicID(_ context.Context, publicID string) (*models.ProviderIdentity, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	providerID, ok := s.publicIDs[publicID]
	if !ok {
		return nil, errors.ErrProviderNotFound(publicID)
	}
	cp := *s.providers[providerID]
	return &cp, nil
}

// TokenRepo is the in-memory TokenRepository.
type TokenRepo struct {
	store *Store
}

func (r *TokenRepo) Mint(_ context.Context, token *models.ChatToken) (int64, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var superseded int64
	for _, t := range s.tokens {
		if t.ProviderID == token.ProviderID && t.State == constants.TokenStateIssued {
			t.State = constants.TokenStateSuperseded
			superseded++
		}
	}

	cp := *token
	s.tokens[token.ID] = &cp
	return superseded, nil
}

func (r *TokenRepo) FindByValue(_ context.Context, providerID, value string) (*models.ChatToken, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tokens {
		if t.ProviderID == providerID && t.Value == value {
			cp := *t
			return &cp, nil
		}
	}
	return nil, errors.ErrTokenNotFound()
}

func (r *TokenRepo) FindIssuedByProvider(_ context.Context, providerID string) ([]*models.ChatToken, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.ChatToken
	for _, t := range s.tokens {
		if t.ProviderID == providerID && t.State == constants.TokenStateIssued {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *TokenRepo) ConsumeAndBindSession(_ context.Context, tokenID string, session *models.ChatSession) (bool, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[tokenID]
	if !ok || t.State != constants.TokenStateIssued {
		return false, nil
	}

	t.State = constants.TokenStateConsumed
	consumedAt := session.CreatedAt
	t.ConsumedAt = &consumedAt

	cp := *session
	s.sessions[session.ID] = &cp
	return true, nil
}

func (r *TokenRepo) ExpireIssuedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, t := range s.tokens {
		if t.State == constants.TokenStateIssued && t.ExpiresAt.Before(cutoff) {
			t.State = constants.TokenStateExpired
			count++
		}
	}
	return count, nil
}

func (r *TokenRepo) Stats(_ context.Context, providerID string) (*models.TokenStats, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &models.TokenStats{ProviderID: providerID}
	for _, t := range s.tokens {
		if t.ProviderID != providerID {
			continue
		}
		switch t.State {
		case constants.TokenStateIssued:
			stats.IssuedCount++
		case constants.TokenStateConsumed:
			stats.ConsumedCount++
		case constants.TokenStateSuperseded:
			stats.SupersededCount++
		case constants.TokenStateExpired:
			stats.ExpiredCount++
		}
		if stats.LastIssuedAt == nil || t.CreatedAt.After(*stats.LastIssuedAt) {
			at := t.CreatedAt
			stats.LastIssuedAt = &at
		}
		if t.ConsumedAt != nil && (stats.LastConsumedAt == nil || t.ConsumedAt.After(*stats.LastConsumedAt)) {
			at := *t.ConsumedAt
			stats.LastConsumedAt = &at
		}
	}
	return stats, nil
}

// SessionRepo is the in-memory SessionRepository.
type SessionRepo struct {
	store *Store
}

func (r *SessionRepo) FindByID(_ context.Context, sessionID string) (*models.ChatSession, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, errors.ErrSessionNotFound(sessionID)
	}
	cp := *session
	return &cp, nil
}

func (r *SessionRepo) FindByTokenID(_ context.Context, tokenID string) (*models.ChatSession, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, session := range s.sessions {
		if session.TokenID == tokenID {
			cp := *session
			return &cp, nil
		}
	}
	return nil, errors.ErrSessionNotFound(tokenID)
}

func (r *SessionRepo) TouchLastValidated(_ context.Context, sessionID string, at time.Time) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, ok := s.sessions[sessionID]; ok {
		session.LastValidatedAt = at
	}
	return nil
}
