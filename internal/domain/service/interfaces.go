package service

import (
	"context"
	"time"

	"github.com/dmirchev92/server-maystorfix-sub010/pkg/constants"
)

// ConversationStore is the external system that owns conversation records.
// The chat access service only creates conversations and checks existence;
// message content never passes through here.
type ConversationStore interface {
	// CreateConversation opens a new empty conversation for the provider and
	// returns its id.
	CreateConversation(ctx context.Context, providerID string) (string, error)

	// ConversationExists reports whether the conversation is still present.
	ConversationExists(ctx context.Context, conversationID string) (bool, error)
}

// DispatchEvent is published when a provider gains a fresh chat URL that the
// external SMS dispatcher should deliver. Sending is not this service's job.
type DispatchEvent struct {
	ProviderID string    `json:"provider_id"`
	PublicID   string    `json:"public_id"`
	TokenValue string    `json:"token_value"`
	ChatURL    string    `json:"chat_url"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

// DispatchPublisher emits dispatch events to the messaging layer.
type DispatchPublisher interface {
	Publish(ctx context.Context, event DispatchEvent) error
}

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// RateLimitService throttles an operation per key within a scope. Allow
// consumes one unit when permitted.
type RateLimitService interface {
	Allow(ctx context.Context, scope constants.RateLimitScope, key string) (Decision, error)
}

// AuditService records lifecycle events for later inspection. Recording is
// best effort; failures are logged, never propagated to callers.
type AuditService interface {
	Record(ctx context.Context, eventType constants.AuditEventType, providerID, tokenID, detail string)
}

// LeaderLock is a best-effort distributed lock used to avoid duplicate sweep
// work across instances. Correctness never depends on holding it.
type LeaderLock interface {
	TryAcquire(ctx context.Context, ttl time.Duration) (bool, error)
	Release(ctx context.Context) error
}
