// Package constants defines shared constants for the chat access service.
package constants

import "time"

// TokenState represents the lifecycle state of a chat token.
type TokenState string

const (
	// TokenStateIssued is the initial state of a freshly minted token.
	TokenStateIssued TokenState = "issued"
	// TokenStateConsumed means the token's first valid use created a session. Terminal.
	TokenStateConsumed TokenState = "consumed"
	// TokenStateSuperseded means a newer token was minted for the same provider
	// before this one was ever consumed.
	TokenStateSuperseded TokenState = "superseded"
	// TokenStateExpired means the cleanup sweep aged the token out while still issued.
	TokenStateExpired TokenState = "expired"
)

// AuditEventType classifies entries in the audit trail.
type AuditEventType string

const (
	AuditEventProviderInitialized AuditEventType = "provider_initialized"
	AuditEventTokenMinted         AuditEventType = "token_minted"
	AuditEventTokenConsumed       AuditEventType = "token_consumed"
	AuditEventTokenSuperseded     AuditEventType = "token_superseded"
	AuditEventTokensExpired       AuditEventType = "tokens_expired"
	AuditEventRateLimitExceeded   AuditEventType = "rate_limit_exceeded"
	AuditEventInvariantViolation  AuditEventType = "invariant_violation"
)

// ContextKey is the type for request-scoped context values.
type ContextKey string

const (
	ContextKeyRequestID ContextKey = "request_id"
	ContextKeyTraceID   ContextKey = "trace_id"
	ContextKeyClientIP  ContextKey = "client_ip"
)

// RateLimitScope names a rate limiting dimension.
type RateLimitScope string

const (
	// RateLimitScopeRegenerate throttles token regeneration per requesting origin.
	RateLimitScopeRegenerate RateLimitScope = "regenerate"
	// RateLimitScopeValidate is the coarse abuse guard on the public validate endpoint.
	RateLimitScopeValidate RateLimitScope = "validate"
)

// Defaults applied when configuration leaves a value unset.
const (
	// DefaultTokenTTL is how long an issued token stays consumable.
	DefaultTokenTTL = 7 * 24 * time.Hour

	// DefaultRegenerateLimit / DefaultRegenerateWindow implement the reference
	// policy of 5 regenerations per 15 minutes per origin.
	DefaultRegenerateLimit  = 5
	DefaultRegenerateWindow = 15 * time.Minute

	// DefaultSweepInterval is how often the cleanup sweep runs.
	DefaultSweepInterval = 10 * time.Minute

	// DefaultIdentifierCacheTTL bounds staleness of the local
	// public-identifier resolution cache. Identities are immutable once
	// created, so the TTL only limits memory, not correctness.
	DefaultIdentifierCacheTTL = 5 * time.Minute

	// MaxIdentifierAllocationRetries bounds collision retries when
	// allocating a provider public identifier.
	MaxIdentifierAllocationRetries = 3

	// MaxMintRetries bounds retries of transient store failures while minting.
	MaxMintRetries = 2
)

// Redis key prefixes.
const (
	RateLimitKeyPrefix = "maystorfix:ratelimit"
	SweepLeaderKey     = "maystorfix:sweep:leader"
)

// ServiceName is used for tracing and logging identification.
const ServiceName = "maystorfix-chat-access"
