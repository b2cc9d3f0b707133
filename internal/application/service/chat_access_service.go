// Package service contains the application orchestration: the chat access
// service that drives the token lifecycle, and the background sweeper.
package service

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/dmirchev92/server-maystorfix-sub010/internal/domain/models"
	"github.com/dmirchev92/server-maystorfix-sub010/internal/domain/repository"
	domainsvc "github.com/dmirchev92/server-maystorfix-sub010/internal/domain/service"
	"github.com/dmirchev92/server-maystorfix-sub010/internal/infrastructure/monitoring"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/constants"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/errors"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/logger"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/urlutil"
)

// ChatAccessService orchestrates provider identities, chat tokens, and
// sessions. All cross-request invariants are enforced by conditional writes
// in the repositories; this layer sequences them and translates outcomes.
type ChatAccessService struct {
	providers     repository.ProviderRepository
	tokens        repository.TokenRepository
	sessions      repository.SessionRepository
	idgen         *domainsvc.IdentifierGenerator
	conversations domainsvc.ConversationStore
	dispatcher    domainsvc.DispatchPublisher
	limiter       domainsvc.RateLimitService
	audit         domainsvc.AuditService
	metrics       *monitoring.Metrics
	logger        logger.Logger

	identityCache *gocache.Cache
	tokenTTL      time.Duration
	chatBaseURL   string
}

// Options bundles the service dependencies.
type Options struct {
	Providers     repository.ProviderRepository
	Tokens        repository.TokenRepository
	Sessions      repository.SessionRepository
	Conversations domainsvc.ConversationStore
	Dispatcher    domainsvc.DispatchPublisher
	Limiter       domainsvc.RateLimitService
	Audit         domainsvc.AuditService
	Metrics       *monitoring.Metrics
	Logger        logger.Logger
	TokenTTL      time.Duration
	ChatBaseURL   string
}

// NewChatAccessService wires the service.
func NewChatAccessService(opts Options) *ChatAccessService {
	ttl := opts.TokenTTL
	if ttl <= 0 {
		ttl = constants.DefaultTokenTTL
	}
	return &ChatAccessService{
		providers:     opts.Providers,
		tokens:        opts.Tokens,
		sessions:      opts.Sessions,
		idgen:         domainsvc.NewIdentifierGenerator(),
		conversations: opts.Conversations,
		dispatcher:    opts.Dispatcher,
		limiter:       opts.Limiter,
		audit:         opts.Audit,
		metrics:       opts.Metrics,
		logger:        opts.Logger.WithComponent("chat_access"),
		identityCache: gocache.New(constants.DefaultIdentifierCacheTTL, 2*constants.DefaultIdentifierCacheTTL),
		tokenTTL:      ttl,
		chatBaseURL:   opts.ChatBaseURL,
	}
}

// EnsureProviderIdentity returns the provider's identity, allocating one on
// first use. Allocation retries on public identifier collision up to the
// bounded count, then reports exhausted_retries.
func (s *ChatAccessService) EnsureProviderIdentity(ctx context.Context, providerID string) (*models.ProviderIdentity, error) {
	identity, err := s.providers.FindByProviderID(ctx, providerID)
	if err == nil {
		return identity, nil
	}
	if errors.CodeOf(err) != errors.CodeProviderNotFound {
		return nil, err
	}

	for attempt := 1; attempt <= constants.MaxIdentifierAllocationRetries; attempt++ {
		publicID, genErr := s.idgen.NewPublicIdentifier()
		if genErr != nil {
			return nil, genErr
		}

		candidate := models.NewProviderIdentity(providerID, publicID)
		saveErr := s.providers.Save(ctx, candidate)
		if saveErr == nil {
			s.audit.Record(ctx, constants.AuditEventProviderInitialized, providerID, "", "")
			return candidate, nil
		}
		if errors.CodeOf(saveErr) != errors.CodeAllocationConflict {
			return nil, saveErr
		}

		// A conflict on provider_id means another request created the
		// identity concurrently; the re-read settles it.
		if existing, findErr := s.providers.FindByProviderID(ctx, providerID); findErr == nil {
			return existing, nil
		}

		s.logger.Warn(ctx, "public identifier collision, retrying",
			logger.String("provider_id", providerID),
			logger.Int("attempt", attempt),
		)
	}

	return nil, errors.ErrExhaustedRetries(constants.MaxIdentifierAllocationRetries)
}

// InitializeProvider makes the provider chat-ready: identity plus a live
// issued token. Repeat calls while the token is fresh are no-ops returning
// the same token.
func (s *ChatAccessService) InitializeProvider(ctx context.Context, providerID string) (*models.ProviderIdentity, *models.ChatToken, error) {
	identity, err := s.EnsureProviderIdentity(ctx, providerID)
	if err != nil {
		return nil, nil, err
	}

	current, err := s.currentIssued(ctx, providerID)
	if err != nil && errors.CodeOf(err) != errors.CodeTokenNotFound && errors.CodeOf(err) != errors.CodeTokenExpired {
		return nil, nil, err
	}
	if current != nil {
		return identity, current, nil
	}

	token, err := s.mint(ctx, identity, "initialize")
	if err != nil {
		return nil, nil, err
	}
	return identity, token, nil
}

// ChatURL returns the shareable chat link, initializing the provider first
// when needed.
func (s *ChatAccessService) ChatURL(ctx context.Context, providerID string) (string, *models.ProviderIdentity, *models.ChatToken, error) {
	identity, token, err := s.InitializeProvider(ctx, providerID)
	if err != nil {
		return "", nil, nil, err
	}
	return urlutil.ChatURL(s.chatBaseURL, identity.PublicID, token.Value), identity, token, nil
}

// CurrentToken returns the provider's issued token without side effects.
// Used when composing outbound messages that embed the chat URL.
func (s *ChatAccessService) CurrentToken(ctx context.Context, providerID string) (*models.ChatToken, string, error) {
	identity, err := s.providers.FindByProviderID(ctx, providerID)
	if err != nil {
		return nil, "", err
	}

	token, err := s.currentIssued(ctx, providerID)
	if err != nil {
		return nil, "", err
	}
	if token == nil {
		return nil, "", errors.ErrTokenNotFound()
	}
	return token, urlutil.ChatURL(s.chatBaseURL, identity.PublicID, token.Value), nil
}

// ForceRegenerate supersedes the provider's current token and mints a fresh
// one. Throttled per requesting origin; the fresh URL is handed to the
// dispatch layer for delivery.
func (s *ChatAccessService) ForceRegenerate(ctx context.Context, providerID, origin string) (*models.ChatToken, string, error) {
	decision, err := s.limiter.Allow(ctx, constants.RateLimitScopeRegenerate, origin)
	if err != nil {
		return nil, "", err
	}
	if !decision.Allowed {
		s.metrics.RateLimitRejections.WithLabelValues(string(constants.RateLimitScopeRegenerate)).Inc()
		s.audit.Record(ctx, constants.AuditEventRateLimitExceeded, providerID, "",
			fmt.Sprintf(`{"origin":%q}`, origin))
		return nil, "", errors.ErrRateLimited(decision.RetryAfter)
	}

	identity, err := s.EnsureProviderIdentity(ctx, providerID)
	if err != nil {
		return nil, "", err
	}

	token, err := s.mint(ctx, identity, "regenerate")
	if err != nil {
		return nil, "", err
	}
	return token, urlutil.ChatURL(s.chatBaseURL, identity.PublicID, token.Value), nil
}

// ValidateAndConsume handles a chat link open. The first valid use converts
// the token into a durable session; any later use of the same token returns
// that session unchanged. Stale tokens fail with their precise cause, which
// the transport layer collapses for clients.
func (s *ChatAccessService) ValidateAndConsume(ctx context.Context, publicID, tokenValue string) (*models.ChatSession, error) {
	start := time.Now()
	session, err := s.validateAndConsume(ctx, publicID, tokenValue)
	s.metrics.ValidationDuration.Observe(time.Since(start).Seconds())
	s.metrics.TokenValidations.WithLabelValues(validationOutcome(err)).Inc()
	return session, err
}

func (s *ChatAccessService) validateAndConsume(ctx context.Context, publicID, tokenValue string) (*models.ChatSession, error) {
	identity, err := s.resolveIdentity(ctx, publicID)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.FindByValue(ctx, identity.ProviderID, tokenValue)
	if err != nil {
		return nil, err
	}

	switch token.State {
	case constants.TokenStateConsumed:
		// Idempotent re-open: hand back the session the first use created.
		return s.sessions.FindByTokenID(ctx, token.ID)
	case constants.TokenStateSuperseded:
		return nil, errors.ErrTokenSuperseded()
	case constants.TokenStateExpired:
		return nil, errors.ErrTokenExpired()
	}

	if token.IsExpired(time.Now().UTC()) {
		// Past TTL but the sweep has not recorded it yet.
		return nil, errors.ErrTokenExpired()
	}

	conversationID, err := s.conversations.CreateConversation(ctx, identity.ProviderID)
	if err != nil {
		return nil, err
	}

	session := models.NewChatSession(identity.ProviderID, token.ID, conversationID)
	won, err := s.tokens.ConsumeAndBindSession(ctx, token.ID, session)
	if err != nil {
		return nil, err
	}
	if !won {
		// A concurrent open consumed the token first; its session is the
		// only one that exists. The conversation created above is orphaned
		// and left for the conversation store to collect.
		s.logger.Info(ctx, "lost consume race, returning winner session",
			logger.String("token_id", token.ID),
		)
		return s.sessions.FindByTokenID(ctx, token.ID)
	}

	s.audit.Record(ctx, constants.AuditEventTokenConsumed, identity.ProviderID, token.ID,
		fmt.Sprintf(`{"session_id":%q}`, session.ID))
	s.logger.Info(ctx, "token consumed into session",
		logger.String("provider_id", identity.ProviderID),
		logger.String("token_id", token.ID),
		logger.String("session_id", session.ID),
	)
	return session, nil
}

// ValidateSession confirms a session still exists. The originating token is
// never re-checked; once consumed it has done its job.
func (s *ChatAccessService) ValidateSession(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.TouchLastValidated(ctx, sessionID, time.Now().UTC()); err != nil {
		s.logger.Warn(ctx, "failed to touch session", logger.String("session_id", sessionID), logger.Error(err))
	}
	return session, nil
}

// TokenStats aggregates a provider's token history for the admin surface.
func (s *ChatAccessService) TokenStats(ctx context.Context, providerID string) (*models.TokenStats, error) {
	if _, err := s.providers.FindByProviderID(ctx, providerID); err != nil {
		return nil, err
	}
	return s.tokens.Stats(ctx, providerID)
}

// CleanupExpired ages out stale issued tokens. Idempotent and safe to run
// concurrently from multiple instances or alongside validations.
func (s *ChatAccessService) CleanupExpired(ctx context.Context) (int64, error) {
	count, err := s.tokens.ExpireIssuedBefore(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	s.metrics.SweepRuns.Inc()
	s.metrics.SweepExpiredTokens.Add(float64(count))
	if count > 0 {
		s.audit.Record(ctx, constants.AuditEventTokensExpired, "", "",
			fmt.Sprintf(`{"count":%d}`, count))
		s.logger.Info(ctx, "expired stale tokens", logger.Int64("count", count))
	}
	return count, nil
}

// currentIssued returns the provider's single issued token, nil when there
// is none or it is past TTL, and invariant_violation when the store holds
// more than one.
func (s *ChatAccessService) currentIssued(ctx context.Context, providerID string) (*models.ChatToken, error) {
	issued, err := s.tokens.FindIssuedByProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	switch len(issued) {
	case 0:
		return nil, nil
	case 1:
		if issued[0].IsExpired(time.Now().UTC()) {
			return nil, errors.ErrTokenExpired()
		}
		return issued[0], nil
	default:
		s.audit.Record(ctx, constants.AuditEventInvariantViolation, providerID, "",
			fmt.Sprintf(`{"issued_count":%d}`, len(issued)))
		s.logger.Error(ctx, "multiple issued tokens for one provider",
			errors.ErrInvariantViolation("multiple issued tokens"),
			logger.String("provider_id", providerID),
			logger.Int("issued_count", len(issued)),
		)
		return nil, errors.ErrInvariantViolation(
			fmt.Sprintf("provider %s holds %d issued tokens", providerID, len(issued)))
	}
}

func (s *ChatAccessService) mint(ctx context.Context, identity *models.ProviderIdentity, reason string) (*models.ChatToken, error) {
	value, err := s.idgen.NewTokenValue()
	if err != nil {
		return nil, err
	}

	token := models.NewChatToken(identity.ProviderID, value, s.tokenTTL)
	superseded, err := s.tokens.Mint(ctx, token)
	if err != nil {
		return nil, err
	}

	s.metrics.TokensMinted.WithLabelValues(reason).Inc()
	s.audit.Record(ctx, constants.AuditEventTokenMinted, identity.ProviderID, token.ID,
		fmt.Sprintf(`{"reason":%q}`, reason))
	if superseded > 0 {
		s.audit.Record(ctx, constants.AuditEventTokenSuperseded, identity.ProviderID, "", "")
	}

	s.publishDispatch(ctx, identity, token, reason)
	return token, nil
}

// publishDispatch hands the fresh chat URL to the SMS dispatcher. Delivery
// failures do not fail the mint; the URL remains retrievable.
func (s *ChatAccessService) publishDispatch(ctx context.Context, identity *models.ProviderIdentity, token *models.ChatToken, reason string) {
	event := domainsvc.DispatchEvent{
		ProviderID: identity.ProviderID,
		PublicID:   identity.PublicID,
		TokenValue: token.Value,
		ChatURL:    urlutil.ChatURL(s.chatBaseURL, identity.PublicID, token.Value),
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.metrics.DispatchEvents.WithLabelValues("error").Inc()
		s.logger.Warn(ctx, "failed to publish dispatch event",
			logger.String("provider_id", identity.ProviderID),
			logger.Error(err),
		)
		return
	}
	s.metrics.DispatchEvents.WithLabelValues("ok").Inc()
}

// resolveIdentity maps a public identifier to its provider through a local
// read-through cache. Identities are immutable, so staleness is bounded by
// memory, not correctness.
func (s *ChatAccessService) resolveIdentity(ctx context.Context, publicID string) (*models.ProviderIdentity, error) {
	if cached, ok := s.identityCache.Get(publicID); ok {
		return cached.(*models.ProviderIdentity), nil
	}

	identity, err := s.providers.FindByPublicID(ctx, publicID)
	if err != nil {
		return nil, err
	}
	s.identityCache.SetDefault(publicID, identity)
	return identity, nil
}

func validationOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(errors.CodeOf(err))
}
