package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmirchev92/server-maystorfix-sub010/internal/domain/models"
	"github.com/dmirchev92/server-maystorfix-sub010/internal/domain/repository"
	domainsvc "github.com/dmirchev92/server-maystorfix-sub010/internal/domain/service"
	"github.com/dmirchev92/server-maystorfix-sub010/internal/infrastructure/monitoring"
	"github.com/dmirchev92/server-maystorfix-sub010/internal/infrastructure/persistence/memory"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/constants"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/errors"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/logger"
)

type stubConversations struct {
	mu      sync.Mutex
	created int
	fail    bool
}

func (s *stubConversations) CreateConversation(_ context.Context, providerID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return "", errors.ErrConversationUnavailable(stderrors.New("store down"))
	}
	s.created++
	return fmt.Sprintf("conv-%s-%d", providerID, s.created), nil
}

func (s *stubConversations) ConversationExists(context.Context, string) (bool, error) {
	return true, nil
}

func (s *stubConversations) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created
}

type stubLimiter struct {
	allowed    bool
	retryAfter time.Duration
	calls      int
}

func (s *stubLimiter) Allow(context.Context, constants.RateLimitScope, string) (domainsvc.Decision, error) {
	s.calls++
	return domainsvc.Decision{Allowed: s.allowed, RetryAfter: s.retryAfter}, nil
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []domainsvc.DispatchEvent
}

func (d *recordingDispatcher) Publish(_ context.Context, event domainsvc.DispatchEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) all() []domainsvc.DispatchEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domainsvc.DispatchEvent(nil), d.events...)
}

type noopAudit struct{}

func (noopAudit) Record(context.Context, constants.AuditEventType, string, string, string) {}

type fixture struct {
	svc           *ChatAccessService
	store         *memory.Store
	conversations *stubConversations
	limiter       *stubLimiter
	dispatcher    *recordingDispatcher
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()

	store := memory.NewStore()
	conversations := &stubConversations{}
	limiter := &stubLimiter{allowed: true}
	dispatcher := &recordingDispatcher{}

	opts := Options{
		Providers:     store.Providers(),
		Tokens:        store.Tokens(),
		Sessions:      store.Sessions(),
		Conversations: conversations,
		Dispatcher:    dispatcher,
		Limiter:       limiter,
		Audit:         noopAudit{},
		Metrics:       monitoring.NewMetrics(prometheus.NewRegistry()),
		Logger:        logger.NewNoop(),
		TokenTTL:      time.Hour,
		ChatBaseURL:   "https://chat.example.com",
	}
	if mutate != nil {
		mutate(&opts)
	}

	return &fixture{
		svc:           NewChatAccessService(opts),
		store:         store,
		conversations: conversations,
		limiter:       limiter,
		dispatcher:    dispatcher,
	}
}

func TestInitializeProvider_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	identity, token, err := f.svc.InitializeProvider(ctx, "provider-1")
	require.NoError(t, err)
	require.NotNil(t, token)
	assert.Len(t, identity.PublicID, 16)
	assert.Len(t, token.Value, 22)
	assert.Equal(t, constants.TokenStateIssued, token.State)

	identitySame, tokenSame, err := f.svc.InitializeProvider(ctx, "provider-1")
	require.NoError(t, err)
	assert.Equal(t, identity.PublicID, identitySame.PublicID)
	assert.Equal(t, token.ID, tokenSame.ID, "fresh token must be reused")
}

func TestChatURL_Shape(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	url, identity, token, err := f.svc.ChatURL(ctx, "provider-1")
	require.NoError(t, err)
	assert.Equal(t,
		"https://chat.example.com/c/"+identity.PublicID+"?t="+token.Value, url)
	assert.False(t, strings.Contains(url, "provider-1"), "internal id must not leak into the url")
}

func TestValidateAndConsume_CreatesSessionOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	identity, token, err := f.svc.InitializeProvider(ctx, "provider-1")
	require.NoError(t, err)

	session, err := f.svc.ValidateAndConsume(ctx, identity.PublicID, token.Value)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "provider-1", session.ProviderID)
	assert.Equal(t, token.ID, session.TokenID)
	assert.Equal(t, 1, f.conversations.count())

	// re-validation is idempotent: same session, no new conversation
	again, err := f.svc.ValidateAndConsume(ctx, identity.PublicID, token.Value)
	require.NoError(t, err)
	assert.Equal(t, session.ID, again.ID)
	assert.Equal(t, session.ConversationID, again.ConversationID)
	assert.Equal(t, 1, f.conversations.count())
}

func TestValidateAndConsume_UnknownPublicID(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.ValidateAndConsume(context.Background(), "nope", "whatever")
	assert.Equal(t, errors.CodeProviderNotFound, errors.CodeOf(err))
	assert.True(t, errors.IsLinkFailure(err))
}

func TestValidateAndConsume_UnknownToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	identity, _, err := f.svc.InitializeProvider(ctx, "provider-1")
	require.NoError(t, err)

	_, err = f.svc.ValidateAndConsume(ctx, identity.PublicID, "bogus")
	assert.Equal(t, errors.CodeTokenNotFound, errors.CodeOf(err))
	assert.Zero(t, f.conversations.count())
}

func TestValidateAndConsume_SupersededToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	identity, old, err := f.svc.InitializeProvider(ctx, "provider-1")
	require.NoError(t, err)

	fresh, _, err := f.svc.ForceRegenerate(ctx, "provider-1", "origin-1")
	require.NoError(t, err)
	require.NotEqual(t, old.Value, fresh.Value)

	_, err = f.svc.ValidateAndConsume(ctx, identity.PublicID, old.Value)
	assert.Equal(t, errors.CodeTokenSuperseded, errors.CodeOf(err))

	// the replacement works and opens a new conversation
	session, err := f.svc.ValidateAndConsume(ctx, identity.PublicID, fresh.Value)
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, session.TokenID)
}

func TestValidateAndConsume_ExpiredBeforeSweep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(o *Options) { o.TokenTTL = -time.Minute })

	identity, token, err := f.svc.InitializeProvider(ctx, "provider-1")
	require.NoError(t, err)

	_, err = f.svc.ValidateAndConsume(ctx, identity.PublicID, token.Value)
	assert.Equal(t, errors.CodeTokenExpired, errors.CodeOf(err))
	assert.Zero(t, f.conversations.count(), "no conversation for an expired token")
}

func TestValidateAndConsume_ConversationStoreDown(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	identity, token, err := f.svc.InitializeProvider(ctx, "provider-1")
	require.NoError(t, err)

	f.conversations.fail = true
	_, err = f.svc.ValidateAndConsume(ctx, identity.PublicID, token.Value)
	assert.Equal(t, errors.CodeConversationUnavailable, errors.CodeOf(err))

	// the token survived the outage and works once the store is back
	f.conversations.fail = false
	session, err := f.svc.ValidateAndConsume(ctx, identity.PublicID, token.Value)
	require.NoError(t, err)
	assert.Equal(t, token.ID, session.TokenID)
}

func TestValidateAndConsume_ConcurrentOpensShareOneSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	identity, token, err := f.svc.InitializeProvider(ctx, "provider-1")
	require.NoError(t, err)

	const goroutines = 50
	sessions := make([]*models.ChatSession, goroutines)
	var failures int64
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(i int) {
			defer wg.Done()
			session, err := f.svc.ValidateAndConsume(ctx, identity.PublicID, token.Value)
			if err != nil {
				atomic.AddInt64(&failures, 1)
				return
			}
			sessions[i] = session
		}(i)
	}
	wg.Wait()

	require.Zero(t, failures)
	first := sessions[0]
	require.NotNil(t, first)
	for i, s := range sessions {
		require.NotNil(t, s, "goroutine %d got no session", i)
		assert.Equal(t, first.ID, s.ID, "all opens must share one session")
		assert.Equal(t, first.ConversationID, s.ConversationID)
	}
}

func TestForceRegenerate_RateLimited(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.limiter.allowed = false
	f.limiter.retryAfter = 3 * time.Minute

	_, _, err := f.svc.ForceRegenerate(ctx, "provider-1", "origin-1")
	require.Error(t, err)
	assert.Equal(t, errors.CodeRateLimited, errors.CodeOf(err))

	appErr, ok := errors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 3*time.Minute, appErr.RetryAfter())
}

func TestForceRegenerate_PublishesDispatchEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	token, url, err := f.svc.ForceRegenerate(ctx, "provider-1", "origin-1")
	require.NoError(t, err)
	require.NotNil(t, token)

	events := f.dispatcher.all()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, "provider-1", last.ProviderID)
	assert.Equal(t, "regenerate", last.Reason)
	assert.Equal(t, token.Value, last.TokenValue)
	assert.Equal(t, url, last.ChatURL)
}

func TestCurrentToken_ReadOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, _, err := f.svc.InitializeProvider(ctx, "provider-1")
	require.NoError(t, err)

	token, url, err := f.svc.CurrentToken(ctx, "provider-1")
	require.NoError(t, err)
	assert.Contains(t, url, token.Value)

	// unchanged on repeat read
	tokenAgain, _, err := f.svc.CurrentToken(ctx, "provider-1")
	require.NoError(t, err)
	assert.Equal(t, token.ID, tokenAgain.ID)
}

func TestCurrentToken_NoneIssued(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.svc.EnsureProviderIdentity(ctx, "provider-1")
	require.NoError(t, err)

	_, _, err = f.svc.CurrentToken(ctx, "provider-1")
	assert.Equal(t, errors.CodeTokenNotFound, errors.CodeOf(err))
}

func TestCleanupExpired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(o *Options) { o.TokenTTL = -time.Minute })

	_, _, err := f.svc.InitializeProvider(ctx, "provider-1")
	require.NoError(t, err)

	count, err := f.svc.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	count, err = f.svc.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "second sweep finds nothing")
}

func TestValidateSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	identity, token, err := f.svc.InitializeProvider(ctx, "provider-1")
	require.NoError(t, err)
	session, err := f.svc.ValidateAndConsume(ctx, identity.PublicID, token.Value)
	require.NoError(t, err)

	got, err := f.svc.ValidateSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ProviderID, got.ProviderID)
	assert.Equal(t, session.ConversationID, got.ConversationID)

	stored, err := f.store.Sessions().FindByID(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, stored.LastValidatedAt.Before(session.LastValidatedAt))
}

func TestValidateSession_NotFound(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.ValidateSession(context.Background(), "missing")
	assert.Equal(t, errors.CodeSessionNotFound, errors.CodeOf(err))
}

func TestTokenStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, _, err := f.svc.InitializeProvider(ctx, "provider-1")
	require.NoError(t, err)
	_, _, err = f.svc.ForceRegenerate(ctx, "provider-1", "origin-1")
	require.NoError(t, err)

	stats, err := f.svc.TokenStats(ctx, "provider-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.IssuedCount)
	assert.EqualValues(t, 1, stats.SupersededCount)
	require.NotNil(t, stats.LastIssuedAt)
	assert.False(t, stats.LastIssuedAt.After(time.Now().UTC()))
}

// doubleIssuedRepo wraps the real repo and fakes a corrupted store where two
// tokens are issued at once.
type doubleIssuedRepo struct {
	repository.TokenRepository
}

func (r *doubleIssuedRepo) FindIssuedByProvider(ctx context.Context, providerID string) ([]*models.ChatToken, error) {
	a := models.NewChatToken(providerID, "a", time.Hour)
	b := models.NewChatToken(providerID, "b", time.Hour)
	return []*models.ChatToken{a, b}, nil
}

func TestCurrentToken_InvariantViolationIsLoud(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	f := newFixture(t, func(o *Options) {
		o.Providers = store.Providers()
		o.Tokens = &doubleIssuedRepo{TokenRepository: store.Tokens()}
		o.Sessions = store.Sessions()
	})

	_, err := f.svc.EnsureProviderIdentity(ctx, "provider-1")
	require.NoError(t, err)

	_, _, err = f.svc.CurrentToken(ctx, "provider-1")
	assert.Equal(t, errors.CodeInvariantViolation, errors.CodeOf(err))
}
