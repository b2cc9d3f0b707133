package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmirchev92/server-maystorfix-sub010/internal/domain/models"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/constants"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/errors"
)

func TestProviderRepo_SaveAndFind(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := store.Providers()

	identity := models.NewProviderIdentity("provider-1", "pub-abc")
	require.NoError(t, repo.Save(ctx, identity))

	byProvider, err := repo.FindByProviderID(ctx, "provider-1")
	require.NoError(t, err)
	assert.Equal(t, "pub-abc", byProvider.PublicID)

	byPublic, err := repo.FindByPublicID(ctx, "pub-abc")
	require.NoError(t, err)
	assert.Equal(t, "provider-1", byPublic.ProviderID)
}

func TestProviderRepo_PublicIDCollision(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Providers()

	require.NoError(t, repo.Save(ctx, models.NewProviderIdentity("provider-1", "pub-abc")))
	err := repo.Save(ctx, models.NewProviderIdentity("provider-2", "pub-abc"))
	assert.Equal(t, errors.CodeAllocationConflict, errors.CodeOf(err))
}

func TestProviderRepo_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Providers()

	_, err := repo.FindByPublicID(ctx, "missing")
	assert.Equal(t, errors.CodeProviderNotFound, errors.CodeOf(err))
}

func TestTokenRepo_MintSupersedesIssued(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Tokens()

	first := models.NewChatToken("provider-1", "v1", time.Hour)
	superseded, err := repo.Mint(ctx, first)
	require.NoError(t, err)
	assert.Zero(t, superseded)

	second := models.NewChatToken("provider-1", "v2", time.Hour)
	superseded, err = repo.Mint(ctx, second)
	require.NoError(t, err)
	assert.EqualValues(t, 1, superseded)

	old, err := repo.FindByValue(ctx, "provider-1", "v1")
	require.NoError(t, err)
	assert.Equal(t, constants.TokenStateSuperseded, old.State)

	issued, err := repo.FindIssuedByProvider(ctx, "provider-1")
	require.NoError(t, err)
	require.Len(t, issued, 1)
	assert.Equal(t, second.ID, issued[0].ID)
}

func TestTokenRepo_ConsumeAndBindSession(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	tokens := store.Tokens()
	sessions := store.Sessions()

	tok := models.NewChatToken("provider-1", "v1", time.Hour)
	_, err := tokens.Mint(ctx, tok)
	require.NoError(t, err)

	session := models.NewChatSession("provider-1", tok.ID, "conv-1")
	ok, err := tokens.ConsumeAndBindSession(ctx, tok.ID, session)
	require.NoError(t, err)
	require.True(t, ok)

	// second consume must lose the CAS
	ok, err = tokens.ConsumeAndBindSession(ctx, tok.ID, models.NewChatSession("provider-1", tok.ID, "conv-2"))
	require.NoError(t, err)
	assert.False(t, ok)

	bound, err := sessions.FindByTokenID(ctx, tok.ID)
	require.NoError(t, err)
	assert.Equal(t, "conv-1", bound.ConversationID)

	consumed, err := tokens.FindByValue(ctx, "provider-1", "v1")
	require.NoError(t, err)
	assert.Equal(t, constants.TokenStateConsumed, consumed.State)
	require.NotNil(t, consumed.ConsumedAt)
}

func TestTokenRepo_ConsumeIsExclusiveUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	tokens := store.Tokens()

	tok := models.NewChatToken("provider-1", "v1", time.Hour)
	_, err := tokens.Mint(ctx, tok)
	require.NoError(t, err)

	const goroutines = 50
	var wins int64
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			session := models.NewChatSession("provider-1", tok.ID, "conv")
			ok, err := tokens.ConsumeAndBindSession(ctx, tok.ID, session)
			require.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins, "exactly one consume must win")
}

func TestTokenRepo_ExpireIssuedBefore(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Tokens()

	stale := models.NewChatToken("provider-1", "old", -time.Hour)
	fresh := models.NewChatToken("provider-2", "new", time.Hour)
	_, err := repo.Mint(ctx, stale)
	require.NoError(t, err)
	_, err = repo.Mint(ctx, fresh)
	require.NoError(t, err)

	count, err := repo.ExpireIssuedBefore(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	// repeat run finds nothing
	count, err = repo.ExpireIssuedBefore(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, count)

	kept, err := repo.FindByValue(ctx, "provider-2", "new")
	require.NoError(t, err)
	assert.Equal(t, constants.TokenStateIssued, kept.State)
}

func TestSessionRepo_TouchLastValidated(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	tokens := store.Tokens()
	sessions := store.Sessions()

	tok := models.NewChatToken("provider-1", "v1", time.Hour)
	_, err := tokens.Mint(ctx, tok)
	require.NoError(t, err)

	session := models.NewChatSession("provider-1", tok.ID, "conv-1")
	ok, err := tokens.ConsumeAndBindSession(ctx, tok.ID, session)
	require.NoError(t, err)
	require.True(t, ok)

	later := time.Now().UTC().Add(time.Minute)
	require.NoError(t, sessions.TouchLastValidated(ctx, session.ID, later))

	got, err := sessions.FindByID(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, got.LastValidatedAt.Equal(later))
}

func TestTokenRepo_Stats(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	tokens := store.Tokens()

	first := models.NewChatToken("provider-1", "v1", time.Hour)
	_, err := tokens.Mint(ctx, first)
	require.NoError(t, err)
	second := models.NewChatToken("provider-1", "v2", time.Hour)
	_, err = tokens.Mint(ctx, second)
	require.NoError(t, err)

	ok, err := tokens.ConsumeAndBindSession(ctx, second.ID, models.NewChatSession("provider-1", second.ID, "conv"))
	require.NoError(t, err)
	require.True(t, ok)

	stats, err := tokens.Stats(ctx, "provider-1")
	require.NoError(t, err)
	assert.EqualValues(t, 0, stats.IssuedCount)
	assert.EqualValues(t, 1, stats.ConsumedCount)
	assert.EqualValues(t, 1, stats.SupersededCount)
	require.NotNil(t, stats.LastIssuedAt)
	assert.False(t, stats.LastIssuedAt.Before(first.CreatedAt))
	require.NotNil(t, stats.LastConsumedAt)
}
