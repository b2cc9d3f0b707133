package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmirchev92/server-maystorfix-sub010/pkg/constants"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/logger"
)

type fakeLock struct {
	mu       sync.Mutex
	grant    bool
	acquires int
	releases int
}

func (l *fakeLock) TryAcquire(context.Context, time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquires++
	return l.grant, nil
}

func (l *fakeLock) Release(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.releases++
	return nil
}

func TestSweeper_ExpiresStaleTokens(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(o *Options) { o.TokenTTL = -time.Minute })

	identity, token, err := f.svc.InitializeProvider(ctx, "provider-1")
	require.NoError(t, err)

	lock := &fakeLock{grant: true}
	sweeper := NewSweeper(f.svc, lock, 10*time.Millisecond, time.Second, logger.NewNoop())

	runCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_ = sweeper.Run(runCtx)

	stale, err := f.store.Tokens().FindByValue(ctx, identity.ProviderID, token.Value)
	require.NoError(t, err)
	assert.Equal(t, constants.TokenStateExpired, stale.State)
	assert.Greater(t, lock.acquires, 0)
	assert.Equal(t, lock.acquires, lock.releases)
}

func TestSweeper_SkipsWhenNotLeader(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(o *Options) { o.TokenTTL = -time.Minute })

	identity, token, err := f.svc.InitializeProvider(ctx, "provider-1")
	require.NoError(t, err)

	lock := &fakeLock{grant: false}
	sweeper := NewSweeper(f.svc, lock, 10*time.Millisecond, time.Second, logger.NewNoop())

	runCtx, cancel := context.WithTimeout(ctx, 60*time.Millisecond)
	defer cancel()
	_ = sweeper.Run(runCtx)

	// sweep never ran, the stale token is untouched
	stale, err := f.store.Tokens().FindByValue(ctx, identity.ProviderID, token.Value)
	require.NoError(t, err)
	assert.Equal(t, constants.TokenStateIssued, stale.State)
	assert.Zero(t, lock.releases)
}
