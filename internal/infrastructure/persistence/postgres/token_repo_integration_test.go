//go:build integration

package postgres

import (
	"context"
	"net/url"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/dmirchev92/server-maystorfix-sub010/internal/config"
	"github.com/dmirchev92/server-maystorfix-sub010/internal/domain/models"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/constants"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/logger"
)

func startPostgres(t *testing.T) *DBConnection {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("chat_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	connString, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	u, err := url.Parse(connString)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	password, _ := u.User.Password()

	cfg := &config.DatabaseConfig{
		Host:            u.Hostname(),
		Port:            port,
		User:            u.User.Username(),
		Password:        password,
		Database:        "chat_test",
		SSLMode:         "disable",
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: 10,
		MaxConnIdleTime: 5,
	}

	db, err := NewDBConnection(ctx, cfg, logger.NewNoop())
	require.NoError(t, err)
	t.Cleanup(db.Close)

	schema, err := os.ReadFile("migrations/001_init.sql")
	require.NoError(t, err)
	_, err = db.Pool().Exec(ctx, string(schema))
	require.NoError(t, err)

	return db
}

func TestTokenRepository_Postgres(t *testing.T) {
	ctx := context.Background()
	db := startPostgres(t)

	providers := NewProviderRepository(db, logger.NewNoop())
	tokens := NewTokenRepository(db, logger.NewNoop())
	sessions := NewSessionRepository(db, logger.NewNoop())

	require.NoError(t, providers.Save(ctx, models.NewProviderIdentity("provider-1", "pub-1")))

	t.Run("mint supersedes issued", func(t *testing.T) {
		first := models.NewChatToken("provider-1", "v1", time.Hour)
		superseded, err := tokens.Mint(ctx, first)
		require.NoError(t, err)
		assert.Zero(t, superseded)

		second := models.NewChatToken("provider-1", "v2", time.Hour)
		superseded, err = tokens.Mint(ctx, second)
		require.NoError(t, err)
		assert.EqualValues(t, 1, superseded)

		issued, err := tokens.FindIssuedByProvider(ctx, "provider-1")
		require.NoError(t, err)
		require.Len(t, issued, 1)
		assert.Equal(t, second.ID, issued[0].ID)
	})

	t.Run("concurrent consume admits exactly one session", func(t *testing.T) {
		tok := models.NewChatToken("provider-1", "v3", time.Hour)
		_, err := tokens.Mint(ctx, tok)
		require.NoError(t, err)

		const goroutines = 20
		var wins int64
		var mu sync.Mutex
		var wg sync.WaitGroup
		wg.Add(goroutines)
		for i := 0; i < goroutines; i++ {
			go func() {
				defer wg.Done()
				session := models.NewChatSession("provider-1", tok.ID, "conv-x")
				won, err := tokens.ConsumeAndBindSession(ctx, tok.ID, session)
				assert.NoError(t, err)
				if won {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.EqualValues(t, 1, wins)

		bound, err := sessions.FindByTokenID(ctx, tok.ID)
		require.NoError(t, err)
		assert.Equal(t, tok.ID, bound.TokenID)

		consumed, err := tokens.FindByValue(ctx, "provider-1", "v3")
		require.NoError(t, err)
		assert.Equal(t, constants.TokenStateConsumed, consumed.State)
	})

	t.Run("expire issued before cutoff", func(t *testing.T) {
		stale := models.NewChatToken("provider-1", "v4", -time.Hour)
		_, err := tokens.Mint(ctx, stale)
		require.NoError(t, err)

		count, err := tokens.ExpireIssuedBefore(ctx, time.Now().UTC())
		require.NoError(t, err)
		assert.EqualValues(t, 1, count)
	})
}
