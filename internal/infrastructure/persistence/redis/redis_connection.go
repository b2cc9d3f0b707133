// Package redis manages the Redis connection used for rate limiting state
// and the sweep leader lock.
package redis

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dmirchev92/server-maystorfix-sub010/internal/config"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/errors"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/logger"
)

// Connection wraps the go-redis client lifecycle.
type Connection struct {
	client *goredis.Client
	logger logger.Logger
}

// NewConnection creates the client and verifies connectivity.
func NewConnection(ctx context.Context, cfg *config.RedisConfig, log logger.Logger) (*Connection, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "failed to connect to redis")
	}

	log.Info(ctx, "redis connection established", logger.String("address", cfg.Address))
	return &Connection{client: client, logger: log}, nil
}

// NewConnectionFromClient wraps an existing client. Used by tests with miniredis.
func NewConnectionFromClient(client *goredis.Client, log logger.Logger) *Connection {
	return &Connection{client: client, logger: log}
}

// Client returns the underlying go-redis client.
func (c *Connection) Client() *goredis.Client {
	return c.client
}

// Ping verifies connectivity.
func (c *Connection) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "redis ping failed")
	}
	return nil
}

// Close releases the client.
func (c *Connection) Close() error {
	return c.client.Close()
}
