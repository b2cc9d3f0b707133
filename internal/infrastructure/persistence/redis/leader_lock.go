package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dmirchev92/server-maystorfix-sub010/internal/domain/service"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/constants"
)

// releaseScript deletes the lock only when this instance still holds it.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// LeaderLock is a best-effort SET NX EX lock keyed per deployment. The sweep
// stays correct without it; holding the lock only avoids duplicate work.
type LeaderLock struct {
	conn  *Connection
	key   string
	owner string
}

// NewLeaderLock creates the sweep leader lock.
func NewLeaderLock(conn *Connection) service.LeaderLock {
	return &LeaderLock{
		conn:  conn,
		key:   constants.SweepLeaderKey,
		owner: uuid.NewString(),
	}
}

func (l *LeaderLock) TryAcquire(ctx context.Context, ttl time.Duration) (bool, error) {
	return l.conn.Client().SetNX(ctx, l.key, l.owner, ttl).Result()
}

func (l *LeaderLock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.conn.Client(), []string{l.key}, l.owner).Err()
}
