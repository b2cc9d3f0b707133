// Package ratelimit throttles token regeneration and the public validation
// endpoint. The precise quota lives in Redis as a sliding window so every
// service instance sees the same counts; a local token bucket takes over
// when Redis is unreachable so the service degrades instead of failing.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dmirchev92/server-maystorfix-sub010/internal/domain/service"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/constants"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/logger"
)

// slidingWindowScript trims entries older than the window, counts the rest,
// and records the new hit only when under the limit. Returns {allowed, count,
// oldest} where oldest is the score of the earliest surviving entry.
var slidingWindowScript = goredis.NewScript(`
local key = KEYS[1]
local now_us = tonumber(ARGV[1])
local window_us = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call("ZREMRANGEBYSCORE", key, 0, now_us - window_us)
local count = redis.call("ZCARD", key)
if count >= limit then
    local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
    return {0, count, tonumber(oldest[2])}
end
redis.call("ZADD", key, now_us, now_us .. "-" .. math.random(1000000))
redis.call("PEXPIRE", key, math.ceil(window_us / 1000))
return {1, count + 1, 0}
`)

// Policy describes one scope's quota.
type Policy struct {
	Limit  int
	Window time.Duration
}

// RedisRateLimiter implements RateLimitService on a Redis sliding window.
type RedisRateLimiter struct {
	client   *goredis.Client
	policies map[constants.RateLimitScope]Policy
	fallback *localBuckets
	logger   logger.Logger
	now      func() time.Time
}

// NewRedisRateLimiter creates the limiter with per-scope policies.
func NewRedisRateLimiter(client *goredis.Client, policies map[constants.RateLimitScope]Policy, log logger.Logger) service.RateLimitService {
	return &RedisRateLimiter{
		client:   client,
		policies: policies,
		fallback: newLocalBuckets(policies),
		logger:   log.WithComponent("rate_limiter"),
		now:      time.Now,
	}
}

// Allow consumes one unit for the key within the scope. On Redis failure the
// decision falls back to the local bucket, which is per instance and
// therefore looser than the shared window.
func (r *RedisRateLimiter) Allow(ctx context.Context, scope constants.RateLimitScope, key string) (service.Decision, error) {
	policy, ok := r.policies[scope]
	if !ok {
		return service.Decision{Allowed: true}, nil
	}

	now := r.now().UTC()
	redisKey := fmt.Sprintf("%s:%s:%s", constants.RateLimitKeyPrefix, scope, key)

	res, err := slidingWindowScript.Run(ctx, r.client,
		[]string{redisKey},
		now.UnixMicro(),
		policy.Window.Microseconds(),
		policy.Limit,
	).Int64Slice()
	if err != nil {
		r.logger.Warn(ctx, "redis rate limit check failed, using local fallback",
			logger.String("scope", string(scope)),
			logger.Error(err),
		)
		return r.fallback.allow(scope, key, now), nil
	}
	if len(res) != 3 {
		return r.fallback.allow(scope, key, now), nil
	}

	allowed := res[0] == 1
	count := int(res[1])

	decision := service.Decision{Allowed: allowed}
	if allowed {
		decision.Remaining = policy.Limit - count
		decision.ResetAt = now.Add(policy.Window)
		return decision, nil
	}

	oldest := time.UnixMicro(res[2])
	decision.RetryAfter = oldest.Add(policy.Window).Sub(now)
	if decision.RetryAfter < 0 {
		decision.RetryAfter = time.Second
	}
	decision.ResetAt = now.Add(decision.RetryAfter)
	return decision, nil
}
