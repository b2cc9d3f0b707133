package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/dmirchev92/server-maystorfix-sub010/internal/domain/service"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/constants"
)

// LocalRateLimiter serves the memory storage driver, where no Redis is
// assumed. Single instance only.
type LocalRateLimiter struct {
	buckets *localBuckets
}

// NewLocalRateLimiter creates the in-process limiter.
func NewLocalRateLimiter(policies map[constants.RateLimitScope]Policy) *LocalRateLimiter {
	return &LocalRateLimiter{buckets: newLocalBuckets(policies)}
}

// Allow consumes one unit for the key within the scope.
func (l *LocalRateLimiter) Allow(_ context.Context, scope constants.RateLimitScope, key string) (service.Decision, error) {
	return l.buckets.allow(scope, key, time.Now().UTC()), nil
}

// localBuckets is the per-instance fallback used when Redis is down. Each
// key gets a token bucket refilled at limit-per-window; counts are not
// shared across instances.
type localBuckets struct {
	mu       sync.Mutex
	policies map[constants.RateLimitScope]Policy
	buckets  map[string]*bucket
}

type bucket struct {
	tokens   float64
	lastFill time.Time
}

func newLocalBuckets(policies map[constants.RateLimitScope]Policy) *localBuckets {
	return &localBuckets{
		policies: policies,
		buckets:  make(map[string]*bucket),
	}
}

func (l *localBuckets) allow(scope constants.RateLimitScope, key string, now time.Time) service.Decision {
	policy, ok := l.policies[scope]
	if !ok {
		return service.Decision{Allowed: true}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	id := string(scope) + ":" + key
	b, ok := l.buckets[id]
	if !ok {
		b = &bucket{tokens: float64(policy.Limit), lastFill: now}
		l.buckets[id] = b
	}

	refillRate := float64(policy.Limit) / policy.Window.Seconds()
	elapsed := now.Sub(b.lastFill).Seconds()
	b.tokens += elapsed * refillRate
	if b.tokens > float64(policy.Limit) {
		b.tokens = float64(policy.Limit)
	}
	b.lastFill = now

	if b.tokens < 1 {
		wait := time.Duration((1 - b.tokens) / refillRate * float64(time.Second))
		return service.Decision{
			Allowed:    false,
			RetryAfter: wait,
			ResetAt:    now.Add(wait),
		}
	}

	b.tokens--
	return service.Decision{
		Allowed:   true,
		Remaining: int(b.tokens),
		ResetAt:   now.Add(policy.Window),
	}
}
