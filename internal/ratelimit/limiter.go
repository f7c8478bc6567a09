// Package ratelimit throttles login and password-reset requests per client.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// ErrRedisUnavailable wraps Redis failures.
var ErrRedisUnavailable = errors.New("rate limiter backend unavailable")

// Limiter decides whether one more request for key fits in the budget.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisLimiter is a fixed-window counter shared by every instance: INCR the key and
// set its TTL on the first hit of the window.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
	max    int64
	window time.Duration
}

// NewRedisLimiter allows max requests per window for each key.
func NewRedisLimiter(client redis.UniversalClient, prefix string, max int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix, max: int64(max), window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	k := l.prefix + key
	count, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return count <= l.max, nil
}

// MemoryLimiter is a per-process token bucket per key, for single-instance
// deployments without Redis. Idle buckets are dropped after idleTTL.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewMemoryLimiter allows bursts of max requests, refilled evenly over window.
func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	if max <= 0 {
		max = 1
	}
	return &MemoryLimiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Every(window / time.Duration(max)),
		burst:   max,
		idleTTL: 2 * window,
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		l.prune(now)
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1), nil
}

func (l *MemoryLimiter) prune(now time.Time) {
	for k, b := range l.buckets {
		if now.Sub(b.seen) > l.idleTTL {
			delete(l.buckets, k)
		}
	}
}

// Noop allows everything. Used when rate limiting is disabled.
type Noop struct{}

func (Noop) Allow(context.Context, string) (bool, error) { return true, nil }
