// Package limiter throttles how fast a single chat session may send
// messages, so one noisy tab cannot flood the storefront backend.
package limiter

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"storebot/pkg/log"
)

// RateLimiter rate limiter interface
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// KeyPrefix namespaces limiter keys in a shared Redis.
const KeyPrefix = "storebot:rate_limit:"

// slidingWindowScript keeps one sorted-set member per admitted request,
// scored by its timestamp in milliseconds.
var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])
	local member = ARGV[5]

	redis.call('ZREMRANGEBYSCORE', key, 0, window_start)

	local current = redis.call('ZCARD', key)
	if current < limit then
		redis.call('ZADD', key, now, member)
		redis.call('PEXPIRE', key, window_ms)
		return 1
	end
	return 0
`)

// SlidingWindowLimiter sliding window rate limiter using Redis. Shared by
// every API replica, so a session is limited no matter which one serves it.
type SlidingWindowLimiter struct {
	client redis.Scripter
	limit  int
	window time.Duration
	seq    atomic.Uint64
}

// NewSlidingWindowLimiter creates a new sliding window rate limiter
func NewSlidingWindowLimiter(client redis.Scripter, limit int, window time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Allow checks if the request is allowed
func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now().UnixMilli()
	windowStart := now - l.window.Milliseconds()
	// two sends in the same millisecond must be two members
	member := fmt.Sprintf("%d-%d", now, l.seq.Add(1))

	result, err := slidingWindowScript.Run(ctx, l.client,
		[]string{KeyPrefix + key},
		now,
		windowStart,
		l.limit,
		l.window.Milliseconds(),
		member).Int()
	if err != nil {
		return false, fmt.Errorf("sliding window %s: %w", key, err)
	}

	return result == 1, nil
}

// TokenBucketLimiter keeps one golang.org/x/time/rate bucket per key in
// process memory.
type TokenBucketLimiter struct {
	rate    rate.Limit
	burst   int
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// NewTokenBucketLimiter creates a new token bucket rate limiter
func NewTokenBucketLimiter(r rate.Limit, b int) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		rate:    r,
		burst:   b,
		buckets: make(map[string]*rate.Limiter),
	}
}

func (l *TokenBucketLimiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(l.rate, l.burst)
		l.buckets[key] = b
	}
	return b
}

// Allow checks if the request is allowed
func (l *TokenBucketLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return l.bucket(key).Allow(), nil
}

// AllowN checks if n requests are allowed
func (l *TokenBucketLimiter) AllowN(ctx context.Context, key string, n int) (bool, error) {
	return l.bucket(key).AllowN(time.Now(), n), nil
}

// Forget drops the bucket of key, e.g. when its session closes.
func (l *TokenBucketLimiter) Forget(key string) {
	l.mu.Lock()
	delete(l.buckets, key)
	l.mu.Unlock()
}

// FallbackLimiter asks Primary and, when it errors (Redis unreachable),
// answers from Secondary instead of failing the request.
type FallbackLimiter struct {
	Primary   RateLimiter
	Secondary RateLimiter
}

// Allow checks if the request is allowed
func (l *FallbackLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.Primary != nil {
		allowed, err := l.Primary.Allow(ctx, key)
		if err == nil {
			return allowed, nil
		}
		log.WithFields(log.Fields{
			"key":   key,
			"error": err.Error(),
		}).Warn("Primary rate limiter failed, using fallback")
	}
	return l.Secondary.Allow(ctx, key)
}

// SessionKey is the limiter key for sends within one chat session.
func SessionKey(sessionID string) string {
	return "session:" + sessionID
}
