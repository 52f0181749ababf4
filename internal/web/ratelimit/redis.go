package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindow trims entries older than the window, then admits the
// request if fewer than limit remain. Scores are unix milliseconds. It
// returns {allowed, count, oldest score}.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window_start = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local ttl_ms = tonumber(ARGV[4])
local member = ARGV[5]

redis.call('ZREMRANGEBYSCORE', key, 0, window_start)
local current = redis.call('ZCARD', key)
local allowed = 0
if current < limit then
	redis.call('ZADD', key, now, member)
	current = current + 1
	allowed = 1
end
redis.call('PEXPIRE', key, ttl_ms)

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local oldest_score = now
if oldest[2] then
	oldest_score = tonumber(oldest[2])
end
return {allowed, current, oldest_score}
`)

// RedisRateLimiter implements a Redis-backed sliding window rate limiter
type RedisRateLimiter struct {
	client redis.UniversalClient
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
	seq    atomic.Uint64
}

// RedisRateLimiterConfig holds configuration for the Redis rate limiter
type RedisRateLimiterConfig struct {
	// Client is the Redis client to use
	Client redis.UniversalClient
	// Limit is the maximum number of requests allowed in the window
	Limit int
	// Window is the time window for rate limiting
	Window time.Duration
	// Prefix is the key prefix for Redis keys
	Prefix string
}

// NewRedisRateLimiter creates a new Redis rate limiter
func NewRedisRateLimiter(config RedisRateLimiterConfig) (*RedisRateLimiter, error) {
	if config.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if config.Limit <= 0 {
		return nil, errors.New("limit must be greater than 0")
	}
	if config.Window <= 0 {
		return nil, errors.New("window must be greater than 0")
	}

	return &RedisRateLimiter{
		client: config.Client,
		limit:  config.Limit,
		window: config.Window,
		prefix: config.Prefix,
		now:    time.Now,
	}, nil
}

// Allow checks if a request should be allowed for the given key
func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (*RateLimitInfo, error) {
	now := r.now()
	nowMs := now.UnixMilli()
	// members must be unique even for requests in the same millisecond
	member := fmt.Sprintf("%d-%d", nowMs, r.seq.Add(1))

	res, err := slidingWindow.Run(ctx, r.client, []string{r.prefix + key},
		nowMs,
		now.Add(-r.window).UnixMilli(),
		r.limit,
		r.window.Milliseconds(),
		member,
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("redis rate limit check failed: %w", err)
	}
	if len(res) != 3 {
		return nil, errors.New("unexpected redis script result")
	}

	allowed, ok1 := res[0].(int64)
	count, ok2 := res[1].(int64)
	oldest, ok3 := res[2].(int64)
	if !ok1 || !ok2 || !ok3 {
		return nil, errors.New("unexpected redis script result")
	}

	info := &RateLimitInfo{
		Limit:     r.limit,
		Remaining: max(r.limit-int(count), 0),
		Allowed:   allowed == 1,
		ResetAt:   now,
	}
	if !info.Allowed {
		info.ResetAt = time.UnixMilli(oldest).Add(r.window)
	}
	return info, nil
}

// Reset removes all rate limit data for the given key
func (r *RedisRateLimiter) Reset(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}
