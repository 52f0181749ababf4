package ratelimit

import (
	"context"
	"sync"
	"time"
)

// TokenBucket implements an in-memory token bucket rate limiter. Each key
// holds up to Capacity tokens, refilled continuously at Capacity per Window.
type TokenBucket struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	capacity int
	window   time.Duration
	now      func() time.Time

	cleanup *time.Ticker
	done    chan struct{}
	once    sync.Once
}

// bucket represents a single token bucket for a key
type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// TokenBucketConfig holds configuration for the token bucket rate limiter
type TokenBucketConfig struct {
	// Capacity is the maximum number of tokens in the bucket
	Capacity int
	// Window is the time needed to refill an empty bucket
	Window time.Duration
	// CleanupInterval is how often to drop idle buckets; zero disables it
	CleanupInterval time.Duration
}

// DefaultTokenBucketConfig allows 30 sessions per minute per client
func DefaultTokenBucketConfig() TokenBucketConfig {
	return TokenBucketConfig{
		Capacity:        30,
		Window:          time.Minute,
		CleanupInterval: 5 * time.Minute,
	}
}

// NewTokenBucket creates a token bucket rate limiter
func NewTokenBucket(config TokenBucketConfig) *TokenBucket {
	if config.Capacity <= 0 {
		config.Capacity = DefaultTokenBucketConfig().Capacity
	}
	if config.Window <= 0 {
		config.Window = DefaultTokenBucketConfig().Window
	}

	tb := &TokenBucket{
		buckets:  make(map[string]*bucket),
		capacity: config.Capacity,
		window:   config.Window,
		now:      time.Now,
		done:     make(chan struct{}),
	}

	if config.CleanupInterval > 0 {
		tb.cleanup = time.NewTicker(config.CleanupInterval)
		go tb.cleanupLoop()
	}

	return tb
}

// Allow checks if a request should be allowed for the given key
func (tb *TokenBucket) Allow(ctx context.Context, key string) (*RateLimitInfo, error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	b, ok := tb.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(tb.capacity), lastRefill: now}
		tb.buckets[key] = b
	}

	perToken := tb.window / time.Duration(tb.capacity)
	if elapsed := now.Sub(b.lastRefill); elapsed > 0 {
		b.tokens += float64(tb.capacity) * elapsed.Seconds() / tb.window.Seconds()
		if b.tokens > float64(tb.capacity) {
			b.tokens = float64(tb.capacity)
		}
		b.lastRefill = now
	}

	info := &RateLimitInfo{Limit: tb.capacity, ResetAt: now}
	if b.tokens >= 1 {
		b.tokens--
		info.Allowed = true
	}
	info.Remaining = int(b.tokens)
	if b.tokens < 1 {
		info.ResetAt = now.Add(time.Duration((1 - b.tokens) * float64(perToken)))
	}
	return info, nil
}

// cleanupLoop removes buckets that have refilled completely
func (tb *TokenBucket) cleanupLoop() {
	for {
		select {
		case <-tb.cleanup.C:
			tb.cleanupIdle()
		case <-tb.done:
			return
		}
	}
}

func (tb *TokenBucket) cleanupIdle() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	for key, b := range tb.buckets {
		if now.Sub(b.lastRefill) > tb.window {
			delete(tb.buckets, key)
		}
	}
}

// Close stops the cleanup goroutine
func (tb *TokenBucket) Close() error {
	tb.once.Do(func() {
		close(tb.done)
		if tb.cleanup != nil {
			tb.cleanup.Stop()
		}
	})
	return nil
}
