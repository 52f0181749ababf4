// Package ratelimit bounds how fast one client may open view sessions.
// Limits are kept in process or, when several portal instances share a
// Redis, in Redis.
package ratelimit

import (
	"context"
	"time"
)

// RateLimiter defines the interface for rate limiting implementations
type RateLimiter interface {
	// Allow consumes one request for key and reports the resulting state
	Allow(ctx context.Context, key string) (*RateLimitInfo, error)
}

// RateLimitInfo contains information about the current rate limit state
type RateLimitInfo struct {
	// Limit is the maximum number of requests allowed in the window
	Limit int
	// Remaining is the number of requests remaining in the current window
	Remaining int
	// ResetAt is when the next request becomes available
	ResetAt time.Time
	// Allowed indicates whether the request should be allowed
	Allowed bool
}

// RetryAfter returns how long a rejected client should wait
func (i *RateLimitInfo) RetryAfter(now time.Time) time.Duration {
	if i.Allowed || !i.ResetAt.After(now) {
		return 0
	}
	return i.ResetAt.Sub(now)
}
