// Package cache stores raw payload bytes for the fetch layer. Backends are an
// in-process map and Redis.
package cache

import (
	"context"
	"errors"
	"time"
)

// Cache is a byte cache with per-entry TTL
type Cache interface {
	// Get returns the value for key or an ErrCacheMiss
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. A zero ttl uses the backend default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key
	Delete(ctx context.Context, key string) error

	// Clear removes every key under the backend prefix
	Clear(ctx context.Context) error

	// Exists reports whether key is present and not expired
	Exists(ctx context.Context, key string) (bool, error)
}

// CacheConfig holds settings shared by all backends
type CacheConfig struct {
	// DefaultTTL applies when Set is called with a zero ttl
	DefaultTTL time.Duration
	// Prefix namespaces every key of this process
	Prefix string
}

// DefaultCacheConfig returns the payload cache defaults
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		DefaultTTL: 10 * time.Minute,
		Prefix:     "hubportal:",
	}
}

// ErrCacheMiss is returned when a key is absent or expired
type ErrCacheMiss struct {
	Key string
}

func (e ErrCacheMiss) Error() string {
	return "cache miss: " + e.Key
}

// IsCacheMiss reports whether err is, or wraps, an ErrCacheMiss
func IsCacheMiss(err error) bool {
	var miss ErrCacheMiss
	return errors.As(err, &miss)
}
