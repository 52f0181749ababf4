package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache shares payloads between portal replicas
type RedisCache struct {
	client *redis.Client
	config CacheConfig
}

// RedisConfig holds the Redis connection settings
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	CacheConfig CacheConfig
}

// DefaultRedisConfig returns a config for a local Redis
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:        "localhost:6379",
		CacheConfig: DefaultCacheConfig(),
	}
}

// NewRedisCache connects to Redis and pings it. The ping is bounded by
// a five second timeout on top of ctx.
func NewRedisCache(ctx context.Context, config RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s: %w", config.Addr, err)
	}

	return NewRedisCacheWithClient(client, config.CacheConfig), nil
}

// NewRedisCacheWithClient wraps an existing client
func NewRedisCacheWithClient(client *redis.Client, config CacheConfig) *RedisCache {
	return &RedisCache{client: client, config: config}
}

// Get implements Cache
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, r.config.Prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss{Key: key}
	}
	return value, err
}

// Set implements Cache. A negative ttl stores the value without expiry.
func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = r.config.DefaultTTL
	}
	if ttl < 0 {
		ttl = 0
	}
	return r.client.Set(ctx, r.config.Prefix+key, value, ttl).Err()
}

// Delete implements Cache
func (r *RedisCache) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.config.Prefix+key).Err()
}

// Clear deletes every key under the prefix, scanning in batches
func (r *RedisCache) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.config.Prefix+"*", 100).Iterator()
	batch := make([]string, 0, 100)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := r.client.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return r.client.Del(ctx, batch...).Err()
	}
	return nil
}

// Exists implements Cache
func (r *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.config.Prefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close closes the client
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// Client returns the underlying client, for components sharing the connection
func (r *RedisCache) Client() *redis.Client {
	return r.client
}
