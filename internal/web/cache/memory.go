package cache

import (
	"context"
	"sync"
	"time"
)

// sweepInterval is how often expired entries are dropped
const sweepInterval = time.Minute

// MemoryCache keeps payloads in process. It is the default backend when no
// Redis address is configured.
type MemoryCache struct {
	data   sync.Map
	config CacheConfig
	cancel context.CancelFunc
	now    func() time.Time
}

type entry struct {
	value   []byte
	expires time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

// NewMemoryCache creates a memory cache with the default config
func NewMemoryCache() *MemoryCache {
	return NewMemoryCacheWithConfig(DefaultCacheConfig())
}

// NewMemoryCacheWithConfig creates a memory cache and starts its sweeper.
// Call Close to stop the sweeper.
func NewMemoryCacheWithConfig(config CacheConfig) *MemoryCache {
	ctx, cancel := context.WithCancel(context.Background())
	m := &MemoryCache{
		config: config,
		cancel: cancel,
		now:    time.Now,
	}
	go m.sweep(ctx)
	return m
}

// Get implements Cache
func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full := m.config.Prefix + key
	v, ok := m.data.Load(full)
	if !ok {
		return nil, ErrCacheMiss{Key: key}
	}
	e := v.(entry)
	if e.expired(m.now()) {
		m.data.Delete(full)
		return nil, ErrCacheMiss{Key: key}
	}
	return e.value, nil
}

// Set implements Cache. A negative ttl stores the value without expiry.
func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if ttl == 0 {
		ttl = m.config.DefaultTTL
	}
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.data.Store(m.config.Prefix+key, e)
	return nil
}

// Delete implements Cache
func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.data.Delete(m.config.Prefix + key)
	return nil
}

// Clear implements Cache
func (m *MemoryCache) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.data.Range(func(k, _ any) bool {
		m.data.Delete(k)
		return true
	})
	return nil
}

// Exists implements Cache
func (m *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	_, err := m.Get(ctx, key)
	if IsCacheMiss(err) {
		return false, nil
	}
	return err == nil, err
}

// Len returns the number of stored entries, expired ones included until swept
func (m *MemoryCache) Len() int {
	n := 0
	m.data.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Close stops the sweeper
func (m *MemoryCache) Close() error {
	if m.cancel != nil {
		m.cancel()
	}
	return nil
}

func (m *MemoryCache) sweep(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.removeExpired()
		}
	}
}

func (m *MemoryCache) removeExpired() {
	now := m.now()
	m.data.Range(func(k, v any) bool {
		if v.(entry).expired(now) {
			m.data.Delete(k)
		}
		return true
	})
}
