package commands

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hippocampushub/hubportal/assets"
	"github.com/hippocampushub/hubportal/internal/cli/config"
	"github.com/hippocampushub/hubportal/internal/fetch"
	"github.com/hippocampushub/hubportal/internal/history"
	"github.com/hippocampushub/hubportal/internal/logging"
	"github.com/hippocampushub/hubportal/internal/views"
	"github.com/hippocampushub/hubportal/internal/web/cache"
	"github.com/hippocampushub/hubportal/internal/web/ratelimit"
)

// app holds the components built from the configuration. Closers run in
// reverse order of construction.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	catalog *views.Catalog
	data    fs.FS
	cache   cache.Cache
	redis   *redis.Client
	fetcher *fetch.Fetcher
	closers []func() error
}

// loadConfig reads the file named by --config, if any
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

// newApp loads the configuration and builds the logger, the view catalog
// and the fetch pipeline
func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	a.onClose(func() error {
		_ = logger.Sync()
		return nil
	})

	if err := a.buildCatalog(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildFetcher(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases every component
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close", zap.Error(err))
		}
	}
	a.closers = nil
}

func (a *app) buildCatalog() error {
	indexFS := assets.Index()
	if a.cfg.Index.Dir != "" {
		indexFS = os.DirFS(a.cfg.Index.Dir)
	}

	idx, err := views.LoadIndexes(indexFS)
	if err != nil {
		return fmt.Errorf("load indexes: %w", err)
	}
	catalog, err := views.Builtin(idx)
	if err != nil {
		return fmt.Errorf("build view catalog: %w", err)
	}
	a.catalog = catalog
	return nil
}

// buildFetcher picks the payload source (remote base URL, data directory or
// the embedded samples) and puts the payload cache in front of it
func (a *app) buildFetcher(ctx context.Context) error {
	var source fetch.Source
	switch {
	case a.cfg.Data.BaseURL != "":
		source = fetch.NewHTTPSource(a.cfg.Data.BaseURL, a.cfg.Data.Timeout)
	case a.cfg.Data.Dir != "":
		a.data = os.DirFS(a.cfg.Data.Dir)
		source = &fetch.FSSource{FS: a.data}
	default:
		a.data = assets.Data()
		source = &fetch.FSSource{FS: a.data}
	}

	cacheConfig := cache.CacheConfig{DefaultTTL: a.cfg.Cache.TTL, Prefix: a.cfg.Cache.Prefix}
	switch a.cfg.Cache.Backend {
	case config.CacheMemory:
		mc := cache.NewMemoryCacheWithConfig(cacheConfig)
		a.onClose(mc.Close)
		a.cache = mc
	case config.CacheRedis:
		client, err := a.redisClient(ctx)
		if err != nil {
			return err
		}
		a.cache = cache.NewRedisCacheWithClient(client, cacheConfig)
	}
	if a.cache != nil {
		source = fetch.NewCachedSource(source, a.cache, a.cfg.Cache.TTL, a.logger)
	}

	a.fetcher = fetch.New(source,
		fetch.WithLogger(a.logger),
		fetch.WithConcurrency(a.cfg.Data.Concurrency),
	)
	return nil
}

// redisClient connects to cache.redis once; the payload cache and the rate
// limiter share the client
func (a *app) redisClient(ctx context.Context) (*redis.Client, error) {
	if a.redis != nil {
		return a.redis, nil
	}

	rc := a.cfg.Cache.Redis
	c, err := cache.NewRedisCache(ctx, cache.RedisConfig{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
	if err != nil {
		return nil, err
	}
	a.onClose(c.Close)
	a.redis = c.Client()
	return a.redis, nil
}

// history opens the configured navigation store, or a no-op recorder
func (a *app) history(ctx context.Context) (history.Recorder, error) {
	if !a.cfg.History.Enabled {
		return history.Nop{}, nil
	}
	store, err := history.Open(ctx, a.cfg.History.Driver, a.cfg.History.DSN)
	if err != nil {
		return nil, err
	}
	a.onClose(store.Close)
	return store, nil
}

// limiter builds the session creation rate limiter, nil when disabled
func (a *app) limiter(ctx context.Context) (ratelimit.RateLimiter, error) {
	rl := a.cfg.RateLimit
	if !rl.Enabled {
		return nil, nil
	}

	if rl.Backend == config.CacheRedis {
		client, err := a.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		return ratelimit.NewRedisRateLimiter(ratelimit.RedisRateLimiterConfig{
			Client: client,
			Limit:  rl.Limit,
			Window: rl.Window,
			Prefix: a.cfg.Cache.Prefix + "ratelimit:",
		})
	}

	tb := ratelimit.NewTokenBucket(ratelimit.TokenBucketConfig{
		Capacity:        rl.Limit,
		Window:          rl.Window,
		CleanupInterval: rl.Window,
	})
	a.onClose(tb.Close)
	return tb, nil
}

// view looks name up, suggesting close names when it is unknown
func (a *app) view(w io.Writer, name string, noColor bool) (*views.View, error) {
	v, err := a.catalog.Get(name)
	if err != nil {
		writeViewNotFound(w, name, a.catalog.Names(), noColor)
		return nil, err
	}
	return v, nil
}
