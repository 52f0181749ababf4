package fetch

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hippocampushub/hubportal/internal/metrics"
	"github.com/hippocampushub/hubportal/internal/web/cache"
)

// Source loads the raw bytes of a resource path
type Source interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// StatusError is returned by HTTPSource for non-2xx responses
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// maxBodySize caps a single payload read
const maxBodySize = 64 << 20

// HTTPSource fetches resources relative to a base URL
type HTTPSource struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPSource creates an HTTP source with a client using timeout
func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

// Fetch implements Source
func (s *HTTPSource) Fetch(ctx context.Context, path string) ([]byte, error) {
	u := s.BaseURL + "/" + strings.TrimLeft(path, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: u, StatusCode: resp.StatusCode}
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
}

// FSSource reads resources from a file system, such as a data directory
// (os.DirFS) or the embedded sample assets
type FSSource struct {
	FS fs.FS
}

// Fetch implements Source
func (s *FSSource) Fetch(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, err := url.PathUnescape(strings.TrimLeft(path, "/"))
	if err != nil {
		return nil, err
	}
	if !fs.ValidPath(name) {
		return nil, fmt.Errorf("read %s: %w", name, fs.ErrInvalid)
	}
	return fs.ReadFile(s.FS, name)
}

// CachedSource is a read-through cache in front of another source. Only
// successful reads are cached.
type CachedSource struct {
	next   Source
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedSource wraps next with c. Entries expire after ttl.
func NewCachedSource(next Source, c cache.Cache, ttl time.Duration, logger *zap.Logger) *CachedSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedSource{next: next, cache: c, ttl: ttl, logger: logger}
}

// Fetch implements Source
func (s *CachedSource) Fetch(ctx context.Context, path string) ([]byte, error) {
	key := cache.PayloadKey(path)

	data, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		metrics.CounterCache.WithLabelValues("hit").Inc()
		return data, nil
	case cache.IsCacheMiss(err):
		metrics.CounterCache.WithLabelValues("miss").Inc()
	default:
		// a broken cache must not hide the data
		metrics.CounterCache.WithLabelValues("error").Inc()
		s.logger.Warn("payload cache read failed", zap.String("path", path), zap.Error(err))
	}

	data, err = s.next.Fetch(ctx, path)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
		s.logger.Warn("payload cache write failed", zap.String("path", path), zap.Error(err))
	}
	return data, nil
}
