package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hippocampushub/hubportal/internal/metrics"
	"github.com/hippocampushub/hubportal/internal/web/cache"
	"github.com/hippocampushub/hubportal/pkg/payload"
)

const bundleJSON = `{"values":[{"id":"psp-amplitude","bins":[1,2],"counts":[3,4]}]}`

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/data/ok.json":
			w.Write([]byte(bundleJSON))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL+"/data/", time.Second)

	data, err := src.Fetch(context.Background(), "ok.json")
	require.NoError(t, err)
	assert.JSONEq(t, bundleJSON, string(data))

	_, err = src.Fetch(context.Background(), "missing.json")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestFSSource(t *testing.T) {
	src := &FSSource{FS: fstest.MapFS{
		"by-name/a b.json": {Data: []byte(`{}`)},
	}}

	data, err := src.Fetch(context.Background(), "/by-name/a%20b.json")
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))

	_, err = src.Fetch(context.Background(), "by-name/..%2F..%2Fetc%2Fpasswd")
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Fetch(ctx, "by-name/a%20b.json")
	assert.ErrorIs(t, err, context.Canceled)
}

type countingSource struct {
	calls atomic.Int32
	data  []byte
	err   error
}

func (s *countingSource) Fetch(ctx context.Context, path string) ([]byte, error) {
	s.calls.Add(1)
	return s.data, s.err
}

func TestCachedSource_Memory(t *testing.T) {
	c := cache.NewMemoryCache()
	defer c.Close()
	next := &countingSource{data: []byte(bundleJSON)}
	src := NewCachedSource(next, c, time.Minute, zaptest.NewLogger(t))

	for i := 0; i < 3; i++ {
		data, err := src.Fetch(context.Background(), "a.json")
		require.NoError(t, err)
		assert.JSONEq(t, bundleJSON, string(data))
	}
	assert.Equal(t, int32(1), next.calls.Load())
}

func TestCachedSource_Redis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rc := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), cache.DefaultCacheConfig())
	defer rc.Close()

	next := &countingSource{data: []byte(bundleJSON)}
	src := NewCachedSource(next, rc, time.Minute, nil)

	_, err = src.Fetch(context.Background(), "a.json")
	require.NoError(t, err)
	_, err = src.Fetch(context.Background(), "a.json")
	require.NoError(t, err)
	assert.Equal(t, int32(1), next.calls.Load())
	assert.True(t, mr.Exists("hubportal:payload:a.json"))
}

func TestCachedSource_FailuresNotCached(t *testing.T) {
	c := cache.NewMemoryCache()
	defer c.Close()
	next := &countingSource{err: errors.New("boom")}
	src := NewCachedSource(next, c, time.Minute, nil)

	_, err := src.Fetch(context.Background(), "a.json")
	assert.Error(t, err)
	_, err = src.Fetch(context.Background(), "a.json")
	assert.Error(t, err)
	assert.Equal(t, int32(2), next.calls.Load())
}

func TestCachedSource_BrokenCacheFallsThrough(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rc := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), cache.DefaultCacheConfig())
	defer rc.Close()
	mr.Close()

	next := &countingSource{data: []byte(bundleJSON)}
	src := NewCachedSource(next, rc, time.Minute, zaptest.NewLogger(t))

	data, err := src.Fetch(context.Background(), "a.json")
	require.NoError(t, err)
	assert.JSONEq(t, bundleJSON, string(data))
}

func TestFetcher_Fetch(t *testing.T) {
	src := &FSSource{FS: fstest.MapFS{
		"ok.json":  {Data: []byte(bundleJSON)},
		"bad.json": {Data: []byte(`{"plots":[]}`)},
	}}
	f := New(src, WithLogger(zaptest.NewLogger(t)))

	res := f.Fetch(context.Background(), Request{View: "v", Resource: "r", Path: "ok.json", Kind: payload.KindBundle})
	require.NoError(t, res.Err)
	require.NotNil(t, res.Payload)
	assert.Equal(t, "psp-amplitude", res.Payload.Bundle.Values[0].ID)

	res = f.Fetch(context.Background(), Request{View: "v", Resource: "r", Path: "bad.json", Kind: payload.KindBundle})
	assert.ErrorIs(t, res.Err, payload.ErrSchemaMismatch)
	assert.Nil(t, res.Payload)
}

type slowSource struct {
	delay time.Duration
	files map[string][]byte
}

func (s *slowSource) Fetch(ctx context.Context, path string) ([]byte, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	data, ok := s.files[path]
	if !ok {
		return nil, errors.New("not found: " + path)
	}
	return data, nil
}

func TestFetcher_FetchAllIndependentFailures(t *testing.T) {
	src := &slowSource{delay: 20 * time.Millisecond, files: map[string][]byte{
		"a.json": []byte(bundleJSON),
		"c.json": []byte(`[{"name":"soma","value":1}]`),
	}}
	f := New(src, WithConcurrency(2))

	results := f.FetchAll(context.Background(), []Request{
		{Resource: "a", Path: "a.json", Kind: payload.KindBundle},
		{Resource: "b", Path: "b.json", Kind: payload.KindBundle},
		{Resource: "c", Path: "c.json", Kind: payload.KindFactsheet},
	})

	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, "a", results[0].Resource)
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, "soma", results[2].Payload.Factsheet[0].Name)
}

func TestFetcher_CancelledFetchIsNotAnError(t *testing.T) {
	src := &slowSource{delay: time.Minute, files: map[string][]byte{}}
	f := New(src, WithLogger(zaptest.NewLogger(t)))

	cancelled := metrics.CounterFetch.WithLabelValues("cancel-view", "r", metrics.OutcomeCancelled)
	failed := metrics.CounterFetch.WithLabelValues("cancel-view", "r", metrics.OutcomeError)
	beforeCancelled := testutil.ToFloat64(cancelled)
	beforeFailed := testutil.ToFloat64(failed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := f.Fetch(ctx, Request{View: "cancel-view", Resource: "r", Path: "a.json", Kind: payload.KindBundle})
	assert.ErrorIs(t, res.Err, context.Canceled)

	assert.Equal(t, beforeCancelled+1, testutil.ToFloat64(cancelled))
	assert.Equal(t, beforeFailed, testutil.ToFloat64(failed))

	f = New(&FSSource{FS: fstest.MapFS{}}, WithLogger(zaptest.NewLogger(t)))
	res = f.Fetch(context.Background(), Request{View: "cancel-view", Resource: "r", Path: "gone.json", Kind: payload.KindBundle})
	require.Error(t, res.Err)
	assert.Equal(t, beforeFailed+1, testutil.ToFloat64(failed))
}

func TestSlot_Generations(t *testing.T) {
	var s Slot

	ctx1, gen1 := s.Begin(context.Background(), "instance=a")
	ctx2, gen2 := s.Begin(context.Background(), "instance=b")

	assert.Greater(t, gen2, gen1)
	assert.ErrorIs(t, ctx1.Err(), context.Canceled)
	assert.NoError(t, ctx2.Err())
	assert.Equal(t, "instance=b", s.Signature())
	assert.True(t, s.Pending())

	assert.False(t, s.Finish(gen1), "superseded generation is stale")
	assert.True(t, s.Finish(gen2))
	assert.False(t, s.Pending())

	s.Reset()
	assert.Empty(t, s.Signature())
	assert.False(t, s.Finish(gen2))
}
