package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig(okHandler())

	assert.Equal(t, ":3000", config.Address)
	assert.Equal(t, 15*time.Second, config.ReadTimeout)
	assert.Equal(t, 30*time.Second, config.WriteTimeout)
	assert.Equal(t, 60*time.Second, config.IdleTimeout)
	assert.Equal(t, 1<<20, config.MaxHeaderBytes)
}

func TestNewServer(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	_, err = New(DefaultConfig(nil))
	assert.Error(t, err)

	srv, err := New(DefaultConfig(okHandler()))
	require.NoError(t, err)
	assert.Equal(t, ":3000", srv.Addr())
}

func TestServerServeAndShutdown(t *testing.T) {
	config := DefaultConfig(okHandler())
	config.Address = "127.0.0.1:0"
	srv, err := New(config)
	require.NoError(t, err)
	require.NoError(t, srv.Listen())

	done := make(chan error, 1)
	go func() { done <- srv.Start() }()

	resp, err := http.Get("http://" + srv.Addr())
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "OK", string(body))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.ErrorIs(t, <-done, http.ErrServerClosed)
}

func newTestShutdown(t *testing.T) *GracefulShutdown {
	t.Helper()
	config := DefaultConfig(okHandler())
	config.Address = "127.0.0.1:0"
	srv, err := New(config)
	require.NoError(t, err)

	return NewGracefulShutdown(srv, &ShutdownConfig{
		Timeout: time.Second,
		Logger:  zaptest.NewLogger(t),
	})
}

func TestNewGracefulShutdown_Defaults(t *testing.T) {
	gs := NewGracefulShutdown(nil, nil)
	assert.Equal(t, 30*time.Second, gs.timeout)
	assert.Len(t, gs.signals, 2)
	assert.NotNil(t, gs.logger)
}

func TestGracefulShutdown_RunUntilCancel(t *testing.T) {
	gs := newTestShutdown(t)

	var order []int
	gs.RegisterHook(func(ctx context.Context) error {
		order = append(order, 1)
		return errors.New("hook failed")
	})
	gs.RegisterHook(func(ctx context.Context) error {
		order = append(order, 2)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gs.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + gs.server.Addr())
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, []int{1, 2}, order, "a failing hook does not stop the rest")
	assert.NoError(t, gs.Wait())
}

func TestGracefulShutdown_Idempotent(t *testing.T) {
	gs := newTestShutdown(t)
	var calls int
	var mu sync.Mutex
	gs.RegisterHook(func(ctx context.Context) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			gs.Shutdown()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, calls)
}

func TestGracefulShutdown_ListenError(t *testing.T) {
	config := DefaultConfig(okHandler())
	config.Address = "256.0.0.1:99999"
	srv, err := New(config)
	require.NoError(t, err)

	gs := NewGracefulShutdown(srv, nil)
	assert.Error(t, gs.Run(context.Background()))
}
