package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// GracefulShutdown handles graceful server shutdown with cleanup hooks
type GracefulShutdown struct {
	server        *Server
	shutdownHooks []ShutdownHook
	timeout       time.Duration
	signals       []os.Signal
	logger        *zap.Logger
	mu            sync.Mutex
	shutdownOnce  sync.Once
	shutdownChan  chan struct{}
	shutdownError error
}

// ShutdownHook is a function called during graceful shutdown, after the
// server stopped accepting requests
type ShutdownHook func(ctx context.Context) error

// ShutdownConfig holds graceful shutdown configuration
type ShutdownConfig struct {
	// Timeout is the maximum time to wait for shutdown
	Timeout time.Duration

	// Signals to listen for (default: SIGINT, SIGTERM)
	Signals []os.Signal

	Logger *zap.Logger
}

// DefaultShutdownConfig returns default shutdown configuration
func DefaultShutdownConfig() *ShutdownConfig {
	return &ShutdownConfig{
		Timeout: 30 * time.Second,
		Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		Logger:  zap.NewNop(),
	}
}

// NewGracefulShutdown creates a new graceful shutdown handler
func NewGracefulShutdown(server *Server, config *ShutdownConfig) *GracefulShutdown {
	if config == nil {
		config = DefaultShutdownConfig()
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if len(config.Signals) == 0 {
		config.Signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &GracefulShutdown{
		server:        server,
		shutdownHooks: make([]ShutdownHook, 0),
		timeout:       config.Timeout,
		signals:       config.Signals,
		logger:        config.Logger,
		shutdownChan:  make(chan struct{}),
	}
}

// RegisterHook registers a shutdown hook. Hooks run in registration order.
func (gs *GracefulShutdown) RegisterHook(hook ShutdownHook) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.shutdownHooks = append(gs.shutdownHooks, hook)
}

// Run serves until ctx is done, a shutdown signal arrives or the server
// fails, then shuts down gracefully
func (gs *GracefulShutdown) Run(ctx context.Context) error {
	if err := gs.server.Listen(); err != nil {
		return err
	}

	errChan := make(chan error, 1)
	go func() {
		gs.logger.Info("server listening", zap.String("addr", gs.server.Addr()))
		if err := gs.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server failed: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, gs.signals...)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		gs.logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		return gs.Shutdown()
	case <-ctx.Done():
		return gs.Shutdown()
	case err := <-errChan:
		return err
	}
}

// Shutdown stops the server and runs the hooks. Only the first call does
// work; later calls wait for it and return the same error.
func (gs *GracefulShutdown) Shutdown() error {
	gs.shutdownOnce.Do(func() {
		gs.logger.Info("initiating graceful shutdown", zap.Duration("timeout", gs.timeout))

		ctx, cancel := context.WithTimeout(context.Background(), gs.timeout)
		defer cancel()

		if err := gs.server.Shutdown(ctx); err != nil {
			gs.shutdownError = fmt.Errorf("server shutdown error: %w", err)
			gs.logger.Error("server shutdown", zap.Error(err))
		}

		gs.mu.Lock()
		hooks := make([]ShutdownHook, len(gs.shutdownHooks))
		copy(hooks, gs.shutdownHooks)
		gs.mu.Unlock()

		for i, hook := range hooks {
			if err := hook(ctx); err != nil {
				// remaining hooks still run
				gs.logger.Warn("shutdown hook failed", zap.Int("hook", i), zap.Error(err))
			}
		}

		gs.logger.Info("shutdown complete")
		close(gs.shutdownChan)
	})

	<-gs.shutdownChan
	return gs.shutdownError
}

// Wait blocks until shutdown is complete
func (gs *GracefulShutdown) Wait() error {
	<-gs.shutdownChan
	return gs.shutdownError
}
