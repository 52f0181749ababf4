package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Server wraps an http.Server with a listener opened before serving, so the
// bound address is known once Listen returns
type Server struct {
	httpServer *http.Server
	config     *Config
	listener   net.Listener
}

// Config holds server configuration
type Config struct {
	// Address is the server listen address (e.g., ":3000")
	Address string

	// Handler is the HTTP handler for the server
	Handler http.Handler

	// Timeouts
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ReadHeaderTimeout time.Duration

	MaxHeaderBytes int
}

// DefaultConfig returns the server configuration used by hubportal serve
func DefaultConfig(handler http.Handler) *Config {
	return &Config{
		Address:           ":3000",
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}
}

// New creates a server
func New(config *Config) (*Server, error) {
	if config == nil {
		return nil, fmt.Errorf("server config cannot be nil")
	}

	if config.Handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}

	httpServer := &http.Server{
		Addr:              config.Address,
		Handler:           config.Handler,
		ReadTimeout:       config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
		MaxHeaderBytes:    config.MaxHeaderBytes,
	}

	return &Server{
		httpServer: httpServer,
		config:     config,
	}, nil
}

// Listen opens the listener without serving
func (s *Server) Listen() error {
	if s.listener != nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	s.listener = listener
	return nil
}

// Start listens if needed and serves until the server is shut down
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.httpServer.Serve(s.listener)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Close immediately closes the server
func (s *Server) Close() error {
	return s.httpServer.Close()
}

// Addr returns the bound address once listening, else the configured one
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Address
}
