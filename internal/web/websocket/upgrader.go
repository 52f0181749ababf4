package websocket

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hippocampushub/hubportal/internal/portal"
)

// ErrHubStopped is returned when upgrading after Shutdown
var ErrHubStopped = errors.New("websocket hub stopped")

// Config holds WebSocket configuration
type Config struct {
	// Buffer sizes
	ReadBufferSize  int
	WriteBufferSize int

	// Origin check function; nil accepts same-origin requests only
	CheckOrigin func(r *http.Request) bool

	// Enable compression
	EnableCompression bool
}

// DefaultConfig returns default WebSocket configuration
func DefaultConfig() *Config {
	return &Config{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
	}
}

// Upgrader upgrades HTTP connections to WebSocket clients of a session
type Upgrader struct {
	config   *Config
	upgrader *websocket.Upgrader
	hub      *Hub
}

// NewUpgrader creates a new Upgrader
func NewUpgrader(config *Config, hub *Hub) *Upgrader {
	if config == nil {
		config = DefaultConfig()
	}

	upgrader := &websocket.Upgrader{
		ReadBufferSize:    config.ReadBufferSize,
		WriteBufferSize:   config.WriteBufferSize,
		CheckOrigin:       config.CheckOrigin,
		EnableCompression: config.EnableCompression,
	}

	return &Upgrader{
		config:   config,
		upgrader: upgrader,
		hub:      hub,
	}
}

// ServeSession upgrades the request and attaches the connection to session.
// The client first receives a snapshot, then every event of the session.
func (u *Upgrader) ServeSession(w http.ResponseWriter, r *http.Request, session *portal.Session) error {
	if u.hub.ctx.Err() != nil {
		return ErrHubStopped
	}

	// Upgrade replies to the client itself on failure
	conn, err := u.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := NewClient(uuid.NewString(), conn, u.hub, session)
	select {
	case u.hub.register <- client:
	case <-u.hub.ctx.Done():
		conn.Close()
		return ErrHubStopped
	}

	go client.WritePump()
	go client.ReadPump()

	u.hub.logger.Debug("websocket connection established",
		zap.String("client", client.ID),
		zap.String("session", session.ID()))
	return nil
}

// Server wraps Hub and Upgrader for convenient WebSocket server setup
type Server struct {
	Hub      *Hub
	Upgrader *Upgrader
	Config   *Config
}

// NewServer creates a new WebSocket server with the session handlers
func NewServer(ctx context.Context, config *Config, logger *zap.Logger) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	hub := NewHub(ctx, logger)
	upgrader := NewUpgrader(config, hub)

	RegisterDefaultHandlers(hub)

	return &Server{
		Hub:      hub,
		Upgrader: upgrader,
		Config:   config,
	}
}

// Start starts the hub event loop
func (s *Server) Start() {
	go s.Hub.Run()
}

// Shutdown gracefully shuts down the WebSocket server
func (s *Server) Shutdown() {
	s.Hub.Shutdown()
}

// ServeSession upgrades r into a client of session
func (s *Server) ServeSession(w http.ResponseWriter, r *http.Request, session *portal.Session) error {
	return s.Upgrader.ServeSession(w, r, session)
}
