// Package websocket pushes view session events to browser clients and
// accepts navigation commands from them. Clients of one session share a
// room; the room holds the single subscription to that session.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hippocampushub/hubportal/internal/metrics"
	"github.com/hippocampushub/hubportal/internal/portal"
)

// Hub maintains the set of active clients and fans session events out to them
type Hub struct {
	// Registered clients
	clients   map[*Client]bool
	clientsMu sync.RWMutex

	// Rooms keyed by session id
	rooms   map[string]*room
	roomsMu sync.RWMutex

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Messages for one room
	roomBroadcast chan *RoomMessage

	// Message handlers
	handlers   map[string]MessageHandler
	handlersMu sync.RWMutex

	logger *zap.Logger

	// Shutdown channel
	shutdown     chan struct{}
	shutdownOnce sync.Once

	// Wait group for graceful shutdown
	wg sync.WaitGroup

	// Context for cancellation
	ctx    context.Context
	cancel context.CancelFunc
}

// Message represents a WebSocket message
type Message struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	Payload interface{}     `json:"-"`
}

// RoomMessage represents a message to be broadcast to a session room. A
// final message disconnects the room after delivery.
type RoomMessage struct {
	Room    string
	Message *Message
	Final   bool
}

// MessageHandler is a function that handles incoming messages
type MessageHandler func(ctx context.Context, client *Client, message *Message) error

// room is the set of clients watching one session
type room struct {
	clients     map[*Client]bool
	unsubscribe func()
}

// NewHub creates a new Hub instance
func NewHub(ctx context.Context, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	hubCtx, cancel := context.WithCancel(ctx)

	return &Hub{
		clients:       make(map[*Client]bool),
		rooms:         make(map[string]*room),
		register:      make(chan *Client, 256),
		unregister:    make(chan *Client, 256),
		roomBroadcast: make(chan *RoomMessage, 1024),
		handlers:      make(map[string]MessageHandler),
		logger:        logger,
		shutdown:      make(chan struct{}),
		ctx:           hubCtx,
		cancel:        cancel,
	}
}

// RegisterHandler registers a message handler for a specific message type
func (h *Hub) RegisterHandler(messageType string, handler MessageHandler) {
	h.handlersMu.Lock()
	defer h.handlersMu.Unlock()
	h.handlers[messageType] = handler
}

// Run starts the hub's main event loop
func (h *Hub) Run() {
	h.wg.Add(1)
	defer h.wg.Done()

	cleanupTicker := time.NewTicker(30 * time.Second)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.cleanup()
			return

		case <-h.shutdown:
			h.cleanup()
			return

		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case roomMsg := <-h.roomBroadcast:
			h.broadcastToRoom(roomMsg.Room, roomMsg.Message)
			if roomMsg.Final {
				for _, client := range h.GetRoomClients(roomMsg.Room) {
					h.removeClient(client)
				}
			}

		case <-cleanupTicker.C:
			h.cleanupStaleConnections()
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.clientsMu.Lock()
	h.clients[client] = true
	h.clientsMu.Unlock()
	metrics.GaugeWebSocketClients.Inc()

	id := client.Session.ID()
	h.roomsMu.Lock()
	r, ok := h.rooms[id]
	if !ok {
		r = &room{clients: make(map[*Client]bool)}
		r.unsubscribe = client.Session.Subscribe(h.forward(id))
		h.rooms[id] = r
	}
	r.clients[client] = true
	h.roomsMu.Unlock()

	// subscribed first, so no event falls between snapshot and room
	if err := client.SendJSON(TypeSnapshot, client.Session.Snapshot()); err != nil {
		h.logger.Warn("initial snapshot not sent", zap.String("client", client.ID), zap.Error(err))
	}

	h.logger.Debug("client registered",
		zap.String("client", client.ID),
		zap.String("session", id),
		zap.Int("total", h.ClientCount()))
}

func (h *Hub) removeClient(client *Client) {
	h.clientsMu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		client.closed.Store(true)
		close(client.send)
	}
	h.clientsMu.Unlock()
	if !ok {
		return
	}
	metrics.GaugeWebSocketClients.Dec()

	id := client.Session.ID()
	var unsubscribe func()
	h.roomsMu.Lock()
	if r, ok := h.rooms[id]; ok {
		delete(r.clients, client)
		if len(r.clients) == 0 {
			unsubscribe = r.unsubscribe
			delete(h.rooms, id)
		}
	}
	h.roomsMu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}

	h.logger.Debug("client unregistered",
		zap.String("client", client.ID),
		zap.String("session", id),
		zap.Int("total", h.ClientCount()))
}

// forward turns session events into room broadcasts
func (h *Hub) forward(sessionID string) func(portal.Event) {
	return func(e portal.Event) {
		h.queue(&RoomMessage{
			Room:    sessionID,
			Message: eventMessage(e),
			Final:   e.Type == portal.EventClosed,
		})
	}
}

// broadcastToRoom sends a message to all clients in a room
func (h *Hub) broadcastToRoom(roomName string, message *Message) {
	data, err := marshalMessage(message)
	if err != nil {
		h.logger.Error("marshal message", zap.Error(err))
		return
	}

	for _, client := range h.GetRoomClients(roomName) {
		select {
		case client.send <- data:
		default:
			h.logger.Warn("send channel full, message skipped",
				zap.String("client", client.ID),
				zap.String("session", roomName))
		}
	}
}

// BroadcastToRoom sends a message to all clients watching a session
func (h *Hub) BroadcastToRoom(roomName string, message *Message) {
	h.queue(&RoomMessage{Room: roomName, Message: message})
}

func (h *Hub) queue(msg *RoomMessage) {
	select {
	case h.roomBroadcast <- msg:
	case <-h.ctx.Done():
	default:
		h.logger.Warn("room broadcast channel full, message dropped", zap.String("session", msg.Room))
	}
}

// GetRoomClients returns all clients in a room
func (h *Hub) GetRoomClients(roomName string) []*Client {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()

	r, ok := h.rooms[roomName]
	if !ok {
		return nil
	}

	result := make([]*Client, 0, len(r.clients))
	for client := range r.clients {
		result = append(result, client)
	}
	return result
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// RoomCount returns the number of watched sessions
func (h *Hub) RoomCount() int {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	return len(h.rooms)
}

// HandleMessage processes an incoming message from a client
func (h *Hub) HandleMessage(ctx context.Context, client *Client, data []byte) error {
	var message Message
	if err := json.Unmarshal(data, &message); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}

	h.handlersMu.RLock()
	handler, ok := h.handlers[message.Type]
	h.handlersMu.RUnlock()

	if !ok {
		return fmt.Errorf("no handler for message type: %s", message.Type)
	}

	return handler(ctx, client, &message)
}

// cleanup closes all client connections and drops session subscriptions
func (h *Hub) cleanup() {
	h.logger.Info("hub shutting down", zap.Int("clients", h.ClientCount()))

	h.clientsMu.Lock()
	for client := range h.clients {
		client.closed.Store(true)
		// the write pump exits on the cancelled context
		if client.conn != nil {
			client.conn.Close()
		}
		metrics.GaugeWebSocketClients.Dec()
	}
	h.clients = make(map[*Client]bool)
	h.clientsMu.Unlock()

	h.roomsMu.Lock()
	rooms := h.rooms
	h.rooms = make(map[string]*room)
	h.roomsMu.Unlock()

	for _, r := range rooms {
		r.unsubscribe()
	}
}

// cleanupStaleConnections removes clients that haven't sent a heartbeat recently
func (h *Hub) cleanupStaleConnections() {
	h.clientsMu.RLock()
	staleClients := make([]*Client, 0)
	for client := range h.clients {
		if time.Since(client.GetLastHeartbeat()) > 90*time.Second {
			staleClients = append(staleClients, client)
		}
	}
	h.clientsMu.RUnlock()

	for _, client := range staleClients {
		h.logger.Info("removing stale client", zap.String("client", client.ID))
		h.removeClient(client)
	}
}

// Shutdown disconnects every client and stops the event loop
func (h *Hub) Shutdown() {
	h.shutdownOnce.Do(func() {
		h.cancel()
		close(h.shutdown)
	})
	h.wg.Wait()
}
