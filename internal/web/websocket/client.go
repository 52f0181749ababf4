package websocket

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hippocampushub/hubportal/internal/portal"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024
)

// Client is one WebSocket connection watching a view session
type Client struct {
	// Unique client identifier
	ID string

	// Session the client navigates
	Session *portal.Session

	// WebSocket connection
	conn *websocket.Conn

	// Hub reference
	hub *Hub

	// Buffered channel of outbound messages
	send chan []byte

	// Context for cancellation
	ctx    context.Context
	cancel context.CancelFunc

	// Last heartbeat timestamp
	lastHeartbeat time.Time
	heartbeatMu   sync.RWMutex

	// Connected timestamp
	connectedAt time.Time

	// Atomic flag to track if client is closed
	closed atomic.Bool
}

// NewClient creates a new Client instance
func NewClient(id string, conn *websocket.Conn, hub *Hub, session *portal.Session) *Client {
	ctx, cancel := context.WithCancel(hub.ctx)

	return &Client{
		ID:            id,
		Session:       session,
		conn:          conn,
		hub:           hub,
		send:          make(chan []byte, 256),
		ctx:           ctx,
		cancel:        cancel,
		lastHeartbeat: time.Now(),
		connectedAt:   time.Now(),
	}
}

// ReadPump pumps messages from the WebSocket connection to the hub
func (c *Client) ReadPump() {
	defer func() {
		c.cancel()
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.updateHeartbeat()
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read failed", zap.String("client", c.ID), zap.Error(err))
			}
			return
		}

		c.updateHeartbeat()

		if err := c.hub.HandleMessage(c.ctx, c, message); err != nil {
			c.hub.logger.Debug("message rejected", zap.String("client", c.ID), zap.Error(err))
			c.SendError(err.Error())
		}
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}

			// one JSON document per frame
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Send sends a message to the client
func (c *Client) Send(message *Message) (err error) {
	// the hub may close the channel between the check and the send
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("client closed")
		}
	}()

	if c.closed.Load() {
		return fmt.Errorf("client closed")
	}

	data, marshalErr := marshalMessage(message)
	if marshalErr != nil {
		return marshalErr
	}

	select {
	case c.send <- data:
		return nil
	case <-c.ctx.Done():
		return context.Canceled
	default:
		return fmt.Errorf("send channel full")
	}
}

// SendError sends an error message to the client
func (c *Client) SendError(errorMsg string) {
	// Ignore error if send fails - client may be closed
	_ = c.Send(&Message{
		Type: TypeError,
		Payload: map[string]string{
			"message": errorMsg,
		},
	})
}

// SendJSON sends a JSON message to the client
func (c *Client) SendJSON(messageType string, payload interface{}) error {
	return c.Send(&Message{
		Type:    messageType,
		Payload: payload,
	})
}

// updateHeartbeat updates the last heartbeat timestamp
func (c *Client) updateHeartbeat() {
	c.heartbeatMu.Lock()
	defer c.heartbeatMu.Unlock()
	c.lastHeartbeat = time.Now()
}

// GetLastHeartbeat returns the last heartbeat timestamp
func (c *Client) GetLastHeartbeat() time.Time {
	c.heartbeatMu.RLock()
	defer c.heartbeatMu.RUnlock()
	return c.lastHeartbeat
}

// ConnectionDuration returns how long the client has been connected
func (c *Client) ConnectionDuration() time.Duration {
	return time.Since(c.connectedAt)
}
