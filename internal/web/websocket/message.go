package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hippocampushub/hubportal/internal/portal"
)

// Message types sent to clients
const (
	TypeSnapshot = "snapshot"
	TypePong     = "pong"
	TypeError    = "error"
)

// Message types accepted from clients
const (
	TypePing     = "ping"
	TypeSetField = "set_field"
	TypeBack     = "back"
	TypeForward  = "forward"
	TypeRefresh  = "get_snapshot"
)

// ErrNoEntry is returned when back or forward has nowhere to go
var ErrNoEntry = errors.New("no history entry in that direction")

// marshalMessage converts a Message to JSON bytes
func marshalMessage(message *Message) ([]byte, error) {
	// If Payload is set, marshal it to Data
	if message.Payload != nil {
		data, err := json.Marshal(message.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		message.Data = data
	}

	return json.Marshal(message)
}

// eventMessage wraps a session event, typed after the event
func eventMessage(e portal.Event) *Message {
	return &Message{Type: string(e.Type), Payload: e}
}

// PingHandler handles ping messages
func PingHandler(ctx context.Context, client *Client, message *Message) error {
	return client.SendJSON(TypePong, map[string]interface{}{
		"timestamp": message.Data,
	})
}

// SetFieldHandler selects a value. The resulting navigate and resource
// events reach the client through its session room.
func SetFieldHandler(ctx context.Context, client *Client, message *Message) error {
	var req struct {
		Field string `json:"field"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(message.Data, &req); err != nil {
		return fmt.Errorf("invalid set_field request: %w", err)
	}
	if req.Field == "" {
		return fmt.Errorf("field is required")
	}

	_, err := client.Session.SetField(ctx, req.Field, req.Value)
	return err
}

// BackHandler restores the previous selection
func BackHandler(ctx context.Context, client *Client, message *Message) error {
	_, ok, err := client.Session.Back(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoEntry
	}
	return nil
}

// ForwardHandler re-applies the selection undone by back
func ForwardHandler(ctx context.Context, client *Client, message *Message) error {
	_, ok, err := client.Session.Forward(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoEntry
	}
	return nil
}

// SnapshotHandler sends the full session state
func SnapshotHandler(ctx context.Context, client *Client, message *Message) error {
	return client.SendJSON(TypeSnapshot, client.Session.Snapshot())
}

// RegisterDefaultHandlers registers the session message handlers
func RegisterDefaultHandlers(hub *Hub) {
	hub.RegisterHandler(TypePing, PingHandler)
	hub.RegisterHandler(TypeSetField, SetFieldHandler)
	hub.RegisterHandler(TypeBack, BackHandler)
	hub.RegisterHandler(TypeForward, ForwardHandler)
	hub.RegisterHandler(TypeRefresh, SnapshotHandler)
}
