package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hippocampushub/hubportal/internal/fetch"
	"github.com/hippocampushub/hubportal/internal/portal"
	"github.com/hippocampushub/hubportal/internal/resolve"
	"github.com/hippocampushub/hubportal/internal/views"
	"github.com/hippocampushub/hubportal/pkg/selection"
)

func newSession(t *testing.T) *portal.Session {
	t.Helper()
	order := selection.MustOrder("layer", "instance")
	res, err := resolve.New(order, map[string]resolve.Provider{
		"layer":    resolve.Fixed("SO", "SP"),
		"instance": resolve.Fixed("x", "y"),
	})
	require.NoError(t, err)

	v := &views.View{
		Name:       "test/ws",
		Title:      "WS",
		Order:      order,
		Resolver:   res,
		CompleteAt: "instance",
		Resources: []views.Resource{{
			Name:     "instance",
			Template: fetch.MustTemplate("{layer}/{instance}.json"),
			Kind:     "factsheet",
		}},
	}
	src := &fetch.FSSource{FS: fstest.MapFS{
		"SP/x.json": {Data: []byte(`[{"name":"soma","value":1}]`)},
		"SP/y.json": {Data: []byte(`[{"name":"soma","value":2}]`)},
	}}

	s := portal.NewSession("sess-1", v, nil, fetch.New(src), zaptest.NewLogger(t))
	require.NoError(t, s.Mount(context.Background()))
	return s
}

func startServer(t *testing.T, s *portal.Session) (*Server, string) {
	t.Helper()
	ws := NewServer(context.Background(), nil, zaptest.NewLogger(t))
	ws.Start()
	t.Cleanup(ws.Shutdown)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := ws.ServeSession(w, r, s); err != nil {
			t.Logf("serve session: %v", err)
		}
	}))
	t.Cleanup(srv.Close)
	return ws, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

type received struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// next reads messages until one of type want arrives
func next(t *testing.T, conn *websocket.Conn, want string) received {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg received
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == want {
			return msg
		}
	}
}

func TestSnapshotOnConnect(t *testing.T) {
	s := newSession(t)
	defer s.Close()
	_, url := startServer(t, s)

	conn := dial(t, url)
	msg := next(t, conn, TypeSnapshot)

	var snap portal.Snapshot
	require.NoError(t, json.Unmarshal(msg.Data, &snap))
	assert.Equal(t, "test/ws", snap.View)
	assert.Equal(t, []string{"SO", "SP"}, snap.Options["layer"])
}

func TestSetFieldPushesEvents(t *testing.T) {
	s := newSession(t)
	defer s.Close()
	ws, url := startServer(t, s)

	watcher := dial(t, url)
	actor := dial(t, url)
	next(t, watcher, TypeSnapshot)
	next(t, actor, TypeSnapshot)
	require.Eventually(t, func() bool { return ws.Hub.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, ws.Hub.RoomCount())

	require.NoError(t, actor.WriteJSON(map[string]interface{}{
		"type": TypeSetField,
		"data": map[string]string{"field": "layer", "value": "SP"},
	}))

	msg := next(t, watcher, string(portal.EventNavigate))
	var e portal.Event
	require.NoError(t, json.Unmarshal(msg.Data, &e))
	assert.Equal(t, "sess-1", e.SessionID)
	assert.Equal(t, "layer=SP", e.Query)

	require.NoError(t, actor.WriteJSON(map[string]interface{}{
		"type": TypeSetField,
		"data": map[string]string{"field": "instance", "value": "x"},
	}))
	msg = next(t, watcher, string(portal.EventResource))
	require.NoError(t, json.Unmarshal(msg.Data, &e))
	assert.Equal(t, "instance", e.Resource)
	require.NotNil(t, e.State)
	assert.Equal(t, "SP/x.json", e.State.Path)
}

func TestRejectedMessages(t *testing.T) {
	s := newSession(t)
	defer s.Close()
	_, url := startServer(t, s)

	conn := dial(t, url)
	next(t, conn, TypeSnapshot)

	tests := []struct {
		name string
		msg  interface{}
	}{
		{"unknown type", map[string]string{"type": "explode"}},
		{"unknown field", map[string]interface{}{"type": TypeSetField, "data": map[string]string{"field": "nope", "value": "1"}}},
		{"missing field", map[string]interface{}{"type": TypeSetField, "data": map[string]string{}}},
		{"back at start", map[string]string{"type": TypeBack}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, conn.WriteJSON(tt.msg))
			msg := next(t, conn, TypeError)
			assert.Contains(t, string(msg.Data), "message")
		})
	}

	require.NoError(t, conn.WriteJSON(map[string]string{"type": TypePing}))
	next(t, conn, TypePong)
}

func TestSessionCloseDisconnectsRoom(t *testing.T) {
	s := newSession(t)
	ws, url := startServer(t, s)

	conn := dial(t, url)
	next(t, conn, TypeSnapshot)
	require.Eventually(t, func() bool { return ws.Hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	s.Close()
	next(t, conn, string(portal.EventClosed))

	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	require.Eventually(t, func() bool { return ws.Hub.RoomCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServeSessionAfterShutdown(t *testing.T) {
	s := newSession(t)
	defer s.Close()
	ws := NewServer(context.Background(), nil, zaptest.NewLogger(t))
	ws.Start()
	ws.Shutdown()

	rec := httptest.NewRecorder()
	err := ws.ServeSession(rec, httptest.NewRequest(http.MethodGet, "/ws", nil), s)
	assert.ErrorIs(t, err, ErrHubStopped)
}
