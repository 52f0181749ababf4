package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hippocampushub/hubportal/internal/fetch"
	"github.com/hippocampushub/hubportal/internal/portal"
	"github.com/hippocampushub/hubportal/internal/resolve"
	"github.com/hippocampushub/hubportal/internal/views"
	"github.com/hippocampushub/hubportal/internal/web/auth"
	"github.com/hippocampushub/hubportal/internal/web/cache"
	"github.com/hippocampushub/hubportal/internal/web/ratelimit"
	"github.com/hippocampushub/hubportal/internal/web/websocket"
	"github.com/hippocampushub/hubportal/pkg/selection"
)

const testSecret = "test-secret"

var testData = fstest.MapFS{
	"data/SP.json":   {Data: []byte(`{"values":[{"id":"psp-amplitude"}]}`)},
	"data/SO.json":   {Data: []byte(`{"values":[]}`)},
	"data/SP/x.json": {Data: []byte(`[{"name":"soma","value":1}]`)},
}

type fixture struct {
	api     *API
	server  *httptest.Server
	manager *portal.Manager
	cache   *cache.MemoryCache
	auth    *auth.AuthService
}

type option func(*Config)

func testCatalog(t *testing.T) *views.Catalog {
	t.Helper()
	order := selection.MustOrder("region", "layer", "instance")
	res, err := resolve.New(order, map[string]resolve.Provider{
		"region":   resolve.Fixed("r"),
		"layer":    resolve.Fixed("SO", "SP"),
		"instance": resolve.Fixed("x", "y"),
	})
	require.NoError(t, err)

	c, err := views.NewCatalog(&views.View{
		Name:     "test/pathway",
		Title:    "Pathway",
		Order:    order,
		Resolver: res,
		Preselection: selection.Preselection{
			Driving:  []string{"layer"},
			Defaults: map[string]string{"region": "r", "layer": "SP"},
		},
		CompleteAt: "layer",
		Resources: []views.Resource{
			{
				Name:     "layer",
				Template: fetch.MustTemplate("data/{layer}.json"),
				Kind:     "bundle",
				PlotIDs:  []string{"psp-amplitude", "psp-cv"},
			},
			{
				Name:     "instance",
				Template: fetch.MustTemplate("data/{layer}/{instance}.json"),
				Kind:     "factsheet",
			},
		},
	})
	require.NoError(t, err)
	return c
}

func newFixture(t *testing.T, opts ...option) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	c := cache.NewMemoryCache()
	t.Cleanup(func() { c.Close() })

	fetcher := fetch.New(&fetch.FSSource{FS: testData}, fetch.WithLogger(logger))
	m := portal.NewManager(testCatalog(t), fetcher, portal.ManagerConfig{Logger: logger})
	t.Cleanup(m.Shutdown)

	ws := websocket.NewServer(context.Background(), nil, logger)
	ws.Start()
	t.Cleanup(ws.Shutdown)

	authService := auth.NewAuthService(testSecret, "hubportal", time.Hour)
	cfg := Config{
		Manager:   m,
		Cache:     c,
		Data:      testData,
		Auth:      authService,
		WebSocket: ws,
		Logger:    logger,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	a, err := New(cfg)
	require.NoError(t, err)
	srv := httptest.NewServer(a)
	t.Cleanup(srv.Close)

	return &fixture{api: a, server: srv, manager: m, cache: c, auth: authService}
}

func (f *fixture) do(t *testing.T, method, path, body string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func (f *fixture) createSession(t *testing.T, query string) portal.Snapshot {
	t.Helper()
	body, _ := json.Marshal(CreateSessionRequest{View: "test/pathway", Query: query})
	resp := f.do(t, http.MethodPost, "/api/sessions", string(body), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var snap portal.Snapshot
	decode(t, resp, &snap)
	assert.Equal(t, "/api/sessions/"+snap.ID, resp.Header.Get("Location"))
	return snap
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var body map[string]interface{}
	decode(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 1, body["views"])
}

func TestListViews(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/views", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Views []ViewSummary `json:"views"`
	}
	decode(t, resp, &body)
	require.Len(t, body.Views, 1)
	v := body.Views[0]
	assert.Equal(t, "test/pathway", v.Name)
	assert.Equal(t, []string{"region", "layer", "instance"}, v.Fields)
	assert.Equal(t, "data/{layer}.json", v.Resources[0].Template)
	assert.Equal(t, map[string]string{"region": "r", "layer": "SP"}, v.Preselection)
}

func TestViewOptions(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name      string
		query     string
		instances []string
		complete  bool
	}{
		{"empty selection", "", []string{}, false},
		{"upstream set", "?region=r&layer=SP", []string{"x", "y"}, true},
		{"unknown params ignored", "?layer=SP&region=r&color=red", []string{"x", "y"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, http.MethodGet, "/api/views/test/pathway/options"+tt.query, "", nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			var body OptionsResponse
			decode(t, resp, &body)
			assert.Equal(t, []string{"r"}, body.Options["region"])
			assert.Equal(t, tt.instances, body.Options["instance"])
			assert.Equal(t, tt.complete, body.Complete)
		})
	}

	resp := f.do(t, http.MethodGet, "/api/views/test/nope/options", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var errBody map[string]string
	decode(t, resp, &errBody)
	assert.Equal(t, "UNKNOWN_VIEW", errBody["code"])
}

func TestViewData(t *testing.T) {
	f := newFixture(t)
	path := "/api/views/test/pathway/data?region=r&layer=SP&instance=x"

	resp := f.do(t, http.MethodGet, path, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)

	var snap portal.Snapshot
	decode(t, resp, &snap)
	assert.Equal(t, "data/SP.json", snap.Resources["layer"].Path)
	assert.Equal(t, map[string]bool{"psp-amplitude": true, "psp-cv": false}, snap.Resources["layer"].Available)
	assert.Equal(t, "data/SP/x.json", snap.Resources["instance"].Path)
	assert.NotNil(t, snap.Resources["instance"].Payload)

	resp = f.do(t, http.MethodGet, path, "", http.Header{"If-None-Match": {etag}})
	assert.Equal(t, http.StatusNotModified, resp.StatusCode)
}

func TestViewPage(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/views/test/pathway", "", nil)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/views/test/pathway?layer=SP&region=r", resp.Header.Get("Location"))

	// a driving field means the user already chose
	resp = f.do(t, http.MethodGet, "/views/test/pathway?layer=SO", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap portal.Snapshot
	decode(t, resp, &snap)
	assert.Equal(t, "layer=SO", snap.Query)
	assert.Equal(t, "data/SO.json", snap.Resources["layer"].Path)
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t)
	snap := f.createSession(t, "")
	base := "/api/sessions/" + snap.ID
	assert.Equal(t, "layer=SP&region=r", snap.Query)

	resp := f.do(t, http.MethodGet, base+"?wait=1", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &snap)
	assert.Equal(t, "data/SP.json", snap.Resources["layer"].Path)
	assert.False(t, snap.Resources["layer"].Pending)

	resp = f.do(t, http.MethodPost, base+"/fields", `{"field":"instance","value":"x"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &snap)
	assert.Equal(t, "x", snap.Key["instance"])
	assert.True(t, snap.CanBack)

	resp = f.do(t, http.MethodPost, base+"/back", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &snap)
	assert.NotContains(t, snap.Key, "instance")
	assert.True(t, snap.CanForward)

	resp = f.do(t, http.MethodPost, base+"/forward", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = f.do(t, http.MethodPost, base+"/forward", "", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = f.do(t, http.MethodGet, base+"/history", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var hist HistoryResponse
	decode(t, resp, &hist)
	assert.Equal(t, snap.ID, hist.SessionID)
	kinds := make([]string, 0, len(hist.Records))
	for _, rec := range hist.Records {
		kinds = append(kinds, rec.Kind)
	}
	assert.Equal(t, []string{"initial", "replace", "push", "back", "forward"}, kinds)

	resp = f.do(t, http.MethodDelete, base, "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = f.do(t, http.MethodGet, base, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, 0, f.manager.Len())
}

func TestSessionErrors(t *testing.T) {
	f := newFixture(t)
	snap := f.createSession(t, "layer=SO")

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"malformed body", http.MethodPost, "/api/sessions", `{"view":`, http.StatusBadRequest},
		{"unknown body field", http.MethodPost, "/api/sessions", `{"view":"test/pathway","color":"red"}`, http.StatusBadRequest},
		{"missing view", http.MethodPost, "/api/sessions", `{}`, http.StatusBadRequest},
		{"bad query", http.MethodPost, "/api/sessions", `{"view":"test/pathway","query":"%zz"}`, http.StatusBadRequest},
		{"unknown view", http.MethodPost, "/api/sessions", `{"view":"test/nope"}`, http.StatusNotFound},
		{"unknown session", http.MethodGet, "/api/sessions/nope", "", http.StatusNotFound},
		{"delete unknown session", http.MethodDelete, "/api/sessions/nope", "", http.StatusNotFound},
		{"unknown field", http.MethodPost, "/api/sessions/" + snap.ID + "/fields", `{"field":"color","value":"red"}`, http.StatusBadRequest},
		{"missing field", http.MethodPost, "/api/sessions/" + snap.ID + "/fields", `{"value":"x"}`, http.StatusBadRequest},
		{"back at start", http.MethodPost, "/api/sessions/" + snap.ID + "/back", "", http.StatusConflict},
		{"history of unknown session", http.MethodGet, "/api/sessions/nope/history", "", http.StatusNotFound},
		{"wrong method", http.MethodPut, "/api/sessions/" + snap.ID, "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, tt.method, tt.path, tt.body, nil)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")
		})
	}
}

func TestCreateSession_RateLimited(t *testing.T) {
	limiter := ratelimit.NewTokenBucket(ratelimit.TokenBucketConfig{Capacity: 1, Window: time.Hour})
	t.Cleanup(func() { limiter.Close() })
	f := newFixture(t, func(c *Config) { c.Limiter = limiter })

	f.createSession(t, "")
	resp := f.do(t, http.MethodPost, "/api/sessions", `{"view":"test/pathway"}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	assert.Equal(t, 1, f.manager.Len())

	// reads are not throttled
	resp = f.do(t, http.MethodGet, "/api/views", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSessionWebSocket(t *testing.T) {
	f := newFixture(t)
	snap := f.createSession(t, "layer=SP&region=r")

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/api/sessions/" + snap.ID + "/ws"
	conn, resp, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, websocket.TypeSnapshot, msg.Type)

	// a change over HTTP is pushed to the socket
	f.do(t, http.MethodPost, "/api/sessions/"+snap.ID+"/fields", `{"field":"instance","value":"x"}`, nil)
	for {
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == string(portal.EventNavigate) {
			break
		}
	}
	var e portal.Event
	require.NoError(t, json.Unmarshal(msg.Data, &e))
	assert.Equal(t, "instance=x&layer=SP&region=r", e.Query)

	_, resp, err = gorilla.DefaultDialer.Dial("ws"+strings.TrimPrefix(f.server.URL, "http")+"/api/sessions/nope/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDataFiles(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/data/data/SP.json", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))

	resp = f.do(t, http.MethodGet, "/data/data/missing.json", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdmin(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.Profiling = true })
	ctx := context.Background()

	admin, err := f.auth.GenerateToken("ops", []string{auth.RoleAdmin})
	require.NoError(t, err)
	viewer, err := f.auth.GenerateToken("someone", nil)
	require.NoError(t, err)
	bearer := func(token string) http.Header {
		return http.Header{"Authorization": {"Bearer " + token}}
	}

	require.NoError(t, f.cache.Set(ctx, cache.PayloadKey("data/SP.json"), []byte("{}"), time.Minute))

	tests := []struct {
		name   string
		header http.Header
		status int
	}{
		{"no token", nil, http.StatusUnauthorized},
		{"bad token", bearer("garbage"), http.StatusUnauthorized},
		{"missing role", bearer(viewer), http.StatusForbidden},
		{"admin", bearer(admin), http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, http.MethodDelete, "/admin/cache", "", tt.header)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
	ok, err := f.cache.Exists(ctx, cache.PayloadKey("data/SP.json"))
	require.NoError(t, err)
	assert.False(t, ok)

	snap := f.createSession(t, "")
	resp := f.do(t, http.MethodGet, "/admin/sessions", "", bearer(admin))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sessions struct {
		Sessions []SessionInfo `json:"sessions"`
	}
	decode(t, resp, &sessions)
	require.Len(t, sessions.Sessions, 1)
	assert.Equal(t, snap.ID, sessions.Sessions[0].ID)

	resp = f.do(t, http.MethodGet, "/admin/history?limit=0", "", bearer(admin))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = f.do(t, http.MethodGet, "/admin/history", "", bearer(admin))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/admin/debug/pprof/stats", "", bearer(admin))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdmin_Disabled(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.Auth = nil })

	resp := f.do(t, http.MethodDelete, "/admin/cache", "", http.Header{"Authorization": {"Bearer x"}})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestAdmin_ProfilingOff(t *testing.T) {
	f := newFixture(t)
	admin, err := f.auth.GenerateToken("ops", []string{auth.RoleAdmin})
	require.NoError(t, err)

	resp := f.do(t, http.MethodGet, "/admin/debug/pprof/stats", "", http.Header{"Authorization": {"Bearer " + admin}})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRoutes(t *testing.T) {
	f := newFixture(t)

	names := map[string]string{}
	for _, info := range f.api.Routes() {
		names[info.Name] = info.Method + " " + info.Pattern
	}
	assert.Equal(t, "POST /api/sessions/", names["sessions.create"])
	assert.Equal(t, "GET /api/sessions/{sessionID}/ws", names["sessions.ws"])
	assert.Equal(t, "GET /views/{section}/{page}", names["views.page"])
	assert.Equal(t, "* /data/*", names["data"])
	assert.Equal(t, "DELETE /admin/cache", names["admin.cache"])

	_, err := New(Config{})
	assert.Error(t, err)
}
