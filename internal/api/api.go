// Package api is the HTTP surface of the portal: view catalog and stateless
// view evaluation, view sessions with their WebSocket push channel, the
// payload tree and the admin endpoints.
package api

import (
	"errors"
	"io/fs"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hippocampushub/hubportal/internal/metrics"
	"github.com/hippocampushub/hubportal/internal/portal"
	"github.com/hippocampushub/hubportal/internal/views"
	"github.com/hippocampushub/hubportal/internal/web/auth"
	"github.com/hippocampushub/hubportal/internal/web/cache"
	"github.com/hippocampushub/hubportal/internal/web/middleware"
	"github.com/hippocampushub/hubportal/internal/web/profiling"
	"github.com/hippocampushub/hubportal/internal/web/ratelimit"
	"github.com/hippocampushub/hubportal/internal/web/response"
	"github.com/hippocampushub/hubportal/internal/web/router"
	"github.com/hippocampushub/hubportal/internal/web/static"
	"github.com/hippocampushub/hubportal/internal/web/websocket"
)

// DefaultRequestTimeout bounds every non-WebSocket request
const DefaultRequestTimeout = 30 * time.Second

// maxBodyBytes caps JSON request bodies
const maxBodyBytes = 64 << 10

// Config wires the API to the rest of the service
type Config struct {
	Manager *portal.Manager

	// Cache is the payload cache purged by DELETE /admin/cache; nil disables it
	Cache cache.Cache

	// Data is served under /data/; nil disables the route
	Data fs.FS

	// Auth guards the admin routes
	Auth *auth.AuthService

	// WebSocket serves session push channels; nil disables the route
	WebSocket *websocket.Server

	// Limiter throttles session creation per client; nil disables it
	Limiter ratelimit.RateLimiter

	RequestTimeout time.Duration
	CORSOrigins    []string
	Profiling      bool
	Logger         *zap.Logger
}

// API serves the portal over HTTP
type API struct {
	manager *portal.Manager
	catalog *views.Catalog
	cfg     Config
	logger  *zap.Logger
	router  *router.Router
}

// New builds the API and registers every route
func New(cfg Config) (*API, error) {
	if cfg.Manager == nil {
		return nil, errors.New("api: no session manager")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Auth == nil {
		cfg.Auth = auth.NewAuthService("", "", 0)
	}

	a := &API{
		manager: cfg.Manager,
		catalog: cfg.Manager.Catalog(),
		cfg:     cfg,
		logger:  cfg.Logger,
		router:  router.NewRouter(),
	}
	a.routes()
	return a, nil
}

// ServeHTTP implements http.Handler
func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

// Routes lists the registered routes
func (a *API) Routes() []*router.RouteInfo {
	return a.router.GetRoutes()
}

func (a *API) routes() {
	r := a.router
	r.Use(
		middleware.RequestID(),
		middleware.Logging(a.logger, "/healthz", "/metrics"),
		middleware.Recovery(a.logger),
		middleware.Metrics(),
		middleware.CORS(a.cfg.CORSOrigins),
		middleware.Timeout(a.cfg.RequestTimeout),
	)

	r.Get("/healthz", a.healthz).Named("health")
	r.Handle(http.MethodGet, "/metrics", metrics.Handler()).Named("metrics")

	r.Route("/api", func(r *router.Router) {
		r.Get("/views", a.listViews).Named("views.list")
		r.Get("/views/{section}/{page}/options", a.viewOptions).Named("views.options").Query(queryFields...)
		r.Get("/views/{section}/{page}/data", a.viewData).Named("views.data").Query(queryFields...)

		r.Route("/sessions", func(r *router.Router) {
			r.With(middleware.RateLimit(a.cfg.Limiter, middleware.ClientIP, a.logger)).
				Post("/", a.createSession).Named("sessions.create")
			r.Get("/{sessionID}", a.getSession).Named("sessions.get").Query("wait", "timeout")
			r.Delete("/{sessionID}", a.deleteSession).Named("sessions.delete")
			r.Post("/{sessionID}/fields", a.setField).Named("sessions.fields")
			r.Post("/{sessionID}/back", a.back).Named("sessions.back")
			r.Post("/{sessionID}/forward", a.forward).Named("sessions.forward")
			r.Get("/{sessionID}/history", a.sessionHistory).Named("sessions.history")
			if a.cfg.WebSocket != nil {
				r.Get("/{sessionID}/ws", a.sessionSocket).Named("sessions.ws")
			}
		})
	})

	r.Get("/views/{section}/{page}", a.viewPage).Named("views.page").Query(queryFields...)

	if a.cfg.Data != nil {
		r.Mount("/data", static.NewFileServer(a.cfg.Data, "/data")).Named("data")
	}

	r.Route("/admin", func(r *router.Router) {
		r.Use(middleware.Auth(a.cfg.Auth), middleware.RequireRole(auth.RoleAdmin))
		r.Delete("/cache", a.purgeCache).Named("admin.cache")
		r.Get("/history", a.recentHistory).Named("admin.history").Query("limit")
		r.Get("/sessions", a.listSessions).Named("admin.sessions")
		profiling.RegisterRoutes(r, &profiling.Config{Enabled: a.cfg.Profiling, Path: "/debug/pprof"})
	})
}

// queryFields documents the selection query parameters every view accepts
var queryFields = []string{
	"layer", "mtype", "etype", "instance", "volume_section",
	"prelayer", "postlayer", "pretype", "posttype", "etype_instance",
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"views":    len(a.catalog.Names()),
		"sessions": a.manager.Len(),
	})
}

// view returns the catalog view addressed by the {section}/{page} route
// parameters, rendering a 404 when there is none
func (a *API) view(w http.ResponseWriter, r *http.Request) (*views.View, bool) {
	p := router.NewParamExtractor(r)
	v, err := a.catalog.Get(p.PathParam("section") + "/" + p.PathParam("page"))
	if err != nil {
		renderError(w, err)
		return nil, false
	}
	return v, true
}
