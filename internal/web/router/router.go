package router

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/hippocampushub/hubportal/internal/web/middleware"
	"github.com/hippocampushub/hubportal/internal/web/response"
)

// Router manages HTTP routing using chi framework
type Router struct {
	mux    chi.Router
	prefix string

	// shared by every group of one router tree
	registry *registry
}

type registry struct {
	mu     sync.Mutex
	routes []*Route
}

// Route represents a single registered route
type Route struct {
	Pattern    string // /api/sessions/{sessionID}
	Method     string // GET, POST, etc.
	Name       string // Named route for listings
	Parameters []RouteParameter
}

// RouteInfo provides metadata about a route for introspection
type RouteInfo struct {
	Pattern    string
	Method     string
	Name       string
	Parameters []RouteParameter
}

// RouteParameter describes a parameter in a route
type RouteParameter struct {
	Name     string
	Required bool
	Source   ParameterSource // path, query
}

// ParameterSource indicates where a parameter comes from
type ParameterSource int

const (
	// PathParam indicates a URL path parameter
	PathParam ParameterSource = iota
	// QueryParam indicates a URL query parameter
	QueryParam
)

// String returns the string representation of ParameterSource
func (p ParameterSource) String() string {
	switch p {
	case PathParam:
		return "path"
	case QueryParam:
		return "query"
	default:
		return "unknown"
	}
}

// NewRouter creates a new Router instance. Unknown paths and methods are
// answered with JSON errors.
func NewRouter() *Router {
	mux := chi.NewRouter()
	mux.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.RenderNotFound(w, fmt.Sprintf("no route for %s", r.URL.Path))
	})
	mux.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.RenderMethodNotAllowed(w)
	})
	return &Router{mux: mux, registry: &registry{}}
}

// ServeHTTP implements http.Handler interface
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Use adds middleware to the router. It must be called before any route is
// registered on this router.
func (r *Router) Use(middlewares ...middleware.Middleware) {
	for _, m := range middlewares {
		r.mux.Use(m)
	}
}

// With returns an inline group that runs middlewares in front of the routes
// registered on it
func (r *Router) With(middlewares ...middleware.Middleware) *Router {
	mws := make([]func(http.Handler) http.Handler, len(middlewares))
	for i, m := range middlewares {
		mws[i] = m
	}
	return &Router{mux: r.mux.With(mws...), prefix: r.prefix, registry: r.registry}
}

// Route creates a route group with a common prefix
func (r *Router) Route(prefix string, fn func(r *Router)) {
	r.mux.Route(prefix, func(sub chi.Router) {
		fn(&Router{mux: sub, prefix: r.prefix + prefix, registry: r.registry})
	})
}

// Get registers a GET route
func (r *Router) Get(pattern string, handler http.HandlerFunc) *Route {
	return r.Handle(http.MethodGet, pattern, handler)
}

// Post registers a POST route
func (r *Router) Post(pattern string, handler http.HandlerFunc) *Route {
	return r.Handle(http.MethodPost, pattern, handler)
}

// Delete registers a DELETE route
func (r *Router) Delete(pattern string, handler http.HandlerFunc) *Route {
	return r.Handle(http.MethodDelete, pattern, handler)
}

// Handle registers handler for method and pattern
func (r *Router) Handle(method, pattern string, handler http.Handler) *Route {
	r.mux.Method(method, pattern, handler)
	return r.register(method, pattern)
}

// Mount attaches a handler serving every method under pattern
func (r *Router) Mount(pattern string, handler http.Handler) *Route {
	r.mux.Mount(pattern, handler)
	return r.register("*", strings.TrimSuffix(pattern, "/")+"/*")
}

func (r *Router) register(method, pattern string) *Route {
	full := r.prefix + pattern
	route := &Route{
		Pattern:    full,
		Method:     method,
		Parameters: extractParameters(full),
	}

	r.registry.mu.Lock()
	r.registry.routes = append(r.registry.routes, route)
	r.registry.mu.Unlock()
	return route
}

// Named sets a name for the route
func (route *Route) Named(name string) *Route {
	route.Name = name
	return route
}

// Query documents an optional query parameter of the route
func (route *Route) Query(names ...string) *Route {
	for _, name := range names {
		route.Parameters = append(route.Parameters, RouteParameter{Name: name, Source: QueryParam})
	}
	return route
}

// GetRoutes returns all registered routes ordered by pattern then method
func (r *Router) GetRoutes() []*RouteInfo {
	r.registry.mu.Lock()
	defer r.registry.mu.Unlock()

	infos := make([]*RouteInfo, 0, len(r.registry.routes))
	for _, route := range r.registry.routes {
		infos = append(infos, &RouteInfo{
			Pattern:    route.Pattern,
			Method:     route.Method,
			Name:       route.Name,
			Parameters: append([]RouteParameter(nil), route.Parameters...),
		})
	}
	sort.SliceStable(infos, func(i, j int) bool {
		if infos[i].Pattern != infos[j].Pattern {
			return infos[i].Pattern < infos[j].Pattern
		}
		return infos[i].Method < infos[j].Method
	})
	return infos
}

// GetRoute returns a route by name
func (r *Router) GetRoute(name string) (*RouteInfo, error) {
	for _, info := range r.GetRoutes() {
		if info.Name == name {
			return info, nil
		}
	}
	return nil, fmt.Errorf("route not found: %s", name)
}

// extractParameters extracts parameter definitions from a route pattern
func extractParameters(pattern string) []RouteParameter {
	params := make([]RouteParameter, 0)
	for _, part := range strings.Split(pattern, "/") {
		if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
			name := strings.Trim(part, "{}")
			// chi allows {name:regexp}
			name, _, _ = strings.Cut(name, ":")
			params = append(params, RouteParameter{
				Name:     name,
				Required: true,
				Source:   PathParam,
			})
		}
	}
	return params
}
