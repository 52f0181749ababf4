package middleware

import (
	"net/http"
	"strings"
)

const (
	corsMethods = "GET, POST, DELETE, OPTIONS"
	corsHeaders = "Accept, Content-Type, Authorization, X-Request-ID"
	corsMaxAge  = "86400"
)

// CORS lets browser renderers on the listed origins call the API. "*" allows
// any origin and "*.example.org" any subdomain. An empty list disables CORS.
func CORS(allowedOrigins []string) Middleware {
	return func(next http.Handler) http.Handler {
		if len(allowedOrigins) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowed := origin != "" && originAllowed(origin, allowedOrigins)

			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Expose-Headers", RequestIDHeader)
				w.Header().Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if allowed {
					w.Header().Set("Access-Control-Allow-Methods", corsMethods)
					w.Header().Set("Access-Control-Allow-Headers", corsHeaders)
					w.Header().Set("Access-Control-Max-Age", corsMaxAge)
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(origin string, allowedOrigins []string) bool {
	for _, allowed := range allowedOrigins {
		switch {
		case allowed == "*", allowed == origin:
			return true
		case strings.HasPrefix(allowed, "*."):
			if strings.HasSuffix(origin, allowed[1:]) {
				return true
			}
		}
	}
	return false
}
