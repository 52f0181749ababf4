package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/hippocampushub/hubportal/internal/web/auth"
	webcontext "github.com/hippocampushub/hubportal/internal/web/context"
	"github.com/hippocampushub/hubportal/internal/web/response"
)

// Auth creates a middleware that requires a valid bearer token and puts its
// subject and roles in the request context
func Auth(authService *auth.AuthService) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !authService.Enabled() {
				response.RenderServiceUnavailable(w, "admin endpoints are disabled")
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.RenderUnauthorized(w, "Authorization required")
				return
			}

			scheme, tokenString, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || tokenString == "" {
				response.RenderUnauthorized(w, "Invalid authorization format")
				return
			}

			claims, err := authService.ValidateToken(tokenString)
			if err != nil {
				response.RenderUnauthorized(w, "Invalid token")
				return
			}

			ctx := webcontext.SetSubject(r.Context(), claims.Subject)
			ctx = webcontext.SetRoles(ctx, claims.Roles)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole creates a middleware that checks the token carries roleName.
// It runs after Auth.
func RequireRole(roleName string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !slices.Contains(webcontext.GetRoles(r.Context()), roleName) {
				response.RenderForbidden(w, "Forbidden: role required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
