package middleware

import (
	"context"
	"net/http"
	"regexp"

	"github.com/google/uuid"

	webcontext "github.com/hippocampushub/hubportal/internal/web/context"
)

// RequestIDHeader is the header a request id is read from and echoed in
const RequestIDHeader = "X-Request-ID"

// incoming ids are accepted only when short and printable
var validRequestID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// RequestID creates a middleware that tags every request with an id, reusing
// a well-formed incoming X-Request-ID
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if !validRequestID.MatchString(requestID) {
				requestID = uuid.NewString()
			}

			r = r.WithContext(webcontext.SetRequestID(r.Context(), requestID))
			w.Header().Set(RequestIDHeader, requestID)

			next.ServeHTTP(w, r)
		})
	}
}

// GetRequestID extracts the request ID from the context
func GetRequestID(ctx context.Context) string {
	return webcontext.GetRequestID(ctx)
}
