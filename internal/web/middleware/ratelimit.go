package middleware

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/hippocampushub/hubportal/internal/web/ratelimit"
	"github.com/hippocampushub/hubportal/internal/web/response"
)

// KeyFunc extracts the rate limit key of a request
type KeyFunc func(r *http.Request) string

// ClientIP keys requests by the remote address without its port
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimit rejects requests over the limiter's budget with 429. When the
// limiter itself fails the request is let through and the error logged.
func RateLimit(limiter ratelimit.RateLimiter, keyFunc KeyFunc, logger *zap.Logger) Middleware {
	if keyFunc == nil {
		keyFunc = ClientIP
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, err := limiter.Allow(r.Context(), keyFunc(r))
			if err != nil {
				logger.Warn("rate limiter unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))

			if !info.Allowed {
				wait := info.RetryAfter(time.Now())
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				response.RenderErrorWithCode(w, http.StatusTooManyRequests,
					fmt.Errorf("rate limit exceeded, retry in %s", wait.Round(time.Second)), "RATE_LIMITED")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
