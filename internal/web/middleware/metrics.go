package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/hippocampushub/hubportal/internal/metrics"
)

// Metrics counts requests and observes their latency by method and matched
// route pattern, so path parameters do not explode label cardinality
func Metrics() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := wrapWriter(w)

			next.ServeHTTP(rw, r)

			route := routePattern(r)
			metrics.CounterHTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HistogramHTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}
