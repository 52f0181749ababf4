// Package metrics holds the Prometheus collectors of the portal service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hubportal"

const (
	MetricFetchTotal      = "fetch_total"
	MetricFetchDuration   = "fetch_duration_seconds"
	MetricFetchStale      = "fetch_stale_total"
	MetricCacheTotal      = "cache_total"
	MetricSessionsActive  = "sessions_active"
	MetricNavigationTotal = "navigation_total"
	MetricHTTPRequests    = "http_requests_total"
	MetricHTTPDuration    = "http_request_duration_seconds"
	MetricWebSocketPeers  = "websocket_clients"
)

// Fetch outcomes
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"

	// OutcomeCancelled is a fetch superseded before it answered
	OutcomeCancelled = "cancelled"
)

var CounterFetch = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      MetricFetchTotal,
		Help:      "Resource fetches by view, resource and outcome.",
	},
	[]string{"view", "resource", "outcome"},
)

var HistogramFetchDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      MetricFetchDuration,
		Help:      "Resource fetch latency.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"view", "resource"},
)

var CounterFetchStale = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      MetricFetchStale,
		Help:      "Fetch results discarded because a newer fetch superseded them.",
	},
	[]string{"view", "resource"},
)

var CounterCache = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      MetricCacheTotal,
		Help:      "Payload cache lookups by result (hit, miss, error).",
	},
	[]string{"result"},
)

var GaugeSessions = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      MetricSessionsActive,
		Help:      "Mounted view sessions.",
	},
)

var CounterNavigation = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      MetricNavigationTotal,
		Help:      "Navigation entries by view and kind.",
	},
	[]string{"view", "kind"},
)

var CounterHTTPRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      MetricHTTPRequests,
		Help:      "HTTP requests by method, route and status.",
	},
	[]string{"method", "route", "status"},
)

var HistogramHTTPDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      MetricHTTPDuration,
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "route"},
)

var GaugeWebSocketClients = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      MetricWebSocketPeers,
		Help:      "Connected WebSocket clients.",
	},
)

func init() {
	prometheus.MustRegister(CounterFetch)
	prometheus.MustRegister(HistogramFetchDuration)
	prometheus.MustRegister(CounterFetchStale)
	prometheus.MustRegister(CounterCache)
	prometheus.MustRegister(GaugeSessions)
	prometheus.MustRegister(CounterNavigation)
	prometheus.MustRegister(CounterHTTPRequests)
	prometheus.MustRegister(HistogramHTTPDuration)
	prometheus.MustRegister(GaugeWebSocketClients)
}

// Handler serves the default registry in the Prometheus text format
func Handler() http.Handler {
	return promhttp.Handler()
}
