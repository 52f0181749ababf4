// Package profiling exposes pprof and runtime statistics. The routes expose
// goroutine stacks and heap contents, so they are only mounted behind the
// admin token check.
package profiling

import (
	"net/http"
	"net/http/pprof"
	"runtime"

	"github.com/hippocampushub/hubportal/internal/web/response"
	"github.com/hippocampushub/hubportal/internal/web/router"
)

// Config holds profiling configuration
type Config struct {
	// Enabled determines if profiling is enabled
	Enabled bool

	// Path is the URL path prefix for profiling endpoints (default: "/debug/pprof")
	Path string

	// BlockRate sets the block profiling rate (0 = disabled)
	BlockRate int

	// MutexFraction sets the mutex profiling fraction (0 = disabled)
	MutexFraction int
}

// DefaultConfig returns default profiling configuration
func DefaultConfig() *Config {
	return &Config{
		Enabled: true,
		Path:    "/debug/pprof",
	}
}

// RegisterRoutes registers pprof profiling routes with a router
func RegisterRoutes(r *router.Router, config *Config) {
	if config == nil {
		config = DefaultConfig()
	}
	if !config.Enabled {
		return
	}

	runtime.SetBlockProfileRate(config.BlockRate)
	runtime.SetMutexProfileFraction(config.MutexFraction)

	r.Route(config.Path, func(r *router.Router) {
		r.Get("/", pprof.Index)
		r.Get("/cmdline", pprof.Cmdline)
		r.Get("/profile", pprof.Profile)
		r.Get("/symbol", pprof.Symbol)
		r.Post("/symbol", pprof.Symbol)
		r.Get("/trace", pprof.Trace)
		r.Get("/stats", StatsHandler())

		for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
			r.Handle(http.MethodGet, "/"+name, pprof.Handler(name))
		}
	})
}

// Stats is a point-in-time read of the Go runtime
type Stats struct {
	Goroutines int         `json:"goroutines"`
	Memory     MemoryStats `json:"memory"`
	NumCPU     int         `json:"num_cpu"`
}

// MemoryStats is the subset of runtime.MemStats worth watching
type MemoryStats struct {
	Alloc      uint64 `json:"alloc"`
	TotalAlloc uint64 `json:"total_alloc"`
	Sys        uint64 `json:"sys"`
	NumGC      uint32 `json:"num_gc"`
}

// RuntimeStats returns current runtime statistics
func RuntimeStats() Stats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return Stats{
		Goroutines: runtime.NumGoroutine(),
		Memory: MemoryStats{
			Alloc:      m.Alloc,
			TotalAlloc: m.TotalAlloc,
			Sys:        m.Sys,
			NumGC:      m.NumGC,
		},
		NumCPU: runtime.NumCPU(),
	}
}

// StatsHandler returns an HTTP handler that serves runtime statistics
func StatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, http.StatusOK, RuntimeStats())
	}
}
