package middleware

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	webcontext "github.com/hippocampushub/hubportal/internal/web/context"
)

// SessionParam is the route parameter naming a view session
const SessionParam = "sessionID"

// LoggingConfig holds configuration for the logging middleware
type LoggingConfig struct {
	// Logger receives one entry per request
	Logger func(LogEntry)
	// SkipPaths is a list of paths to skip logging
	SkipPaths []string
}

// LogEntry represents a log entry for a request
type LogEntry struct {
	RequestID    string
	SessionID    string
	Method       string
	Path         string
	Route        string
	StatusCode   int
	Duration     time.Duration
	BytesWritten int
	RemoteAddr   string
	UserAgent    string
}

// ZapLogger adapts a zap logger to the LogEntry callback. Server errors log
// at error level, client errors at warn, the rest at info.
func ZapLogger(logger *zap.Logger) func(LogEntry) {
	return func(e LogEntry) {
		fields := []zap.Field{
			zap.String("request_id", e.RequestID),
			zap.String("method", e.Method),
			zap.String("path", e.Path),
			zap.String("route", e.Route),
			zap.Int("status", e.StatusCode),
			zap.Duration("duration", e.Duration),
			zap.Int("bytes", e.BytesWritten),
			zap.String("remote_addr", e.RemoteAddr),
			zap.String("user_agent", e.UserAgent),
		}
		if e.SessionID != "" {
			fields = append(fields, zap.String("session", e.SessionID))
		}

		switch {
		case e.StatusCode >= 500:
			logger.Error("request", fields...)
		case e.StatusCode >= 400:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}

// Logging creates an access log middleware writing to logger
func Logging(logger *zap.Logger, skipPaths ...string) Middleware {
	return LoggingWithConfig(LoggingConfig{
		Logger:    ZapLogger(logger),
		SkipPaths: skipPaths,
	})
}

// LoggingWithConfig creates a logging middleware with custom configuration
func LoggingWithConfig(config LoggingConfig) Middleware {
	skip := make(map[string]bool, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skip[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip[r.URL.Path] || config.Logger == nil {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rw := wrapWriter(w)

			next.ServeHTTP(rw, r)

			config.Logger(LogEntry{
				RequestID:    webcontext.GetRequestID(r.Context()),
				SessionID:    chi.URLParam(r, SessionParam),
				Method:       r.Method,
				Path:         r.URL.Path,
				Route:        routePattern(r),
				StatusCode:   rw.statusCode,
				Duration:     time.Since(start),
				BytesWritten: rw.bytesWritten,
				RemoteAddr:   r.RemoteAddr,
				UserAgent:    r.UserAgent(),
			})
		})
	}
}

// routePattern returns the matched chi pattern, or "unmatched"
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// responseWriter wraps http.ResponseWriter to capture status code and bytes
// written. It passes Hijack and Flush through for WebSocket upgrades.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
	wroteHeader  bool
}

func wrapWriter(w http.ResponseWriter) *responseWriter {
	if rw, ok := w.(*responseWriter); ok {
		return rw
	}
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

// WriteHeader captures the status code
func (rw *responseWriter) WriteHeader(statusCode int) {
	if !rw.wroteHeader {
		rw.statusCode = statusCode
		rw.wroteHeader = true
		rw.ResponseWriter.WriteHeader(statusCode)
	}
}

// Write captures bytes written
func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// Hijack lets the WebSocket upgrader take over the connection
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	rw.wroteHeader = true
	return h.Hijack()
}

// Flush implements http.Flusher
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
