package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hippocampushub/hubportal/internal/web/response"
)

// TimeoutConfig holds configuration for the timeout middleware
type TimeoutConfig struct {
	// Timeout is the maximum duration for a request
	Timeout time.Duration

	// ErrorMessage is the message returned on timeout
	ErrorMessage string
}

// Timeout creates a timeout middleware. WebSocket upgrades are not limited.
func Timeout(timeout time.Duration) Middleware {
	return TimeoutWithConfig(TimeoutConfig{
		Timeout:      timeout,
		ErrorMessage: "Request timeout",
	})
}

// timeoutWriter buffers nothing; it drops writes once the deadline fired
type timeoutWriter struct {
	w           http.ResponseWriter
	mu          sync.Mutex
	done        bool
	wroteHeader bool
}

func (tw *timeoutWriter) Write(b []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.done {
		return 0, http.ErrHandlerTimeout
	}
	tw.wroteHeader = true
	return tw.w.Write(b)
}

func (tw *timeoutWriter) WriteHeader(code int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.done || tw.wroteHeader {
		return
	}
	tw.wroteHeader = true
	tw.w.WriteHeader(code)
}

func (tw *timeoutWriter) Header() http.Header {
	return tw.w.Header()
}

// timeout marks the writer done and reports whether the handler had not
// started its response yet
func (tw *timeoutWriter) timeout() bool {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.done = true
	return !tw.wroteHeader
}

// TimeoutWithConfig creates a timeout middleware with custom configuration
func TimeoutWithConfig(config TimeoutConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isWebSocketUpgrade(r) || config.Timeout <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), config.Timeout)
			defer cancel()

			done := make(chan struct{})
			panicChan := make(chan interface{}, 1)
			tw := &timeoutWriter{w: w}
			r = r.WithContext(ctx)

			go func() {
				defer func() {
					if p := recover(); p != nil {
						panicChan <- p
					}
				}()

				next.ServeHTTP(tw, r)
				close(done)
			}()

			select {
			case <-done:
				return
			case p := <-panicChan:
				// re-raised for the recovery middleware
				panic(p)
			case <-ctx.Done():
				if tw.timeout() && errors.Is(ctx.Err(), context.DeadlineExceeded) {
					response.RenderError(w, http.StatusGatewayTimeout, errors.New(config.ErrorMessage))
				}
				return
			}
		})
	}
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
