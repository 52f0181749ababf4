package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	webcontext "github.com/hippocampushub/hubportal/internal/web/context"
	"github.com/hippocampushub/hubportal/internal/web/response"
)

// RecoveryConfig holds configuration for the recovery middleware
type RecoveryConfig struct {
	Logger *zap.Logger
	// EnableStackTrace adds the goroutine stack to the log entry
	EnableStackTrace bool
}

// Recovery creates a middleware that turns panics into 500 responses
func Recovery(logger *zap.Logger) Middleware {
	return RecoveryWithConfig(RecoveryConfig{Logger: logger, EnableStackTrace: true})
}

// RecoveryWithConfig creates a recovery middleware with custom configuration
func RecoveryWithConfig(config RecoveryConfig) Middleware {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				// ErrAbortHandler is the server's own signal to drop the response
				if p == http.ErrAbortHandler {
					panic(p)
				}

				fields := []zap.Field{
					zap.String("request_id", webcontext.GetRequestID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Error(panicError(p)),
				}
				if config.EnableStackTrace {
					fields = append(fields, zap.ByteString("stack", debug.Stack()))
				}
				logger.Error("panic recovered", fields...)

				response.RenderInternalError(w, nil)
			}()

			next.ServeHTTP(w, r)
		})
	}
}

func panicError(p interface{}) error {
	if err, ok := p.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", p)
}
