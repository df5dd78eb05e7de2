package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/ayo6706/fx-wallet/internal/api/problem"
	"go.uber.org/zap"
)

// Recover turns a handler panic into a 500 problem response.
func Recover(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("panic recovered",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path),
					zap.String("method", r.Method),
					zap.String("trace_id", TraceIDFromContext(r.Context())),
					zap.ByteString("stack", debug.Stack()),
				)
				problem.Write(w, r, http.StatusInternalServerError, "internal-server-error", "unexpected server error")
			}()
			next.ServeHTTP(w, r)
		})
	}
}
