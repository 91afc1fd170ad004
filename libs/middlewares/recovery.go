package middlewares

import (
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// RecoveryMiddleware recovers from panics, logs them with a stack trace and
// answers with a generic JSON 500 carrying the request ID
func RecoveryMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				// Let net/http abort the connection silently
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				requestID := GetRequestID(r.Context())
				logger.Error("panic recovered",
					zap.String("request_id", requestID),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Any("panic", rec),
					zap.Stack("stack"),
				)

				writeJSONError(w, http.StatusInternalServerError, "internal error", requestID)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
