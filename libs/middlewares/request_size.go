package middlewares

import (
	"net/http"
)

// DefaultMaxRequestSize bounds JSON request bodies; the API carries only small credential and role payloads
const DefaultMaxRequestSize int64 = 1 << 20

// RequestSizeLimitMiddleware limits the size of request bodies.
// Requests announcing a larger Content-Length are refused up front; bodies
// without a length are cut off by http.MaxBytesReader while decoding.
func RequestSizeLimitMiddleware(maxRequestSize int64) func(http.Handler) http.Handler {
	if maxRequestSize <= 0 {
		maxRequestSize = DefaultMaxRequestSize
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxRequestSize {
				writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large", GetRequestID(r.Context()))
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxRequestSize)
			next.ServeHTTP(w, r)
		})
	}
}
