package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/mrememisaac/communitywebsite/libs/middlewares"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerMiddleware(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		expectedLevel zapcore.Level
	}{
		{name: "success at info", status: http.StatusOK, expectedLevel: zapcore.InfoLevel},
		{name: "client error at warn", status: http.StatusForbidden, expectedLevel: zapcore.WarnLevel},
		{name: "server error at error", status: http.StatusInternalServerError, expectedLevel: zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.DebugLevel)

			r := chi.NewRouter()
			r.Use(middlewares.RequestIDMiddleware)
			r.Use(LoggerMiddleware(zap.New(core)))
			r.Get("/api/v1/admin/roles/{id}", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{}`))
			})

			req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/roles/3", nil)
			req.Header.Set(middlewares.RequestIDHeader, "req-7")
			r.ServeHTTP(httptest.NewRecorder(), req)

			require.Equal(t, 1, logs.Len())
			entry := logs.All()[0]
			assert.Equal(t, tt.expectedLevel, entry.Level)

			fields := entry.ContextMap()
			assert.Equal(t, "req-7", fields["request_id"])
			assert.Equal(t, "/api/v1/admin/roles/{id}", fields["route"])
			assert.Equal(t, int64(tt.status), fields["status"])
			assert.Equal(t, int64(2), fields["bytes"])
		})
	}
}
