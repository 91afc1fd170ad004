package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mrememisaac/communitywebsite/libs/middlewares"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type payload struct {
	Name string `json:"name"`
}

func TestBaseHandler_DecodeJSON(t *testing.T) {
	h := &BaseHandler{Logger: zap.NewNop()}

	tests := []struct {
		name          string
		body          string
		limit         int64
		expectedName  string
		expectedError string
	}{
		{name: "valid object", body: `{"name":"Editors"}`, expectedName: "Editors"},
		{name: "empty body", body: ``, expectedError: "request body is required"},
		{name: "malformed json", body: `{"name":`, expectedError: "invalid request body"},
		{name: "unknown field", body: `{"name":"x","isAdmin":true}`, expectedError: "invalid request body"},
		{name: "trailing object", body: `{"name":"x"}{"name":"y"}`, expectedError: "unexpected data"},
		{name: "too large", body: `{"name":"` + strings.Repeat("x", 64) + `"}`, limit: 16, expectedError: ErrBodyTooLarge.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			if tt.limit > 0 {
				req.Body = http.MaxBytesReader(httptest.NewRecorder(), req.Body, tt.limit)
			}

			var dst payload
			err := h.DecodeJSON(req, &dst)

			if tt.expectedError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedError)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectedName, dst.Name)
		})
	}
}

func TestBaseHandler_RespondError(t *testing.T) {
	h := &BaseHandler{Logger: zap.NewNop()}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(middlewares.WithRequestID(req.Context(), "req-9"))
	w := httptest.NewRecorder()

	h.RespondError(w, req, http.StatusConflict, "role already exists")

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, map[string]string{"error": "role already exists", "requestId": "req-9"}, body)
}

func TestBaseHandler_RespondJSONWithoutBody(t *testing.T) {
	h := &BaseHandler{Logger: zap.NewNop()}
	w := httptest.NewRecorder()

	h.RespondJSON(w, http.StatusNoContent, nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}
