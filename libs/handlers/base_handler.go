package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/mrememisaac/communitywebsite/libs/middlewares"
	"go.uber.org/zap"
)

// ErrBodyTooLarge is returned by DecodeJSON when the body exceeds the request size limit
var ErrBodyTooLarge = errors.New("request body too large")

// BaseHandler provides common handler functionality
type BaseHandler struct {
	Logger *zap.Logger
}

// RespondJSON sends a JSON response. A nil data writes the status with no body.
func (h *BaseHandler) RespondJSON(w http.ResponseWriter, status int, data any) {
	if data == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.Logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

// RespondError sends an error JSON response tagged with the request ID
func (h *BaseHandler) RespondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	body := map[string]string{"error": message}
	if requestID := middlewares.GetRequestID(r.Context()); requestID != "" {
		body["requestId"] = requestID
	}
	h.RespondJSON(w, status, body)
}

// DecodeJSON decodes a single JSON object from the request body into dst.
// Unknown fields and trailing data are rejected.
func (h *BaseHandler) DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytesErr):
			return ErrBodyTooLarge
		case errors.Is(err, io.EOF):
			return errors.New("request body is required")
		default:
			return fmt.Errorf("invalid request body: %w", err)
		}
	}
	if dec.More() {
		return errors.New("invalid request body: unexpected data after JSON object")
	}
	return nil
}

// RespondDecodeError answers a DecodeJSON failure with 413 or 400
func (h *BaseHandler) RespondDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrBodyTooLarge) {
		h.RespondError(w, r, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	h.RespondError(w, r, http.StatusBadRequest, err.Error())
}
