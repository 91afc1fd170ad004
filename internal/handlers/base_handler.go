package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/mrememisaac/communitywebsite/internal/apperr"
	"github.com/mrememisaac/communitywebsite/libs/handlers"
	"github.com/mrememisaac/communitywebsite/libs/middlewares"
	"go.uber.org/zap"
)

var statusByKind = map[apperr.Kind]int{
	apperr.KindValidation:      http.StatusBadRequest,
	apperr.KindUnauthenticated: http.StatusUnauthorized,
	apperr.KindInactive:        http.StatusForbidden,
	apperr.KindNotFound:        http.StatusNotFound,
	apperr.KindConflict:        http.StatusConflict,
	apperr.KindInvariant:       http.StatusUnprocessableEntity,
	apperr.KindSystem:          http.StatusInternalServerError,
}

// StatusForError maps a service error to its HTTP status
func StatusForError(err error) int {
	if status, ok := statusByKind[apperr.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// BaseHandler adds service error translation to the shared base handler
type BaseHandler struct {
	handlers.BaseHandler
}

// RespondServiceError writes the status and public message for err.
// System errors are logged with their cause; the caller only sees "internal error".
func (h *BaseHandler) RespondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusForError(err)
	if status == http.StatusInternalServerError {
		h.Logger.Error("request failed",
			zap.String("request_id", middlewares.GetRequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	h.RespondError(w, r, status, apperr.PublicMessage(err))
}

// pathID parses a positive integer path parameter
func pathID(r *http.Request, name string) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s parameter", name)
	}
	return id, nil
}

// queryInt parses an optional integer query parameter, returning 0 when absent
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s parameter", name)
	}
	return n, nil
}
