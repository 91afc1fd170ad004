package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mrememisaac/communitywebsite/internal/apperr"
)

type contextKey string

const userIDKey contextKey = "userID"

// TokenIdentifier resolves a bearer token to the ID of an active user
type TokenIdentifier interface {
	IdentifyUserID(ctx context.Context, token string) (int, error)
}

// AuthMiddleware validates the bearer token and stores the user ID in the request context
func AuthMiddleware(identifier TokenIdentifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			userID, err := identifier.IdentifyUserID(r.Context(), token)
			if err != nil {
				if apperr.KindOf(err) == apperr.KindSystem {
					writeError(w, http.StatusInternalServerError, apperr.PublicMessage(err))
					return
				}
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// WithUserID returns a copy of ctx carrying the authenticated user ID
func WithUserID(ctx context.Context, userID int) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserID retrieves the user ID from context
func GetUserID(ctx context.Context) (int, bool) {
	userID, ok := ctx.Value(userIDKey).(int)
	return userID, ok
}

// bearerToken extracts the token from an "Authorization: Bearer <token>" header
func bearerToken(r *http.Request) string {
	scheme, token, found := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
