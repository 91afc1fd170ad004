package middleware

import (
	"context"
	"net/http"

	"github.com/mrememisaac/communitywebsite/internal/apperr"
	"go.uber.org/zap"
)

// RoleChecker reports whether a user currently holds a role
type RoleChecker interface {
	HasRole(ctx context.Context, userID int, roleName string) (bool, error)
}

// RoleMiddleware allows the request only when the authenticated user holds roleName.
// It must run after AuthMiddleware. Membership is read from storage on every request,
// so a revoked role takes effect without waiting for the token to expire.
func RoleMiddleware(checker RoleChecker, roleName string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := GetUserID(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			allowed, err := checker.HasRole(r.Context(), userID, roleName)
			if err != nil {
				if apperr.KindOf(err) == apperr.KindSystem {
					writeError(w, http.StatusInternalServerError, apperr.PublicMessage(err))
					return
				}
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			if !allowed {
				logger.Info("role required",
					zap.Int("userID", userID),
					zap.String("role", roleName),
					zap.String("path", r.URL.Path),
				)
				writeError(w, http.StatusForbidden, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
