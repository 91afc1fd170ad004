package services

import (
	"context"
	"errors"

	"github.com/mrememisaac/communitywebsite/internal/models"
	"go.uber.org/zap"
)

// AdminBootstrapRepository is the user data access needed to seed the first administrator
type AdminBootstrapRepository interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	CountByRole(ctx context.Context, roleName string) (int, error)
}

// BootstrapAdmin grants the Admin role to the user registered with email when the
// system has no administrator yet. An empty email or an unknown user is skipped.
func BootstrapAdmin(
	ctx context.Context,
	users AdminBootstrapRepository,
	assigner DefaultRoleAssigner,
	email string,
	logger *zap.Logger,
) error {
	email = normalizeEmail(email)
	if email == "" {
		return nil
	}

	count, err := users.CountByRole(ctx, models.RoleAdmin)
	if err != nil {
		return storageError(logger, "count administrators", "role", err)
	}
	if count > 0 {
		logger.Debug("admin bootstrap skipped, an administrator exists", zap.Int("admins", count))
		return nil
	}

	user, err := users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			logger.Warn("admin bootstrap skipped, user is not registered", zap.String("email", email))
			return nil
		}
		return storageError(logger, "get user by email", "user", err)
	}

	if err := assigner.AssignRole(ctx, user.ID, models.RoleAdmin); err != nil {
		return err
	}

	logger.Info("bootstrap administrator granted", zap.Int("userID", user.ID))
	return nil
}
