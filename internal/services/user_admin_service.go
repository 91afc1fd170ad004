package services

import (
	"context"

	"github.com/mrememisaac/communitywebsite/internal/apperr"
	"github.com/mrememisaac/communitywebsite/internal/models"
	"go.uber.org/zap"
)

// UserAdminRepository is the interface that wraps the user data access used by administrators
type UserAdminRepository interface {
	// Method GetWithRoles retrieves a user by ID together with the roles the user holds.
	//
	// If user with such ID does not exist, models.ErrNotFound is returned together with "nil" value.
	GetWithRoles(ctx context.Context, userID int) (*models.User, error)
	// Method Update saves an existing user.
	Update(ctx context.Context, user *models.User) error
}

// userAdminService looks users up and deactivates or reactivates their accounts
type userAdminService struct {
	userRepo UserAdminRepository
	guard    *AdminGuard
	logger   *zap.Logger
}

// NewUserAdminService creates a new user admin service
func NewUserAdminService(userRepo UserAdminRepository, guard *AdminGuard, logger *zap.Logger) *userAdminService {
	return &userAdminService{
		userRepo: userRepo,
		guard:    guard,
		logger:   logger,
	}
}

// GetUser returns a user with the roles the user holds
func (s *userAdminService) GetUser(ctx context.Context, userID int) (*models.User, error) {
	if userID <= 0 {
		return nil, apperr.Validation("user id must be a positive number")
	}
	user, err := s.userRepo.GetWithRoles(ctx, userID)
	if err != nil {
		return nil, storageError(s.logger, "get user with roles", "user", err)
	}
	return user, nil
}

// SetActive deactivates or reactivates a user account
//
// Deactivating an administrator is refused when no other active administrator remains.
func (s *userAdminService) SetActive(ctx context.Context, userID int, active bool) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.IsActive == active {
		return nil
	}

	user.IsActive = active
	save := func() error {
		if err := s.userRepo.Update(ctx, user); err != nil {
			return storageError(s.logger, "update user", "user", err)
		}
		return nil
	}

	if !active && user.HasRole(models.RoleAdmin) {
		err = s.guard.Demote(ctx, "deactivate user", user.ID, save)
	} else {
		err = save()
	}
	if err != nil {
		return err
	}

	s.logger.Info("user active flag changed", zap.Int("userID", user.ID), zap.Bool("active", active))
	return nil
}
