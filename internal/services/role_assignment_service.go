package services

import (
	"context"
	"errors"
	"strings"

	"github.com/mrememisaac/communitywebsite/internal/apperr"
	"github.com/mrememisaac/communitywebsite/internal/models"
	"go.uber.org/zap"
)

// UserRoleRepository is the interface that wraps methods for UserRole table data access
type UserRoleRepository interface {
	// Method GetWithRoles retrieves a user by ID together with the roles the user holds.
	//
	// If user with such ID does not exist, models.ErrNotFound is returned together with "nil" value.
	GetWithRoles(ctx context.Context, userID int) (*models.User, error)
	// Method AddRole attaches a role to a user.
	//
	// If the user already holds the role, models.ErrAlreadyExists is returned.
	AddRole(ctx context.Context, userID, roleID int) error
	// Method RemoveRole detaches a role from a user.
	//
	// If the user does not hold the role, models.ErrNotFound is returned.
	RemoveRole(ctx context.Context, userID, roleID int) error
}

// RoleLookupRepository is the interface that wraps the role lookup used when assigning roles
type RoleLookupRepository interface {
	// Method GetByName retrieves a role by name, ignoring case.
	GetByName(ctx context.Context, name string) (*models.Role, error)
}

// RoleCacheInvalidator drops cached role entries after their membership changed
type RoleCacheInvalidator interface {
	Invalidate(ctx context.Context, roles ...*models.Role) error
}

// roleAssignmentService attaches roles to and detaches roles from users
type roleAssignmentService struct {
	userRepo  UserRoleRepository
	roleRepo  RoleLookupRepository
	directory RoleCacheInvalidator
	guard     *AdminGuard
	logger    *zap.Logger
}

// NewRoleAssignmentService creates a new role assignment service
func NewRoleAssignmentService(
	userRepo UserRoleRepository,
	roleRepo RoleLookupRepository,
	directory RoleCacheInvalidator,
	guard *AdminGuard,
	logger *zap.Logger,
) *roleAssignmentService {
	return &roleAssignmentService{
		userRepo:  userRepo,
		roleRepo:  roleRepo,
		directory: directory,
		guard:     guard,
		logger:    logger,
	}
}

// AssignRole attaches the named role to a user
func (s *roleAssignmentService) AssignRole(ctx context.Context, userID int, roleName string) error {
	user, role, err := s.load(ctx, userID, roleName)
	if err != nil {
		return err
	}
	if user.HasRole(role.Name) {
		return apperr.Conflict("user already has role %q", role.Name)
	}

	if err := s.userRepo.AddRole(ctx, user.ID, role.ID); err != nil {
		if errors.Is(err, models.ErrAlreadyExists) {
			return apperr.Conflict("user already has role %q", role.Name)
		}
		return storageError(s.logger, "add user role", "user", err)
	}
	s.refreshMemberCount(ctx, role)

	s.logger.Info("role assigned", zap.Int("userID", user.ID), zap.String("role", role.Name))
	return nil
}

// RemoveRole detaches the named role from a user
//
// Removing the Admin role is refused when no other active administrator remains.
func (s *roleAssignmentService) RemoveRole(ctx context.Context, userID int, roleName string) error {
	user, role, err := s.load(ctx, userID, roleName)
	if err != nil {
		return err
	}
	if !user.HasRole(role.Name) {
		return apperr.NotFound("user does not have role %q", role.Name)
	}

	remove := func() error {
		if err := s.userRepo.RemoveRole(ctx, user.ID, role.ID); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return apperr.NotFound("user does not have role %q", role.Name)
			}
			return storageError(s.logger, "remove user role", "user", err)
		}
		return nil
	}

	if models.NormalizeRoleName(role.Name) == models.NormalizeRoleName(models.RoleAdmin) {
		err = s.guard.Demote(ctx, "remove role", user.ID, remove)
	} else {
		err = remove()
	}
	if err != nil {
		return err
	}
	s.refreshMemberCount(ctx, role)

	s.logger.Info("role removed", zap.Int("userID", user.ID), zap.String("role", role.Name))
	return nil
}

// HasRole reports whether the user currently holds the named role, read from storage
func (s *roleAssignmentService) HasRole(ctx context.Context, userID int, roleName string) (bool, error) {
	user, err := s.userRepo.GetWithRoles(ctx, userID)
	if err != nil {
		return false, storageError(s.logger, "get user with roles", "user", err)
	}
	return user.HasRole(roleName), nil
}

// GetUserRoles returns the roles a user holds
func (s *roleAssignmentService) GetUserRoles(ctx context.Context, userID int) ([]models.Role, error) {
	if userID <= 0 {
		return nil, apperr.Validation("user id must be a positive number")
	}
	user, err := s.userRepo.GetWithRoles(ctx, userID)
	if err != nil {
		return nil, storageError(s.logger, "get user with roles", "user", err)
	}
	return user.Roles, nil
}

// refreshMemberCount drops the cached role so its member count is reloaded.
// Runs after the membership change is committed; failures are only logged.
func (s *roleAssignmentService) refreshMemberCount(ctx context.Context, role *models.Role) {
	if err := s.directory.Invalidate(ctx, role); err != nil {
		s.logger.Warn("failed to invalidate role cache after membership change",
			zap.Error(err),
			zap.String("role", role.Name),
		)
	}
}

func (s *roleAssignmentService) load(ctx context.Context, userID int, roleName string) (*models.User, *models.Role, error) {
	if userID <= 0 {
		return nil, nil, apperr.Validation("user id must be a positive number")
	}
	req := models.AssignRoleRequest{RoleName: strings.TrimSpace(roleName)}
	if err := validationError(s.logger, req.Validate()); err != nil {
		return nil, nil, err
	}

	user, err := s.userRepo.GetWithRoles(ctx, userID)
	if err != nil {
		return nil, nil, storageError(s.logger, "get user with roles", "user", err)
	}
	role, err := s.roleRepo.GetByName(ctx, req.RoleName)
	if err != nil {
		return nil, nil, storageError(s.logger, "get role", "role", err)
	}

	return user, role, nil
}
