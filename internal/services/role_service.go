package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mrememisaac/communitywebsite/internal/apperr"
	"github.com/mrememisaac/communitywebsite/internal/cache"
	"github.com/mrememisaac/communitywebsite/internal/models"
	"github.com/mrememisaac/communitywebsite/internal/obs"
	"go.uber.org/zap"
)

// Role catalog paging
const (
	DefaultRolePageSize = 20
	MaxRolePageSize     = 100
)

// DefaultRoleCacheExpiration is the expiration applied to role cache entries.
var DefaultRoleCacheExpiration = cache.Expiration{
	Absolute: time.Hour,
	Sliding:  30 * time.Minute,
}

const roleCatalogKey = "role:all"

func roleIDKey(id int) string {
	return fmt.Sprintf("role:id:%d", id)
}

func roleNameKey(name string) string {
	return "role:name:" + models.NormalizeRoleName(name)
}

// roleKeys returns every cache key that can hold the given roles, plus the catalog key.
func roleKeys(roles ...*models.Role) []string {
	keys := make([]string, 0, 2*len(roles)+1)
	for _, role := range roles {
		if role.ID > 0 {
			keys = append(keys, roleIDKey(role.ID))
		}
		if role.Name != "" {
			keys = append(keys, roleNameKey(role.Name))
		}
	}
	return append(keys, roleCatalogKey)
}

// RoleRepository is the interface that wraps methods for Role table data access
type RoleRepository interface {
	// Method GetByID retrieves a role by ID.
	//
	// "roleID" parameter is used to retrieve a role by ID.
	//
	// If role with such ID does not exist, models.ErrNotFound is returned together with "nil" value.
	GetByID(ctx context.Context, roleID int) (*models.Role, error)
	// Method GetByName retrieves a role by name, ignoring case.
	//
	// "name" parameter is used to retrieve a role by name.
	//
	// If role with such name does not exist, models.ErrNotFound is returned together with "nil" value.
	GetByName(ctx context.Context, name string) (*models.Role, error)
	// Method GetAll retrieves one page of roles ordered by ID and the total number of roles.
	//
	// "page" parameter starts at 1.
	// "pageSize" parameter is the maximum number of roles returned.
	GetAll(ctx context.Context, page, pageSize int) ([]models.Role, int, error)
	// Method ExistsByName checks if a role other than "excludeID" already uses the name, ignoring case.
	//
	// If some error occurs during check, the error will be returned together with "false" value.
	ExistsByName(ctx context.Context, name string, excludeID int) (bool, error)
	// Method UsersInRole counts the users holding the role.
	UsersInRole(ctx context.Context, roleID int) (int, error)
	// Method Create inserts a new role and sets its ID.
	//
	// If the name is already taken, models.ErrAlreadyExists is returned.
	Create(ctx context.Context, role *models.Role) error
	// Method Update saves name and description of an existing role.
	Update(ctx context.Context, role *models.Role) error
	// Method Delete removes a role by ID.
	//
	// If users still hold the role, models.ErrInUse is returned.
	Delete(ctx context.Context, roleID int) error
}

// roleService is the role directory: a cached read path over the role store and
// the validated write path that keeps the cache coherent.
//
// Writers hold mu exclusively across invalidate, persist and invalidate. Cache
// misses repopulate the cache under the shared lock, so a load that raced a
// write can never put a stale entry back after the write returns.
type roleService struct {
	roleRepo   RoleRepository
	cache      cache.Store
	expiration cache.Expiration
	metrics    *obs.Metrics
	logger     *zap.Logger
	mu         sync.RWMutex
}

// NewRoleService creates a new role service
func NewRoleService(
	roleRepo RoleRepository,
	store cache.Store,
	expiration cache.Expiration,
	metrics *obs.Metrics,
	logger *zap.Logger,
) *roleService {
	return &roleService{
		roleRepo:   roleRepo,
		cache:      store,
		expiration: expiration,
		metrics:    metrics,
		logger:     logger,
	}
}

// GetByID returns a role by ID
func (s *roleService) GetByID(ctx context.Context, roleID int) (*models.RoleView, error) {
	if roleID <= 0 {
		return nil, apperr.Validation("role id must be a positive number")
	}

	return s.cachedView(ctx, roleIDKey(roleID), func() (*models.Role, error) {
		return s.roleRepo.GetByID(ctx, roleID)
	})
}

// GetByName returns a role by name, ignoring case
func (s *roleService) GetByName(ctx context.Context, name string) (*models.RoleView, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("name: cannot be blank.")
	}

	return s.cachedView(ctx, roleNameKey(name), func() (*models.Role, error) {
		return s.roleRepo.GetByName(ctx, name)
	})
}

// GetAll returns one page of the role catalog ordered by ID
//
// "page" defaults to 1 and "pageSize" to DefaultRolePageSize; pageSize is capped at MaxRolePageSize.
func (s *roleService) GetAll(ctx context.Context, page, pageSize int) (*models.RolePage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultRolePageSize
	}
	if pageSize > MaxRolePageSize {
		pageSize = MaxRolePageSize
	}

	catalog, hit := s.probe(ctx, roleCatalogKey)
	var views []models.RoleView
	if hit {
		if err := json.Unmarshal(catalog, &views); err != nil {
			s.logger.Warn("dropping unreadable role catalog cache entry", zap.Error(err))
			hit = false
		}
	}
	if !hit {
		var err error
		views, err = s.loadCatalog(ctx)
		if err != nil {
			return nil, err
		}
	}

	result := &models.RolePage{
		Items:    []models.RoleView{},
		Page:     page,
		PageSize: pageSize,
		Total:    len(views),
	}
	start := (page - 1) * pageSize
	if start < len(views) {
		end := min(start+pageSize, len(views))
		result.Items = views[start:end]
	}

	return result, nil
}

// Create adds a new role
func (s *roleService) Create(ctx context.Context, name, description string) (*models.RoleView, error) {
	req := models.CreateRoleRequest{Name: strings.TrimSpace(name), Description: strings.TrimSpace(description)}
	if err := validationError(s.logger, req.Validate()); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureNameAvailable(ctx, req.Name, 0); err != nil {
		return nil, err
	}

	role := &models.Role{Name: req.Name, Description: req.Description, CreatedAt: time.Now().UTC()}
	if err := s.invalidate(ctx, role); err != nil {
		return nil, err
	}
	if err := s.roleRepo.Create(ctx, role); err != nil {
		return nil, storageError(s.logger, "create role", "role", err)
	}
	if err := s.invalidate(ctx, role); err != nil {
		return nil, err
	}

	s.logger.Info("role created", zap.Int("roleID", role.ID), zap.String("name", role.Name))
	view := models.NewRoleView(role, 0)
	return &view, nil
}

// Update changes the name and/or description of a role; nil arguments are left unchanged
func (s *roleService) Update(ctx context.Context, roleID int, name, description *string) (*models.RoleView, error) {
	if roleID <= 0 {
		return nil, apperr.Validation("role id must be a positive number")
	}
	req := models.UpdateRoleRequest{Name: trimPtr(name), Description: trimPtr(description)}
	if err := validationError(s.logger, req.Validate()); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	role, err := s.roleRepo.GetByID(ctx, roleID)
	if err != nil {
		return nil, storageError(s.logger, "get role", "role", err)
	}
	previous := *role

	renaming := req.Name != nil && *req.Name != role.Name
	if renaming {
		if err := s.ensureNameAvailable(ctx, *req.Name, role.ID); err != nil {
			return nil, err
		}
		if role.IsProtected() {
			return nil, apperr.Invariant("protected role %q cannot be renamed", role.Name)
		}
		role.Name = *req.Name
	}
	if req.Description != nil {
		role.Description = *req.Description
	}

	members, err := s.roleRepo.UsersInRole(ctx, role.ID)
	if err != nil {
		return nil, storageError(s.logger, "count role members", "role", err)
	}

	if err := s.invalidate(ctx, &previous, role); err != nil {
		return nil, err
	}
	if err := s.roleRepo.Update(ctx, role); err != nil {
		return nil, storageError(s.logger, "update role", "role", err)
	}
	if err := s.invalidate(ctx, &previous, role); err != nil {
		return nil, err
	}

	s.logger.Info("role updated", zap.Int("roleID", role.ID), zap.String("name", role.Name))
	view := models.NewRoleView(role, members)
	return &view, nil
}

// Delete removes a role that is not protected and has no members
func (s *roleService) Delete(ctx context.Context, roleID int) error {
	if roleID <= 0 {
		return apperr.Validation("role id must be a positive number")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	role, err := s.roleRepo.GetByID(ctx, roleID)
	if err != nil {
		return storageError(s.logger, "get role", "role", err)
	}
	if role.IsProtected() {
		return apperr.Invariant("protected role %q cannot be deleted", role.Name)
	}

	members, err := s.roleRepo.UsersInRole(ctx, role.ID)
	if err != nil {
		return storageError(s.logger, "count role members", "role", err)
	}
	if members > 0 {
		return apperr.Invariant("role %q is still assigned to %d user(s)", role.Name, members)
	}

	if err := s.invalidate(ctx, role); err != nil {
		return err
	}
	if err := s.roleRepo.Delete(ctx, role.ID); err != nil {
		if errors.Is(err, models.ErrInUse) {
			return apperr.Invariant("role %q is still assigned to users", role.Name)
		}
		return storageError(s.logger, "delete role", "role", err)
	}
	if err := s.invalidate(ctx, role); err != nil {
		return err
	}

	s.logger.Info("role deleted", zap.Int("roleID", role.ID), zap.String("name", role.Name))
	return nil
}

// Invalidate drops the cache entries of the given roles and the catalog entry.
// Called after a role's membership changed so cached member counts are reloaded.
func (s *roleService) Invalidate(ctx context.Context, roles ...*models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invalidate(ctx, roles...)
}

func (s *roleService) invalidate(ctx context.Context, roles ...*models.Role) error {
	keys := roleKeys(roles...)
	if err := s.cache.Remove(ctx, keys...); err != nil {
		s.logger.Error("failed to invalidate role cache", zap.Error(err), zap.Strings("keys", keys))
		return apperr.System(err)
	}
	return nil
}

func (s *roleService) ensureNameAvailable(ctx context.Context, name string, excludeID int) error {
	exists, err := s.roleRepo.ExistsByName(ctx, name, excludeID)
	if err != nil {
		return storageError(s.logger, "check role name", "role", err)
	}
	if exists {
		return apperr.Conflict("role %q already exists", name)
	}
	return nil
}

// cachedView serves key from the cache, loading it through load on a miss.
func (s *roleService) cachedView(ctx context.Context, key string, load func() (*models.Role, error)) (*models.RoleView, error) {
	if raw, hit := s.probe(ctx, key); hit {
		var view models.RoleView
		if err := json.Unmarshal(raw, &view); err == nil {
			return &view, nil
		}
		s.logger.Warn("dropping unreadable role cache entry", zap.String("key", key))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	role, err := load()
	if err != nil {
		return nil, storageError(s.logger, "get role", "role", err)
	}
	members, err := s.roleRepo.UsersInRole(ctx, role.ID)
	if err != nil {
		return nil, storageError(s.logger, "count role members", "role", err)
	}

	view := models.NewRoleView(role, members)
	s.store(ctx, key, view)
	return &view, nil
}

// loadCatalog reads every role from storage and caches the full catalog.
func (s *roleService) loadCatalog(ctx context.Context) ([]models.RoleView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	views := []models.RoleView{}
	for page := 1; ; page++ {
		roles, total, err := s.roleRepo.GetAll(ctx, page, MaxRolePageSize)
		if err != nil {
			return nil, storageError(s.logger, "list roles", "role", err)
		}
		for i := range roles {
			members, err := s.roleRepo.UsersInRole(ctx, roles[i].ID)
			if err != nil {
				return nil, storageError(s.logger, "count role members", "role", err)
			}
			views = append(views, models.NewRoleView(&roles[i], members))
		}
		if len(roles) == 0 || len(views) >= total {
			break
		}
	}

	s.store(ctx, roleCatalogKey, views)
	return views, nil
}

// probe reads key from the cache. Cache failures are logged and treated as misses.
func (s *roleService) probe(ctx context.Context, key string) ([]byte, bool) {
	raw, hit, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("role cache read failed", zap.Error(err), zap.String("key", key))
		hit = false
	}
	s.metrics.ObserveRoleCache(hit)
	return raw, hit
}

func (s *roleService) store(ctx context.Context, key string, value any) {
	if err := cache.SetJSON(ctx, s.cache, key, value, s.expiration); err != nil {
		s.logger.Warn("role cache write failed", zap.Error(err), zap.String("key", key))
	}
}

func trimPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	return &trimmed
}
