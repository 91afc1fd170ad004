package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mrememisaac/communitywebsite/internal/cache"
	"github.com/mrememisaac/communitywebsite/internal/models"
)

// fakeDB is an in-memory stand-in for the users, roles and user_roles tables
type fakeDB struct {
	mu          sync.Mutex
	users       map[int]models.User
	roles       map[int]models.Role
	memberships map[[2]int]time.Time
	nextUserID  int
	nextRoleID  int
	err         error
	calls       map[string]int
}

// newFakeDB creates a database seeded with the protected roles Admin(1), Moderator(2) and User(3)
func newFakeDB() *fakeDB {
	db := &fakeDB{
		users:       map[int]models.User{},
		roles:       map[int]models.Role{},
		memberships: map[[2]int]time.Time{},
		nextUserID:  1,
		nextRoleID:  1,
		calls:       map[string]int{},
	}
	for _, name := range []string{models.RoleAdmin, models.RoleModerator, models.RoleUser} {
		db.addRole(name, name+" role")
	}
	return db
}

func (db *fakeDB) addRole(name, description string) models.Role {
	role := models.Role{ID: db.nextRoleID, Name: name, Description: description, CreatedAt: time.Now()}
	db.roles[role.ID] = role
	db.nextRoleID++
	return role
}

// addUser inserts an active user holding the given roles and returns its ID
func (db *fakeDB) addUser(username string, roleNames ...string) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	user := models.User{ID: db.nextUserID, Username: username, Email: username + "@x.com", IsActive: true, CreatedAt: time.Now()}
	db.users[user.ID] = user
	db.nextUserID++
	for _, name := range roleNames {
		role, _ := db.roleByName(name)
		db.memberships[[2]int{user.ID, role.ID}] = time.Now()
	}
	return user.ID
}

func (db *fakeDB) call(name string) error {
	db.calls[name]++
	return db.err
}

func (db *fakeDB) callCount(name string) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.calls[name]
}

func (db *fakeDB) setErr(err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.err = err
}

func (db *fakeDB) roleByName(name string) (models.Role, bool) {
	for _, role := range db.roles {
		if strings.EqualFold(role.Name, name) {
			return role, true
		}
	}
	return models.Role{}, false
}

func (db *fakeDB) members(roleID int) int {
	count := 0
	for key := range db.memberships {
		if key[1] == roleID {
			count++
		}
	}
	return count
}

// membershipCount returns how many times userID holds roleName
func (db *fakeDB) membershipCount(userID int, roleName string) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	role, ok := db.roleByName(roleName)
	if !ok {
		return 0
	}
	if _, ok := db.memberships[[2]int{userID, role.ID}]; ok {
		return 1
	}
	return 0
}

// setActive flips a user's active flag directly in storage
func (db *fakeDB) setActive(userID int, active bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	user := db.users[userID]
	user.IsActive = active
	db.users[userID] = user
}

func (db *fakeDB) adminCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	role, _ := db.roleByName(models.RoleAdmin)
	return db.members(role.ID)
}

// fakeUserRepository implements the user repository interfaces over fakeDB
type fakeUserRepository struct {
	db *fakeDB
	// countDelay widens the window between reading the admin count and acting on it
	countDelay time.Duration
}

func (r *fakeUserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.call("ExistsByEmail"); err != nil {
		return false, err
	}
	for _, user := range r.db.users {
		if user.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeUserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.call("ExistsByUsername"); err != nil {
		return false, err
	}
	for _, user := range r.db.users {
		if user.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeUserRepository) Create(ctx context.Context, user *models.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.call("UserCreate"); err != nil {
		return err
	}
	for _, existing := range r.db.users {
		if existing.Email == user.Email || existing.Username == user.Username {
			return fmt.Errorf("user %w", models.ErrAlreadyExists)
		}
	}
	user.ID = r.db.nextUserID
	r.db.nextUserID++
	stored := *user
	stored.Roles = nil
	r.db.users[user.ID] = stored
	return nil
}

func (r *fakeUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.call("GetByEmail"); err != nil {
		return nil, err
	}
	for _, user := range r.db.users {
		if user.Email == email {
			return &user, nil
		}
	}
	return nil, fmt.Errorf("user %w", models.ErrNotFound)
}

func (r *fakeUserRepository) GetWithRoles(ctx context.Context, userID int) (*models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.call("GetWithRoles"); err != nil {
		return nil, err
	}
	user, ok := r.db.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %w", models.ErrNotFound)
	}
	user.Roles = []models.Role{}
	for key := range r.db.memberships {
		if key[0] == userID {
			user.Roles = append(user.Roles, r.db.roles[key[1]])
		}
	}
	sort.Slice(user.Roles, func(i, j int) bool { return user.Roles[i].ID < user.Roles[j].ID })
	return &user, nil
}

func (r *fakeUserRepository) Update(ctx context.Context, user *models.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.call("UserUpdate"); err != nil {
		return err
	}
	if _, ok := r.db.users[user.ID]; !ok {
		return fmt.Errorf("user %w", models.ErrNotFound)
	}
	stored := *user
	stored.Roles = nil
	r.db.users[user.ID] = stored
	return nil
}

func (r *fakeUserRepository) CountByRole(ctx context.Context, roleName string) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.call("CountByRole"); err != nil {
		return 0, err
	}
	role, ok := r.db.roleByName(roleName)
	if !ok {
		return 0, nil
	}
	return r.db.members(role.ID), nil
}

func (r *fakeUserRepository) CountActiveByRole(ctx context.Context, roleName string, excludeUserID int) (int, error) {
	r.db.mu.Lock()
	if err := r.db.call("CountActiveByRole"); err != nil {
		r.db.mu.Unlock()
		return 0, err
	}
	count := 0
	if role, ok := r.db.roleByName(roleName); ok {
		for key := range r.db.memberships {
			if key[1] == role.ID && key[0] != excludeUserID && r.db.users[key[0]].IsActive {
				count++
			}
		}
	}
	r.db.mu.Unlock()

	if r.countDelay > 0 {
		time.Sleep(r.countDelay)
	}
	return count, nil
}

func (r *fakeUserRepository) AddRole(ctx context.Context, userID, roleID int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.call("AddRole"); err != nil {
		return err
	}
	key := [2]int{userID, roleID}
	if _, ok := r.db.memberships[key]; ok {
		return fmt.Errorf("user role %w", models.ErrAlreadyExists)
	}
	r.db.memberships[key] = time.Now()
	return nil
}

func (r *fakeUserRepository) RemoveRole(ctx context.Context, userID, roleID int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.call("RemoveRole"); err != nil {
		return err
	}
	key := [2]int{userID, roleID}
	if _, ok := r.db.memberships[key]; !ok {
		return fmt.Errorf("user role %w", models.ErrNotFound)
	}
	delete(r.db.memberships, key)
	return nil
}

// fakeRoleRepository implements RoleRepository over fakeDB
type fakeRoleRepository struct {
	db *fakeDB
}

func (r *fakeRoleRepository) GetByID(ctx context.Context, roleID int) (*models.Role, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.call("RoleGetByID"); err != nil {
		return nil, err
	}
	role, ok := r.db.roles[roleID]
	if !ok {
		return nil, fmt.Errorf("role %w", models.ErrNotFound)
	}
	return &role, nil
}

func (r *fakeRoleRepository) GetByName(ctx context.Context, name string) (*models.Role, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.call("RoleGetByName"); err != nil {
		return nil, err
	}
	role, ok := r.db.roleByName(name)
	if !ok {
		return nil, fmt.Errorf("role %w", models.ErrNotFound)
	}
	return &role, nil
}

func (r *fakeRoleRepository) GetAll(ctx context.Context, page, pageSize int) ([]models.Role, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.call("RoleGetAll"); err != nil {
		return nil, 0, err
	}
	all := make([]models.Role, 0, len(r.db.roles))
	for _, role := range r.db.roles {
		all = append(all, role)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	start := (page - 1) * pageSize
	if start >= len(all) {
		return []models.Role{}, len(all), nil
	}
	end := min(start+pageSize, len(all))
	return all[start:end], len(all), nil
}

func (r *fakeRoleRepository) ExistsByName(ctx context.Context, name string, excludeID int) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.call("RoleExistsByName"); err != nil {
		return false, err
	}
	role, ok := r.db.roleByName(name)
	return ok && role.ID != excludeID, nil
}

func (r *fakeRoleRepository) UsersInRole(ctx context.Context, roleID int) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.call("UsersInRole"); err != nil {
		return 0, err
	}
	return r.db.members(roleID), nil
}

func (r *fakeRoleRepository) Create(ctx context.Context, role *models.Role) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.call("RoleCreate"); err != nil {
		return err
	}
	if _, ok := r.db.roleByName(role.Name); ok {
		return fmt.Errorf("role %w", models.ErrAlreadyExists)
	}
	created := r.db.addRole(role.Name, role.Description)
	role.ID = created.ID
	return nil
}

func (r *fakeRoleRepository) Update(ctx context.Context, role *models.Role) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.call("RoleUpdate"); err != nil {
		return err
	}
	stored, ok := r.db.roles[role.ID]
	if !ok {
		return fmt.Errorf("role %w", models.ErrNotFound)
	}
	stored.Name = role.Name
	stored.Description = role.Description
	r.db.roles[role.ID] = stored
	return nil
}

func (r *fakeRoleRepository) Delete(ctx context.Context, roleID int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.call("RoleDelete"); err != nil {
		return err
	}
	if _, ok := r.db.roles[roleID]; !ok {
		return fmt.Errorf("role %w", models.ErrNotFound)
	}
	if r.db.members(roleID) > 0 {
		return fmt.Errorf("role %w", models.ErrInUse)
	}
	delete(r.db.roles, roleID)
	return nil
}

// failingCache is a cache.Store whose operations fail on demand
type failingCache struct {
	getErr    error
	setErr    error
	removeErr error
}

func (c *failingCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, c.getErr
}

func (c *failingCache) Set(ctx context.Context, key string, value []byte, exp cache.Expiration) error {
	return c.setErr
}

func (c *failingCache) Remove(ctx context.Context, keys ...string) error {
	return c.removeErr
}
