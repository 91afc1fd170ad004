package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/mrememisaac/communitywebsite/internal/models"
	"go.uber.org/zap"
)

// mysqlDuplicateEntry is the MySQL error number for unique key violations
const mysqlDuplicateEntry = 1062

// mysqlRowIsReferenced is the MySQL error number for a delete blocked by a foreign key
const mysqlRowIsReferenced = 1451

// isDuplicateEntry reports whether err is a MySQL unique key violation
func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}

// isRowReferenced reports whether err is a MySQL foreign key restriction on delete
func isRowReferenced(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlRowIsReferenced
}

const userColumns = `id, username, email, password_hash, is_active, created_at`

// userRepository implements the user store
type userRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sql.DB, logger *zap.Logger) *userRepository {
	return &userRepository{
		db:     db,
		logger: logger,
	}
}

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.IsActive,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (r *userRepository) getOne(ctx context.Context, where string, arg any) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where + ` LIMIT 1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %w", models.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("failed to get user", zap.Error(err), zap.String("where", where))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// GetByID retrieves a user by ID
func (r *userRepository) GetByID(ctx context.Context, userID int) (*models.User, error) {
	return r.getOne(ctx, "id = ?", userID)
}

// GetByEmail retrieves a user by email
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, "email = ?", email)
}

// GetByUsername retrieves a user by username
func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getOne(ctx, "username = ?", username)
}

// GetWithRoles retrieves a user by ID together with the roles the user holds
func (r *userRepository) GetWithRoles(ctx context.Context, userID int) (*models.User, error) {
	user, err := r.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT r.id, r.name, r.description, r.created_at
		FROM roles r
		INNER JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = ?
		ORDER BY r.id
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		r.logger.Error("failed to get user roles", zap.Error(err), zap.Int("userID", userID))
		return nil, fmt.Errorf("failed to get user roles: %w", err)
	}
	defer rows.Close()

	user.Roles = []models.Role{}
	for rows.Next() {
		var role models.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt); err != nil {
			r.logger.Error("failed to scan user role", zap.Error(err))
			return nil, fmt.Errorf("failed to scan user role: %w", err)
		}
		user.Roles = append(user.Roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user roles: %w", err)
	}

	return user, nil
}

// ExistsByEmail checks if a user exists with the given email
func (r *userRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)`

	var exists bool
	err := r.db.QueryRowContext(ctx, query, email).Scan(&exists)
	if err != nil {
		r.logger.Error("failed to check email existence", zap.Error(err))
		return false, fmt.Errorf("failed to check email existence: %w", err)
	}

	return exists, nil
}

// ExistsByUsername checks if a user exists with the given username
func (r *userRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE username = ?)`

	var exists bool
	err := r.db.QueryRowContext(ctx, query, username).Scan(&exists)
	if err != nil {
		r.logger.Error("failed to check username existence", zap.Error(err), zap.String("username", username))
		return false, fmt.Errorf("failed to check username existence: %w", err)
	}

	return exists, nil
}

// Create inserts a new user into the database and sets its ID
func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (username, email, password_hash, is_active)
		VALUES (?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query, user.Username, user.Email, user.PasswordHash, user.IsActive)
	if err != nil {
		if isDuplicateEntry(err) {
			return fmt.Errorf("user %w", models.ErrAlreadyExists)
		}
		r.logger.Error("failed to create user", zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		r.logger.Error("failed to get last insert id", zap.Error(err))
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	user.ID = int(id)
	return nil
}

// Update saves username, email, password hash and active flag of an existing user
func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users
		SET username = ?, email = ?, password_hash = ?, is_active = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, user.Username, user.Email, user.PasswordHash, user.IsActive, user.ID)
	if err != nil {
		if isDuplicateEntry(err) {
			return fmt.Errorf("user %w", models.ErrAlreadyExists)
		}
		r.logger.Error("failed to update user", zap.Error(err), zap.Int("userID", user.ID))
		return fmt.Errorf("failed to update user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// MySQL reports 0 affected rows when values are unchanged, so confirm the row exists
		if _, err := r.GetByID(ctx, user.ID); err != nil {
			return err
		}
	}

	return nil
}

// CountByRole counts users holding the role with the given name
func (r *userRepository) CountByRole(ctx context.Context, roleName string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM user_roles ur
		INNER JOIN roles r ON r.id = ur.role_id
		WHERE LOWER(r.name) = LOWER(?)
	`

	var count int
	if err := r.db.QueryRowContext(ctx, query, roleName).Scan(&count); err != nil {
		r.logger.Error("failed to count users by role", zap.Error(err), zap.String("role", roleName))
		return 0, fmt.Errorf("failed to count users by role: %w", err)
	}

	return count, nil
}

// CountActiveByRole counts active users holding the role with the given name,
// excluding the user with ID excludeUserID
func (r *userRepository) CountActiveByRole(ctx context.Context, roleName string, excludeUserID int) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM user_roles ur
		INNER JOIN roles r ON r.id = ur.role_id
		INNER JOIN users u ON u.id = ur.user_id
		WHERE LOWER(r.name) = LOWER(?) AND u.is_active = TRUE AND u.id <> ?
	`

	var count int
	if err := r.db.QueryRowContext(ctx, query, roleName, excludeUserID).Scan(&count); err != nil {
		r.logger.Error("failed to count active users by role", zap.Error(err), zap.String("role", roleName))
		return 0, fmt.Errorf("failed to count active users by role: %w", err)
	}

	return count, nil
}

// AddRole attaches a role to a user
func (r *userRepository) AddRole(ctx context.Context, userID, roleID int) error {
	query := `INSERT INTO user_roles (user_id, role_id) VALUES (?, ?)`

	if _, err := r.db.ExecContext(ctx, query, userID, roleID); err != nil {
		if isDuplicateEntry(err) {
			return fmt.Errorf("user role %w", models.ErrAlreadyExists)
		}
		r.logger.Error("failed to add user role", zap.Error(err), zap.Int("userID", userID), zap.Int("roleID", roleID))
		return fmt.Errorf("failed to add user role: %w", err)
	}

	return nil
}

// RemoveRole detaches a role from a user
func (r *userRepository) RemoveRole(ctx context.Context, userID, roleID int) error {
	query := `DELETE FROM user_roles WHERE user_id = ? AND role_id = ?`

	result, err := r.db.ExecContext(ctx, query, userID, roleID)
	if err != nil {
		r.logger.Error("failed to remove user role", zap.Error(err), zap.Int("userID", userID), zap.Int("roleID", roleID))
		return fmt.Errorf("failed to remove user role: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user role %w", models.ErrNotFound)
	}

	return nil
}
