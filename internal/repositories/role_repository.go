package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mrememisaac/communitywebsite/internal/models"
	"go.uber.org/zap"
)

const roleColumns = `id, name, description, created_at`

// roleRepository implements the role store
type roleRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(db *sql.DB, logger *zap.Logger) *roleRepository {
	return &roleRepository{
		db:     db,
		logger: logger,
	}
}

func scanRole(row interface{ Scan(...any) error }) (*models.Role, error) {
	role := &models.Role{}
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt); err != nil {
		return nil, err
	}
	return role, nil
}

// GetByID retrieves a role by ID
func (r *roleRepository) GetByID(ctx context.Context, roleID int) (*models.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE id = ? LIMIT 1`

	role, err := scanRole(r.db.QueryRowContext(ctx, query, roleID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("role %w", models.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("failed to get role by id", zap.Error(err), zap.Int("roleID", roleID))
		return nil, fmt.Errorf("failed to get role by id: %w", err)
	}

	return role, nil
}

// GetByName retrieves a role by name, ignoring case
func (r *roleRepository) GetByName(ctx context.Context, name string) (*models.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE LOWER(name) = LOWER(?) LIMIT 1`

	role, err := scanRole(r.db.QueryRowContext(ctx, query, name))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("role %w", models.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("failed to get role by name", zap.Error(err), zap.String("name", name))
		return nil, fmt.Errorf("failed to get role by name: %w", err)
	}

	return role, nil
}

// GetAll retrieves one page of roles ordered by ID together with the total role count
//
// "page" starts at 1, "pageSize" is the number of roles per page.
func (r *roleRepository) GetAll(ctx context.Context, page, pageSize int) ([]models.Role, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM roles`).Scan(&total); err != nil {
		r.logger.Error("failed to count roles", zap.Error(err))
		return nil, 0, fmt.Errorf("failed to count roles: %w", err)
	}

	query := `SELECT ` + roleColumns + ` FROM roles ORDER BY id LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, query, pageSize, (page-1)*pageSize)
	if err != nil {
		r.logger.Error("failed to get roles", zap.Error(err))
		return nil, 0, fmt.Errorf("failed to get roles: %w", err)
	}
	defer rows.Close()

	roles := []models.Role{}
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			r.logger.Error("failed to scan role", zap.Error(err))
			return nil, 0, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, *role)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate roles: %w", err)
	}

	return roles, total, nil
}

// ExistsByName checks whether another role already uses the name, ignoring case
//
// "excludeID" skips the role being renamed; pass 0 when creating.
func (r *roleRepository) ExistsByName(ctx context.Context, name string, excludeID int) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM roles WHERE LOWER(name) = LOWER(?) AND id <> ?)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, name, excludeID).Scan(&exists); err != nil {
		r.logger.Error("failed to check role name existence", zap.Error(err), zap.String("name", name))
		return false, fmt.Errorf("failed to check role name existence: %w", err)
	}

	return exists, nil
}

// UsersInRole counts the users holding the role
func (r *roleRepository) UsersInRole(ctx context.Context, roleID int) (int, error) {
	query := `SELECT COUNT(*) FROM user_roles WHERE role_id = ?`

	var count int
	if err := r.db.QueryRowContext(ctx, query, roleID).Scan(&count); err != nil {
		r.logger.Error("failed to count role members", zap.Error(err), zap.Int("roleID", roleID))
		return 0, fmt.Errorf("failed to count role members: %w", err)
	}

	return count, nil
}

// Create inserts a new role and sets its ID
func (r *roleRepository) Create(ctx context.Context, role *models.Role) error {
	query := `INSERT INTO roles (name, description) VALUES (?, ?)`

	result, err := r.db.ExecContext(ctx, query, role.Name, role.Description)
	if err != nil {
		if isDuplicateEntry(err) {
			return fmt.Errorf("role %w", models.ErrAlreadyExists)
		}
		r.logger.Error("failed to create role", zap.Error(err))
		return fmt.Errorf("failed to create role: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		r.logger.Error("failed to get last insert id", zap.Error(err))
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	role.ID = int(id)
	return nil
}

// Update saves the name and description of an existing role
func (r *roleRepository) Update(ctx context.Context, role *models.Role) error {
	query := `UPDATE roles SET name = ?, description = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, role.Name, role.Description, role.ID)
	if err != nil {
		if isDuplicateEntry(err) {
			return fmt.Errorf("role %w", models.ErrAlreadyExists)
		}
		r.logger.Error("failed to update role", zap.Error(err), zap.Int("roleID", role.ID))
		return fmt.Errorf("failed to update role: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		if _, err := r.GetByID(ctx, role.ID); err != nil {
			return err
		}
	}

	return nil
}

// Delete removes a role by ID
func (r *roleRepository) Delete(ctx context.Context, roleID int) error {
	query := `DELETE FROM roles WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, roleID)
	if err != nil {
		if isRowReferenced(err) {
			return fmt.Errorf("role %w", models.ErrInUse)
		}
		r.logger.Error("failed to delete role", zap.Error(err), zap.Int("roleID", roleID))
		return fmt.Errorf("failed to delete role: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("role %w", models.ErrNotFound)
	}

	return nil
}
