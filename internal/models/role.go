package models

import (
	"strings"
	"time"
)

// Protected role names. These roles are seeded by migrations and can never be
// renamed or deleted.
const (
	RoleAdmin     = "Admin"
	RoleModerator = "Moderator"
	RoleUser      = "User"
)

// Role name length limits
const (
	RoleNameMinLength        = 2
	RoleNameMaxLength        = 50
	RoleDescriptionMaxLength = 255
)

var protectedRoleNames = map[string]struct{}{
	NormalizeRoleName(RoleAdmin):     {},
	NormalizeRoleName(RoleModerator): {},
	NormalizeRoleName(RoleUser):      {},
}

// NormalizeRoleName returns the lookup key for a role name.
func NormalizeRoleName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// IsProtectedRoleName reports whether name belongs to the fixed set of system roles.
func IsProtectedRoleName(name string) bool {
	_, ok := protectedRoleNames[NormalizeRoleName(name)]
	return ok
}

// Role represents a named permission group
type Role struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// IsProtected reports whether the role is one of the system roles.
func (r *Role) IsProtected() bool {
	return IsProtectedRoleName(r.Name)
}

// RoleView is the read-only projection of a role kept in the role cache and
// returned by the role directory.
type RoleView struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IsProtected bool   `json:"isProtected"`
	MemberCount int    `json:"memberCount"`
}

// NewRoleView projects a role together with its member count.
func NewRoleView(role *Role, memberCount int) RoleView {
	return RoleView{
		ID:          role.ID,
		Name:        role.Name,
		Description: role.Description,
		IsProtected: role.IsProtected(),
		MemberCount: memberCount,
	}
}

// RolePage is one page of the role catalog
type RolePage struct {
	Items    []RoleView `json:"items"`
	Page     int        `json:"page"`
	PageSize int        `json:"pageSize"`
	Total    int        `json:"total"`
}
