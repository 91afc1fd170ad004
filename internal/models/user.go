package models

import (
	"errors"
	"time"
)

// Repository sentinel errors
var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when an insert hits a unique constraint.
	ErrAlreadyExists = errors.New("already exists")
	// ErrInUse is returned when a delete is blocked by rows that still reference it.
	ErrInUse = errors.New("still in use")
)

// User represents a community member account
type User struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Never serialize password hash
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	// Roles is only populated by GetWithRoles
	Roles []Role `json:"roles,omitempty"`
}

// HasRole reports whether the user holds the role, comparing names case-insensitively.
func (u *User) HasRole(roleName string) bool {
	return u.RoleByName(roleName) != nil
}

// RoleByName returns the held role with the given name, or nil.
func (u *User) RoleByName(roleName string) *Role {
	key := NormalizeRoleName(roleName)
	for i := range u.Roles {
		if NormalizeRoleName(u.Roles[i].Name) == key {
			return &u.Roles[i]
		}
	}
	return nil
}

// RoleNames returns the names of the roles the user holds.
func (u *User) RoleNames() []string {
	names := make([]string, len(u.Roles))
	for i, role := range u.Roles {
		names[i] = role.Name
	}
	return names
}

// UserRole is the association between a user and a role
type UserRole struct {
	UserID     int       `json:"userId"`
	RoleID     int       `json:"roleId"`
	AssignedAt time.Time `json:"assignedAt"`
}

// UserProfile is the public view of a user returned by the API
type UserProfile struct {
	ID        int       `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	Roles     []string  `json:"roles"`
}

// ToProfile projects the user into its public view.
func (u *User) ToProfile() UserProfile {
	return UserProfile{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
		Roles:     u.RoleNames(),
	}
}
