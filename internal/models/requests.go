package models

import (
	"errors"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// Username limits
const (
	UsernameMinLength = 3
	UsernameMaxLength = 50
	EmailMaxLength    = 255
	PasswordMaxLength = 128
)

// passwordRules: at least 8 chars, uppercase, lowercase, number, special: !_?^&+-=|@#$%*
var passwordRules = []*regexp.Regexp{
	regexp.MustCompile(`.{8,}`),
	regexp.MustCompile(`[a-z]`),
	regexp.MustCompile(`[A-Z]`),
	regexp.MustCompile(`[0-9]`),
	regexp.MustCompile(`[!_?^&+\-=|@#$%*]`),
}

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.\-]+$`)

// ErrWeakPassword is the message returned for passwords failing the policy.
var ErrWeakPassword = errors.New("must be at least 8 characters long and contain an uppercase letter, a lowercase letter, a number and a special character")

func strongPassword(value any) error {
	password, _ := value.(string)
	for _, rule := range passwordRules {
		if !rule.MatchString(password) {
			return ErrWeakPassword
		}
	}
	return nil
}

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks field formats before any storage access.
func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username,
			validation.Required,
			validation.Length(UsernameMinLength, UsernameMaxLength),
			validation.Match(usernamePattern).Error("may only contain letters, digits, '.', '-' and '_'"),
		),
		validation.Field(&r.Email, validation.Required, validation.Length(0, EmailMaxLength), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(0, PasswordMaxLength), validation.By(strongPassword)),
	)
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks that both fields are present.
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(0, EmailMaxLength)),
		validation.Field(&r.Password, validation.Required, validation.Length(0, PasswordMaxLength)),
	)
}

// AuthResponse is returned after a successful registration or login
type AuthResponse struct {
	UserID    int       `json:"userId"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// CreateRoleRequest represents a request to create a role
type CreateRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Validate checks name and description length.
func (r CreateRoleRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(RoleNameMinLength, RoleNameMaxLength)),
		validation.Field(&r.Description, validation.Length(0, RoleDescriptionMaxLength)),
	)
}

// UpdateRoleRequest represents a partial role update; nil fields are left unchanged
type UpdateRoleRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Validate checks the provided fields.
func (r UpdateRoleRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.NilOrNotEmpty, validation.Length(RoleNameMinLength, RoleNameMaxLength)),
		validation.Field(&r.Description, validation.Length(0, RoleDescriptionMaxLength)),
	)
}

// AssignRoleRequest represents a request to attach a role to a user
type AssignRoleRequest struct {
	RoleName string `json:"roleName"`
}

// Validate checks the role name.
func (r AssignRoleRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RoleName, validation.Required, validation.Length(RoleNameMinLength, RoleNameMaxLength)),
	)
}

// SetActiveRequest represents a request to deactivate or reactivate a user
type SetActiveRequest struct {
	Active *bool `json:"active"`
}

// Validate checks that the flag was provided.
func (r SetActiveRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Active, validation.NotNil),
	)
}
