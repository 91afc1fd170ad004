package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsProtectedRoleName(t *testing.T) {
	tests := []struct {
		name     string
		expected bool
	}{
		{name: "Admin", expected: true},
		{name: "admin", expected: true},
		{name: " ADMIN ", expected: true},
		{name: "Moderator", expected: true},
		{name: "User", expected: true},
		{name: "Editor", expected: false},
		{name: "SuperAdmin", expected: false},
		{name: "", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsProtectedRoleName(tt.name))
		})
	}
}

func TestNewRoleView(t *testing.T) {
	view := NewRoleView(&Role{ID: 1, Name: "Admin", Description: "Administrators"}, 3)
	assert.Equal(t, RoleView{ID: 1, Name: "Admin", Description: "Administrators", IsProtected: true, MemberCount: 3}, view)

	view = NewRoleView(&Role{ID: 9, Name: "Editor"}, 0)
	assert.False(t, view.IsProtected)
}

func TestUser_HasRole(t *testing.T) {
	user := &User{ID: 1, Roles: []Role{{ID: 1, Name: "Admin"}, {ID: 4, Name: "Editor"}}}

	assert.True(t, user.HasRole("admin"))
	assert.True(t, user.HasRole("Editor"))
	assert.False(t, user.HasRole("Moderator"))
	assert.Equal(t, 4, user.RoleByName("EDITOR").ID)
	assert.Nil(t, user.RoleByName("User"))
	assert.Equal(t, []string{"Admin", "Editor"}, user.RoleNames())
	assert.Equal(t, []string{"Admin", "Editor"}, user.ToProfile().Roles)
}

func TestRegisterRequest_Validate(t *testing.T) {
	tests := []struct {
		name          string
		req           RegisterRequest
		errorContains string
	}{
		{
			name: "valid",
			req:  RegisterRequest{Username: "alice", Email: "alice@x.com", Password: "Secur3Pass!"},
		},
		{
			name:          "missing username",
			req:           RegisterRequest{Email: "alice@x.com", Password: "Secur3Pass!"},
			errorContains: "username",
		},
		{
			name:          "username too long",
			req:           RegisterRequest{Username: strings.Repeat("a", 51), Email: "alice@x.com", Password: "Secur3Pass!"},
			errorContains: "username",
		},
		{
			name:          "username with spaces",
			req:           RegisterRequest{Username: "alice smith", Email: "alice@x.com", Password: "Secur3Pass!"},
			errorContains: "username",
		},
		{
			name:          "malformed email",
			req:           RegisterRequest{Username: "alice", Email: "not-an-email", Password: "Secur3Pass!"},
			errorContains: "email",
		},
		{
			name:          "weak password",
			req:           RegisterRequest{Username: "alice", Email: "alice@x.com", Password: "password"},
			errorContains: "password",
		},
		{
			name:          "password without special character",
			req:           RegisterRequest{Username: "alice", Email: "alice@x.com", Password: "Password123"},
			errorContains: "password",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.errorContains == "" {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorContains)
		})
	}
}

func TestRoleRequests_Validate(t *testing.T) {
	name := func(s string) *string { return &s }

	assert.NoError(t, CreateRoleRequest{Name: "Editor"}.Validate())
	assert.ErrorContains(t, CreateRoleRequest{Name: "E"}.Validate(), "name")
	assert.ErrorContains(t, CreateRoleRequest{Name: strings.Repeat("e", 51)}.Validate(), "name")
	assert.ErrorContains(t, CreateRoleRequest{Name: "Editor", Description: strings.Repeat("d", 256)}.Validate(), "description")

	assert.NoError(t, UpdateRoleRequest{}.Validate())
	assert.NoError(t, UpdateRoleRequest{Description: name("x")}.Validate())
	assert.ErrorContains(t, UpdateRoleRequest{Name: name("")}.Validate(), "name")
	assert.ErrorContains(t, UpdateRoleRequest{Name: name("x")}.Validate(), "name")

	assert.NoError(t, AssignRoleRequest{RoleName: "Admin"}.Validate())
	assert.ErrorContains(t, AssignRoleRequest{}.Validate(), "roleName")

	active := false
	assert.NoError(t, SetActiveRequest{Active: &active}.Validate())
	assert.ErrorContains(t, SetActiveRequest{}.Validate(), "active")
}
