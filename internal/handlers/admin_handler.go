package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mrememisaac/communitywebsite/internal/models"
	"github.com/mrememisaac/communitywebsite/libs/handlers"
	"go.uber.org/zap"
)

// RoleService is the interface that wraps methods for role directory business logic.
type RoleService interface {
	// Method GetByID returns a role with its member count, or a not-found error.
	GetByID(ctx context.Context, roleID int) (*models.RoleView, error)
	// Method GetByName returns a role by case-insensitive name, or a not-found error.
	GetByName(ctx context.Context, name string) (*models.RoleView, error)
	// Method GetAll returns one page of the role catalog ordered by ID.
	//
	// Non-positive page and pageSize fall back to defaults; pageSize is capped.
	GetAll(ctx context.Context, page, pageSize int) (*models.RolePage, error)
	// Method Create adds a role. A duplicate name (case-insensitive) is a conflict.
	Create(ctx context.Context, name, description string) (*models.RoleView, error)
	// Method Update renames and/or re-describes a role; nil arguments are left unchanged.
	//
	// Protected roles cannot be renamed.
	Update(ctx context.Context, roleID int, name, description *string) (*models.RoleView, error)
	// Method Delete removes a role. Protected roles and roles with members are refused.
	Delete(ctx context.Context, roleID int) error
}

// RoleAssignmentService is the interface that wraps methods attaching roles to users.
type RoleAssignmentService interface {
	// Method AssignRole attaches the named role to the user. Holding it already is a conflict.
	AssignRole(ctx context.Context, userID int, roleName string) error
	// Method RemoveRole detaches the named role. Removing Admin from the last administrator is refused.
	RemoveRole(ctx context.Context, userID int, roleName string) error
}

// UserAdminService is the interface that wraps methods for user administration.
type UserAdminService interface {
	UserReader
	// Method SetActive deactivates or reactivates an account. The last administrator cannot be deactivated.
	SetActive(ctx context.Context, userID int, active bool) error
}

// AdminHandler handles administrator HTTP requests for roles and users.
// Access control is applied by the router; every route here assumes an authenticated Admin.
type AdminHandler struct {
	BaseHandler
	roles       RoleService
	assignments RoleAssignmentService
	users       UserAdminService
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(
	roles RoleService,
	assignments RoleAssignmentService,
	users UserAdminService,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		BaseHandler: BaseHandler{handlers.BaseHandler{Logger: logger}},
		roles:       roles,
		assignments: assignments,
		users:       users,
	}
}

// RegisterRoutes registers all admin handler routes
// Note: This assumes the router is already scoped to /api/v1
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Route("/roles", func(r chi.Router) {
			r.Get("/", h.ListRoles)
			r.Post("/", h.CreateRole)
			r.Get("/name/{name}", h.GetRoleByName)
			r.Get("/{id}", h.GetRole)
			r.Put("/{id}", h.UpdateRole)
			r.Delete("/{id}", h.DeleteRole)
		})
		r.Route("/users/{id}", func(r chi.Router) {
			r.Get("/", h.GetUser)
			r.Post("/roles", h.AssignRole)
			r.Delete("/roles/{roleName}", h.RemoveRole)
			r.Put("/active", h.SetActive)
		})
	})
}

// ListRoles handles GET /admin/roles
// @Summary List roles
// @Description Get one page of roles ordered by ID, with member counts
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number, default 1"
// @Param pageSize query int false "Page size, default 20, max 100"
// @Success 200 {object} models.RolePage
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /admin/roles [get]
func (h *AdminHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page")
	if err != nil {
		h.RespondError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	pageSize, err := queryInt(r, "pageSize")
	if err != nil {
		h.RespondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.roles.GetAll(r.Context(), page, pageSize)
	if err != nil {
		h.RespondServiceError(w, r, err)
		return
	}

	h.RespondJSON(w, http.StatusOK, result)
}

// GetRole handles GET /admin/roles/{id}
// @Summary Get role by ID
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param id path int true "Role ID"
// @Success 200 {object} models.RoleView
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /admin/roles/{id} [get]
func (h *AdminHandler) GetRole(w http.ResponseWriter, r *http.Request) {
	roleID, err := pathID(r, "id")
	if err != nil {
		h.RespondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	role, err := h.roles.GetByID(r.Context(), roleID)
	if err != nil {
		h.RespondServiceError(w, r, err)
		return
	}

	h.RespondJSON(w, http.StatusOK, role)
}

// GetRoleByName handles GET /admin/roles/name/{name}
// @Summary Get role by name
// @Description Case-insensitive lookup
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param name path string true "Role name"
// @Success 200 {object} models.RoleView
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /admin/roles/name/{name} [get]
func (h *AdminHandler) GetRoleByName(w http.ResponseWriter, r *http.Request) {
	role, err := h.roles.GetByName(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.RespondServiceError(w, r, err)
		return
	}

	h.RespondJSON(w, http.StatusOK, role)
}

// CreateRole handles POST /admin/roles
// @Summary Create role
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.CreateRoleRequest true "Role data"
// @Success 201 {object} models.RoleView
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string "Role name already exists"
// @Failure 500 {object} map[string]string
// @Router /admin/roles [post]
func (h *AdminHandler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req models.CreateRoleRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.RespondDecodeError(w, r, err)
		return
	}

	role, err := h.roles.Create(r.Context(), req.Name, req.Description)
	if err != nil {
		h.RespondServiceError(w, r, err)
		return
	}

	h.RespondJSON(w, http.StatusCreated, role)
}

// UpdateRole handles PUT /admin/roles/{id}
// @Summary Update role
// @Description Rename and/or re-describe a role. Omitted fields are left unchanged. Protected roles cannot be renamed.
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Role ID"
// @Param request body models.UpdateRoleRequest true "Fields to change"
// @Success 200 {object} models.RoleView
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string "Role name already exists"
// @Failure 422 {object} map[string]string "Protected role"
// @Failure 500 {object} map[string]string
// @Router /admin/roles/{id} [put]
func (h *AdminHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	roleID, err := pathID(r, "id")
	if err != nil {
		h.RespondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	var req models.UpdateRoleRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.RespondDecodeError(w, r, err)
		return
	}

	role, err := h.roles.Update(r.Context(), roleID, req.Name, req.Description)
	if err != nil {
		h.RespondServiceError(w, r, err)
		return
	}

	h.RespondJSON(w, http.StatusOK, role)
}

// DeleteRole handles DELETE /admin/roles/{id}
// @Summary Delete role
// @Description Protected roles and roles that still have members cannot be deleted
// @Tags admin
// @Security BearerAuth
// @Param id path int true "Role ID"
// @Success 204 "Role deleted"
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 422 {object} map[string]string "Protected role or role in use"
// @Failure 500 {object} map[string]string
// @Router /admin/roles/{id} [delete]
func (h *AdminHandler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	roleID, err := pathID(r, "id")
	if err != nil {
		h.RespondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.roles.Delete(r.Context(), roleID); err != nil {
		h.RespondServiceError(w, r, err)
		return
	}

	h.RespondJSON(w, http.StatusNoContent, nil)
}

// GetUser handles GET /admin/users/{id}
// @Summary Get user
// @Description Get a user's profile, active flag and role names
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Success 200 {object} models.UserProfile
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /admin/users/{id} [get]
func (h *AdminHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		h.RespondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.users.GetUser(r.Context(), userID)
	if err != nil {
		h.RespondServiceError(w, r, err)
		return
	}

	h.RespondJSON(w, http.StatusOK, user.ToProfile())
}

// AssignRole handles POST /admin/users/{id}/roles
// @Summary Assign role
// @Tags admin
// @Accept json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Param request body models.AssignRoleRequest true "Role to assign"
// @Success 204 "Role assigned"
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string "Unknown user or role"
// @Failure 409 {object} map[string]string "User already has the role"
// @Failure 500 {object} map[string]string
// @Router /admin/users/{id}/roles [post]
func (h *AdminHandler) AssignRole(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		h.RespondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	var req models.AssignRoleRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.RespondDecodeError(w, r, err)
		return
	}

	if err := h.assignments.AssignRole(r.Context(), userID, req.RoleName); err != nil {
		h.RespondServiceError(w, r, err)
		return
	}

	h.RespondJSON(w, http.StatusNoContent, nil)
}

// RemoveRole handles DELETE /admin/users/{id}/roles/{roleName}
// @Summary Remove role
// @Description The Admin role cannot be removed from the last administrator
// @Tags admin
// @Security BearerAuth
// @Param id path int true "User ID"
// @Param roleName path string true "Role name"
// @Success 204 "Role removed"
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string "Unknown user or role not held"
// @Failure 422 {object} map[string]string "Last administrator"
// @Failure 500 {object} map[string]string
// @Router /admin/users/{id}/roles/{roleName} [delete]
func (h *AdminHandler) RemoveRole(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		h.RespondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.assignments.RemoveRole(r.Context(), userID, chi.URLParam(r, "roleName")); err != nil {
		h.RespondServiceError(w, r, err)
		return
	}

	h.RespondJSON(w, http.StatusNoContent, nil)
}

// SetActive handles PUT /admin/users/{id}/active
// @Summary Deactivate or reactivate user
// @Description Deactivated users cannot log in and their tokens stop working. The last administrator cannot be deactivated.
// @Tags admin
// @Accept json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Param request body models.SetActiveRequest true "New active flag"
// @Success 204 "Active flag updated"
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 422 {object} map[string]string "Last administrator"
// @Failure 500 {object} map[string]string
// @Router /admin/users/{id}/active [put]
func (h *AdminHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		h.RespondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	var req models.SetActiveRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.RespondDecodeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.RespondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.users.SetActive(r.Context(), userID, *req.Active); err != nil {
		h.RespondServiceError(w, r, err)
		return
	}

	h.RespondJSON(w, http.StatusNoContent, nil)
}
