package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/mrememisaac/communitywebsite/internal/models"
	"github.com/mrememisaac/communitywebsite/internal/services"
	authMiddleware "github.com/mrememisaac/communitywebsite/libs/auth/middleware"
	"github.com/mrememisaac/communitywebsite/libs/handlers"
	"go.uber.org/zap"
)

// AuthService is the interface that wraps methods for authentication business logic.
type AuthService interface {
	// Method Register validates the new account, stores it with a hashed password and returns a session token.
	//
	// Validation failures, a taken username or email, and storage failures are returned as classified errors.
	Register(ctx context.Context, username, email, password string) (*services.AuthResult, error)
	// Method Login verifies the credentials and returns a session token.
	//
	// Unknown email and wrong password produce the same error; a deactivated account with the
	// right password produces a distinct inactive error.
	Login(ctx context.Context, email, password string) (*services.AuthResult, error)
}

// UserReader is the interface that wraps the lookup of a user with their roles.
type UserReader interface {
	// Method GetUser returns the user with their roles, or a not-found error.
	GetUser(ctx context.Context, userID int) (*models.User, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	BaseHandler
	authService AuthService
	users       UserReader
	// credentialLimit is the per-IP request budget per minute for register and login; 0 disables it
	credentialLimit int
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(
	authService AuthService,
	users UserReader,
	credentialLimit int,
	logger *zap.Logger,
) *AuthHandler {
	return &AuthHandler{
		BaseHandler:     BaseHandler{handlers.BaseHandler{Logger: logger}},
		authService:     authService,
		users:           users,
		credentialLimit: credentialLimit,
	}
}

// RegisterRoutes registers all auth handler routes
// Note: This assumes the router is already scoped to /api/v1
func (h *AuthHandler) RegisterRoutes(r chi.Router, auth func(http.Handler) http.Handler) {
	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if h.credentialLimit > 0 {
				r.Use(httprate.LimitByIP(h.credentialLimit, time.Minute))
			}
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
		})
		r.With(auth).Get("/me", h.Me)
	})
}

// Register handles POST /auth/register
// @Summary Register a new user
// @Description Create an account with username, email and password. The account is active immediately and receives the User role.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body models.RegisterRequest true "Registration data"
// @Success 201 {object} models.AuthResponse
// @Failure 400 {object} map[string]string "Invalid request body or field format"
// @Failure 409 {object} map[string]string "Username or email already taken"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.RespondDecodeError(w, r, err)
		return
	}

	result, err := h.authService.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		h.RespondServiceError(w, r, err)
		return
	}

	h.RespondJSON(w, http.StatusCreated, toAuthResponse(result))
}

// Login handles POST /auth/login
// @Summary Log in
// @Description Verify email and password and return a session token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body models.LoginRequest true "Credentials"
// @Success 200 {object} models.AuthResponse
// @Failure 400 {object} map[string]string "Invalid request body"
// @Failure 401 {object} map[string]string "Invalid credentials"
// @Failure 403 {object} map[string]string "Account inactive"
// @Failure 429 {object} map[string]string "Too many attempts"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.RespondDecodeError(w, r, err)
		return
	}

	result, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.RespondServiceError(w, r, err)
		return
	}

	h.RespondJSON(w, http.StatusOK, toAuthResponse(result))
}

// Me handles GET /auth/me
// @Summary Current user
// @Description Return the profile and role names of the authenticated user
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.UserProfile
// @Failure 401 {object} map[string]string "Missing, invalid or expired token"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /auth/me [get]
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := authMiddleware.GetUserID(r.Context())
	if !ok {
		h.RespondError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	user, err := h.users.GetUser(r.Context(), userID)
	if err != nil {
		h.RespondServiceError(w, r, err)
		return
	}

	h.RespondJSON(w, http.StatusOK, user.ToProfile())
}

func toAuthResponse(result *services.AuthResult) models.AuthResponse {
	return models.AuthResponse{
		UserID:    result.UserID,
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
	}
}
