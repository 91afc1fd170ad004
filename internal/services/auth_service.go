package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mrememisaac/communitywebsite/internal/apperr"
	"github.com/mrememisaac/communitywebsite/internal/models"
	"github.com/mrememisaac/communitywebsite/internal/obs"
	"go.uber.org/zap"
)

// Authentication failures. Unknown email and wrong password share one message.
var (
	ErrInvalidCredentials = apperr.New(apperr.KindUnauthenticated, "invalid credentials")
	ErrAccountInactive    = apperr.New(apperr.KindInactive, "account inactive")
	ErrInvalidToken       = apperr.New(apperr.KindUnauthenticated, "invalid or expired token")
)

// dummyPassword is hashed once so logins for unknown emails still pay for a full derivation
const dummyPassword = "dummy-password-for-timing-equalization"

// UserRepository is the interface that wraps methods for User table data access
type UserRepository interface {
	// Method ExistsByEmail checks if a user with such email exists.
	//
	// "email" parameter is used to check if a user with such email exists.
	//
	// If some error occurs during check, the error will be returned together with "false" value.
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	// Method ExistsByUsername checks if a user with such username exists.
	//
	// "username" parameter is used to check if a user with such username exists.
	//
	// If some error occurs during check, the error will be returned together with "false" value.
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	// Method Create inserts a new user into the database.
	//
	// "user" parameter is used to create a new user; its ID is set on success.
	//
	// If the email or username is already taken, models.ErrAlreadyExists is returned.
	Create(ctx context.Context, user *models.User) error
	// Method GetByEmail retrieves a user by email.
	//
	// If user with such email does not exist, models.ErrNotFound is returned together with "nil" value.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// Method GetWithRoles retrieves a user by ID together with the roles the user holds.
	//
	// If user with such ID does not exist, models.ErrNotFound is returned together with "nil" value.
	GetWithRoles(ctx context.Context, userID int) (*models.User, error)
	// Method Update saves an existing user.
	Update(ctx context.Context, user *models.User) error
}

// CredentialHasher hashes and verifies passwords
type CredentialHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) bool
	NeedsRehash(encoded string) bool
}

// SessionTokenIssuer issues and validates session tokens
type SessionTokenIssuer interface {
	IssueWithExpiry(userID int, username, email string) (string, time.Time, error)
	Validate(token string) (int, bool)
}

// DefaultRoleAssigner attaches the default role to newly registered users
type DefaultRoleAssigner interface {
	AssignRole(ctx context.Context, userID int, roleName string) error
}

// AuthResult is returned by a successful registration or login
type AuthResult struct {
	UserID    int
	Token     string
	ExpiresAt time.Time
}

// authService registers users, verifies credentials and identifies token holders
type authService struct {
	userRepo  UserRepository
	hasher    CredentialHasher
	tokens    SessionTokenIssuer
	roles     DefaultRoleAssigner
	metrics   *obs.Metrics
	logger    *zap.Logger
	dummyHash string
}

// NewAuthService creates a new auth service
//
// "roles" may be nil, in which case new users are created without the default role.
func NewAuthService(
	userRepo UserRepository,
	hasher CredentialHasher,
	tokens SessionTokenIssuer,
	roles DefaultRoleAssigner,
	metrics *obs.Metrics,
	logger *zap.Logger,
) *authService {
	dummyHash, err := hasher.Hash(dummyPassword)
	if err != nil {
		logger.Warn("failed to prepare dummy password hash", zap.Error(err))
	}

	return &authService{
		userRepo:  userRepo,
		hasher:    hasher,
		tokens:    tokens,
		roles:     roles,
		metrics:   metrics,
		logger:    logger,
		dummyHash: dummyHash,
	}
}

// Register creates a new active user account and returns a session token for it
func (s *authService) Register(ctx context.Context, username, email, password string) (*AuthResult, error) {
	req := models.RegisterRequest{
		Username: strings.TrimSpace(username),
		Email:    normalizeEmail(email),
		Password: password,
	}
	if err := validationError(s.logger, req.Validate()); err != nil {
		return nil, err
	}

	if err := s.checkAvailability(ctx, req.Email, req.Username); err != nil {
		return nil, err
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		s.logger.Error("failed to hash password", zap.Error(err))
		return nil, apperr.System(err)
	}

	user := &models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: passwordHash,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, storageError(s.logger, "create user", "user", err)
	}

	if s.roles != nil {
		if err := s.roles.AssignRole(ctx, user.ID, models.RoleUser); err != nil {
			s.logger.Warn("failed to assign default role", zap.Error(err), zap.Int("userID", user.ID))
		}
	}

	result, err := s.issue(user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", zap.Int("userID", user.ID))
	return result, nil
}

// Login verifies email and password and returns a new session token
//
// Unknown email and wrong password both return ErrInvalidCredentials. An inactive
// account with a correct password returns ErrAccountInactive.
func (s *authService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	req := models.LoginRequest{Email: normalizeEmail(email), Password: password}
	if err := validationError(s.logger, req.Validate()); err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.hasher.Verify(req.Password, s.dummyHash)
			s.logger.Info("login failed", zap.String("reason", "unknown email"))
			s.metrics.ObserveLogin(obs.LoginInvalidCredentials)
			return nil, ErrInvalidCredentials
		}
		s.metrics.ObserveLogin(obs.LoginError)
		return nil, storageError(s.logger, "get user by email", "user", err)
	}

	if !s.hasher.Verify(req.Password, user.PasswordHash) {
		s.logger.Info("login failed", zap.String("reason", "wrong password"), zap.Int("userID", user.ID))
		s.metrics.ObserveLogin(obs.LoginInvalidCredentials)
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		s.logger.Info("login failed", zap.String("reason", "account inactive"), zap.Int("userID", user.ID))
		s.metrics.ObserveLogin(obs.LoginInactive)
		return nil, ErrAccountInactive
	}

	s.upgradeHash(ctx, user, req.Password)

	result, err := s.issue(user)
	if err != nil {
		s.metrics.ObserveLogin(obs.LoginError)
		return nil, err
	}

	s.metrics.ObserveLogin(obs.LoginSuccess)
	return result, nil
}

// Identify validates a session token and loads its user from storage
//
// The token only proves identity; active state and roles come from storage.
func (s *authService) Identify(ctx context.Context, token string) (*models.User, error) {
	userID, ok := s.tokens.Validate(token)
	if !ok {
		return nil, ErrInvalidToken
	}

	user, err := s.userRepo.GetWithRoles(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("token subject no longer exists", zap.Int("userID", userID))
			return nil, ErrInvalidToken
		}
		return nil, storageError(s.logger, "get user with roles", "user", err)
	}
	if !user.IsActive {
		s.logger.Info("token presented for inactive user", zap.Int("userID", userID))
		return nil, ErrInvalidToken
	}

	return user, nil
}

// IdentifyUserID resolves a session token to the ID of an active user.
func (s *authService) IdentifyUserID(ctx context.Context, token string) (int, error) {
	user, err := s.Identify(ctx, token)
	if err != nil {
		return 0, err
	}
	return user.ID, nil
}

// checkAvailability runs the email and username uniqueness checks concurrently
func (s *authService) checkAvailability(ctx context.Context, email, username string) error {
	checkErrors := make(chan error, 2)

	go func() {
		exists, err := s.userRepo.ExistsByEmail(ctx, email)
		if err != nil {
			checkErrors <- storageError(s.logger, "check email", "user", err)
			return
		}
		if exists {
			checkErrors <- apperr.Conflict("email already exists")
			return
		}
		checkErrors <- nil
	}()

	go func() {
		exists, err := s.userRepo.ExistsByUsername(ctx, username)
		if err != nil {
			checkErrors <- storageError(s.logger, "check username", "user", err)
			return
		}
		if exists {
			checkErrors <- apperr.Conflict("username already exists")
			return
		}
		checkErrors <- nil
	}()

	var first error
	for range 2 {
		if err := <-checkErrors; err != nil && first == nil {
			first = err
		}
	}
	return first
}

// upgradeHash re-hashes the password when it was stored with outdated parameters
func (s *authService) upgradeHash(ctx context.Context, user *models.User, password string) {
	if !s.hasher.NeedsRehash(user.PasswordHash) {
		return
	}
	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Warn("failed to rehash password", zap.Error(err), zap.Int("userID", user.ID))
		return
	}
	user.PasswordHash = passwordHash
	if err := s.userRepo.Update(ctx, user); err != nil {
		s.logger.Warn("failed to store rehashed password", zap.Error(err), zap.Int("userID", user.ID))
	}
}

func (s *authService) issue(user *models.User) (*AuthResult, error) {
	token, expiresAt, err := s.tokens.IssueWithExpiry(user.ID, user.Username, user.Email)
	if err != nil {
		s.logger.Error("failed to issue token", zap.Error(err), zap.Int("userID", user.ID))
		return nil, apperr.System(err)
	}
	return &AuthResult{UserID: user.ID, Token: token, ExpiresAt: expiresAt}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
