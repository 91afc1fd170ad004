package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mrememisaac/communitywebsite/internal/apperr"
	"github.com/mrememisaac/communitywebsite/internal/models"
	"github.com/mrememisaac/communitywebsite/libs/auth/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testPassword = "Secur3Pass!"

// countingHasher records how many verifications were performed
type countingHasher struct {
	CredentialHasher
	verifications atomic.Int32
}

func (h *countingHasher) Verify(password, encoded string) bool {
	h.verifications.Add(1)
	return h.CredentialHasher.Verify(password, encoded)
}

// failingIssuer cannot sign tokens
type failingIssuer struct{}

func (failingIssuer) IssueWithExpiry(userID int, username, email string) (string, time.Time, error) {
	return "", time.Time{}, errors.New("signing key unavailable")
}

func (failingIssuer) Validate(token string) (int, bool) {
	return 0, false
}

func TestNewAuthService(t *testing.T) {
	env := setupTestEnv(t)

	assert.NotNil(t, env.auth)
	assert.Equal(t, env.users, env.auth.userRepo)
	assert.True(t, env.hasher.Verify(dummyPassword, env.auth.dummyHash))
}

func TestAuthService_EndToEnd(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t)

	registered, err := env.auth.Register(ctx, "alice", "alice@x.com", testPassword)
	require.NoError(t, err)
	assert.Equal(t, 1, registered.UserID)
	assert.NotEmpty(t, registered.Token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), registered.ExpiresAt, time.Minute)

	user, err := env.auth.Identify(ctx, registered.Token)
	require.NoError(t, err)
	assert.Equal(t, 1, user.ID)

	_, err = env.auth.Login(ctx, "alice@x.com", "wrong")
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
	assert.Equal(t, "invalid credentials", apperr.PublicMessage(err))

	loggedIn, err := env.auth.Login(ctx, "alice@x.com", testPassword)
	require.NoError(t, err)
	assert.Equal(t, 1, loggedIn.UserID)
	assert.NotEqual(t, registered.Token, loggedIn.Token)

	require.NoError(t, env.userAdmin.SetActive(ctx, 1, false))

	_, err = env.auth.Login(ctx, "alice@x.com", testPassword)
	assert.ErrorIs(t, err, apperr.ErrInactive)
	assert.NotErrorIs(t, err, apperr.ErrUnauthenticated)
	assert.Equal(t, "account inactive", apperr.PublicMessage(err))
}

func TestAuthService_Register(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name          string
		username      string
		email         string
		password      string
		setup         func(env *testEnv)
		expectedKind  apperr.Kind
		expectedMsg   string
		expectedError bool
	}{
		{
			name:     "success",
			username: "alice",
			email:    "  Alice@X.com ",
			password: testPassword,
		},
		{
			name:          "invalid email",
			username:      "alice",
			email:         "not-an-email",
			password:      testPassword,
			expectedError: true,
			expectedKind:  apperr.KindValidation,
			expectedMsg:   "email",
		},
		{
			name:          "weak password",
			username:      "alice",
			email:         "alice@x.com",
			password:      "password",
			expectedError: true,
			expectedKind:  apperr.KindValidation,
			expectedMsg:   "password",
		},
		{
			name:          "short username",
			username:      "al",
			email:         "alice@x.com",
			password:      testPassword,
			expectedError: true,
			expectedKind:  apperr.KindValidation,
			expectedMsg:   "username",
		},
		{
			name:          "email taken",
			username:      "alice",
			email:         "alice@x.com",
			password:      testPassword,
			setup: func(env *testEnv) {
				env.db.addUser("alice2")
				renameEmail(env, "alice2", "alice@x.com")
			},
			expectedError: true,
			expectedKind:  apperr.KindConflict,
			expectedMsg:   "email already exists",
		},
		{
			name:          "username taken",
			username:      "alice",
			email:         "other@x.com",
			password:      testPassword,
			setup:         func(env *testEnv) { env.db.addUser("alice") },
			expectedError: true,
			expectedKind:  apperr.KindConflict,
			expectedMsg:   "username already exists",
		},
		{
			name:          "storage failure",
			username:      "alice",
			email:         "alice@x.com",
			password:      testPassword,
			setup:         func(env *testEnv) { env.db.setErr(errors.New("too many connections")) },
			expectedError: true,
			expectedKind:  apperr.KindSystem,
			expectedMsg:   "internal error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEnv(t)
			if tt.setup != nil {
				tt.setup(env)
			}

			result, err := env.auth.Register(ctx, tt.username, tt.email, tt.password)

			if tt.expectedError {
				require.Error(t, err)
				assert.Nil(t, result)
				assert.Equal(t, tt.expectedKind, apperr.KindOf(err))
				assert.Contains(t, apperr.PublicMessage(err), tt.expectedMsg)
				assert.Equal(t, 0, env.db.callCount("UserCreate"))
				return
			}
			require.NoError(t, err)

			user, err := env.users.GetWithRoles(ctx, result.UserID)
			require.NoError(t, err)
			assert.Equal(t, "alice@x.com", user.Email)
			assert.True(t, user.IsActive)
			assert.True(t, env.hasher.Verify(tt.password, user.PasswordHash))
			assert.Equal(t, []string{models.RoleUser}, user.RoleNames())
		})
	}
}

// renameEmail changes the stored email of the user with the given username
func renameEmail(env *testEnv, username, email string) {
	env.db.mu.Lock()
	defer env.db.mu.Unlock()
	for id, user := range env.db.users {
		if user.Username == username {
			user.Email = email
			env.db.users[id] = user
		}
	}
}

func TestAuthService_RegisterWithoutDefaultRole(t *testing.T) {
	ctx := context.Background()

	t.Run("no role assigner", func(t *testing.T) {
		env := setupTestEnv(t)
		auth := NewAuthService(env.users, env.hasher, env.tokens, nil, nil, zap.NewNop())

		result, err := auth.Register(ctx, "alice", "alice@x.com", testPassword)
		require.NoError(t, err)

		user, err := env.users.GetWithRoles(ctx, result.UserID)
		require.NoError(t, err)
		assert.Empty(t, user.Roles)
	})

	t.Run("default role missing", func(t *testing.T) {
		env := setupTestEnv(t)
		env.db.mu.Lock()
		delete(env.db.roles, 3)
		env.db.mu.Unlock()

		result, err := env.auth.Register(ctx, "alice", "alice@x.com", testPassword)
		require.NoError(t, err)
		assert.Equal(t, 1, result.UserID)
	})
}

func TestAuthService_RegisterTokenFailure(t *testing.T) {
	env := setupTestEnv(t)
	auth := NewAuthService(env.users, env.hasher, failingIssuer{}, nil, nil, zap.NewNop())

	_, err := auth.Register(context.Background(), "alice", "alice@x.com", testPassword)
	assert.ErrorIs(t, err, apperr.ErrSystem)
	assert.Equal(t, "internal error", apperr.PublicMessage(err))
}

func TestAuthService_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown email and wrong password look the same", func(t *testing.T) {
		env := setupTestEnv(t)
		hasher := &countingHasher{CredentialHasher: env.hasher}
		auth := NewAuthService(env.users, hasher, env.tokens, env.assignments, nil, zap.NewNop())
		_, err := auth.Register(ctx, "alice", "alice@x.com", testPassword)
		require.NoError(t, err)

		_, unknownErr := auth.Login(ctx, "nobody@x.com", testPassword)
		assert.Equal(t, int32(1), hasher.verifications.Load())

		_, wrongErr := auth.Login(ctx, "alice@x.com", "Wr0ngPass!")
		assert.Equal(t, int32(2), hasher.verifications.Load())

		assert.ErrorIs(t, unknownErr, apperr.ErrUnauthenticated)
		assert.ErrorIs(t, wrongErr, apperr.ErrUnauthenticated)
		assert.Equal(t, apperr.PublicMessage(unknownErr), apperr.PublicMessage(wrongErr))
	})

	t.Run("inactive with wrong password is generic", func(t *testing.T) {
		env := setupTestEnv(t)
		result, err := env.auth.Register(ctx, "alice", "alice@x.com", testPassword)
		require.NoError(t, err)
		require.NoError(t, env.userAdmin.SetActive(ctx, result.UserID, false))

		_, err = env.auth.Login(ctx, "alice@x.com", "Wr0ngPass!")
		assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
	})

	t.Run("email is case insensitive", func(t *testing.T) {
		env := setupTestEnv(t)
		_, err := env.auth.Register(ctx, "alice", "alice@x.com", testPassword)
		require.NoError(t, err)

		result, err := env.auth.Login(ctx, " ALICE@x.com", testPassword)
		require.NoError(t, err)
		assert.Equal(t, 1, result.UserID)
	})

	t.Run("missing fields", func(t *testing.T) {
		env := setupTestEnv(t)

		_, err := env.auth.Login(ctx, "", "")
		assert.ErrorIs(t, err, apperr.ErrValidation)
		assert.Equal(t, 0, env.db.callCount("GetByEmail"))
	})

	t.Run("storage failure", func(t *testing.T) {
		env := setupTestEnv(t)
		env.db.setErr(errors.New("connection reset by peer"))

		_, err := env.auth.Login(ctx, "alice@x.com", testPassword)
		assert.ErrorIs(t, err, apperr.ErrSystem)
		assert.NotErrorIs(t, err, apperr.ErrUnauthenticated)
	})

	t.Run("outdated hash is upgraded", func(t *testing.T) {
		env := setupTestEnv(t)
		weak := service.NewPasswordHasherWithIterations(500)
		old := NewAuthService(env.users, weak, env.tokens, nil, nil, zap.NewNop())
		result, err := old.Register(ctx, "alice", "alice@x.com", testPassword)
		require.NoError(t, err)

		_, err = env.auth.Login(ctx, "alice@x.com", testPassword)
		require.NoError(t, err)

		user, err := env.users.GetWithRoles(ctx, result.UserID)
		require.NoError(t, err)
		assert.False(t, env.hasher.NeedsRehash(user.PasswordHash))
		assert.True(t, env.hasher.Verify(testPassword, user.PasswordHash))
	})
}

func TestAuthService_Identify(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		token func(env *testEnv) string
	}{
		{
			name:  "garbage token",
			token: func(env *testEnv) string { return "not.a.token" },
		},
		{
			name:  "empty token",
			token: func(env *testEnv) string { return "" },
		},
		{
			name: "user no longer exists",
			token: func(env *testEnv) string {
				token, err := env.tokens.Issue(42, "ghost", "ghost@x.com")
				require.NoError(t, err)
				return token
			},
		},
		{
			name: "inactive user",
			token: func(env *testEnv) string {
				result, err := env.auth.Register(ctx, "alice", "alice@x.com", testPassword)
				require.NoError(t, err)
				require.NoError(t, env.userAdmin.SetActive(ctx, result.UserID, false))
				return result.Token
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEnv(t)

			user, err := env.auth.Identify(ctx, tt.token(env))
			assert.Nil(t, user)
			assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
			assert.Equal(t, "invalid or expired token", apperr.PublicMessage(err))
		})
	}

	t.Run("roles come from storage", func(t *testing.T) {
		env := setupTestEnv(t)
		result, err := env.auth.Register(ctx, "alice", "alice@x.com", testPassword)
		require.NoError(t, err)
		require.NoError(t, env.assignments.AssignRole(ctx, result.UserID, models.RoleModerator))

		user, err := env.auth.Identify(ctx, result.Token)
		require.NoError(t, err)
		assert.True(t, user.HasRole(models.RoleModerator))
	})
}
