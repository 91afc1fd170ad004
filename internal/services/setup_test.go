package services

import (
	"testing"
	"time"

	"github.com/mrememisaac/communitywebsite/internal/cache"
	"github.com/mrememisaac/communitywebsite/internal/obs"
	"github.com/mrememisaac/communitywebsite/libs/auth/service"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testTokenSecret = "0f8e2d6b1c4a9e7f3b5d8c2a6e1f4b7d"

// testEnv wires every service over one fake database, the way main wires them over MySQL
type testEnv struct {
	db          *fakeDB
	users       *fakeUserRepository
	roles       *fakeRoleRepository
	store       *cache.MemoryStore
	metrics     *obs.Metrics
	tokens      *service.TokenIssuer
	hasher      *service.PasswordHasher
	guard       *AdminGuard
	directory   *roleService
	assignments *roleAssignmentService
	userAdmin   *userAdminService
	auth        *authService
}

// setupTestEnv creates a test environment with a fresh fake database
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()

	env := &testEnv{db: newFakeDB()}
	env.users = &fakeUserRepository{db: env.db}
	env.roles = &fakeRoleRepository{db: env.db}
	env.store = cache.NewMemoryStore(0)
	t.Cleanup(func() { env.store.Close() })
	env.metrics = obs.NewMetrics()

	tokens, err := service.NewTokenIssuer(service.TokenIssuerConfig{
		Secret:   testTokenSecret,
		Issuer:   "community-website",
		Audience: "community-website",
		Expiry:   time.Hour,
	}, logger)
	require.NoError(t, err)
	env.tokens = tokens
	env.hasher = service.NewPasswordHasherWithIterations(1000)

	env.guard = NewAdminGuard(env.users, logger)
	env.directory = NewRoleService(env.roles, env.store, DefaultRoleCacheExpiration, env.metrics, logger)
	env.assignments = NewRoleAssignmentService(env.users, env.roles, env.directory, env.guard, logger)
	env.userAdmin = NewUserAdminService(env.users, env.guard, logger)
	env.auth = NewAuthService(env.users, env.hasher, env.tokens, env.assignments, env.metrics, logger)
	return env
}
