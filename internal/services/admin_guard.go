package services

import (
	"context"
	"sync"

	"github.com/mrememisaac/communitywebsite/internal/apperr"
	"github.com/mrememisaac/communitywebsite/internal/models"
	"go.uber.org/zap"
)

// AdminCounter is the interface that wraps the live admin count query
type AdminCounter interface {
	// Method CountActiveByRole counts active users holding the role with the given name,
	// not counting the user with ID excludeUserID.
	//
	// The count is always read from storage, never from a cache.
	CountActiveByRole(ctx context.Context, roleName string, excludeUserID int) (int, error)
}

// AdminGuard serializes operations that can shrink the set of administrators.
//
// The count and the mutation run under one in-process lock, so two concurrent
// removals can never both observe two admins and leave none. The lock does not
// span processes; see DESIGN.md.
type AdminGuard struct {
	mu     sync.Mutex
	users  AdminCounter
	logger *zap.Logger
}

// NewAdminGuard creates a new admin guard
func NewAdminGuard(users AdminCounter, logger *zap.Logger) *AdminGuard {
	return &AdminGuard{users: users, logger: logger}
}

// Demote runs demote only if at least one active administrator other than userID
// remains afterwards. Inactive admins cannot sign in, so they do not count.
//
// "what" names the refused operation in the invariant message.
func (g *AdminGuard) Demote(ctx context.Context, what string, userID int, demote func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	others, err := g.users.CountActiveByRole(ctx, models.RoleAdmin, userID)
	if err != nil {
		return storageError(g.logger, "count administrators", "role", err)
	}
	if others == 0 {
		g.logger.Info("refused to remove the last administrator",
			zap.String("operation", what),
			zap.Int("userID", userID),
		)
		return apperr.Invariant("cannot %s: the last administrator must keep the %s role", what, models.RoleAdmin)
	}

	return demote()
}
