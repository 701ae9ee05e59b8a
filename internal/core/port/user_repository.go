package port

import (
	"context"
	"time"

	"github.com/andrewlasiter/fda-tools-sub001/internal/core/domain"
)

// UserRepository exposes persistence behavior for users and their password
// history. Implementations must keep RecordLoginFailure linearizable per
// account: concurrent failures may never lose an increment or set the lock
// flag twice for the same crossing of the threshold.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	List(ctx context.Context, limit, offset int) ([]domain.User, error)
	Delete(ctx context.Context, id string) error

	UpdatePassword(ctx context.Context, id string, digest string, changedAt time.Time) error
	UpdateRole(ctx context.Context, id string, role domain.Role, changedAt time.Time) error

	// SetLock applies an administrative or countdown lock. A nil lockedUntil
	// marks a manual lock with no auto-expiry.
	SetLock(ctx context.Context, id string, lockedUntil *time.Time, at time.Time) error
	// ClearLock lifts the lock and resets the failure counter. It reports
	// whether a locked row actually flipped, so concurrent lazy-expiry
	// observers unlock (and audit) exactly once.
	ClearLock(ctx context.Context, id string, at time.Time) (bool, error)

	// RecordLoginFailure atomically increments the failure counter and, when
	// the incremented value reaches threshold, sets the lock in the same
	// update. It returns the post-increment counter and lock flag.
	RecordLoginFailure(ctx context.Context, id string, threshold int, lockUntil time.Time, at time.Time) (attempts int, locked bool, err error)
	// RecordLoginSuccess resets the failure counter.
	RecordLoginSuccess(ctx context.Context, id string, at time.Time) error

	AddPasswordHistory(ctx context.Context, entry domain.PasswordHistoryEntry) error
	ListPasswordHistory(ctx context.Context, userID string, limit int) ([]domain.PasswordHistoryEntry, error)
	TrimPasswordHistory(ctx context.Context, userID string, keep int) error
}
