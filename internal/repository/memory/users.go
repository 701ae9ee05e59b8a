package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/andrewlasiter/fda-tools-sub001/internal/core/domain"
	"github.com/andrewlasiter/fda-tools-sub001/internal/core/port"
	"github.com/andrewlasiter/fda-tools-sub001/internal/repository"
)

// UserRepository implements port.UserRepository in process memory.
type UserRepository struct {
	mu      sync.RWMutex
	users   map[string]domain.User
	history map[string][]domain.PasswordHistoryEntry
}

// NewUserRepository constructs an empty in-memory user repository.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		users:   make(map[string]domain.User),
		history: make(map[string][]domain.PasswordHistoryEntry),
	}
}

// Create inserts a new user. Duplicate usernames or emails surface as
// repository.ErrDuplicate; comparisons are case-insensitive.
func (r *UserRepository) Create(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if strings.EqualFold(existing.Username, user.Username) {
			return repository.ErrDuplicate
		}
		if strings.EqualFold(existing.Email, user.Email) {
			return repository.ErrDuplicate
		}
	}

	r.users[user.ID] = user
	return nil
}

// GetByID retrieves a user by identifier.
func (r *UserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}

	copied := user
	return &copied, nil
}

// GetByUsername retrieves a user by username, case-insensitively.
func (r *UserRepository) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, user := range r.users {
		if strings.EqualFold(user.Username, username) {
			copied := user
			return &copied, nil
		}
	}

	return nil, repository.ErrNotFound
}

// GetByEmail retrieves a user by email, case-insensitively.
func (r *UserRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, user := range r.users {
		if strings.EqualFold(user.Email, email) {
			copied := user
			return &copied, nil
		}
	}

	return nil, repository.ErrNotFound
}

// List returns users ordered by creation time with pagination.
func (r *UserRepository) List(_ context.Context, limit, offset int) ([]domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]domain.User, 0, len(r.users))
	for _, user := range r.users {
		users = append(users, user)
	}

	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})

	if offset > 0 {
		if offset >= len(users) {
			return []domain.User{}, nil
		}
		users = users[offset:]
	}
	if limit > 0 && limit < len(users) {
		users = users[:limit]
	}

	out := make([]domain.User, len(users))
	copy(out, users)
	return out, nil
}

// Delete removes a user and their password history.
func (r *UserRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; !ok {
		return repository.ErrNotFound
	}

	delete(r.users, id)
	delete(r.history, id)
	return nil
}

// UpdatePassword replaces the stored digest.
func (r *UserRepository) UpdatePassword(_ context.Context, id string, digest string, changedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}

	user.PasswordDigest = digest
	user.UpdatedAt = changedAt
	r.users[id] = user
	return nil
}

// UpdateRole changes the user's role.
func (r *UserRepository) UpdateRole(_ context.Context, id string, role domain.Role, changedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}

	user.Role = role
	user.UpdatedAt = changedAt
	r.users[id] = user
	return nil
}

// SetLock applies a lock. A nil lockedUntil marks a manual lock with no expiry.
func (r *UserRepository) SetLock(_ context.Context, id string, lockedUntil *time.Time, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}

	user.IsLocked = true
	if lockedUntil != nil {
		until := lockedUntil.UTC()
		user.LockedUntil = &until
	} else {
		user.LockedUntil = nil
	}
	user.UpdatedAt = at
	r.users[id] = user
	return nil
}

// ClearLock lifts the lock and resets the failure counter, reporting whether
// a locked row actually flipped.
func (r *UserRepository) ClearLock(_ context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return false, repository.ErrNotFound
	}

	if !user.IsLocked {
		return false, nil
	}

	user.IsLocked = false
	user.LockedUntil = nil
	user.FailedLoginAttempts = 0
	user.UpdatedAt = at
	r.users[id] = user
	return true, nil
}

// RecordLoginFailure increments the failure counter under the lock and trips
// the account lock when the incremented value reaches the threshold. The
// mutex makes the read-modify-write linearizable, so concurrent failures
// each observe a distinct counter value.
func (r *UserRepository) RecordLoginFailure(_ context.Context, id string, threshold int, lockUntil time.Time, at time.Time) (int, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return 0, false, repository.ErrNotFound
	}

	user.FailedLoginAttempts++
	if !user.IsLocked && user.FailedLoginAttempts >= threshold {
		user.IsLocked = true
		until := lockUntil.UTC()
		user.LockedUntil = &until
	}
	user.UpdatedAt = at
	r.users[id] = user

	return user.FailedLoginAttempts, user.IsLocked, nil
}

// RecordLoginSuccess resets the failure counter.
func (r *UserRepository) RecordLoginSuccess(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}

	user.FailedLoginAttempts = 0
	user.UpdatedAt = at
	r.users[id] = user
	return nil
}

// AddPasswordHistory appends a digest to the user's history.
func (r *UserRepository) AddPasswordHistory(_ context.Context, entry domain.PasswordHistoryEntry) error {
	if strings.TrimSpace(entry.UserID) == "" {
		return fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(entry.Digest) == "" {
		return fmt.Errorf("password digest is required")
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.history[entry.UserID] = append(r.history[entry.UserID], entry)
	return nil
}

// ListPasswordHistory returns the most recent digests, newest first.
func (r *UserRepository) ListPasswordHistory(_ context.Context, userID string, limit int) ([]domain.PasswordHistoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := r.history[userID]
	out := make([]domain.PasswordHistoryEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}

	return out, nil
}

// TrimPasswordHistory retains only the most recent keep digests.
func (r *UserRepository) TrimPasswordHistory(_ context.Context, userID string, keep int) error {
	if keep <= 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.history[userID]
	if len(entries) > keep {
		trimmed := make([]domain.PasswordHistoryEntry, keep)
		copy(trimmed, entries[len(entries)-keep:])
		r.history[userID] = trimmed
	}

	return nil
}

var _ port.UserRepository = (*UserRepository)(nil)
