package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/andrewlasiter/fda-tools-sub001/internal/core/domain"
	"github.com/andrewlasiter/fda-tools-sub001/internal/core/port"
	"github.com/andrewlasiter/fda-tools-sub001/internal/repository"
)

// SessionRepository implements port.SessionRepository in process memory.
type SessionRepository struct {
	mu       sync.RWMutex
	byDigest map[string]domain.Session
	byID     map[string]string
}

// NewSessionRepository constructs an empty in-memory session repository.
func NewSessionRepository() *SessionRepository {
	return &SessionRepository{
		byDigest: make(map[string]domain.Session),
		byID:     make(map[string]string),
	}
}

// Create stores a new session record.
func (r *SessionRepository) Create(_ context.Context, session domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byDigest[session.TokenDigest] = session
	r.byID[session.ID] = session.TokenDigest
	return nil
}

// GetByTokenDigest retrieves a session by its token digest.
func (r *SessionRepository) GetByTokenDigest(_ context.Context, digest string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.byDigest[digest]
	if !ok {
		return nil, repository.ErrNotFound
	}

	copied := session
	return &copied, nil
}

// GetByID retrieves a session by its identifier.
func (r *SessionRepository) GetByID(_ context.Context, id string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	digest, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}

	session, ok := r.byDigest[digest]
	if !ok {
		return nil, repository.ErrNotFound
	}

	copied := session
	return &copied, nil
}

// Touch refreshes the session's last activity timestamp.
func (r *SessionRepository) Touch(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	digest, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}

	session, ok := r.byDigest[digest]
	if !ok {
		return repository.ErrNotFound
	}

	session.LastActivityAt = at
	r.byDigest[digest] = session
	return nil
}

// Delete removes a session by identifier.
func (r *SessionRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	digest, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}

	delete(r.byID, id)
	delete(r.byDigest, digest)
	return nil
}

// DeleteByTokenDigest removes a session by digest, reporting whether a
// record existed.
func (r *SessionRepository) DeleteByTokenDigest(_ context.Context, digest string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.byDigest[digest]
	if !ok {
		return false, nil
	}

	delete(r.byDigest, digest)
	delete(r.byID, session.ID)
	return true, nil
}

// DeleteByUser removes every session belonging to the user.
func (r *SessionRepository) DeleteByUser(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for digest, session := range r.byDigest {
		if session.UserID != userID {
			continue
		}
		delete(r.byDigest, digest)
		delete(r.byID, session.ID)
		deleted++
	}

	return deleted, nil
}

// DeleteExpired removes sessions idle since idleCutoff or created before
// absoluteCutoff.
func (r *SessionRepository) DeleteExpired(_ context.Context, idleCutoff, absoluteCutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for digest, session := range r.byDigest {
		if !session.LastActivityAt.Before(idleCutoff) && !session.CreatedAt.Before(absoluteCutoff) {
			continue
		}
		delete(r.byDigest, digest)
		delete(r.byID, session.ID)
		deleted++
	}

	return deleted, nil
}

// ListActive returns sessions inside both timeout windows, most recently
// active first.
func (r *SessionRepository) ListActive(_ context.Context, idleCutoff, absoluteCutoff time.Time) ([]domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.collectActive("", idleCutoff, absoluteCutoff), nil
}

// ListActiveByUser returns the user's sessions inside both timeout windows,
// most recently active first.
func (r *SessionRepository) ListActiveByUser(_ context.Context, userID string, idleCutoff, absoluteCutoff time.Time) ([]domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.collectActive(userID, idleCutoff, absoluteCutoff), nil
}

func (r *SessionRepository) collectActive(userID string, idleCutoff, absoluteCutoff time.Time) []domain.Session {
	sessions := make([]domain.Session, 0, len(r.byDigest))
	for _, session := range r.byDigest {
		if userID != "" && session.UserID != userID {
			continue
		}
		if session.LastActivityAt.Before(idleCutoff) || session.CreatedAt.Before(absoluteCutoff) {
			continue
		}
		sessions = append(sessions, session)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastActivityAt.After(sessions[j].LastActivityAt)
	})

	return sessions
}

var _ port.SessionRepository = (*SessionRepository)(nil)
