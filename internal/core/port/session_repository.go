package port

import (
	"context"
	"time"

	"github.com/andrewlasiter/fda-tools-sub001/internal/core/domain"
)

// SessionRepository deals with bearer-session storage. Records are keyed by
// token digest; expiry cutoffs are computed by the caller so the store stays
// clock-free.
type SessionRepository interface {
	Create(ctx context.Context, session domain.Session) error
	GetByTokenDigest(ctx context.Context, digest string) (*domain.Session, error)
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	Touch(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error

	// DeleteByTokenDigest removes the session if present and reports whether
	// a record existed, which drives logout idempotency and its audit emit.
	DeleteByTokenDigest(ctx context.Context, digest string) (bool, error)
	// DeleteByUser drops every session owned by the user (lock, deletion,
	// credential change).
	DeleteByUser(ctx context.Context, userID string) (int64, error)
	// DeleteExpired sweeps sessions outside either timeout window.
	DeleteExpired(ctx context.Context, idleCutoff, absoluteCutoff time.Time) (int64, error)

	ListActive(ctx context.Context, idleCutoff, absoluteCutoff time.Time) ([]domain.Session, error)
	ListActiveByUser(ctx context.Context, userID string, idleCutoff, absoluteCutoff time.Time) ([]domain.Session, error)
}
