package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/andrewlasiter/fda-tools-sub001/internal/core/domain"
	"github.com/andrewlasiter/fda-tools-sub001/internal/core/port"
	"github.com/andrewlasiter/fda-tools-sub001/internal/repository"
)

var sessionColumns = []string{
	"id",
	"user_id",
	"token_digest",
	"signature",
	"source_address",
	"created_at",
	"last_activity_at",
}

// SessionRepository implements port.SessionRepository backed by PostgreSQL.
type SessionRepository struct {
	exec    querier
	builder squirrel.StatementBuilderType
}

// NewSessionRepository constructs a repository over a pool or transaction.
func NewSessionRepository(exec querier) *SessionRepository {
	return &SessionRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create persists a new session record.
func (r *SessionRepository) Create(ctx context.Context, session domain.Session) error {
	sqlStmt, args, err := r.builder.Insert("authcore.sessions").
		Columns(sessionColumns...).
		Values(
			session.ID,
			session.UserID,
			session.TokenDigest,
			session.Signature,
			optionalString(session.SourceAddress),
			session.CreatedAt,
			session.LastActivityAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert session sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, sqlStmt, args...); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	return nil
}

// GetByTokenDigest fetches a session by the digest of its bearer token.
func (r *SessionRepository) GetByTokenDigest(ctx context.Context, digest string) (*domain.Session, error) {
	stmt, args, err := r.builder.
		Select(sessionColumns...).
		From("authcore.sessions").
		Where(squirrel.Eq{"token_digest": digest}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select session sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	return session, nil
}

// GetByID fetches a session by its identifier.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	stmt, args, err := r.builder.
		Select(sessionColumns...).
		From("authcore.sessions").
		Where(squirrel.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select session by id sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan session by id: %w", err)
	}

	return session, nil
}

// Touch refreshes last_activity_at for the session.
func (r *SessionRepository) Touch(ctx context.Context, id string, at time.Time) error {
	stmt, args, err := r.builder.Update("authcore.sessions").
		Set("last_activity_at", at).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build touch session sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Delete removes a session by identifier.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete("authcore.sessions").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete session sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// DeleteByTokenDigest removes the session keyed by digest and reports whether
// a record existed.
func (r *SessionRepository) DeleteByTokenDigest(ctx context.Context, digest string) (bool, error) {
	stmt, args, err := r.builder.Delete("authcore.sessions").
		Where(squirrel.Eq{"token_digest": digest}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build delete session by digest sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("delete session by digest: %w", err)
	}

	return ct.RowsAffected() > 0, nil
}

// DeleteByUser drops every session owned by the user.
func (r *SessionRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	stmt, args, err := r.builder.Delete("authcore.sessions").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete sessions by user sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("delete sessions by user: %w", err)
	}

	return ct.RowsAffected(), nil
}

// DeleteExpired sweeps sessions outside either timeout window.
func (r *SessionRepository) DeleteExpired(ctx context.Context, idleCutoff, absoluteCutoff time.Time) (int64, error) {
	stmt, args, err := r.builder.Delete("authcore.sessions").
		Where(squirrel.Or{
			squirrel.Lt{"last_activity_at": idleCutoff},
			squirrel.Lt{"created_at": absoluteCutoff},
		}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete expired sessions sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}

	return ct.RowsAffected(), nil
}

// ListActive returns sessions inside both timeout windows ordered by last activity.
func (r *SessionRepository) ListActive(ctx context.Context, idleCutoff, absoluteCutoff time.Time) ([]domain.Session, error) {
	stmt, args, err := r.builder.
		Select(sessionColumns...).
		From("authcore.sessions").
		Where(squirrel.GtOrEq{"last_activity_at": idleCutoff}).
		Where(squirrel.GtOrEq{"created_at": absoluteCutoff}).
		OrderBy("last_activity_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list sessions sql: %w", err)
	}

	return r.querySessions(ctx, stmt, args)
}

// ListActiveByUser returns the user's sessions inside both timeout windows.
func (r *SessionRepository) ListActiveByUser(ctx context.Context, userID string, idleCutoff, absoluteCutoff time.Time) ([]domain.Session, error) {
	stmt, args, err := r.builder.
		Select(sessionColumns...).
		From("authcore.sessions").
		Where(squirrel.Eq{"user_id": userID}).
		Where(squirrel.GtOrEq{"last_activity_at": idleCutoff}).
		Where(squirrel.GtOrEq{"created_at": absoluteCutoff}).
		OrderBy("last_activity_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list sessions by user sql: %w", err)
	}

	return r.querySessions(ctx, stmt, args)
}

func (r *SessionRepository) querySessions(ctx context.Context, stmt string, args []any) ([]domain.Session, error) {
	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]domain.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var (
		session       domain.Session
		sourceAddress sql.NullString
	)

	if err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.TokenDigest,
		&session.Signature,
		&sourceAddress,
		&session.CreatedAt,
		&session.LastActivityAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	session.SourceAddress = nullableStringPtr(sourceAddress)

	return &session, nil
}

var _ port.SessionRepository = (*SessionRepository)(nil)
