package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/andrewlasiter/fda-tools-sub001/internal/core/domain"
	"github.com/andrewlasiter/fda-tools-sub001/internal/core/port"
	"github.com/andrewlasiter/fda-tools-sub001/internal/repository"
)

var userColumns = []string{
	"id",
	"username",
	"email",
	"password_digest",
	"full_name",
	"role",
	"is_active",
	"is_locked",
	"failed_login_attempts",
	"locked_until",
	"created_at",
	"updated_at",
}

// UserRepository implements port.UserRepository using PostgreSQL.
type UserRepository struct {
	exec    querier
	builder squirrel.StatementBuilderType
}

// NewUserRepository constructs a repository over a pool or transaction.
func NewUserRepository(exec querier) *UserRepository {
	return &UserRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new user row. Duplicate usernames or emails surface as
// repository.ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	sqlStmt, args, err := r.builder.Insert("authcore.users").
		Columns(userColumns...).
		Values(
			user.ID,
			user.Username,
			user.Email,
			user.PasswordDigest,
			user.FullName,
			user.Role,
			user.IsActive,
			user.IsLocked,
			user.FailedLoginAttempts,
			optionalTime(user.LockedUntil),
			user.CreatedAt,
			user.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert user sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, sqlStmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	stmt, args, err := r.builder.
		Select(userColumns...).
		From("authcore.users").
		Where(squirrel.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	return r.getOne(ctx, stmt, args)
}

// GetByUsername retrieves a user by username. Lookups are case-insensitive.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	stmt, args, err := r.builder.
		Select(userColumns...).
		From("authcore.users").
		Where(squirrel.Expr("lower(username) = lower(?)", username)).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user by username sql: %w", err)
	}

	return r.getOne(ctx, stmt, args)
}

// GetByEmail retrieves a user by email. Lookups are case-insensitive.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	stmt, args, err := r.builder.
		Select(userColumns...).
		From("authcore.users").
		Where(squirrel.Expr("lower(email) = lower(?)", email)).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user by email sql: %w", err)
	}

	return r.getOne(ctx, stmt, args)
}

func (r *UserRepository) getOne(ctx context.Context, stmt string, args []any) (*domain.User, error) {
	row := r.exec.QueryRow(ctx, stmt, args...)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	return user, nil
}

// List returns users ordered by creation time with pagination.
func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]domain.User, error) {
	query := r.builder.
		Select(userColumns...).
		From("authcore.users").
		OrderBy("created_at ASC", "id ASC")

	if limit > 0 {
		query = query.Limit(uint64(limit))
	}
	if offset > 0 {
		query = query.Offset(uint64(offset))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list users sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return users, nil
}

// Delete removes a user row.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete("authcore.users").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete user sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// UpdatePassword replaces the stored digest and bumps updated_at.
func (r *UserRepository) UpdatePassword(ctx context.Context, id string, digest string, changedAt time.Time) error {
	stmt, args, err := r.builder.Update("authcore.users").
		Set("password_digest", digest).
		Set("updated_at", changedAt).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update password sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// UpdateRole changes the user's role.
func (r *UserRepository) UpdateRole(ctx context.Context, id string, role domain.Role, changedAt time.Time) error {
	stmt, args, err := r.builder.Update("authcore.users").
		Set("role", role).
		Set("updated_at", changedAt).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update role sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// SetLock applies a lock. A nil lockedUntil marks a manual lock with no expiry.
func (r *UserRepository) SetLock(ctx context.Context, id string, lockedUntil *time.Time, at time.Time) error {
	stmt, args, err := r.builder.Update("authcore.users").
		Set("is_locked", true).
		Set("locked_until", optionalTime(lockedUntil)).
		Set("updated_at", at).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build set lock sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("set lock: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// ClearLock lifts the lock and resets the failure counter. The WHERE guard on
// is_locked means concurrent callers observe at most one flip, so the unlock
// is recorded exactly once.
func (r *UserRepository) ClearLock(ctx context.Context, id string, at time.Time) (bool, error) {
	stmt := `
		UPDATE authcore.users
		   SET is_locked = FALSE,
		       locked_until = NULL,
		       failed_login_attempts = 0,
		       updated_at = $2
		 WHERE id = $1
		   AND is_locked = TRUE
	`

	ct, err := r.exec.Exec(ctx, stmt, id, at)
	if err != nil {
		return false, fmt.Errorf("clear lock: %w", err)
	}

	return ct.RowsAffected() > 0, nil
}

// RecordLoginFailure increments the failure counter and trips the lock in a
// single statement. All SET expressions read the pre-update row, so two
// concurrent failures serialize on the row lock: each sees a distinct counter
// value and only the one that reaches the threshold arms locked_until.
func (r *UserRepository) RecordLoginFailure(ctx context.Context, id string, threshold int, lockUntil time.Time, at time.Time) (int, bool, error) {
	stmt := `
		UPDATE authcore.users
		   SET failed_login_attempts = failed_login_attempts + 1,
		       is_locked = is_locked OR failed_login_attempts + 1 >= $2,
		       locked_until = CASE
		           WHEN NOT is_locked AND failed_login_attempts + 1 >= $2 THEN $3
		           ELSE locked_until
		       END,
		       updated_at = $4
		 WHERE id = $1
		 RETURNING failed_login_attempts, is_locked
	`

	var (
		attempts int
		locked   bool
	)
	if err := r.exec.QueryRow(ctx, stmt, id, threshold, lockUntil, at).Scan(&attempts, &locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, repository.ErrNotFound
		}
		return 0, false, fmt.Errorf("record login failure: %w", err)
	}

	return attempts, locked, nil
}

// RecordLoginSuccess resets the failure counter after a successful login.
func (r *UserRepository) RecordLoginSuccess(ctx context.Context, id string, at time.Time) error {
	stmt, args, err := r.builder.Update("authcore.users").
		Set("failed_login_attempts", 0).
		Set("updated_at", at).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build record login success sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("record login success: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// AddPasswordHistory inserts a digest into the history table.
func (r *UserRepository) AddPasswordHistory(ctx context.Context, entry domain.PasswordHistoryEntry) error {
	userID := strings.TrimSpace(entry.UserID)
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(entry.Digest) == "" {
		return fmt.Errorf("password digest is required")
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	builder := r.builder.Insert("authcore.password_history")
	if entry.ID != "" {
		builder = builder.Columns("id", "user_id", "password_digest", "created_at").
			Values(entry.ID, userID, entry.Digest, createdAt)
	} else {
		builder = builder.Columns("user_id", "password_digest", "created_at").
			Values(userID, entry.Digest, createdAt)
	}

	stmt, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build insert password history sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert password history: %w", err)
	}

	return nil
}

// ListPasswordHistory retrieves the most recent digests for a user, newest first.
func (r *UserRepository) ListPasswordHistory(ctx context.Context, userID string, limit int) ([]domain.PasswordHistoryEntry, error) {
	trimmedID := strings.TrimSpace(userID)
	if trimmedID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	builder := r.builder.Select("id", "user_id", "password_digest", "created_at").
		From("authcore.password_history").
		Where(squirrel.Eq{"user_id": trimmedID}).
		OrderBy("created_at DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	stmt, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select password history sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query password history: %w", err)
	}
	defer rows.Close()

	history := make([]domain.PasswordHistoryEntry, 0)
	for rows.Next() {
		var record domain.PasswordHistoryEntry
		if err := rows.Scan(&record.ID, &record.UserID, &record.Digest, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan password history: %w", err)
		}
		history = append(history, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate password history: %w", err)
	}

	return history, nil
}

// TrimPasswordHistory ensures only the most recent keep digests are retained.
func (r *UserRepository) TrimPasswordHistory(ctx context.Context, userID string, keep int) error {
	if keep <= 0 {
		return nil
	}

	trimmedID := strings.TrimSpace(userID)
	if trimmedID == "" {
		return fmt.Errorf("user id is required")
	}

	stmt := `
		DELETE FROM authcore.password_history
		 WHERE user_id = $1
		   AND id NOT IN (
				SELECT id
				  FROM authcore.password_history
				 WHERE user_id = $1
				 ORDER BY created_at DESC
				 LIMIT $2
		   )
	`

	if _, err := r.exec.Exec(ctx, stmt, trimmedID, keep); err != nil {
		return fmt.Errorf("trim password history: %w", err)
	}

	return nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user        domain.User
		lockedUntil *time.Time
	)

	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordDigest,
		&user.FullName,
		&user.Role,
		&user.IsActive,
		&user.IsLocked,
		&user.FailedLoginAttempts,
		&lockedUntil,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	user.LockedUntil = lockedUntil

	return &user, nil
}

var _ port.UserRepository = (*UserRepository)(nil)
