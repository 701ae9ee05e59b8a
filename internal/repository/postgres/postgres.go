package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier is the minimal query surface shared by pgxpool.Pool and pgx.Tx,
// letting repositories run inside or outside a transaction unchanged.
type querier interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
}

// txPool is a querier that can also open transactions, for repositories
// that need multi-statement atomicity.
type txPool interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// optionalString folds nil and blank values to SQL NULL on the way in.
func optionalString(value *string) any {
	if value == nil {
		return nil
	}
	if trimmed := strings.TrimSpace(*value); trimmed != "" {
		return trimmed
	}
	return nil
}

// optionalTime folds nil to SQL NULL and stores everything in UTC.
func optionalTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC()
}

func nullableStringPtr(value sql.NullString) *string {
	if s := strings.TrimSpace(value.String); value.Valid && s != "" {
		return &s
	}
	return nil
}

func nullableTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	utc := value.Time.UTC()
	return &utc
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
