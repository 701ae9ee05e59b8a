package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/andrewlasiter/fda-tools-sub001/internal/core/domain"
	"github.com/andrewlasiter/fda-tools-sub001/internal/core/port"
	"github.com/andrewlasiter/fda-tools-sub001/internal/repository"
)

var auditColumns = []string{
	"sequence",
	"recorded_at",
	"event_type",
	"username",
	"details",
	"source_address",
}

// AuditRepository implements port.AuditRepository on the dedicated audit
// database. Events live in their own store so identity-side writes can never
// touch the trail.
type AuditRepository struct {
	pool    txPool
	builder squirrel.StatementBuilderType
}

// NewAuditRepository constructs a repository over the audit pool.
func NewAuditRepository(pool txPool) *AuditRepository {
	return &AuditRepository{
		pool:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Append assigns the next sequence number and inserts the event in one
// transaction. The counter row serializes concurrent appenders, and a failed
// insert rolls the increment back, so committed sequences are dense with no
// gaps.
func (r *AuditRepository) Append(ctx context.Context, event domain.AuditEvent) (int64, error) {
	details, err := marshalAuditDetails(event.Details)
	if err != nil {
		return 0, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin audit tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var sequence int64
	if err := tx.QueryRow(ctx, "UPDATE audit.audit_sequence SET value = value + 1 RETURNING value").Scan(&sequence); err != nil {
		return 0, fmt.Errorf("advance audit sequence: %w", err)
	}

	stmt, args, err := r.builder.Insert("audit.audit_events").
		Columns(auditColumns...).
		Values(
			sequence,
			event.Timestamp,
			event.EventType,
			event.Username,
			details,
			optionalString(event.SourceAddress),
		).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert audit event sql: %w", err)
	}

	if _, err := tx.Exec(ctx, stmt, args...); err != nil {
		return 0, fmt.Errorf("insert audit event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit audit tx: %w", err)
	}

	return sequence, nil
}

// Query returns events matching the filter ordered by sequence ascending.
func (r *AuditRepository) Query(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEvent, error) {
	query := r.builder.
		Select(auditColumns...).
		From("audit.audit_events").
		OrderBy("sequence ASC")

	if filter.Username != "" {
		query = query.Where(squirrel.Expr("lower(username) = lower(?)", filter.Username))
	}
	if filter.EventType != "" {
		query = query.Where(squirrel.Eq{"event_type": filter.EventType})
	}
	if filter.Since != nil {
		query = query.Where(squirrel.GtOrEq{"recorded_at": *filter.Since})
	}
	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query audit events sql: %w", err)
	}

	rows, err := r.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.AuditEvent, 0)
	for rows.Next() {
		event, err := scanAuditEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		events = append(events, *event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}

	return events, nil
}

func scanAuditEvent(row pgx.Row) (*domain.AuditEvent, error) {
	var (
		event         domain.AuditEvent
		details       []byte
		sourceAddress sql.NullString
	)

	if err := row.Scan(
		&event.Sequence,
		&event.Timestamp,
		&event.EventType,
		&event.Username,
		&details,
		&sourceAddress,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	if len(details) > 0 {
		if err := json.Unmarshal(details, &event.Details); err != nil {
			return nil, fmt.Errorf("unmarshal audit details: %w", err)
		}
	}
	event.SourceAddress = nullableStringPtr(sourceAddress)

	return &event, nil
}

func marshalAuditDetails(details map[string]any) ([]byte, error) {
	if details == nil {
		return nil, nil
	}

	payload, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("marshal audit details: %w", err)
	}
	return payload, nil
}

var _ port.AuditRepository = (*AuditRepository)(nil)
