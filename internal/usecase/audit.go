package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/andrewlasiter/fda-tools-sub001/internal/core/domain"
	"github.com/andrewlasiter/fda-tools-sub001/internal/core/port"
	"github.com/andrewlasiter/fda-tools-sub001/internal/infra/telemetry"
)

const (
	defaultAuditQueryLimit = 100
	maxAuditQueryLimit     = 1000
)

// ErrUnknownEventType indicates an event type outside the closed vocabulary.
var ErrUnknownEventType = errors.New("unknown audit event type")

// AuditRecorder writes events to the append-only trail. Writes are
// synchronous with the operation that caused them: a failed append fails
// that operation, and the failure itself is escalated to the alarm channel
// because at that point the trail can no longer vouch for what happened.
type AuditRecorder struct {
	store   port.AuditRepository
	alarms  port.AlarmPublisher
	metrics *telemetry.Provider
	logger  *zap.Logger
	now     func() time.Time
}

// NewAuditRecorder constructs an AuditRecorder.
func NewAuditRecorder(store port.AuditRepository, alarms port.AlarmPublisher, metrics *telemetry.Provider, logger *zap.Logger) (*AuditRecorder, error) {
	if store == nil {
		return nil, fmt.Errorf("audit repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	recorder := &AuditRecorder{
		store:   store,
		alarms:  alarms,
		metrics: metrics,
		logger:  logger,
	}
	recorder.now = func() time.Time { return time.Now().UTC() }
	return recorder, nil
}

// WithClock overrides the internal clock for deterministic tests.
func (r *AuditRecorder) WithClock(clock func() time.Time) {
	if clock != nil {
		r.now = clock
	}
}

// Record appends one event and returns only after the store has accepted
// it. Event types outside the closed vocabulary are rejected before they
// reach the store.
func (r *AuditRecorder) Record(ctx context.Context, event domain.AuditEvent) error {
	if !domain.IsValidEventType(event.EventType) {
		return fmt.Errorf("%w %q", ErrUnknownEventType, event.EventType)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = r.now()
	}

	sequence, err := r.store.Append(ctx, event)
	if err != nil {
		r.escalateWriteFailure(ctx, event, err)
		return fmt.Errorf("append audit event: %w", err)
	}

	r.metrics.RecordAuditAppend()
	r.logger.Debug("audit event recorded",
		zap.Int64("sequence", sequence),
		zap.String("event_type", string(event.EventType)),
		zap.String("username", event.Username),
	)

	return nil
}

func (r *AuditRecorder) escalateWriteFailure(ctx context.Context, event domain.AuditEvent, cause error) {
	r.metrics.RecordAuditWriteFailure()
	r.logger.Error("audit append failed",
		zap.String("event_type", string(event.EventType)),
		zap.String("username", event.Username),
		zap.Error(cause),
	)

	if r.alarms == nil {
		return
	}
	alarm := domain.AuditWriteFailedAlarm{
		EventID:   uuid.NewString(),
		EventType: event.EventType,
		Username:  event.Username,
		Reason:    cause.Error(),
		FailedAt:  r.now(),
	}
	if err := r.alarms.PublishAuditWriteFailed(ctx, alarm); err != nil {
		r.logger.Error("publish audit write failure alarm failed", zap.Error(err))
	}
}

// AuditService answers trail queries for the admin surface.
type AuditService struct {
	store port.AuditRepository
	perms *PermissionService
}

// NewAuditService constructs an AuditService.
func NewAuditService(store port.AuditRepository, perms *PermissionService) *AuditService {
	return &AuditService{store: store, perms: perms}
}

// QueryInput narrows an audit trail query. All fields are optional.
type QueryInput struct {
	Username  string
	EventType string
	Since     *time.Time
	Limit     int
}

// Query returns matching events in ascending sequence order. The limit
// defaults when unset and is capped so a filterless query cannot drag the
// whole trail across the wire.
func (s *AuditService) Query(ctx context.Context, actor *domain.User, input QueryInput) ([]domain.AuditEvent, error) {
	if err := s.perms.Require(ctx, actor, domain.PermissionAuditRead); err != nil {
		return nil, err
	}

	filter := domain.AuditFilter{
		Username: strings.TrimSpace(input.Username),
		Since:    input.Since,
		Limit:    input.Limit,
	}

	if raw := strings.TrimSpace(input.EventType); raw != "" {
		eventType := domain.EventType(strings.ToUpper(raw))
		if !domain.IsValidEventType(eventType) {
			return nil, fmt.Errorf("%w %q", ErrUnknownEventType, raw)
		}
		filter.EventType = eventType
	}

	if filter.Limit <= 0 {
		filter.Limit = defaultAuditQueryLimit
	}
	if filter.Limit > maxAuditQueryLimit {
		filter.Limit = maxAuditQueryLimit
	}

	events, err := s.store.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}

	return events, nil
}
