package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/andrewlasiter/fda-tools-sub001/internal/core/domain"
	"github.com/andrewlasiter/fda-tools-sub001/internal/core/port"
)

// StubPublisher logs alarms instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly alarm publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("stub alarm published",
		zap.String("event_type", eventType),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishAuditWriteFailed logs alarm.audit_write_failed messages.
func (p *StubPublisher) PublishAuditWriteFailed(_ context.Context, alarm domain.AuditWriteFailedAlarm) error {
	payload := map[string]any{
		"audit_event_type": alarm.EventType,
		"username":         alarm.Username,
		"reason":           alarm.Reason,
		"failed_at":        alarm.FailedAt,
		"metadata":         alarm.Metadata,
	}
	p.logEvent("alarm.audit_write_failed", alarm.FailedAt, payload)
	return nil
}

// PublishAccountLocked logs alert.account_locked messages.
func (p *StubPublisher) PublishAccountLocked(_ context.Context, alert domain.AccountLockedAlert) error {
	payload := map[string]any{
		"user_id":      alert.UserID,
		"username":     alert.Username,
		"attempts":     alert.Attempts,
		"locked_at":    alert.LockedAt,
		"locked_until": alert.LockedUntil,
		"manual":       alert.Manual,
		"metadata":     alert.Metadata,
	}
	p.logEvent("alert.account_locked", alert.LockedAt, payload)
	return nil
}

// PublishSessionPurged logs session.purged messages.
func (p *StubPublisher) PublishSessionPurged(_ context.Context, event domain.SessionPurgedEvent) error {
	payload := map[string]any{
		"count":     event.Count,
		"purged_at": event.PurgedAt,
		"metadata":  event.Metadata,
	}
	p.logEvent("session.purged", event.PurgedAt, payload)
	return nil
}

var _ port.AlarmPublisher = (*StubPublisher)(nil)
