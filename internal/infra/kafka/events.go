package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/andrewlasiter/fda-tools-sub001/internal/core/domain"
	"github.com/andrewlasiter/fda-tools-sub001/internal/core/port"
	"github.com/andrewlasiter/fda-tools-sub001/internal/infra/config"
)

const envelopeVersion = "1.0"

// AlarmPublisher implements port.AlarmPublisher using Kafka.
type AlarmPublisher struct {
	producer *Producer
	app      config.AppSettings
	log      *zap.Logger
}

// NewAlarmPublisher constructs a Kafka-backed alarm publisher.
func NewAlarmPublisher(producer *Producer, app config.AppSettings, log *zap.Logger) *AlarmPublisher {
	return &AlarmPublisher{producer: producer, app: app, log: log}
}

// alarmEnvelope is the broker wire format shared by every event type.
type alarmEnvelope struct {
	EventID   string            `json:"event_id"`
	EventType string            `json:"event_type"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Payload   any               `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (p *AlarmPublisher) publish(ctx context.Context, eventID, eventType string, occurredAt time.Time, payload any) error {
	if eventID == "" {
		eventID = uuid.NewString()
	}
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	meta := map[string]string{
		"service":     p.app.Name,
		"environment": p.app.Env,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		meta["trace_id"] = sc.TraceID().String()
	}

	body, err := json.Marshal(alarmEnvelope{
		EventID:   eventID,
		EventType: eventType,
		Timestamp: occurredAt.UTC(),
		Version:   envelopeVersion,
		Payload:   payload,
		Metadata:  meta,
	})
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", eventType, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(body),
	}

	select {
	case p.producer.Producer().Input() <- msg:
		p.log.Debug("broker event queued",
			zap.String("event_type", eventType),
			zap.String("event_id", eventID))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishAuditWriteFailed publishes alarm.audit_write_failed messages.
func (p *AlarmPublisher) PublishAuditWriteFailed(ctx context.Context, alarm domain.AuditWriteFailedAlarm) error {
	payload := struct {
		EventType string         `json:"audit_event_type"`
		Username  string         `json:"username,omitempty"`
		Reason    string         `json:"reason"`
		FailedAt  time.Time      `json:"failed_at"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}{
		EventType: string(alarm.EventType),
		Username:  alarm.Username,
		Reason:    alarm.Reason,
		FailedAt:  alarm.FailedAt.UTC(),
		Metadata:  alarm.Metadata,
	}

	return p.publish(ctx, alarm.EventID, "alarm.audit_write_failed", alarm.FailedAt, payload)
}

// PublishAccountLocked publishes alert.account_locked messages.
func (p *AlarmPublisher) PublishAccountLocked(ctx context.Context, alert domain.AccountLockedAlert) error {
	payload := struct {
		UserID      string         `json:"user_id"`
		Username    string         `json:"username"`
		Attempts    int            `json:"attempts"`
		LockedAt    time.Time      `json:"locked_at"`
		LockedUntil *time.Time     `json:"locked_until,omitempty"`
		Manual      bool           `json:"manual"`
		Metadata    map[string]any `json:"metadata,omitempty"`
	}{
		UserID:      alert.UserID,
		Username:    alert.Username,
		Attempts:    alert.Attempts,
		LockedAt:    alert.LockedAt.UTC(),
		LockedUntil: alert.LockedUntil,
		Manual:      alert.Manual,
		Metadata:    alert.Metadata,
	}

	return p.publish(ctx, alert.EventID, "alert.account_locked", alert.LockedAt, payload)
}

// PublishSessionPurged publishes session.purged messages.
func (p *AlarmPublisher) PublishSessionPurged(ctx context.Context, event domain.SessionPurgedEvent) error {
	payload := struct {
		Count    int64          `json:"count"`
		PurgedAt time.Time      `json:"purged_at"`
		Metadata map[string]any `json:"metadata,omitempty"`
	}{
		Count:    event.Count,
		PurgedAt: event.PurgedAt.UTC(),
		Metadata: event.Metadata,
	}

	return p.publish(ctx, event.EventID, "session.purged", event.PurgedAt, payload)
}

var _ port.AlarmPublisher = (*AlarmPublisher)(nil)
