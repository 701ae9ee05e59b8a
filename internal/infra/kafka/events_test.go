package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap/zaptest"

	"github.com/andrewlasiter/fda-tools-sub001/internal/core/domain"
	"github.com/andrewlasiter/fda-tools-sub001/internal/infra/config"
)

type fakeAsyncProducer struct {
	input  chan *sarama.ProducerMessage
	errors chan *sarama.ProducerError
}

func newFakeAsyncProducer() *fakeAsyncProducer {
	return &fakeAsyncProducer{
		input:  make(chan *sarama.ProducerMessage, 1),
		errors: make(chan *sarama.ProducerError, 1),
	}
}

func (f *fakeAsyncProducer) AsyncClose() {}

func (f *fakeAsyncProducer) Close() error { return nil }

func (f *fakeAsyncProducer) Input() chan<- *sarama.ProducerMessage { return f.input }

func (f *fakeAsyncProducer) Successes() <-chan *sarama.ProducerMessage { return nil }

func (f *fakeAsyncProducer) Errors() <-chan *sarama.ProducerError { return f.errors }

func (f *fakeAsyncProducer) IsTransactional() bool { return false }

func (f *fakeAsyncProducer) BeginTxn() error { return nil }

func (f *fakeAsyncProducer) CommitTxn() error { return nil }

func (f *fakeAsyncProducer) AbortTxn() error { return nil }

func (f *fakeAsyncProducer) AddOffsetsToTxn(offsets map[string][]*sarama.PartitionOffsetMetadata, groupID string) error {
	return nil
}

func (f *fakeAsyncProducer) AddMessageToTxn(msg *sarama.ConsumerMessage, groupID string, metadata *string) error {
	return nil
}

func (f *fakeAsyncProducer) TxnStatus() sarama.ProducerTxnStatusFlag {
	return sarama.ProducerTxnStatusFlag(0)
}

func newTestPublisher(t *testing.T, asyncProducer sarama.AsyncProducer) *AlarmPublisher {
	t.Helper()

	producer := &Producer{
		producer: asyncProducer,
		logger:   zaptest.NewLogger(t),
		cfg: config.KafkaSettings{
			TopicPrefix: "authcore",
		},
		errChan: make(chan error, 1),
		done:    make(chan struct{}),
	}

	return NewAlarmPublisher(producer, config.AppSettings{
		Name: "authcore",
		Env:  "test",
	}, zaptest.NewLogger(t))
}

func TestPublishAuditWriteFailed(t *testing.T) {
	asyncProducer := newFakeAsyncProducer()
	publisher := newTestPublisher(t, asyncProducer)

	failedAt := time.Date(2025, 10, 31, 12, 0, 0, 0, time.UTC)
	alarm := domain.AuditWriteFailedAlarm{
		EventID:   "alarm-123",
		EventType: domain.EventLoginSuccess,
		Username:  "alice",
		Reason:    "append audit event: connection refused",
		FailedAt:  failedAt,
		Metadata:  map[string]any{"source": "unit-test"},
	}

	if err := publisher.PublishAuditWriteFailed(context.Background(), alarm); err != nil {
		t.Fatalf("PublishAuditWriteFailed returned error: %v", err)
	}

	select {
	case msg := <-asyncProducer.input:
		if msg.Topic != "authcore.alarm.audit_write_failed" {
			t.Fatalf("unexpected topic: %s", msg.Topic)
		}

		bytes, err := msg.Value.Encode()
		if err != nil {
			t.Fatalf("Value.Encode returned error: %v", err)
		}

		var envelope map[string]any
		if err := json.Unmarshal(bytes, &envelope); err != nil {
			t.Fatalf("failed to unmarshal envelope: %v", err)
		}

		if got := envelope["event_type"]; got != "alarm.audit_write_failed" {
			t.Fatalf("unexpected event_type: %v", got)
		}

		if got := envelope["event_id"]; got != alarm.EventID {
			t.Fatalf("unexpected event_id: %v", got)
		}

		timestamp, ok := envelope["timestamp"].(string)
		if !ok {
			t.Fatalf("timestamp not a string: %T", envelope["timestamp"])
		}

		if timestamp != failedAt.Format(time.RFC3339Nano) {
			t.Fatalf("unexpected timestamp: %s", timestamp)
		}

		payload, ok := envelope["payload"].(map[string]any)
		if !ok {
			t.Fatalf("payload not a map: %T", envelope["payload"])
		}

		if got := payload["audit_event_type"]; got != string(domain.EventLoginSuccess) {
			t.Fatalf("unexpected audit_event_type: %v", got)
		}

		if got := payload["username"]; got != alarm.Username {
			t.Fatalf("unexpected username: %v", got)
		}

		if got := payload["reason"]; got != alarm.Reason {
			t.Fatalf("unexpected reason: %v", got)
		}

		metadata, ok := payload["metadata"].(map[string]any)
		if !ok {
			t.Fatalf("metadata not a map: %T", payload["metadata"])
		}

		if metadata["source"] != "unit-test" {
			t.Fatalf("metadata did not round-trip: %v", metadata)
		}

		envelopeMetadata, ok := envelope["metadata"].(map[string]any)
		if !ok {
			t.Fatalf("envelope metadata not a map: %T", envelope["metadata"])
		}

		if envelopeMetadata["service"] != "authcore" {
			t.Fatalf("unexpected metadata service: %v", envelopeMetadata["service"])
		}

		if envelopeMetadata["environment"] != "test" {
			t.Fatalf("unexpected metadata environment: %v", envelopeMetadata["environment"])
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message on async producer input channel")
	}
}

func TestPublishAccountLocked(t *testing.T) {
	asyncProducer := newFakeAsyncProducer()
	publisher := newTestPublisher(t, asyncProducer)

	lockedAt := time.Date(2025, 11, 18, 8, 30, 0, 0, time.UTC)
	lockedUntil := lockedAt.Add(30 * time.Minute)
	alert := domain.AccountLockedAlert{
		EventID:     "alert-001",
		UserID:      "user-123",
		Username:    "bob",
		Attempts:    5,
		LockedAt:    lockedAt,
		LockedUntil: &lockedUntil,
		Metadata:    map[string]any{"source": "unit-test"},
	}

	if err := publisher.PublishAccountLocked(context.Background(), alert); err != nil {
		t.Fatalf("PublishAccountLocked returned error: %v", err)
	}

	select {
	case msg := <-asyncProducer.input:
		if msg.Topic != "authcore.alert.account_locked" {
			t.Fatalf("unexpected topic: %s", msg.Topic)
		}

		bytes, err := msg.Value.Encode()
		if err != nil {
			t.Fatalf("Value.Encode returned error: %v", err)
		}

		var envelope map[string]any
		if err := json.Unmarshal(bytes, &envelope); err != nil {
			t.Fatalf("failed to unmarshal envelope: %v", err)
		}

		if got := envelope["event_type"]; got != "alert.account_locked" {
			t.Fatalf("unexpected event_type: %v", got)
		}

		payload, ok := envelope["payload"].(map[string]any)
		if !ok {
			t.Fatalf("payload not a map: %T", envelope["payload"])
		}

		if got := payload["user_id"]; got != alert.UserID {
			t.Fatalf("unexpected user_id: %v", got)
		}

		if got := payload["username"]; got != alert.Username {
			t.Fatalf("unexpected username: %v", got)
		}

		attempts, ok := payload["attempts"].(float64)
		if !ok {
			t.Fatalf("attempts not numeric: %T", payload["attempts"])
		}
		if int(attempts) != alert.Attempts {
			t.Fatalf("unexpected attempts: %v", attempts)
		}

		lockedUntilValue, ok := payload["locked_until"].(string)
		if !ok {
			t.Fatalf("locked_until not a string: %T", payload["locked_until"])
		}
		if lockedUntilValue != lockedUntil.Format(time.RFC3339Nano) {
			t.Fatalf("unexpected locked_until: %s", lockedUntilValue)
		}

		manual, ok := payload["manual"].(bool)
		if !ok {
			t.Fatalf("manual not a bool: %T", payload["manual"])
		}
		if manual {
			t.Fatal("expected manual to be false for threshold lockout")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message on async producer input channel")
	}
}

func TestPublishSessionPurged(t *testing.T) {
	asyncProducer := newFakeAsyncProducer()
	publisher := newTestPublisher(t, asyncProducer)

	purgedAt := time.Date(2025, 12, 1, 3, 0, 0, 0, time.UTC)
	event := domain.SessionPurgedEvent{
		EventID:  "purge-042",
		Count:    17,
		PurgedAt: purgedAt,
	}

	if err := publisher.PublishSessionPurged(context.Background(), event); err != nil {
		t.Fatalf("PublishSessionPurged returned error: %v", err)
	}

	select {
	case msg := <-asyncProducer.input:
		if msg.Topic != "authcore.session.purged" {
			t.Fatalf("unexpected topic: %s", msg.Topic)
		}

		bytes, err := msg.Value.Encode()
		if err != nil {
			t.Fatalf("Value.Encode returned error: %v", err)
		}

		var envelope map[string]any
		if err := json.Unmarshal(bytes, &envelope); err != nil {
			t.Fatalf("failed to unmarshal envelope: %v", err)
		}

		payload, ok := envelope["payload"].(map[string]any)
		if !ok {
			t.Fatalf("payload not a map: %T", envelope["payload"])
		}

		count, ok := payload["count"].(float64)
		if !ok {
			t.Fatalf("count not numeric: %T", payload["count"])
		}
		if int64(count) != event.Count {
			t.Fatalf("unexpected count: %v", count)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message on async producer input channel")
	}
}

func TestTopicNamePrefixing(t *testing.T) {
	producer := &Producer{cfg: config.KafkaSettings{TopicPrefix: "authcore"}}

	if got := producer.TopicName("alert.account_locked"); got != "authcore.alert.account_locked" {
		t.Fatalf("unexpected topic name: %s", got)
	}

	if got := producer.TopicName("authcore.alert.account_locked"); got != "authcore.alert.account_locked" {
		t.Fatalf("expected already-prefixed topic to pass through, got %s", got)
	}

	bare := &Producer{cfg: config.KafkaSettings{}}
	if got := bare.TopicName("session.purged"); got != "session.purged" {
		t.Fatalf("expected unprefixed topic, got %s", got)
	}
}
