package kafka

import (
	"encoding/json"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders-ms/internal/domain"
)

func newMockedProducer(t *testing.T) (*Producer, *mocks.SyncProducer) {
	t.Helper()

	mock := mocks.NewSyncProducer(t, nil)
	t.Cleanup(func() {
		if err := mock.Close(); err != nil {
			t.Errorf("close mock producer: %v", err)
		}
	})

	return &Producer{
		producer: mock,
		logger:   log.WithField("component", "kafka-test"),
	}, mock
}

func TestOutboxPublisherWrapsEventInEnvelope(t *testing.T) {
	t.Parallel()

	producer, mock := newMockedProducer(t)
	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(body []byte) error {
		var envelope outboxEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			return err
		}
		if envelope.ID != "outbox-1" || envelope.EventType != "order.created" {
			t.Errorf("unexpected envelope: %+v", envelope)
		}
		if envelope.PublishedAt.IsZero() {
			t.Error("expected published_at timestamp")
		}
		return nil
	})

	publisher := NewOutboxPublisher(producer, TopicOrderEvents)
	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: "order",
		AggregateID:   "order-123",
		EventType:     "order.created",
		Payload:       []byte(`{"status":"PENDING"}`),
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
}

func TestOutboxPublisherPropagatesProducerError(t *testing.T) {
	t.Parallel()

	producer, mock := newMockedProducer(t)
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewOutboxPublisher(producer, "")
	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-2",
		AggregateType: "order",
		AggregateID:   "order-234",
		EventType:     "order.status_changed",
		Payload:       []byte(`{"status":"CANCELLED"}`),
	})
	if err == nil {
		t.Fatal("expected publish error, got nil")
	}
}

func TestOutboxPublisherNilProducer(t *testing.T) {
	t.Parallel()

	publisher := NewOutboxPublisher(nil, TopicOrderEvents)
	if err := publisher.Publish(domain.OutboxMessage{ID: "outbox-3"}); err == nil {
		t.Fatal("expected error for nil producer")
	}
}
