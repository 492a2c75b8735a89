package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/orders-ms/internal/domain"
)

type fakeOutboxRepo struct {
	pending []domain.OutboxMessage
	sent    []string
	failed  []string
}

func (f *fakeOutboxRepo) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	return msg, nil
}

func (f *fakeOutboxRepo) PullPending(limit int) ([]domain.OutboxMessage, error) {
	if limit > 0 && limit < len(f.pending) {
		return append([]domain.OutboxMessage(nil), f.pending[:limit]...), nil
	}
	return append([]domain.OutboxMessage(nil), f.pending...), nil
}

func (f *fakeOutboxRepo) Stats() (domain.OutboxStats, error) {
	stats := domain.OutboxStats{PendingCount: len(f.pending)}
	if len(f.pending) > 0 {
		stats.OldestPendingAt = time.Now().UTC().Add(-time.Second)
	}
	return stats, nil
}

func (f *fakeOutboxRepo) MarkSent(id string) error {
	f.sent = append(f.sent, id)
	return nil
}

func (f *fakeOutboxRepo) MarkFailed(id string) error {
	f.failed = append(f.failed, id)
	return nil
}

type fakePublisher struct {
	mu       sync.Mutex
	replies  []error
	fallback error
	got      []domain.OutboxMessage
}

func (f *fakePublisher) Publish(event domain.OutboxMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.got = append(f.got, event)
	if len(f.replies) > 0 {
		err := f.replies[0]
		f.replies = f.replies[1:]
		return err
	}
	return f.fallback
}

func (f *fakePublisher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

var (
	_ domain.OutboxRepository = (*fakeOutboxRepo)(nil)
	_ domain.OutboxPublisher  = (*fakePublisher)(nil)
)

func pendingEvent(id, eventType string) domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            id,
		AggregateType: "order",
		AggregateID:   "order-" + id,
		EventType:     eventType,
		Payload:       []byte(`{"status":"PENDING"}`),
	}
}

func TestWorkerDelivery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		replies    []error
		fallback   error
		wantCalls  int
		wantSent   int
		wantFailed int
		wantDLQ    int
	}{
		{
			name:      "first attempt succeeds",
			wantCalls: 1,
			wantSent:  1,
		},
		{
			name:      "succeeds after two retries",
			replies:   []error{errors.New("attempt 1"), errors.New("attempt 2"), nil},
			wantCalls: 3,
			wantSent:  1,
		},
		{
			name:       "exhausted retries go to dlq",
			fallback:   errors.New("broker down"),
			wantCalls:  3,
			wantFailed: 1,
			wantDLQ:    1,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repo := &fakeOutboxRepo{pending: []domain.OutboxMessage{pendingEvent("msg-1", "order.created")}}
			publisher := &fakePublisher{replies: tt.replies, fallback: tt.fallback}
			dlq := &fakePublisher{}

			worker := NewWorker(repo, publisher,
				WithDLQPublisher(dlq),
				WithMaxAttempts(3),
				WithRetryBaseDelay(0),
			)
			worker.ProcessOnce(context.Background())

			if got := publisher.calls(); got != tt.wantCalls {
				t.Fatalf("expected %d publish calls, got %d", tt.wantCalls, got)
			}
			if got := len(repo.sent); got != tt.wantSent {
				t.Fatalf("expected %d sent marks, got %d", tt.wantSent, got)
			}
			if got := len(repo.failed); got != tt.wantFailed {
				t.Fatalf("expected %d failed marks, got %d", tt.wantFailed, got)
			}
			if got := dlq.calls(); got != tt.wantDLQ {
				t.Fatalf("expected %d dlq publishes, got %d", tt.wantDLQ, got)
			}
		})
	}
}

func TestWorkerDLQRecordCarriesError(t *testing.T) {
	t.Parallel()

	repo := &fakeOutboxRepo{pending: []domain.OutboxMessage{pendingEvent("msg-9", "order.status_changed")}}
	publisher := &fakePublisher{fallback: errors.New("broker down")}
	dlq := &fakePublisher{}

	worker := NewWorker(repo, publisher,
		WithDLQPublisher(dlq),
		WithMaxAttempts(2),
		WithRetryBaseDelay(0),
	)
	worker.ProcessOnce(context.Background())

	if dlq.calls() != 1 {
		t.Fatalf("expected 1 dlq publish, got %d", dlq.calls())
	}

	var record dlqRecord
	if err := json.Unmarshal(dlq.got[0].Payload, &record); err != nil {
		t.Fatalf("dlq payload is not valid json: %v", err)
	}
	if record.OutboxID != "msg-9" {
		t.Fatalf("unexpected dlq outbox id: %s", record.OutboxID)
	}
	if record.PublishError == "" {
		t.Fatal("expected publish error in dlq record")
	}
}

func TestWorkerProcessesBatchInOrder(t *testing.T) {
	t.Parallel()

	repo := &fakeOutboxRepo{pending: []domain.OutboxMessage{
		pendingEvent("msg-1", "order.created"),
		pendingEvent("msg-2", "order.status_changed"),
	}}
	publisher := &fakePublisher{}

	worker := NewWorker(repo, publisher, WithRetryBaseDelay(0))
	worker.ProcessOnce(context.Background())

	if len(repo.sent) != 2 {
		t.Fatalf("expected 2 sent marks, got %d", len(repo.sent))
	}
	if repo.sent[0] != "msg-1" || repo.sent[1] != "msg-2" {
		t.Fatalf("unexpected sent order: %v", repo.sent)
	}
}

func TestWorkerRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	worker := NewWorker(&fakeOutboxRepo{}, &fakePublisher{},
		WithPollInterval(5*time.Millisecond),
		WithRetryBaseDelay(0),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	time.Sleep(15 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

func TestWorkerRunDisabledWithoutPublisher(t *testing.T) {
	t.Parallel()

	worker := NewWorker(&fakeOutboxRepo{}, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker without publisher should return immediately")
	}
}
