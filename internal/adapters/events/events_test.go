package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/core-platform/auth-session-service/internal/ports"
)

type fakeOutbox struct {
	mu           sync.Mutex
	pending      []ports.OutboxRecord
	enqueued     []ports.OutboxEvent
	published    []uuid.UUID
	failed       []uuid.UUID
	deadLettered []uuid.UUID
}

func (f *fakeOutbox) Enqueue(_ context.Context, event ports.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, event)
	return nil
}

func (f *fakeOutbox) ClaimUnpublished(_ context.Context, limit int, _ string, _ time.Time) ([]ports.OutboxRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit > len(f.pending) {
		limit = len(f.pending)
	}
	out := append([]ports.OutboxRecord(nil), f.pending[:limit]...)
	f.pending = f.pending[limit:]
	return out, nil
}

func (f *fakeOutbox) MarkPublished(_ context.Context, id uuid.UUID, _ string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, id)
	return nil
}

func (f *fakeOutbox) MarkFailed(_ context.Context, id uuid.UUID, _, _ string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeOutbox) MarkDeadLettered(_ context.Context, id uuid.UUID, _, _ string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deadLettered = append(f.deadLettered, id)
	return nil
}

type fakeRelay struct {
	mu     sync.Mutex
	failOn map[string]bool
	sent   []string
}

func (r *fakeRelay) Publish(_ context.Context, topic, key string, _ []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn[key] {
		return errors.New("broker unavailable")
	}
	r.sent = append(r.sent, topic+"/"+key)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOutboxWorkerRelaysAndDeadLetters(t *testing.T) {
	t.Parallel()

	ok := ports.OutboxRecord{OutboxID: uuid.New(), Topic: "user-registered", PartitionKey: "u1", Payload: []byte(`{}`)}
	retry := ports.OutboxRecord{OutboxID: uuid.New(), Topic: "user-deleted", PartitionKey: "u2", RetryCount: 0}
	exhausted := ports.OutboxRecord{OutboxID: uuid.New(), Topic: "user-deleted", PartitionKey: "u3", RetryCount: 2}
	stale := ports.OutboxRecord{OutboxID: uuid.New(), Topic: "user-deleted", PartitionKey: "u4", RetryCount: 3}

	outbox := &fakeOutbox{pending: []ports.OutboxRecord{ok, retry, exhausted, stale}}
	relay := &fakeRelay{failOn: map[string]bool{"u2": true, "u3": true}}
	worker := NewOutboxWorker(discardLogger(), outbox, relay, time.Second, 10, time.Second, 3)

	if err := worker.processOnce(context.Background()); err != nil {
		t.Fatalf("processOnce: %v", err)
	}

	if len(relay.sent) != 1 || relay.sent[0] != "user-registered/u1" {
		t.Fatalf("unexpected relayed messages: %v", relay.sent)
	}
	if len(outbox.published) != 1 || outbox.published[0] != ok.OutboxID {
		t.Fatalf("unexpected published: %v", outbox.published)
	}
	if len(outbox.failed) != 1 || outbox.failed[0] != retry.OutboxID {
		t.Fatalf("unexpected failed: %v", outbox.failed)
	}
	if len(outbox.deadLettered) != 2 {
		t.Fatalf("expected exhausted and stale rows to be dead-lettered, got %v", outbox.deadLettered)
	}
}

func TestOutboxPublisherEnqueues(t *testing.T) {
	t.Parallel()

	outbox := &fakeOutbox{}
	pub := NewOutboxPublisher(outbox)
	if err := pub.Publish(context.Background(), "password-changed", "user-1", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(outbox.enqueued) != 1 {
		t.Fatalf("expected one enqueued event")
	}
	got := outbox.enqueued[0]
	if got.Topic != "password-changed" || got.PartitionKey != "user-1" || got.EventID == uuid.Nil || got.OccurredAt.IsZero() {
		t.Fatalf("unexpected event: %+v", got)
	}
	if err := pub.Publish(context.Background(), "", "user-1", nil); err == nil {
		t.Fatalf("expected missing topic to fail")
	}
}

func TestKafkaPublisherRequiresBrokers(t *testing.T) {
	t.Parallel()

	if _, err := NewKafkaPublisher(nil, ""); err == nil {
		t.Fatalf("expected error without brokers")
	}
	pub, err := NewKafkaPublisher([]string{"localhost:9092"}, "auth.")
	if err != nil {
		t.Fatalf("NewKafkaPublisher: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
