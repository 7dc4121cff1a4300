package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/core-platform/auth-session-service/internal/ports"
)

// LoggingPublisher writes events to the log instead of a broker. The worker
// falls back to it when no Kafka brokers are configured.
type LoggingPublisher struct {
	logger *slog.Logger
}

func NewLoggingPublisher(logger *slog.Logger) *LoggingPublisher {
	return &LoggingPublisher{logger: logger}
}

func (p *LoggingPublisher) Publish(ctx context.Context, topic, key string, payload []byte) error {
	p.logger.InfoContext(ctx, "published event",
		"module", "events.logging_publisher",
		"layer", "adapter",
		"operation", "publish_event",
		"outcome", "success",
		"topic", topic,
		"partition_key", key,
		"payload_bytes", len(payload),
	)
	return nil
}

// OutboxPublisher is the API-side publisher: it records the event in the
// outbox table and leaves broker delivery to the worker process.
type OutboxPublisher struct {
	outbox ports.OutboxRepository
	nowFn  func() time.Time
}

func NewOutboxPublisher(outbox ports.OutboxRepository) *OutboxPublisher {
	return &OutboxPublisher{
		outbox: outbox,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (p *OutboxPublisher) Publish(ctx context.Context, topic, key string, payload []byte) error {
	if topic == "" {
		return fmt.Errorf("outbox publish: topic is required")
	}
	return p.outbox.Enqueue(ctx, ports.OutboxEvent{
		EventID:      uuid.New(),
		Topic:        topic,
		PartitionKey: key,
		Payload:      payload,
		OccurredAt:   p.nowFn(),
	})
}
