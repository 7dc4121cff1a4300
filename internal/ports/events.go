package ports

import "context"

// EventPublisher is the outbound notification port. Publishing is
// fire-and-forget from the caller's point of view; key orders events per user.
type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}
