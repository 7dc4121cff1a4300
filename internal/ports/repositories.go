package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/core-platform/auth-session-service/internal/domain"
)

// UserRepository persists principals. Lookups ignore soft-deleted users and
// return domain.ErrNotFound when nothing matches.
type UserRepository interface {
	FindByID(ctx context.Context, userID uuid.UUID) (domain.User, error)
	FindByEmail(ctx context.Context, email string) (domain.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	// Save inserts or updates the user. Uniqueness violations surface as
	// domain.ErrDuplicateIdentity.
	Save(ctx context.Context, user domain.User) (domain.User, error)
	SoftDelete(ctx context.Context, userID uuid.UUID, at time.Time) error
}

// TokenLedger is the durable, append-only record of issued tokens.
type TokenLedger interface {
	FindByTokenValue(ctx context.Context, value string) (domain.Token, error)
	FindActiveByOwner(ctx context.Context, userID uuid.UUID) ([]domain.Token, error)
	Save(ctx context.Context, token domain.Token) error
	SaveAll(ctx context.Context, tokens []domain.Token) error
	// RevokeIfActive flips active to false for the token with the given digest
	// only if it is still active, and reports whether this call did it.
	RevokeIfActive(ctx context.Context, digest string, at time.Time) (bool, error)
}

// OutboxEvent is a pending notification written by the API process.
type OutboxEvent struct {
	EventID      uuid.UUID
	Topic        string
	PartitionKey string
	Payload      []byte
	OccurredAt   time.Time
}

// OutboxRecord is an outbox row claimed by the relay worker.
type OutboxRecord struct {
	OutboxID     uuid.UUID
	Topic        string
	PartitionKey string
	Payload      []byte
	RetryCount   int
	LastError    *string
	CreatedAt    time.Time
	ClaimToken   *string
	ClaimUntil   *time.Time
}

// OutboxRepository is the durable buffer between request handling and the event bus.
type OutboxRepository interface {
	Enqueue(ctx context.Context, event OutboxEvent) error
	ClaimUnpublished(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, outboxID uuid.UUID, claimToken string, at time.Time) error
	MarkFailed(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
	MarkDeadLettered(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
}
