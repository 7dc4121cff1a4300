package application

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	topicUserRegistered             = "user-registered"
	topicUserDeleted                = "user-deleted"
	topicEmailVerificationRequested = "email-verification-requested"
	topicPasswordResetRequested     = "password-reset-requested"
	topicPasswordChanged            = "password-changed"
	topicEmailChanged               = "email-changed"
	topicUsernameChanged            = "username-changed"
)

type userEvent struct {
	UserID     uuid.UUID `json:"user_id"`
	Username   string    `json:"username,omitempty"`
	Email      string    `json:"email,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type emailVerificationEvent struct {
	UserID           uuid.UUID `json:"user_id"`
	Email            string    `json:"email"`
	VerificationLink string    `json:"verification_link"`
	ExpiresAt        time.Time `json:"expires_at"`
}

type passwordResetEvent struct {
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

// publish is fire-and-forget: encoding or bus failures are logged and never
// returned to the caller.
func (s *Service) publish(ctx context.Context, topic string, userID uuid.UUID, payload any) {
	logger := opLogger("publish_event").With("topic", topic, "user_id", userID)
	raw, err := json.Marshal(payload)
	if err != nil {
		logger.ErrorContext(ctx, "event encoding failed", "outcome", "failure", "error", err)
		return
	}
	pubCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.events.Publish(pubCtx, topic, userID.String(), raw); err != nil {
		logger.WarnContext(ctx, "event publish failed", "outcome", "failure", "error", err)
	}
}
