package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/core-platform/auth-session-service/internal/domain"
)

func (s *Service) CurrentUser(ctx context.Context, userID uuid.UUID) (UserResponse, error) {
	findCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	user, err := s.users.FindByID(findCtx, userID)
	if err != nil {
		return UserResponse{}, err
	}
	return toUserResponse(user), nil
}

// ChangePassword replaces the password and signs the user out everywhere.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, req ChangePasswordRequest) error {
	if err := requirePassword(req.NewPassword); err != nil {
		return err
	}
	user, err := s.authorizeChange(ctx, userID, req.CurrentPassword)
	if err != nil {
		return err
	}
	passwordHash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = passwordHash
	if err := s.saveAndRevoke(ctx, user); err != nil {
		return err
	}
	s.publish(ctx, topicPasswordChanged, user.UserID, userEvent{UserID: user.UserID, Email: user.Email, OccurredAt: s.nowFn()})
	return nil
}

// ChangeEmail moves the account to a new, unverified email address.
func (s *Service) ChangeEmail(ctx context.Context, userID uuid.UUID, req ChangeEmailRequest) error {
	email, err := normalizeEmail(req.NewEmail)
	if err != nil {
		return err
	}
	user, err := s.authorizeChange(ctx, userID, req.CurrentPassword)
	if err != nil {
		return err
	}
	if email == user.Email {
		return fmt.Errorf("%w: new email matches current email", domain.ErrInvalidInput)
	}
	if err := s.ensureEmailAvailable(ctx, email); err != nil {
		return err
	}
	user.Email = email
	user.EmailVerified = false
	if err := s.saveAndRevoke(ctx, user); err != nil {
		return err
	}
	s.publish(ctx, topicEmailChanged, user.UserID, userEvent{UserID: user.UserID, Email: user.Email, OccurredAt: s.nowFn()})
	return nil
}

// ChangeUsername renames the account. Like the other identity changes it
// revokes every token of the user.
func (s *Service) ChangeUsername(ctx context.Context, userID uuid.UUID, req ChangeUsernameRequest) error {
	username, err := normalizeUsername(req.NewUsername)
	if err != nil {
		return err
	}
	user, err := s.authorizeChange(ctx, userID, req.CurrentPassword)
	if err != nil {
		return err
	}
	if username == user.Username {
		return fmt.Errorf("%w: new username matches current username", domain.ErrInvalidInput)
	}
	if err := s.ensureUsernameAvailable(ctx, username); err != nil {
		return err
	}
	user.Username = username
	if err := s.saveAndRevoke(ctx, user); err != nil {
		return err
	}
	s.publish(ctx, topicUsernameChanged, user.UserID, userEvent{UserID: user.UserID, Username: user.Username, OccurredAt: s.nowFn()})
	return nil
}

// DeleteAccount revokes all tokens and soft-deletes the user. Ledger history is kept.
func (s *Service) DeleteAccount(ctx context.Context, userID uuid.UUID, req DeleteAccountRequest) error {
	user, err := s.authorizeChange(ctx, userID, req.CurrentPassword)
	if err != nil {
		return err
	}
	if err := s.revokeAllForUser(ctx, user.UserID); err != nil {
		return err
	}
	now := s.nowFn()
	deleteCtx, cancel := s.storeCtx(ctx)
	err = s.users.SoftDelete(deleteCtx, user.UserID, now)
	cancel()
	if err != nil {
		return fmt.Errorf("soft delete user: %w", err)
	}
	s.publish(ctx, topicUserDeleted, user.UserID, userEvent{UserID: user.UserID, Email: user.Email, OccurredAt: now})
	opLogger("delete_account").InfoContext(ctx, "user deleted", "outcome", "success", "user_id", user.UserID)
	return nil
}

// authorizeChange loads the user and checks the current password.
func (s *Service) authorizeChange(ctx context.Context, userID uuid.UUID, currentPassword string) (domain.User, error) {
	findCtx, cancel := s.storeCtx(ctx)
	user, err := s.users.FindByID(findCtx, userID)
	cancel()
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, domain.ErrInvalidCredentials
		}
		return domain.User{}, fmt.Errorf("find user: %w", err)
	}
	if err := s.hasher.Compare(user.PasswordHash, currentPassword); err != nil {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	return user, nil
}

func (s *Service) saveAndRevoke(ctx context.Context, user domain.User) error {
	user.UpdatedAt = s.nowFn()
	saveCtx, cancel := s.storeCtx(ctx)
	_, err := s.users.Save(saveCtx, user)
	cancel()
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return s.revokeAllForUser(ctx, user.UserID)
}
