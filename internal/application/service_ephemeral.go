package application

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/core-platform/auth-session-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/auth-session-service/internal/ports"
)

const (
	verificationKeyPrefix = "auth:verify:"
	resetCodeKeyPrefix    = "auth:reset:"
	resetCodeDigits       = 6
)

func verificationKey(userID uuid.UUID, digest string) string {
	return verificationKeyPrefix + userID.String() + ":" + digest
}

func resetCodeKey(userID uuid.UUID) string {
	return resetCodeKeyPrefix + userID.String()
}

// RequestEmailVerification mints a signed verification link for an unverified
// account. Unknown and already verified addresses are accepted silently.
func (s *Service) RequestEmailVerification(ctx context.Context, req EmailVerificationRequest) error {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return err
	}
	findCtx, cancel := s.storeCtx(ctx)
	user, err := s.users.FindByEmail(findCtx, email)
	cancel()
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("find user: %w", err)
	}
	if user.EmailVerified || !user.Active {
		return nil
	}

	now := s.nowFn().Truncate(time.Second)
	token, err := s.signer.Sign(ports.TokenClaims{
		Subject:  user.Email,
		UserID:   user.UserID,
		Type:     string(domain.TokenTypeEmailVerification),
		IssuedAt: now,
	}, s.cfg.EmailVerificationTTL)
	if err != nil {
		return fmt.Errorf("sign verification token: %w", err)
	}

	setCtx, cancel := s.storeCtx(ctx)
	err = s.cache.Set(setCtx, verificationKey(user.UserID, domain.TokenDigest(token)), []byte(user.Email), s.cfg.EmailVerificationTTL)
	cancel()
	if err != nil {
		return fmt.Errorf("store verification record: %w", err)
	}

	s.publish(ctx, topicEmailVerificationRequested, user.UserID, emailVerificationEvent{
		UserID:           user.UserID,
		Email:            user.Email,
		VerificationLink: s.verificationLink(token),
		ExpiresAt:        now.Add(s.cfg.EmailVerificationTTL),
	})
	return nil
}

// VerifyEmail consumes a verification token. The cache record is the
// single-use guard: once it is taken, the still-signed token is worthless.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	raw := strings.TrimSpace(token)
	if raw == "" {
		return domain.ErrInvalidOrExpiredToken
	}
	claims, err := s.signer.Verify(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidOrExpiredToken, err)
	}
	if claims.Type != string(domain.TokenTypeEmailVerification) {
		return domain.ErrInvalidOrExpiredToken
	}

	key := verificationKey(claims.UserID, domain.TokenDigest(raw))
	takeCtx, cancel := s.storeCtx(ctx)
	recorded, err := s.cache.Take(takeCtx, key)
	cancel()
	if err != nil {
		if errors.Is(err, ports.ErrCacheMiss) {
			return domain.ErrInvalidOrExpiredToken
		}
		return fmt.Errorf("consume verification record: %w", err)
	}

	findCtx, cancel := s.storeCtx(ctx)
	user, err := s.users.FindByID(findCtx, claims.UserID)
	cancel()
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrInvalidOrExpiredToken
		}
		s.restoreVerification(ctx, key, recorded, claims)
		return fmt.Errorf("find user: %w", err)
	}
	if !strings.EqualFold(user.Email, claims.Subject) {
		// The address changed after the link was issued.
		return domain.ErrInvalidOrExpiredToken
	}

	user.EmailVerified = true
	user.UpdatedAt = s.nowFn()
	saveCtx, cancel := s.storeCtx(ctx)
	_, err = s.users.Save(saveCtx, user)
	cancel()
	if err != nil {
		s.restoreVerification(ctx, key, recorded, claims)
		return fmt.Errorf("save user: %w", err)
	}
	opLogger("verify_email").InfoContext(ctx, "email verified", "outcome", "success", "user_id", user.UserID)
	return nil
}

// restoreVerification puts a consumed record back when applying its effect
// failed, so the user can retry the same link.
func (s *Service) restoreVerification(ctx context.Context, key string, value []byte, claims ports.TokenClaims) {
	ttl := claims.ExpiresAt.Sub(s.nowFn())
	if ttl <= 0 {
		return
	}
	setCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.cache.Set(setCtx, key, value, ttl); err != nil {
		opLogger("verify_email").WarnContext(ctx, "verification record restore failed", "outcome", "failure", "error", err)
	}
}

// ForgotPassword issues a numeric reset code. Unknown addresses are accepted
// silently so the endpoint does not reveal which emails exist.
func (s *Service) ForgotPassword(ctx context.Context, req ForgotPasswordRequest) error {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return err
	}
	findCtx, cancel := s.storeCtx(ctx)
	user, err := s.users.FindByEmail(findCtx, email)
	cancel()
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("find user: %w", err)
	}
	if !user.Active {
		return nil
	}

	code, err := randomDigits(s.random, resetCodeDigits)
	if err != nil {
		return err
	}
	setCtx, cancel := s.storeCtx(ctx)
	err = s.cache.Set(setCtx, resetCodeKey(user.UserID), []byte(domain.TokenDigest(code)), s.cfg.ResetCodeTTL)
	cancel()
	if err != nil {
		return fmt.Errorf("store reset code: %w", err)
	}

	s.publish(ctx, topicPasswordResetRequested, user.UserID, passwordResetEvent{
		UserID:    user.UserID,
		Email:     user.Email,
		Code:      code,
		ExpiresAt: s.nowFn().Add(s.cfg.ResetCodeTTL),
	})
	return nil
}

// ResetPassword consumes a reset code and sets the new password. Wrong
// guesses count against a separate attempt counter.
func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	logger := opLogger("reset_password")
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return err
	}
	if err := requirePassword(req.NewPassword); err != nil {
		return err
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return domain.ErrInvalidOrExpiredToken
	}

	checkCtx, cancel := s.storeCtx(ctx)
	err = s.resets.CheckAllowed(checkCtx, email)
	cancel()
	if err != nil {
		return err
	}

	findCtx, cancel := s.storeCtx(ctx)
	user, err := s.users.FindByEmail(findCtx, email)
	cancel()
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.recordResetFailure(ctx, email)
			return domain.ErrInvalidOrExpiredToken
		}
		return fmt.Errorf("find user: %w", err)
	}

	passwordHash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	consumeCtx, cancel := s.storeCtx(ctx)
	consumed, err := s.cache.DeleteIfEquals(consumeCtx, resetCodeKey(user.UserID), []byte(domain.TokenDigest(code)))
	cancel()
	if err != nil {
		return fmt.Errorf("consume reset code: %w", err)
	}
	if !consumed {
		s.recordResetFailure(ctx, email)
		return domain.ErrInvalidOrExpiredToken
	}

	user.PasswordHash = passwordHash
	if err := s.saveAndRevoke(ctx, user); err != nil {
		return err
	}

	resetCtx, cancel := s.storeCtx(ctx)
	if err := s.resets.Reset(resetCtx, email); err != nil {
		logger.WarnContext(ctx, "reset attempt counter cleanup failed", "outcome", "degraded", "error", err)
	}
	if err := s.logins.Reset(resetCtx, email); err != nil {
		logger.WarnContext(ctx, "login attempt counter cleanup failed", "outcome", "degraded", "error", err)
	}
	cancel()

	s.publish(ctx, topicPasswordChanged, user.UserID, userEvent{UserID: user.UserID, Email: user.Email, OccurredAt: s.nowFn()})
	logger.InfoContext(ctx, "password reset", "outcome", "success", "user_id", user.UserID)
	return nil
}

func (s *Service) recordResetFailure(ctx context.Context, email string) {
	failCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	if _, err := s.resets.RecordFailure(failCtx, email); err != nil {
		opLogger("reset_password").WarnContext(ctx, "reset attempt counter update failed", "outcome", "degraded", "error", err)
	}
}

func (s *Service) verificationLink(token string) string {
	base := strings.TrimRight(s.cfg.FrontendBaseURL, "/")
	return base + "/verify-email?token=" + url.QueryEscape(token)
}
