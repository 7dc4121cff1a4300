package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/core-platform/auth-session-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/auth-session-service/internal/ports"
)

// Register creates the principal and returns its first token pair.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (TokenResponse, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return TokenResponse{}, err
	}
	username, err := normalizeUsername(req.Username)
	if err != nil {
		return TokenResponse{}, err
	}
	if err := requirePassword(req.Password); err != nil {
		return TokenResponse{}, err
	}
	if err := s.ensureEmailAvailable(ctx, email); err != nil {
		return TokenResponse{}, err
	}
	if err := s.ensureUsernameAvailable(ctx, username); err != nil {
		return TokenResponse{}, err
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("hash password: %w", err)
	}

	user := domain.NewUser(username, email, passwordHash, s.cfg.DefaultRole, s.nowFn())
	saveCtx, cancel := s.storeCtx(ctx)
	user, err = s.users.Save(saveCtx, user)
	cancel()
	if err != nil {
		return TokenResponse{}, fmt.Errorf("save user: %w", err)
	}

	resp, err := s.issuePair(ctx, user, domain.ClientInfo{IP: req.IPAddress, UserAgent: req.UserAgent})
	if err != nil {
		return TokenResponse{}, err
	}

	s.publish(ctx, topicUserRegistered, user.UserID, userEvent{
		UserID:     user.UserID,
		Username:   user.Username,
		Email:      user.Email,
		OccurredAt: user.CreatedAt,
	})
	opLogger("register").InfoContext(ctx, "user registered", "outcome", "success", "user_id", user.UserID)
	return resp, nil
}

// Login authenticates by email and password. A locked identity is rejected
// before any lookup or password comparison.
func (s *Service) Login(ctx context.Context, req LoginRequest) (TokenResponse, error) {
	logger := opLogger("login")
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return TokenResponse{}, err
	}

	checkCtx, cancel := s.storeCtx(ctx)
	err = s.logins.CheckAllowed(checkCtx, email)
	cancel()
	if err != nil {
		if errors.Is(err, domain.ErrTooManyAttempts) {
			logger.WarnContext(ctx, "login blocked by attempt counter", "outcome", "blocked")
		}
		return TokenResponse{}, err
	}

	findCtx, cancel := s.storeCtx(ctx)
	user, err := s.users.FindByEmail(findCtx, email)
	cancel()
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.recordLoginFailure(ctx, email)
			return TokenResponse{}, domain.ErrInvalidCredentials
		}
		return TokenResponse{}, fmt.Errorf("find user: %w", err)
	}

	if !s.cfg.VerifyPasswordBeforeState {
		if err := checkAccountState(user); err != nil {
			logger.InfoContext(ctx, "login rejected by account state", "outcome", "rejected", "user_id", user.UserID, "error", err)
			return TokenResponse{}, err
		}
	}
	if err := s.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		s.recordLoginFailure(ctx, email)
		return TokenResponse{}, domain.ErrInvalidCredentials
	}
	if s.cfg.VerifyPasswordBeforeState {
		if err := checkAccountState(user); err != nil {
			logger.InfoContext(ctx, "login rejected by account state", "outcome", "rejected", "user_id", user.UserID, "error", err)
			return TokenResponse{}, err
		}
	}

	resetCtx, cancel := s.storeCtx(ctx)
	if err := s.logins.Reset(resetCtx, email); err != nil {
		logger.WarnContext(ctx, "attempt counter reset failed", "outcome", "degraded", "error", err)
	}
	cancel()

	if err := s.revokeAllForUser(ctx, user.UserID); err != nil {
		return TokenResponse{}, err
	}
	resp, err := s.issuePair(ctx, user, domain.ClientInfo{IP: req.IPAddress, UserAgent: req.UserAgent})
	if err != nil {
		return TokenResponse{}, err
	}
	logger.InfoContext(ctx, "login succeeded", "outcome", "success", "user_id", user.UserID)
	return resp, nil
}

// Refresh rotates a refresh token. The presented token is consumed by a
// conditional ledger update, so concurrent replays mint at most one pair.
func (s *Service) Refresh(ctx context.Context, req RefreshRequest) (TokenResponse, error) {
	raw := strings.TrimSpace(req.RefreshToken)
	if raw == "" {
		return TokenResponse{}, domain.ErrInvalidToken
	}
	claimedUser, err := s.claimedUserID(raw)
	if err != nil {
		return TokenResponse{}, err
	}

	findCtx, cancel := s.storeCtx(ctx)
	stored, err := s.ledger.FindByTokenValue(findCtx, raw)
	cancel()
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return TokenResponse{}, domain.ErrInvalidToken
		}
		return TokenResponse{}, fmt.Errorf("find refresh token: %w", err)
	}
	if stored.Type != domain.TokenTypeRefresh || !stored.Active || stored.UserID != claimedUser {
		return TokenResponse{}, domain.ErrInvalidToken
	}
	now := s.nowFn()
	if !now.Before(stored.ExpiresAt) {
		return TokenResponse{}, domain.ErrTokenExpired
	}

	revoked, err := s.revokeToken(ctx, stored, now)
	if err != nil {
		return TokenResponse{}, err
	}
	if !revoked {
		opLogger("refresh").WarnContext(ctx, "refresh token already consumed", "outcome", "rejected", "user_id", stored.UserID)
		return TokenResponse{}, domain.ErrInvalidToken
	}

	userCtx, cancel := s.storeCtx(ctx)
	user, err := s.users.FindByID(userCtx, stored.UserID)
	cancel()
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return TokenResponse{}, domain.ErrInvalidToken
		}
		return TokenResponse{}, fmt.Errorf("find user: %w", err)
	}
	if !user.Active {
		return TokenResponse{}, domain.ErrInactiveAccount
	}

	return s.issuePair(ctx, user, domain.ClientInfo{IP: req.IPAddress, UserAgent: req.UserAgent})
}

// Logout revokes the presented token. A token that is unknown or already
// revoked fails with domain.ErrInvalidToken.
func (s *Service) Logout(ctx context.Context, token string) error {
	raw := strings.TrimSpace(token)
	if raw == "" {
		return domain.ErrInvalidToken
	}
	findCtx, cancel := s.storeCtx(ctx)
	stored, err := s.ledger.FindByTokenValue(findCtx, raw)
	cancel()
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrInvalidToken
		}
		return fmt.Errorf("find token: %w", err)
	}
	if !stored.Active {
		return domain.ErrInvalidToken
	}

	revoked, err := s.revokeToken(ctx, stored, s.nowFn())
	if err != nil {
		return err
	}
	if !revoked {
		return domain.ErrInvalidToken
	}
	opLogger("logout").InfoContext(ctx, "token revoked", "outcome", "success", "user_id", stored.UserID)
	return nil
}

// ValidateAccessToken verifies signature and expiry, then confirms the token
// is still active in the ledger. A cache entry can reject a token on its own
// but never accept one: a revoke whose cache delete failed leaves a stale
// active entry behind.
func (s *Service) ValidateAccessToken(ctx context.Context, token string) (Principal, error) {
	raw := strings.TrimSpace(token)
	if raw == "" {
		return Principal{}, domain.ErrInvalidToken
	}
	claims, err := s.signer.Verify(raw)
	if err != nil {
		return Principal{}, err
	}
	if claims.Type != string(domain.TokenTypeAccess) {
		return Principal{}, domain.ErrInvalidToken
	}

	now := s.nowFn()
	cacheCtx, cancel := s.storeCtx(ctx)
	cached, err := s.tokens.get(cacheCtx, domain.TokenDigest(raw))
	cancel()
	switch {
	case err == nil:
		if !cached.Active || cached.UserID != claims.UserID || !now.Before(cached.ExpiresAt) {
			return Principal{}, domain.ErrInvalidToken
		}
	case !errors.Is(err, ports.ErrCacheMiss):
		opLogger("validate_token").WarnContext(ctx, "token cache read failed", "outcome", "degraded", "error", err)
	}

	ledgerCtx, cancel := s.storeCtx(ctx)
	stored, err := s.ledger.FindByTokenValue(ledgerCtx, raw)
	cancel()
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Principal{}, domain.ErrInvalidToken
		}
		return Principal{}, fmt.Errorf("find token: %w", err)
	}
	if !stored.IsValid(now) || stored.UserID != claims.UserID {
		return Principal{}, domain.ErrInvalidToken
	}

	return Principal{
		UserID:    claims.UserID,
		Email:     claims.Subject,
		Username:  claims.Username,
		Roles:     claims.Roles,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

// issuePair mints, persists and mirrors a new access/refresh pair. Only the
// ledger write can fail the call.
func (s *Service) issuePair(ctx context.Context, user domain.User, client domain.ClientInfo) (TokenResponse, error) {
	now := s.nowFn().Truncate(time.Second)

	accessValue, err := s.signer.Sign(ports.TokenClaims{
		Subject:  user.Email,
		UserID:   user.UserID,
		Username: user.Username,
		Roles:    user.Roles,
		Type:     string(domain.TokenTypeAccess),
		IssuedAt: now,
	}, s.cfg.AccessTokenTTL)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("sign access token: %w", err)
	}
	refreshValue, err := s.signer.Sign(ports.TokenClaims{
		Subject:  user.Email,
		UserID:   user.UserID,
		Type:     string(domain.TokenTypeRefresh),
		IssuedAt: now,
	}, s.cfg.RefreshTokenTTL)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("sign refresh token: %w", err)
	}

	access := domain.NewToken(accessValue, domain.TokenTypeAccess, user.UserID, now, now.Add(s.cfg.AccessTokenTTL), client)
	refresh := domain.NewToken(refreshValue, domain.TokenTypeRefresh, user.UserID, now, now.Add(s.cfg.RefreshTokenTTL), client)

	saveCtx, cancel := s.storeCtx(ctx)
	err = s.ledger.SaveAll(saveCtx, []domain.Token{access, refresh})
	cancel()
	if err != nil {
		return TokenResponse{}, fmt.Errorf("persist tokens: %w", err)
	}

	for _, tok := range []domain.Token{access, refresh} {
		cacheCtx, cancel := s.storeCtx(ctx)
		if err := s.tokens.put(cacheCtx, tok, s.nowFn()); err != nil {
			opLogger("cache_token").WarnContext(ctx, "token cache mirror failed",
				"outcome", "degraded",
				"user_id", user.UserID,
				"token_type", tok.Type,
				"error", err,
			)
		}
		cancel()
	}

	return TokenResponse{
		AccessToken:      accessValue,
		RefreshToken:     refreshValue,
		TokenType:        "Bearer",
		ExpiresIn:        int64(s.cfg.AccessTokenTTL.Seconds()),
		AccessExpiresAt:  access.ExpiresAt,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

// revokeToken drops the cache mirror first, then flips the ledger row. The
// ledger transition alone is enough to reject the token, since validation
// always confirms against the ledger.
func (s *Service) revokeToken(ctx context.Context, tok domain.Token, at time.Time) (bool, error) {
	cacheCtx, cancel := s.storeCtx(ctx)
	if err := s.tokens.remove(cacheCtx, tok.UserID, tok.Digest); err != nil {
		opLogger("revoke_token").WarnContext(ctx, "token cache delete failed",
			"outcome", "degraded",
			"user_id", tok.UserID,
			"error", err,
		)
	}
	cancel()

	ledgerCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	revoked, err := s.ledger.RevokeIfActive(ledgerCtx, tok.Digest, at)
	if err != nil {
		return false, fmt.Errorf("revoke token: %w", err)
	}
	return revoked, nil
}

// revokeAllForUser revokes every active ledger token of the user, one at a time.
func (s *Service) revokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	findCtx, cancel := s.storeCtx(ctx)
	active, err := s.ledger.FindActiveByOwner(findCtx, userID)
	cancel()
	if err != nil {
		return fmt.Errorf("list active tokens: %w", err)
	}

	now := s.nowFn()
	for _, tok := range active {
		if _, err := s.revokeToken(ctx, tok, now); err != nil {
			return err
		}
	}

	cacheCtx, cancel := s.storeCtx(ctx)
	if err := s.tokens.removeAllForUser(cacheCtx, userID); err != nil {
		opLogger("revoke_all").WarnContext(ctx, "token cache index cleanup failed", "outcome", "degraded", "user_id", userID, "error", err)
	}
	cancel()
	if len(active) > 0 {
		opLogger("revoke_all").InfoContext(ctx, "tokens revoked", "outcome", "success", "user_id", userID, "count", len(active))
	}
	return nil
}

func (s *Service) recordLoginFailure(ctx context.Context, email string) {
	failCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	count, err := s.logins.RecordFailure(failCtx, email)
	if err != nil {
		opLogger("login").WarnContext(ctx, "attempt counter update failed", "outcome", "degraded", "error", err)
		return
	}
	opLogger("login").InfoContext(ctx, "login failed", "outcome", "failure", "failed_count", count)
}

func (s *Service) claimedUserID(raw string) (uuid.UUID, error) {
	claim, err := s.signer.ExtractClaim(raw, "userId")
	if err != nil {
		return uuid.Nil, domain.ErrInvalidToken
	}
	value, ok := claim.(string)
	if !ok {
		return uuid.Nil, domain.ErrInvalidToken
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, domain.ErrInvalidToken
	}
	return id, nil
}

func (s *Service) ensureEmailAvailable(ctx context.Context, email string) error {
	existsCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	exists, err := s.users.ExistsByEmail(existsCtx, email)
	if err != nil {
		return fmt.Errorf("check email: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: email", domain.ErrDuplicateIdentity)
	}
	return nil
}

func (s *Service) ensureUsernameAvailable(ctx context.Context, username string) error {
	existsCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	exists, err := s.users.ExistsByUsername(existsCtx, username)
	if err != nil {
		return fmt.Errorf("check username: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: username", domain.ErrDuplicateIdentity)
	}
	return nil
}

func checkAccountState(user domain.User) error {
	if !user.Active || user.IsDeleted() {
		return domain.ErrInactiveAccount
	}
	if !user.EmailVerified {
		return domain.ErrEmailNotVerified
	}
	return nil
}
