package application

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/mail"
	"strings"
	"unicode"

	"github.com/viralforge/mesh/services/core-platform/auth-session-service/internal/domain"
)

// storeCtx bounds a single repository, ledger or cache call.
func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.StoreTimeout)
}

func opLogger(operation string) *slog.Logger {
	return slog.Default().With(
		"service", serviceName,
		"module", "application",
		"layer", "application",
		"operation", operation,
	)
}

// normalizeEmail canonicalizes and validates email format before persistence/comparison.
func normalizeEmail(email string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(email))
	if trimmed == "" {
		return "", fmt.Errorf("%w: email is required", domain.ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed {
		return "", fmt.Errorf("%w: invalid email", domain.ErrInvalidInput)
	}
	return trimmed, nil
}

func normalizeUsername(username string) (string, error) {
	trimmed := strings.TrimSpace(username)
	if trimmed == "" {
		return "", fmt.Errorf("%w: username is required", domain.ErrInvalidInput)
	}
	if len(trimmed) > 64 {
		return "", fmt.Errorf("%w: username is too long", domain.ErrInvalidInput)
	}
	for _, r := range trimmed {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return "", fmt.Errorf("%w: username must not contain whitespace", domain.ErrInvalidInput)
		}
	}
	return trimmed, nil
}

func requirePassword(password string) error {
	if password == "" {
		return fmt.Errorf("%w: password is required", domain.ErrInvalidInput)
	}
	return nil
}

// randomDigits returns a uniformly distributed, zero-padded numeric code.
func randomDigits(random io.Reader, size int) (string, error) {
	if size <= 0 {
		size = 6
	}
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(size)), nil)
	n, err := rand.Int(random, max)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", size, n.Int64()), nil
}
