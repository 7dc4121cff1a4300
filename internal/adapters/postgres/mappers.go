package postgres

import (
	"errors"
	"strings"

	"github.com/viralforge/mesh/services/core-platform/auth-session-service/internal/domain"
	"gorm.io/gorm"
)

func toDomainUser(row userModel, roles []string) domain.User {
	return domain.User{
		UserID:        row.UserID,
		Username:      row.Username,
		Email:         row.Email,
		PasswordHash:  row.PasswordHash,
		Roles:         roles,
		Active:        row.Active,
		EmailVerified: row.EmailVerified,
		DeletedAt:     row.DeletedAt,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
}

func toUserModel(user domain.User) userModel {
	return userModel{
		UserID:        user.UserID,
		Username:      user.Username,
		Email:         user.Email,
		PasswordHash:  user.PasswordHash,
		Active:        user.Active,
		EmailVerified: user.EmailVerified,
		CreatedAt:     user.CreatedAt,
		UpdatedAt:     user.UpdatedAt,
		DeletedAt:     user.DeletedAt,
	}
}

func toDomainToken(row tokenModel) domain.Token {
	ip := ""
	if row.ClientIP != nil {
		ip = *row.ClientIP
	}
	return domain.Token{
		TokenID:   row.TokenID,
		Digest:    row.TokenDigest,
		Type:      domain.TokenType(row.TokenType),
		UserID:    row.UserID,
		IssuedAt:  row.IssuedAt,
		ExpiresAt: row.ExpiresAt,
		Active:    row.Active,
		RevokedAt: row.RevokedAt,
		ClientIP:  ip,
		UserAgent: row.UserAgent,
	}
}

// toTokenModel never carries the raw token value; only its digest is stored.
func toTokenModel(token domain.Token) tokenModel {
	digest := token.Digest
	if digest == "" {
		digest = domain.TokenDigest(token.Value)
	}
	return tokenModel{
		TokenID:     token.TokenID,
		TokenDigest: digest,
		TokenType:   string(token.Type),
		UserID:      token.UserID,
		IssuedAt:    token.IssuedAt,
		ExpiresAt:   token.ExpiresAt,
		Active:      token.Active,
		RevokedAt:   token.RevokedAt,
		ClientIP:    nullableString(token.ClientIP),
		UserAgent:   token.UserAgent,
	}
}

func nullableString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
