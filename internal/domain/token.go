package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

type TokenType string

const (
	TokenTypeAccess            TokenType = "ACCESS"
	TokenTypeRefresh           TokenType = "REFRESH"
	TokenTypeEmailVerification TokenType = "EMAIL_VERIFICATION"
	TokenTypePasswordReset     TokenType = "PASSWORD_RESET"
)

// Token is a ledger entry for an issued credential. Value is only populated at
// issuance time; the ledger itself keeps the digest.
type Token struct {
	TokenID   uuid.UUID
	Value     string
	Digest    string
	Type      TokenType
	UserID    uuid.UUID
	IssuedAt  time.Time
	ExpiresAt time.Time
	Active    bool
	RevokedAt *time.Time
	ClientIP  string
	UserAgent string
}

// ClientInfo is the request metadata recorded alongside issued tokens.
type ClientInfo struct {
	IP        string
	UserAgent string
}

func NewToken(value string, tokenType TokenType, userID uuid.UUID, issuedAt, expiresAt time.Time, client ClientInfo) Token {
	return Token{
		TokenID:   uuid.New(),
		Value:     value,
		Digest:    TokenDigest(value),
		Type:      tokenType,
		UserID:    userID,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
		Active:    true,
		ClientIP:  client.IP,
		UserAgent: client.UserAgent,
	}
}

// IsValid reports whether the token is active and not yet expired at now.
func (t Token) IsValid(now time.Time) bool {
	return t.Active && now.Before(t.ExpiresAt)
}

// Revoke deactivates the token. Revocation is one-way; a revoked token keeps
// its original revocation time.
func (t *Token) Revoke(at time.Time) {
	if !t.Active {
		return
	}
	t.Active = false
	revokedAt := at
	t.RevokedAt = &revokedAt
}

// TokenDigest is the storage key for a token value.
func TokenDigest(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

