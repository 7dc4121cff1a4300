package ports

import (
	"time"

	"github.com/google/uuid"
)

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// TokenClaims is the claim set carried by every signed token. Type holds the
// domain.TokenType the token was minted for.
type TokenClaims struct {
	TokenID   string    `json:"jti"`
	Subject   string    `json:"sub"`
	UserID    uuid.UUID `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	Roles     []string  `json:"roles,omitempty"`
	Type      string    `json:"type"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
	KeyID     string    `json:"kid,omitempty"`
}

// Signer mints and verifies signed tokens.
// Verify fails with domain.ErrTokenExpired for expired tokens and
// domain.ErrInvalidToken for anything else it cannot accept.
// ExtractClaim checks the signature but not the expiry.
type Signer interface {
	Sign(claims TokenClaims, ttl time.Duration) (string, error)
	Verify(token string) (TokenClaims, error)
	ExtractClaim(token, name string) (any, error)
	PublicJWKs() ([]map[string]any, error)
}
