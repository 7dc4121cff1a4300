package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/core-platform/auth-session-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/auth-session-service/internal/ports"
)

// JWTSigner signs and verifies RS256 tokens for the session and ephemeral flows.
type JWTSigner struct {
	kid        string
	issuer     string
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	nowFn      func() time.Time
}

// NewJWTSigner builds a signer from configured PEM keys.
func NewJWTSigner(kid, issuer, privateKeyPEM, publicKeyPEM string) (*JWTSigner, error) {
	if kid == "" {
		return nil, errors.New("jwt key id (kid) is required")
	}
	if privateKeyPEM == "" || publicKeyPEM == "" {
		return nil, errors.New("jwt private/public keys are required")
	}

	priv, err := parseRSAPrivate(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	pub, err := parseRSAPublic(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	if priv.PublicKey.N.Cmp(pub.N) != 0 {
		return nil, errors.New("jwt public key does not match private key")
	}

	return newSigner(kid, issuer, priv, pub), nil
}

// NewEphemeralJWTSigner creates an in-memory keypair for local runs and tests.
func NewEphemeralJWTSigner(kid, issuer string) (*JWTSigner, error) {
	if kid == "" {
		kid = "ephemeral-key-1"
	}
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	return newSigner(kid, issuer, privateKey, &privateKey.PublicKey), nil
}

func newSigner(kid, issuer string, priv *rsa.PrivateKey, pub *rsa.PublicKey) *JWTSigner {
	return &JWTSigner{
		kid:        kid,
		issuer:     issuer,
		privateKey: priv,
		publicKey:  pub,
		nowFn:      func() time.Time { return time.Now().UTC() },
	}
}

type tokenJWTClaims struct {
	UserID   string   `json:"userId"`
	Username string   `json:"username,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	Type     string   `json:"type"`
	jwt.RegisteredClaims
}

// Sign mints a token that expires ttl after claims.IssuedAt (or now when unset).
func (s *JWTSigner) Sign(claims ports.TokenClaims, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("%w: token ttl must be positive", domain.ErrInvalidInput)
	}
	issuedAt := claims.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = s.nowFn()
	}
	tokenID := claims.TokenID
	if tokenID == "" {
		tokenID = uuid.NewString()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, tokenJWTClaims{
		UserID:   claims.UserID.String(),
		Username: claims.Username,
		Roles:    claims.Roles,
		Type:     claims.Type,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Subject:   claims.Subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	})
	token.Header["kid"] = s.kid
	return token.SignedString(s.privateKey)
}

func (s *JWTSigner) Verify(raw string) (ports.TokenClaims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &tokenJWTClaims{}, s.keyFunc, s.parserOptions()...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ports.TokenClaims{}, fmt.Errorf("%w: %v", domain.ErrTokenExpired, err)
		}
		return ports.TokenClaims{}, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*tokenJWTClaims)
	if !ok || !parsed.Valid {
		return ports.TokenClaims{}, fmt.Errorf("%w: invalid token claims", domain.ErrInvalidToken)
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return ports.TokenClaims{}, fmt.Errorf("%w: parse userId: %v", domain.ErrInvalidToken, err)
	}

	kid, _ := parsed.Header["kid"].(string)
	out := ports.TokenClaims{
		TokenID:  claims.ID,
		Subject:  claims.Subject,
		UserID:   userID,
		Username: claims.Username,
		Roles:    claims.Roles,
		Type:     claims.Type,
		KeyID:    kid,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return out, nil
}

// ExtractClaim returns a single claim from a token with a valid signature.
// Expiry is not checked.
func (s *JWTSigner) ExtractClaim(raw, name string) (any, error) {
	claims := jwt.MapClaims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	}
	if _, err := jwt.ParseWithClaims(raw, claims, s.keyFunc, opts...); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	value, ok := claims[name]
	if !ok {
		return nil, fmt.Errorf("%w: claim %q not present", domain.ErrInvalidToken, name)
	}
	return value, nil
}

func (s *JWTSigner) PublicJWKs() ([]map[string]any, error) {
	e := big.NewInt(int64(s.publicKey.E)).Bytes()
	n := s.publicKey.N.Bytes()

	return []map[string]any{
		{
			"kid": s.kid,
			"kty": "RSA",
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(n),
			"e":   base64.RawURLEncoding.EncodeToString(e),
		},
	}, nil
}

func (s *JWTSigner) keyFunc(token *jwt.Token) (any, error) {
	if token.Method.Alg() != jwt.SigningMethodRS256.Alg() {
		return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
	}
	return s.publicKey, nil
}

// parserOptions applies no leeway: a token is rejected from its exp second on.
func (s *JWTSigner) parserOptions() []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.nowFn),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	return opts
}

func parseRSAPrivate(raw string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(raw))
	if block == nil {
		return nil, errors.New("invalid private PEM")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	keyAny, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := keyAny.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not RSA")
	}
	return key, nil
}

func parseRSAPublic(raw string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(raw))
	if block == nil {
		return nil, errors.New("invalid public PEM")
	}
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}
	keyAny, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := keyAny.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not RSA")
	}
	return key, nil
}
