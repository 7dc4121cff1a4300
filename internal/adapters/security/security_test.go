package security

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/core-platform/auth-session-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/auth-session-service/internal/ports"
)

func newTestSigner(t *testing.T) *JWTSigner {
	t.Helper()
	signer, err := NewEphemeralJWTSigner("test-key", "auth-session-service")
	if err != nil {
		t.Fatalf("NewEphemeralJWTSigner failed: %v", err)
	}
	return signer
}

func TestJWTSignerRoundTrip(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)
	issuedAt := time.Now().UTC().Truncate(time.Second)
	in := ports.TokenClaims{
		Subject:  "alice@example.com",
		UserID:   uuid.New(),
		Username: "alice",
		Roles:    []string{"ROLE_USER"},
		Type:     string(domain.TokenTypeAccess),
		IssuedAt: issuedAt,
	}

	raw, err := signer.Sign(in, 15*time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	out, err := signer.Verify(raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if out.UserID != in.UserID || out.Subject != in.Subject || out.Username != in.Username || out.Type != in.Type {
		t.Fatalf("claims mismatch: in=%+v out=%+v", in, out)
	}
	if len(out.Roles) != 1 || out.Roles[0] != "ROLE_USER" {
		t.Fatalf("unexpected roles: %v", out.Roles)
	}
	if !out.IssuedAt.Equal(issuedAt) || !out.ExpiresAt.Equal(issuedAt.Add(15*time.Minute)) {
		t.Fatalf("unexpected timestamps: iat=%s exp=%s", out.IssuedAt, out.ExpiresAt)
	}
	if out.TokenID == "" || out.KeyID != "test-key" {
		t.Fatalf("expected jti and kid, got %+v", out)
	}
}

func TestJWTSignerDistinctTokensForSameClaims(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)
	claims := ports.TokenClaims{UserID: uuid.New(), Type: string(domain.TokenTypeRefresh), IssuedAt: time.Now().UTC()}
	a, err := signer.Sign(claims, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	b, err := signer.Sign(claims, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if a == b {
		t.Fatalf("expected unique token ids to produce distinct tokens")
	}
}

func TestJWTSignerRejectsExpiredToken(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)
	raw, err := signer.Sign(ports.TokenClaims{
		UserID:   uuid.New(),
		Type:     string(domain.TokenTypeAccess),
		IssuedAt: time.Now().UTC().Add(-2 * time.Hour),
	}, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := signer.Verify(raw); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}

	// Signature-only extraction still works on expired tokens.
	userID, err := signer.ExtractClaim(raw, "userId")
	if err != nil {
		t.Fatalf("extract claim: %v", err)
	}
	if _, ok := userID.(string); !ok {
		t.Fatalf("expected string userId claim, got %T", userID)
	}
}

func TestJWTSignerExpiryHasNoLeeway(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)
	now := time.Now().UTC().Truncate(time.Second)
	signer.nowFn = func() time.Time { return now }

	cases := []struct {
		name     string
		issuedAt time.Time
		wantErr  error
	}{
		{name: "one second before expiry", issuedAt: now.Add(-59 * time.Second)},
		{name: "at expiry", issuedAt: now.Add(-time.Minute), wantErr: domain.ErrTokenExpired},
		{name: "one second past expiry", issuedAt: now.Add(-61 * time.Second), wantErr: domain.ErrTokenExpired},
	}
	for _, tc := range cases {
		raw, err := signer.Sign(ports.TokenClaims{
			UserID:   uuid.New(),
			Type:     string(domain.TokenTypeAccess),
			IssuedAt: tc.issuedAt,
		}, time.Minute)
		if err != nil {
			t.Fatalf("%s: sign: %v", tc.name, err)
		}
		_, err = signer.Verify(raw)
		if tc.wantErr == nil && err != nil {
			t.Fatalf("%s: expected valid token, got %v", tc.name, err)
		}
		if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.wantErr, err)
		}
	}
}

func TestJWTSignerRejectsForeignSignature(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)
	other := newTestSigner(t)
	raw, err := other.Sign(ports.TokenClaims{UserID: uuid.New(), Type: string(domain.TokenTypeAccess)}, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := signer.Verify(raw); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := signer.ExtractClaim(raw, "userId"); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken from ExtractClaim, got %v", err)
	}
	if _, err := signer.Verify("not-a-jwt"); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for garbage, got %v", err)
	}
}

func TestJWTSignerMissingClaim(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)
	raw, err := signer.Sign(ports.TokenClaims{UserID: uuid.New(), Type: string(domain.TokenTypeAccess)}, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := signer.ExtractClaim(raw, "nope"); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestJWTSignerPublicJWKs(t *testing.T) {
	t.Parallel()

	keys, err := newTestSigner(t).PublicJWKs()
	if err != nil {
		t.Fatalf("PublicJWKs: %v", err)
	}
	if len(keys) != 1 || keys[0]["kid"] != "test-key" || keys[0]["alg"] != "RS256" {
		t.Fatalf("unexpected jwks: %v", keys)
	}
}

func TestBcryptHasher(t *testing.T) {
	t.Parallel()

	hasher := NewBcryptHasher(4)
	hash, err := hasher.Hash("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := hasher.Compare(hash, "correct horse"); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
	if err := hasher.Compare(hash, "wrong"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}
