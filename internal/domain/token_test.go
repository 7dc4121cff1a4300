package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestTokenIsValid(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tok := NewToken("value", TokenTypeAccess, uuid.New(), now, now.Add(time.Minute), ClientInfo{IP: "127.0.0.1"})

	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{name: "before expiry", at: now.Add(30 * time.Second), want: true},
		{name: "at expiry", at: now.Add(time.Minute), want: false},
		{name: "after expiry", at: now.Add(2 * time.Minute), want: false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tok.IsValid(tc.at); got != tc.want {
				t.Fatalf("IsValid(%s) = %v, want %v", tc.at, got, tc.want)
			}
		})
	}
}

func TestTokenRevokeIsOneWay(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tok := NewToken("value", TokenTypeRefresh, uuid.New(), now, now.Add(time.Hour), ClientInfo{})

	tok.Revoke(now.Add(time.Minute))
	if tok.Active || tok.IsValid(now.Add(2*time.Minute)) {
		t.Fatalf("expected revoked token to be invalid")
	}
	first := *tok.RevokedAt

	tok.Revoke(now.Add(10 * time.Minute))
	if !tok.RevokedAt.Equal(first) {
		t.Fatalf("expected revocation time to stay %s, got %s", first, *tok.RevokedAt)
	}
}

func TestTokenDigestStable(t *testing.T) {
	t.Parallel()

	if TokenDigest("abc") != TokenDigest("abc") {
		t.Fatalf("expected digest to be deterministic")
	}
	if TokenDigest("abc") == TokenDigest("abd") {
		t.Fatalf("expected different digests for different values")
	}
	tok := NewToken("abc", TokenTypeAccess, uuid.New(), time.Now(), time.Now().Add(time.Minute), ClientInfo{})
	if tok.Digest != TokenDigest("abc") {
		t.Fatalf("expected NewToken to populate digest")
	}
}

func TestUserRoles(t *testing.T) {
	t.Parallel()

	u := NewUser("alice", "alice@example.com", "hash", "", time.Now())
	if !u.HasRole(DefaultRole) || !u.Active || u.EmailVerified {
		t.Fatalf("unexpected defaults: %+v", u)
	}
	u.AddRole(DefaultRole)
	u.AddRole("ROLE_ADMIN")
	if len(u.Roles) != 2 {
		t.Fatalf("expected roles to behave as a set, got %v", u.Roles)
	}
}
