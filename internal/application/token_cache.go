package application

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/core-platform/auth-session-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/auth-session-service/internal/ports"
)

const (
	tokenKeyPrefix     = "auth:token:"
	userTokenKeyPrefix = "auth:user:"
)

// cachedToken is the cache mirror of a ledger entry. The ledger stays
// authoritative; a missing entry only means "ask the ledger".
type cachedToken struct {
	UserID    uuid.UUID        `json:"user_id"`
	Type      domain.TokenType `json:"type"`
	Active    bool             `json:"active"`
	ExpiresAt time.Time        `json:"expires_at"`
	IP        string           `json:"ip,omitempty"`
	UserAgent string           `json:"user_agent,omitempty"`
}

type tokenCache struct {
	store ports.CacheStore
}

func newTokenCache(store ports.CacheStore) *tokenCache {
	return &tokenCache{store: store}
}

func tokenKey(digest string) string { return tokenKeyPrefix + digest }

func userTokensKey(userID uuid.UUID) string { return userTokenKeyPrefix + userID.String() }

// put mirrors an active token with a TTL equal to its remaining lifetime and
// indexes it under its owner.
func (c *tokenCache) put(ctx context.Context, tok domain.Token, now time.Time) error {
	ttl := tok.ExpiresAt.Sub(now)
	if ttl <= 0 || !tok.Active {
		return nil
	}
	raw, err := json.Marshal(cachedToken{
		UserID:    tok.UserID,
		Type:      tok.Type,
		Active:    tok.Active,
		ExpiresAt: tok.ExpiresAt,
		IP:        tok.ClientIP,
		UserAgent: tok.UserAgent,
	})
	if err != nil {
		return fmt.Errorf("encode cached token: %w", err)
	}
	if err := c.store.Set(ctx, tokenKey(tok.Digest), raw, ttl); err != nil {
		return err
	}
	return c.store.AddToSet(ctx, userTokensKey(tok.UserID), ttl, tok.Digest)
}

func (c *tokenCache) get(ctx context.Context, digest string) (cachedToken, error) {
	raw, err := c.store.Get(ctx, tokenKey(digest))
	if err != nil {
		return cachedToken{}, err
	}
	var out cachedToken
	if err := json.Unmarshal(raw, &out); err != nil {
		return cachedToken{}, fmt.Errorf("decode cached token: %w", err)
	}
	return out, nil
}

func (c *tokenCache) remove(ctx context.Context, userID uuid.UUID, digest string) error {
	if err := c.store.Delete(ctx, tokenKey(digest)); err != nil {
		return err
	}
	return c.store.RemoveFromSet(ctx, userTokensKey(userID), digest)
}

// removeAllForUser drops every mirrored token indexed under userID.
func (c *tokenCache) removeAllForUser(ctx context.Context, userID uuid.UUID) error {
	digests, err := c.store.MembersOf(ctx, userTokensKey(userID))
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(digests)+1)
	for _, d := range digests {
		keys = append(keys, tokenKey(d))
	}
	keys = append(keys, userTokensKey(userID))
	return c.store.Delete(ctx, keys...)
}
