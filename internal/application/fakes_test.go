package application

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/core-platform/auth-session-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/auth-session-service/internal/ports"
)

var errStoreDown = errors.New("store unavailable")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]domain.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: map[uuid.UUID]domain.User{}}
}

func (f *fakeUsers) FindByID(_ context.Context, userID uuid.UUID) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok || u.IsDeleted() {
		return domain.User{}, domain.ErrNotFound
	}
	return cloneUser(u), nil
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if !u.IsDeleted() && strings.EqualFold(u.Email, email) {
			return cloneUser(u), nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

func (f *fakeUsers) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := f.FindByEmail(ctx, email)
	return err == nil, nil
}

func (f *fakeUsers) ExistsByUsername(_ context.Context, username string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if !u.IsDeleted() && u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUsers) Save(_ context.Context, user domain.User) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, u := range f.users {
		if id == user.UserID || u.IsDeleted() {
			continue
		}
		if strings.EqualFold(u.Email, user.Email) || u.Username == user.Username {
			return domain.User{}, domain.ErrDuplicateIdentity
		}
	}
	f.users[user.UserID] = cloneUser(user)
	return user, nil
}

func (f *fakeUsers) SoftDelete(_ context.Context, userID uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok || u.IsDeleted() {
		return domain.ErrNotFound
	}
	u.DeletedAt = &at
	u.Active = false
	f.users[userID] = u
	return nil
}

func (f *fakeUsers) update(email string, mutate func(*domain.User)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			mutate(&u)
			f.users[id] = u
		}
	}
}

func (f *fakeUsers) byEmail(email string) domain.User {
	u, _ := f.FindByEmail(context.Background(), email)
	return u
}

func cloneUser(u domain.User) domain.User {
	u.Roles = append([]string(nil), u.Roles...)
	return u
}

type fakeLedger struct {
	mu       sync.Mutex
	tokens   map[string]domain.Token
	failSave bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{tokens: map[string]domain.Token{}}
}

func (f *fakeLedger) FindByTokenValue(_ context.Context, value string) (domain.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tok, ok := f.tokens[domain.TokenDigest(value)]
	if !ok {
		return domain.Token{}, domain.ErrNotFound
	}
	return tok, nil
}

func (f *fakeLedger) FindActiveByOwner(_ context.Context, userID uuid.UUID) ([]domain.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Token
	for _, tok := range f.tokens {
		if tok.UserID == userID && tok.Active {
			out = append(out, tok)
		}
	}
	return out, nil
}

func (f *fakeLedger) Save(ctx context.Context, token domain.Token) error {
	return f.SaveAll(ctx, []domain.Token{token})
}

func (f *fakeLedger) SaveAll(_ context.Context, tokens []domain.Token) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSave {
		return errStoreDown
	}
	for _, tok := range tokens {
		tok.Value = ""
		f.tokens[tok.Digest] = tok
	}
	return nil
}

func (f *fakeLedger) RevokeIfActive(_ context.Context, digest string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tok, ok := f.tokens[digest]
	if !ok || !tok.Active {
		return false, nil
	}
	tok.Revoke(at)
	f.tokens[digest] = tok
	return true, nil
}

func (f *fakeLedger) token(value string) domain.Token {
	tok, _ := f.FindByTokenValue(context.Background(), value)
	return tok
}

type cacheEntry struct {
	value     []byte
	set       map[string]struct{}
	expiresAt time.Time
}

// fakeCache is an in-memory CacheStore driven by the fixture clock.
type fakeCache struct {
	mu      sync.Mutex
	clock   *fakeClock
	entries map[string]*cacheEntry
	failAll bool
}

func newFakeCache(clock *fakeClock) *fakeCache {
	return &fakeCache{clock: clock, entries: map[string]*cacheEntry{}}
}

func (c *fakeCache) live(key string) (*cacheEntry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && !c.clock.Now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e, true
}

func (c *fakeCache) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.clock.Now().Add(ttl)
}

func (c *fakeCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll {
		return errStoreDown
	}
	c.entries[key] = &cacheEntry{value: append([]byte(nil), value...), expiresAt: c.expiry(ttl)}
	return nil
}

func (c *fakeCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll {
		return nil, errStoreDown
	}
	e, ok := c.live(key)
	if !ok || e.set != nil {
		return nil, ports.ErrCacheMiss
	}
	return append([]byte(nil), e.value...), nil
}

func (c *fakeCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll {
		return errStoreDown
	}
	for _, k := range keys {
		delete(c.entries, k)
	}
	return nil
}

func (c *fakeCache) Increment(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll {
		return 0, errStoreDown
	}
	return c.incrLocked(key, 0), nil
}

func (c *fakeCache) incrLocked(key string, window time.Duration) int64 {
	e, ok := c.live(key)
	if !ok {
		e = &cacheEntry{value: []byte("0")}
		c.entries[key] = e
	}
	n, _ := strconv.ParseInt(string(e.value), 10, 64)
	n++
	e.value = []byte(strconv.FormatInt(n, 10))
	if window > 0 && (n == 1 || e.expiresAt.IsZero()) {
		e.expiresAt = c.clock.Now().Add(window)
	}
	return n
}

func (c *fakeCache) Expire(_ context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll {
		return errStoreDown
	}
	if e, ok := c.live(key); ok {
		e.expiresAt = c.expiry(ttl)
	}
	return nil
}

func (c *fakeCache) AddToSet(_ context.Context, key string, ttl time.Duration, members ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll {
		return errStoreDown
	}
	e, ok := c.live(key)
	if !ok {
		e = &cacheEntry{set: map[string]struct{}{}}
		c.entries[key] = e
	}
	for _, m := range members {
		e.set[m] = struct{}{}
	}
	if ttl > 0 {
		e.expiresAt = c.expiry(ttl)
	}
	return nil
}

func (c *fakeCache) MembersOf(_ context.Context, key string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll {
		return nil, errStoreDown
	}
	e, ok := c.live(key)
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(e.set))
	for m := range e.set {
		out = append(out, m)
	}
	return out, nil
}

func (c *fakeCache) RemoveFromSet(_ context.Context, key string, members ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll {
		return errStoreDown
	}
	if e, ok := c.live(key); ok {
		for _, m := range members {
			delete(e.set, m)
		}
	}
	return nil
}

func (c *fakeCache) IncrementWithin(_ context.Context, key string, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll {
		return 0, errStoreDown
	}
	return c.incrLocked(key, window), nil
}

func (c *fakeCache) Take(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll {
		return nil, errStoreDown
	}
	e, ok := c.live(key)
	if !ok {
		return nil, ports.ErrCacheMiss
	}
	delete(c.entries, key)
	return e.value, nil
}

func (c *fakeCache) DeleteIfEquals(_ context.Context, key string, value []byte) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll {
		return false, errStoreDown
	}
	e, ok := c.live(key)
	if !ok || string(e.value) != string(value) {
		return false, nil
	}
	delete(c.entries, key)
	return true, nil
}

func (c *fakeCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.live(key)
	return ok
}

func (c *fakeCache) setFailing(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failAll = v
}

type publishedEvent struct {
	topic   string
	key     string
	payload []byte
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	fail   bool
}

func (p *fakePublisher) Publish(_ context.Context, topic, key string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("bus unavailable")
	}
	p.events = append(p.events, publishedEvent{topic: topic, key: key, payload: payload})
	return nil
}

func (p *fakePublisher) last(topic string) (publishedEvent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.events) - 1; i >= 0; i-- {
		if p.events[i].topic == topic {
			return p.events[i], true
		}
	}
	return publishedEvent{}, false
}

type fakeHasher struct {
	mu       sync.Mutex
	compares int
}

func (h *fakeHasher) Hash(password string) (string, error) {
	return "hash:" + password, nil
}

func (h *fakeHasher) Compare(hash, password string) error {
	h.mu.Lock()
	h.compares++
	h.mu.Unlock()
	if hash != "hash:"+password {
		return domain.ErrInvalidCredentials
	}
	return nil
}

func (h *fakeHasher) compareCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.compares
}

// fakeSigner issues opaque tokens and keeps their claims in memory.
type fakeSigner struct {
	mu     sync.Mutex
	clock  *fakeClock
	issued map[string]ports.TokenClaims
}

func newFakeSigner(clock *fakeClock) *fakeSigner {
	return &fakeSigner{clock: clock, issued: map[string]ports.TokenClaims{}}
}

func (s *fakeSigner) Sign(claims ports.TokenClaims, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if claims.IssuedAt.IsZero() {
		claims.IssuedAt = s.clock.Now()
	}
	claims.TokenID = uuid.NewString()
	claims.ExpiresAt = claims.IssuedAt.Add(ttl)
	value := "tok-" + claims.TokenID
	s.issued[value] = claims
	return value, nil
}

func (s *fakeSigner) Verify(token string) (ports.TokenClaims, error) {
	s.mu.Lock()
	claims, ok := s.issued[token]
	s.mu.Unlock()
	if !ok {
		return ports.TokenClaims{}, domain.ErrInvalidToken
	}
	if !s.clock.Now().Before(claims.ExpiresAt) {
		return ports.TokenClaims{}, domain.ErrTokenExpired
	}
	return claims, nil
}

func (s *fakeSigner) ExtractClaim(token, name string) (any, error) {
	s.mu.Lock()
	claims, ok := s.issued[token]
	s.mu.Unlock()
	if !ok {
		return nil, domain.ErrInvalidToken
	}
	switch name {
	case "userId":
		return claims.UserID.String(), nil
	case "sub":
		return claims.Subject, nil
	case "type":
		return claims.Type, nil
	}
	return nil, domain.ErrInvalidToken
}

func (s *fakeSigner) PublicJWKs() ([]map[string]any, error) {
	return []map[string]any{{"kid": "fake"}}, nil
}
