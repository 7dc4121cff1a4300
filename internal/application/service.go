package application

import (
	"crypto/rand"
	"io"
	"time"

	"github.com/viralforge/mesh/services/core-platform/auth-session-service/internal/ports"
)

const serviceName = "auth-session-service"

// Service is the session manager. It is stateless between calls; all shared
// state lives in the user repository, the token ledger and the cache store.
type Service struct {
	cfg    Config
	users  ports.UserRepository
	ledger ports.TokenLedger
	cache  ports.CacheStore
	events ports.EventPublisher
	hasher ports.PasswordHasher
	signer ports.Signer
	random io.Reader
	tokens *tokenCache
	logins *ThrottleGuard
	resets *ThrottleGuard
	nowFn  func() time.Time
}

type Dependencies struct {
	Config Config
	Users  ports.UserRepository
	Ledger ports.TokenLedger
	Cache  ports.CacheStore
	Events ports.EventPublisher
	Hasher ports.PasswordHasher
	Signer ports.Signer
	// Random is the secure source for reset codes.
	Random io.Reader
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

func NewService(deps Dependencies) *Service {
	cfg := deps.Config.withDefaults()
	random := deps.Random
	if random == nil {
		random = rand.Reader
	}
	nowFn := deps.Now
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		cfg:    cfg,
		users:  deps.Users,
		ledger: deps.Ledger,
		cache:  deps.Cache,
		events: deps.Events,
		hasher: deps.Hasher,
		signer: deps.Signer,
		random: random,
		tokens: newTokenCache(deps.Cache),
		logins: NewThrottleGuard(deps.Cache, loginAttemptPrefix, cfg.LoginMaxAttempts, cfg.LoginAttemptWindow),
		resets: NewThrottleGuard(deps.Cache, resetAttemptPrefix, cfg.ResetMaxAttempts, cfg.ResetCodeTTL),
		nowFn:  nowFn,
	}
}

// PublicJWKs exposes the signer's verification keys.
func (s *Service) PublicJWKs() ([]map[string]any, error) {
	return s.signer.PublicJWKs()
}
