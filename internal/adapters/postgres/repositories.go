package postgres

import (
	"github.com/viralforge/mesh/services/core-platform/auth-session-service/internal/ports"
	"gorm.io/gorm"
)

type Repositories struct {
	Users  ports.UserRepository
	Tokens ports.TokenLedger
	Outbox ports.OutboxRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Users:  &userRepository{db: db},
		Tokens: &tokenLedger{db: db},
		Outbox: &outboxRepository{db: db},
	}
}
