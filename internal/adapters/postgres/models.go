package postgres

import (
	"time"

	"github.com/google/uuid"
)

type roleModel struct {
	RoleID    uuid.UUID `gorm:"column:role_id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name      string    `gorm:"column:name"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (roleModel) TableName() string { return "roles" }

type userModel struct {
	UserID        uuid.UUID  `gorm:"column:user_id;type:uuid;primaryKey"`
	Username      string     `gorm:"column:username"`
	Email         string     `gorm:"column:email"`
	PasswordHash  string     `gorm:"column:password_hash"`
	Active        bool       `gorm:"column:active"`
	EmailVerified bool       `gorm:"column:email_verified"`
	CreatedAt     time.Time  `gorm:"column:created_at"`
	UpdatedAt     time.Time  `gorm:"column:updated_at"`
	DeletedAt     *time.Time `gorm:"column:deleted_at"`
}

func (userModel) TableName() string { return "users" }

type userRoleModel struct {
	UserID uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey"`
	RoleID uuid.UUID `gorm:"column:role_id;type:uuid;primaryKey"`
}

func (userRoleModel) TableName() string { return "user_roles" }

type tokenModel struct {
	TokenID     uuid.UUID  `gorm:"column:token_id;type:uuid;primaryKey"`
	TokenDigest string     `gorm:"column:token_digest"`
	TokenType   string     `gorm:"column:token_type"`
	UserID      uuid.UUID  `gorm:"column:user_id;type:uuid"`
	IssuedAt    time.Time  `gorm:"column:issued_at"`
	ExpiresAt   time.Time  `gorm:"column:expires_at"`
	Active      bool       `gorm:"column:active"`
	RevokedAt   *time.Time `gorm:"column:revoked_at"`
	ClientIP    *string    `gorm:"column:client_ip"`
	UserAgent   string     `gorm:"column:user_agent"`
}

func (tokenModel) TableName() string { return "auth_tokens" }

type authOutboxModel struct {
	OutboxID       uuid.UUID  `gorm:"column:outbox_id;type:uuid;primaryKey"`
	Topic          string     `gorm:"column:topic"`
	PartitionKey   string     `gorm:"column:partition_key"`
	Payload        string     `gorm:"column:payload;type:jsonb"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	PublishedAt    *time.Time `gorm:"column:published_at"`
	RetryCount     int        `gorm:"column:retry_count"`
	LastError      *string    `gorm:"column:last_error"`
	LastErrorAt    *time.Time `gorm:"column:last_error_at"`
	ClaimToken     *string    `gorm:"column:claim_token"`
	ClaimUntil     *time.Time `gorm:"column:claim_until"`
	DeadLetteredAt *time.Time `gorm:"column:dead_lettered_at"`
}

func (authOutboxModel) TableName() string { return "auth_outbox" }

type schemaMigrationModel struct {
	Version   string    `gorm:"column:version;primaryKey"`
	AppliedAt time.Time `gorm:"column:applied_at"`
}

func (schemaMigrationModel) TableName() string { return "schema_migrations" }
