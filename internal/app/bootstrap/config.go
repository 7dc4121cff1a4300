package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration for the auth session service.
type Config struct {
	ServiceID string
	LogLevel  string

	HTTPPort int
	GRPCPort int

	DatabaseURL string
	RedisURL    string
	MaxDBConns  int32

	JWTPrivateKeyPEM  string
	JWTPublicKeyPEM   string
	JWTKeyID          string
	JWTIssuer         string
	AllowEphemeralJWT bool

	BcryptCost  int
	DefaultRole string

	AccessTokenTTL            time.Duration
	RefreshTokenTTL           time.Duration
	EmailVerificationTTL      time.Duration
	ResetCodeTTL              time.Duration
	LoginMaxAttempts          int
	LoginAttemptWindow        time.Duration
	ResetMaxAttempts          int
	VerifyPasswordBeforeState bool
	StoreTimeout              time.Duration
	FrontendBaseURL           string

	KafkaBrokers       []string
	KafkaTopicPrefix   string
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxClaimTTL     time.Duration
	OutboxMaxRetries   int
}

// configFile mirrors the YAML schema used by configs/default.yaml.
type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL  string   `yaml:"postgres_url"`
		RedisURL     string   `yaml:"redis_url"`
		KafkaBrokers []string `yaml:"kafka_brokers"`
	} `yaml:"dependencies"`
	Tokens struct {
		KeyID                string        `yaml:"key_id"`
		Issuer               string        `yaml:"issuer"`
		AccessTTL            time.Duration `yaml:"access_ttl"`
		RefreshTTL           time.Duration `yaml:"refresh_ttl"`
		EmailVerificationTTL time.Duration `yaml:"email_verification_ttl"`
		ResetCodeTTL         time.Duration `yaml:"reset_code_ttl"`
	} `yaml:"tokens"`
	Login struct {
		MaxAttempts               int           `yaml:"max_attempts"`
		AttemptWindow             time.Duration `yaml:"attempt_window"`
		VerifyPasswordBeforeState *bool         `yaml:"verify_password_before_state"`
	} `yaml:"login"`
	Frontend struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"frontend"`
	Outbox struct {
		PollInterval time.Duration `yaml:"poll_interval"`
		BatchSize    int           `yaml:"batch_size"`
		MaxRetries   int           `yaml:"max_retries"`
		TopicPrefix  string        `yaml:"topic_prefix"`
	} `yaml:"outbox"`
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
// A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:            "auth-session-service",
		LogLevel:             "info",
		HTTPPort:             8080,
		GRPCPort:             9090,
		MaxDBConns:           20,
		JWTKeyID:             "auth-session-key-1",
		JWTIssuer:            "auth-session-service",
		AllowEphemeralJWT:    true,
		BcryptCost:           12,
		DefaultRole:          "ROLE_USER",
		AccessTokenTTL:       15 * time.Minute,
		RefreshTokenTTL:      7 * 24 * time.Hour,
		EmailVerificationTTL: 24 * time.Hour,
		ResetCodeTTL:         10 * time.Minute,
		LoginMaxAttempts:     5,
		LoginAttemptWindow:   15 * time.Minute,
		ResetMaxAttempts:     5,
		StoreTimeout:         2 * time.Second,
		FrontendBaseURL:      "http://localhost:3000",
		KafkaTopicPrefix:     "auth.",
		OutboxPollInterval:   2 * time.Second,
		OutboxBatchSize:      100,
		OutboxClaimTTL:       30 * time.Second,
		OutboxMaxRetries:     5,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		applyFile(&cfg, f)
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg.ServiceID = envOrDefault("SERVICE_ID", cfg.ServiceID)
	cfg.LogLevel = envOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))

	cfg.JWTPrivateKeyPEM = envOrDefault("JWT_PRIVATE_KEY_PEM", cfg.JWTPrivateKeyPEM)
	cfg.JWTPublicKeyPEM = envOrDefault("JWT_PUBLIC_KEY_PEM", cfg.JWTPublicKeyPEM)
	cfg.JWTKeyID = envOrDefault("JWT_KEY_ID", cfg.JWTKeyID)
	cfg.JWTIssuer = envOrDefault("JWT_ISSUER", cfg.JWTIssuer)
	cfg.AllowEphemeralJWT = envBool("ALLOW_EPHEMERAL_JWT", cfg.AllowEphemeralJWT)

	cfg.BcryptCost = envInt("BCRYPT_COST", cfg.BcryptCost)
	cfg.DefaultRole = envOrDefault("DEFAULT_ROLE", cfg.DefaultRole)
	cfg.AccessTokenTTL = envDuration("ACCESS_TOKEN_TTL", cfg.AccessTokenTTL)
	cfg.RefreshTokenTTL = envDuration("REFRESH_TOKEN_TTL", cfg.RefreshTokenTTL)
	cfg.EmailVerificationTTL = envDuration("EMAIL_VERIFICATION_TTL", cfg.EmailVerificationTTL)
	cfg.ResetCodeTTL = envDuration("RESET_CODE_TTL", cfg.ResetCodeTTL)
	cfg.LoginMaxAttempts = envInt("LOGIN_MAX_ATTEMPTS", cfg.LoginMaxAttempts)
	cfg.LoginAttemptWindow = envDuration("LOGIN_ATTEMPT_WINDOW", cfg.LoginAttemptWindow)
	cfg.ResetMaxAttempts = envInt("RESET_MAX_ATTEMPTS", cfg.ResetMaxAttempts)
	cfg.VerifyPasswordBeforeState = envBool("VERIFY_PASSWORD_BEFORE_STATE", cfg.VerifyPasswordBeforeState)
	cfg.StoreTimeout = envDuration("STORE_TIMEOUT", cfg.StoreTimeout)
	cfg.FrontendBaseURL = envOrDefault("FRONTEND_BASE_URL", cfg.FrontendBaseURL)

	cfg.KafkaBrokers = envCSV("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaTopicPrefix = envOrDefault("KAFKA_TOPIC_PREFIX", cfg.KafkaTopicPrefix)
	cfg.OutboxPollInterval = envDuration("OUTBOX_POLL_INTERVAL", cfg.OutboxPollInterval)
	cfg.OutboxBatchSize = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxClaimTTL = envDuration("OUTBOX_CLAIM_TTL", cfg.OutboxClaimTTL)
	cfg.OutboxMaxRetries = envInt("OUTBOX_MAX_RETRIES", cfg.OutboxMaxRetries)

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("missing DB_URL/POSTGRES_URL")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("missing REDIS_URL")
	}
	if (cfg.JWTPrivateKeyPEM == "" || cfg.JWTPublicKeyPEM == "") && !cfg.AllowEphemeralJWT {
		return Config{}, fmt.Errorf("missing JWT_PRIVATE_KEY_PEM or JWT_PUBLIC_KEY_PEM")
	}
	if cfg.LoginMaxAttempts <= 0 {
		return Config{}, fmt.Errorf("LOGIN_MAX_ATTEMPTS must be positive")
	}

	return cfg, nil
}

func applyFile(cfg *Config, f configFile) {
	if f.Service.ID != "" {
		cfg.ServiceID = f.Service.ID
	}
	if f.Service.LogLevel != "" {
		cfg.LogLevel = f.Service.LogLevel
	}
	if f.Service.HTTPPort > 0 {
		cfg.HTTPPort = f.Service.HTTPPort
	}
	if f.Service.GRPCPort > 0 {
		cfg.GRPCPort = f.Service.GRPCPort
	}
	if f.Dependencies.PostgresURL != "" {
		cfg.DatabaseURL = f.Dependencies.PostgresURL
	}
	if f.Dependencies.RedisURL != "" {
		cfg.RedisURL = f.Dependencies.RedisURL
	}
	if len(f.Dependencies.KafkaBrokers) > 0 {
		cfg.KafkaBrokers = f.Dependencies.KafkaBrokers
	}
	if f.Tokens.KeyID != "" {
		cfg.JWTKeyID = f.Tokens.KeyID
	}
	if f.Tokens.Issuer != "" {
		cfg.JWTIssuer = f.Tokens.Issuer
	}
	if f.Tokens.AccessTTL > 0 {
		cfg.AccessTokenTTL = f.Tokens.AccessTTL
	}
	if f.Tokens.RefreshTTL > 0 {
		cfg.RefreshTokenTTL = f.Tokens.RefreshTTL
	}
	if f.Tokens.EmailVerificationTTL > 0 {
		cfg.EmailVerificationTTL = f.Tokens.EmailVerificationTTL
	}
	if f.Tokens.ResetCodeTTL > 0 {
		cfg.ResetCodeTTL = f.Tokens.ResetCodeTTL
	}
	if f.Login.MaxAttempts > 0 {
		cfg.LoginMaxAttempts = f.Login.MaxAttempts
	}
	if f.Login.AttemptWindow > 0 {
		cfg.LoginAttemptWindow = f.Login.AttemptWindow
	}
	if f.Login.VerifyPasswordBeforeState != nil {
		cfg.VerifyPasswordBeforeState = *f.Login.VerifyPasswordBeforeState
	}
	if f.Frontend.BaseURL != "" {
		cfg.FrontendBaseURL = f.Frontend.BaseURL
	}
	if f.Outbox.PollInterval > 0 {
		cfg.OutboxPollInterval = f.Outbox.PollInterval
	}
	if f.Outbox.BatchSize > 0 {
		cfg.OutboxBatchSize = f.Outbox.BatchSize
	}
	if f.Outbox.MaxRetries > 0 {
		cfg.OutboxMaxRetries = f.Outbox.MaxRetries
	}
	if f.Outbox.TopicPrefix != "" {
		cfg.KafkaTopicPrefix = f.Outbox.TopicPrefix
	}
}

// envOrDefault returns an env var when present, otherwise the provided fallback.
func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt parses integer env vars with safe fallback on empty/invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// envDuration accepts Go duration strings ("15m", "168h").
func envDuration(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func envCSV(name string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
