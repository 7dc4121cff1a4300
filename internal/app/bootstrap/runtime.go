package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/gorm"

	cacheadapter "github.com/viralforge/mesh/services/core-platform/auth-session-service/internal/adapters/cache"
	eventadapter "github.com/viralforge/mesh/services/core-platform/auth-session-service/internal/adapters/events"
	grpcadapter "github.com/viralforge/mesh/services/core-platform/auth-session-service/internal/adapters/grpc"
	httpadapter "github.com/viralforge/mesh/services/core-platform/auth-session-service/internal/adapters/http"
	"github.com/viralforge/mesh/services/core-platform/auth-session-service/internal/adapters/postgres"
	"github.com/viralforge/mesh/services/core-platform/auth-session-service/internal/adapters/security"
	"github.com/viralforge/mesh/services/core-platform/auth-session-service/internal/application"
	"github.com/viralforge/mesh/services/core-platform/auth-session-service/internal/ports"
)

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	db         *gorm.DB
	redis      *redis.Client
	repos      postgres.Repositories
	httpServer *http.Server
	grpcServer *grpc.Server
	health     *health.Server
	cleanupFn  func(context.Context)
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)})).
		With("service", cfg.ServiceID)
	slog.SetDefault(logger)
	logger.Info("bootstrapping auth session service", "http_port", cfg.HTTPPort, "grpc_port", cfg.GRPCPort)

	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}
	if err := postgres.RunMigrations(ctx, db); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	redisClient, err := cacheadapter.Connect(ctx, cfg.RedisURL)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = sqlDB.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	cleanup := func(context.Context) {
		_ = redisClient.Close()
		_ = sqlDB.Close()
	}

	signer, err := newSigner(cfg, logger)
	if err != nil {
		cleanup(ctx)
		return nil, err
	}

	repos := postgres.NewRepositories(db)
	svc := application.NewService(application.Dependencies{
		Config: application.Config{
			DefaultRole:               cfg.DefaultRole,
			AccessTokenTTL:            cfg.AccessTokenTTL,
			RefreshTokenTTL:           cfg.RefreshTokenTTL,
			EmailVerificationTTL:      cfg.EmailVerificationTTL,
			ResetCodeTTL:              cfg.ResetCodeTTL,
			LoginMaxAttempts:          cfg.LoginMaxAttempts,
			LoginAttemptWindow:        cfg.LoginAttemptWindow,
			ResetMaxAttempts:          cfg.ResetMaxAttempts,
			StoreTimeout:              cfg.StoreTimeout,
			FrontendBaseURL:           cfg.FrontendBaseURL,
			VerifyPasswordBeforeState: cfg.VerifyPasswordBeforeState,
		},
		Users:  repos.Users,
		Ledger: repos.Tokens,
		Cache:  cacheadapter.NewRedisStore(redisClient),
		Events: eventadapter.NewOutboxPublisher(repos.Outbox),
		Hasher: security.NewBcryptHasher(cfg.BcryptCost),
		Signer: signer,
	})

	handler := httpadapter.NewHandler(svc, map[string]httpadapter.ReadinessCheck{
		"postgres": sqlDB.PingContext,
		"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           httpadapter.NewRouter(handler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(grpcadapter.LoggingInterceptor))
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	grpcadapter.Register(grpcServer, grpcadapter.NewAuthInternalServer(svc))

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		redis:      redisClient,
		repos:      repos,
		httpServer: httpServer,
		grpcServer: grpcServer,
		health:     healthSrv,
		cleanupFn:  cleanup,
	}, nil
}

// newSigner loads the configured RSA key pair, falling back to a throwaway
// pair only when ALLOW_EPHEMERAL_JWT is set.
func newSigner(cfg Config, logger *slog.Logger) (*security.JWTSigner, error) {
	signer, err := security.NewJWTSigner(cfg.JWTKeyID, cfg.JWTIssuer, cfg.JWTPrivateKeyPEM, cfg.JWTPublicKeyPEM)
	if err == nil {
		return signer, nil
	}
	if !cfg.AllowEphemeralJWT {
		return nil, fmt.Errorf("init jwt signer: %w", err)
	}
	logger.Warn("using ephemeral JWT keys for local/dev runtime")
	signer, err = security.NewEphemeralJWTSigner(cfg.JWTKeyID, cfg.JWTIssuer)
	if err != nil {
		return nil, fmt.Errorf("init ephemeral jwt signer: %w", err)
	}
	return signer, nil
}

// newRelay picks the worker's downstream bus: Kafka when brokers are
// configured, structured logs otherwise.
func newRelay(cfg Config, logger *slog.Logger) (ports.EventPublisher, func() error, error) {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Warn("no kafka brokers configured, relaying outbox events to logs")
		return eventadapter.NewLoggingPublisher(logger), func() error { return nil }, nil
	}
	publisher, err := eventadapter.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopicPrefix)
	if err != nil {
		return nil, nil, fmt.Errorf("init kafka publisher: %w", err)
	}
	return publisher, publisher.Close, nil
}

func parseLevel(raw string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo
	}
	return level
}

func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", r.cfg.GRPCPort))
	if err != nil {
		r.cleanupFn(ctx)
		return fmt.Errorf("listen gRPC: %w", err)
	}
	r.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("http server started", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		r.logger.Info("grpc server started", "addr", lis.Addr().String())
		if err := r.grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		r.logger.Error("server failure", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	r.health.Shutdown()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.grpcServer.GracefulStop()
	r.cleanupFn(shutdownCtx)
	return runErr
}

func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	relay, closeRelay, err := newRelay(r.cfg, r.logger)
	if err != nil {
		r.cleanupFn(ctx)
		return err
	}
	worker := eventadapter.NewOutboxWorker(
		r.logger,
		r.repos.Outbox,
		relay,
		r.cfg.OutboxPollInterval,
		r.cfg.OutboxBatchSize,
		r.cfg.OutboxClaimTTL,
		r.cfg.OutboxMaxRetries,
	)

	r.logger.Info("outbox worker started", "kafka_brokers", len(r.cfg.KafkaBrokers))
	err = worker.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := closeRelay(); err != nil {
		r.logger.Warn("relay close failed", "error", err)
	}
	r.cleanupFn(shutdownCtx)
	return nil
}
