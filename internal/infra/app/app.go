package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/andrewlasiter/fda-tools-sub001/internal/core/port"
	"github.com/andrewlasiter/fda-tools-sub001/internal/infra/config"
	"github.com/andrewlasiter/fda-tools-sub001/internal/infra/database"
	kafkainfra "github.com/andrewlasiter/fda-tools-sub001/internal/infra/kafka"
	"github.com/andrewlasiter/fda-tools-sub001/internal/infra/logger"
	redisinfra "github.com/andrewlasiter/fda-tools-sub001/internal/infra/redis"
	"github.com/andrewlasiter/fda-tools-sub001/internal/infra/security"
	"github.com/andrewlasiter/fda-tools-sub001/internal/infra/telemetry"
	"github.com/andrewlasiter/fda-tools-sub001/internal/repository/memory"
	postgresrepo "github.com/andrewlasiter/fda-tools-sub001/internal/repository/postgres"
	redisrepo "github.com/andrewlasiter/fda-tools-sub001/internal/repository/redis"
	"github.com/andrewlasiter/fda-tools-sub001/internal/transport/http/routes"
	"github.com/andrewlasiter/fda-tools-sub001/internal/usecase"
)

// Application owns the wired service graph and the lifecycle of its
// infrastructure handles.
type Application struct {
	cfg          *config.AppConfig
	engine       *gin.Engine
	logger       *zap.Logger
	metrics      *telemetry.Provider
	identityPool *pgxpool.Pool
	auditPool    *pgxpool.Pool
	redis        *redisinfra.Client
	producer     *kafkainfra.Producer
	tracer       *telemetry.TracerProvider
	sessions     *usecase.SessionService
}

// New assembles the application from configuration: storage backends,
// alarm publisher, telemetry, the service layer, and the HTTP engine.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	metrics, err := telemetry.Attach(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	app := &Application{cfg: cfg, logger: log, metrics: metrics}

	if cfg.Telemetry.TracingEnabled {
		tracer, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
		if err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
		app.tracer = tracer
	}

	if err := security.ConfigureArgon2(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	}); err != nil {
		app.closePartial()
		return nil, fmt.Errorf("configure argon2: %w", err)
	}

	secret := []byte(cfg.Session.SigningSecret)
	if len(secret) == 0 {
		secret, err = security.GenerateSigningSecret()
		if err != nil {
			app.closePartial()
			return nil, fmt.Errorf("generate session signing secret: %w", err)
		}
		log.Warn("session signing secret not configured, sessions will not survive a restart")
	}
	signer, err := security.NewSessionSigner(secret)
	if err != nil {
		app.closePartial()
		return nil, fmt.Errorf("init session signer: %w", err)
	}

	users, sessions, audit, err := app.buildStores(ctx)
	if err != nil {
		app.closePartial()
		return nil, err
	}

	alarms := app.buildAlarmPublisher()

	recorder, err := usecase.NewAuditRecorder(audit, alarms, metrics, log)
	if err != nil {
		app.closePartial()
		return nil, fmt.Errorf("init audit recorder: %w", err)
	}
	perms := usecase.NewPermissionService(recorder)

	policy := security.NewPasswordPolicy(security.PasswordPolicyConfig{
		MinLength:        cfg.Password.MinLength,
		Symbols:          cfg.Password.Symbols,
		MinStrengthScore: cfg.Password.MinStrengthScore,
	})

	authService, err := usecase.NewAuthService(cfg, users, sessions, recorder, perms, signer, alarms, metrics, log)
	if err != nil {
		app.closePartial()
		return nil, fmt.Errorf("init auth service: %w", err)
	}
	userService, err := usecase.NewUserService(cfg, users, sessions, recorder, perms, policy, alarms, log)
	if err != nil {
		app.closePartial()
		return nil, fmt.Errorf("init user service: %w", err)
	}
	sessionService, err := usecase.NewSessionService(cfg, sessions, users, recorder, perms, alarms, metrics, log)
	if err != nil {
		app.closePartial()
		return nil, fmt.Errorf("init session service: %w", err)
	}
	app.sessions = sessionService

	deps := routes.Dependencies{
		Config: cfg,
		Logger: log,
		Services: routes.ServiceSet{
			Auth:     authService,
			Users:    userService,
			Sessions: sessionService,
			Audit:    usecase.NewAuditService(audit, perms),
		},
	}
	if app.identityPool != nil {
		deps.IdentityDB = app.identityPool
	}
	if app.auditPool != nil {
		deps.AuditDB = app.auditPool
	}
	if app.redis != nil {
		deps.Cache = app.redis
	}

	app.engine = routes.Register(deps)

	return app, nil
}

// buildStores opens the configured persistence backends. The audit store
// always lives apart from the identity store, whatever the driver.
func (a *Application) buildStores(ctx context.Context) (port.UserRepository, port.SessionRepository, port.AuditRepository, error) {
	driver := strings.ToLower(strings.TrimSpace(a.cfg.Storage.Driver))

	var (
		users    port.UserRepository
		sessions port.SessionRepository
		audit    port.AuditRepository
	)

	switch driver {
	case "", "postgres":
		identityPool, err := database.NewPostgresPool(ctx, a.cfg.IdentityDB, a.logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("init identity database: %w", err)
		}
		a.identityPool = identityPool

		auditPool, err := database.NewPostgresPool(ctx, a.cfg.AuditDB, a.logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("init audit database: %w", err)
		}
		a.auditPool = auditPool

		repos := postgresrepo.NewRepositories(identityPool)
		users = repos.Users
		sessions = repos.Sessions
		audit = postgresrepo.NewAuditRepository(auditPool)

	case "memory":
		users = memory.NewUserRepository()
		sessions = memory.NewSessionRepository()
		audit = memory.NewAuditRepository()

	default:
		return nil, nil, nil, fmt.Errorf("unknown storage driver %q", a.cfg.Storage.Driver)
	}

	if strings.EqualFold(a.cfg.Session.Backend, "redis") {
		redisClient, err := redisinfra.NewClient(a.cfg.Redis, a.logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("init redis: %w", err)
		}
		a.redis = redisClient
		sessions = redisrepo.NewSessionRepository(redisClient.Client(), a.cfg.Redis.SessionPrefix, a.cfg.Session.AbsoluteTTL)
	}

	return users, sessions, audit, nil
}

// buildAlarmPublisher prefers the Kafka producer and falls back to the
// logging stub so alarm calls never go unanswered.
func (a *Application) buildAlarmPublisher() port.AlarmPublisher {
	if !a.cfg.Kafka.Enabled || len(a.cfg.Kafka.Brokers) == 0 {
		a.logger.Info("kafka disabled, alarm events go to the log")
		return kafkainfra.NewStubPublisher(a.logger)
	}

	producer, err := kafkainfra.NewProducer(a.cfg.Kafka, a.logger)
	if err != nil {
		a.logger.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
		return kafkainfra.NewStubPublisher(a.logger)
	}
	a.producer = producer
	a.logger.Info("kafka alarm publisher initialized", zap.Strings("brokers", a.cfg.Kafka.Brokers))

	return kafkainfra.NewAlarmPublisher(producer, a.cfg.App, a.logger)
}

func (a *Application) closePartial() {
	if a.identityPool != nil {
		a.identityPool.Close()
	}
	if a.auditPool != nil {
		a.auditPool.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.producer != nil {
		_ = a.producer.Close()
	}
}

// Run serves HTTP until the context is cancelled, then shuts down
// gracefully. The expired-session sweeper runs for the same lifetime.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer a.closePartial()
	defer func() {
		if a.tracer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.tracer.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn("tracer shutdown failed", zap.Error(err))
			}
		}
	}()

	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	defer stopCleanup()
	go a.sessions.RunCleanup(cleanupCtx, a.cfg.Session.CleanupInterval)

	if a.producer != nil {
		// Errors() closes when the producer does, ending the drain.
		go func() {
			for range a.producer.Errors() {
				a.metrics.RecordAlarmPublishFailure()
			}
		}()
	}

	var handler http.Handler = a.engine
	if a.tracer != nil {
		handler = otelhttp.NewHandler(handler, "http.request",
			otelhttp.WithTracerProvider(a.tracer.TracerProvider()),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return fmt.Sprintf("%s %s", r.Method, r.URL.Path)
			}),
		)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting authcore API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
		zap.String("storage_driver", a.cfg.Storage.Driver),
		zap.String("session_backend", a.cfg.Session.Backend),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
