package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/dmarykin/authcore/internal/core/port"
	"github.com/dmarykin/authcore/internal/infra/config"
	"github.com/dmarykin/authcore/internal/infra/database"
	kafkainfra "github.com/dmarykin/authcore/internal/infra/kafka"
	"github.com/dmarykin/authcore/internal/infra/logger"
	"github.com/dmarykin/authcore/internal/infra/notify"
	redisinfra "github.com/dmarykin/authcore/internal/infra/redis"
	"github.com/dmarykin/authcore/internal/infra/security"
	postgresrepo "github.com/dmarykin/authcore/internal/repository/postgres"
	redisrepo "github.com/dmarykin/authcore/internal/repository/redis"
	"github.com/dmarykin/authcore/internal/transport/http/middleware"
	"github.com/dmarykin/authcore/internal/transport/http/routes"
	"github.com/dmarykin/authcore/internal/usecase"
)

type Application struct {
	cfg    *config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	pool   *pgxpool.Pool
	redis  *redisinfra.Client
	kafka  *kafkainfra.Producer
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	argonCfg := security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	}
	if err := security.ConfigureArgon2(argonCfg); err != nil {
		return nil, fmt.Errorf("configure argon2: %w", err)
	}

	tokenIssuer, err := security.NewTokenIssuer(security.TokenIssuerConfig{
		Secret:           []byte(cfg.JWT.Secret),
		Issuer:           cfg.JWT.Issuer,
		TTL:              cfg.JWT.TokenTTL,
		RefreshThreshold: cfg.JWT.RefreshThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("init token issuer: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Hour
	}
	rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: cfg.Redis.KeyPrefix,
		TTL:       rateLimitWindow * 2,
	})

	accounts := postgresrepo.NewAccountRepository(pool)

	var kafkaProducer *kafkainfra.Producer
	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			kafkaProducer = producer
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	var notifier port.Notifier
	if cfg.SMTP.Host != "" {
		smtpNotifier, err := notify.NewSMTPNotifier(cfg.SMTP, log)
		if err != nil {
			_ = redisClient.Close()
			return nil, fmt.Errorf("init smtp notifier: %w", err)
		}
		notifier = smtpNotifier
	} else {
		log.Info("smtp host not configured, using logging notifier")
		notifier = notify.NewLogNotifier(log)
	}

	passwordValidator := buildPasswordValidator(cfg)

	authService := usecase.NewAuthService(cfg, accounts, tokenIssuer, eventPublisher, log)
	registrationService := usecase.NewRegistrationService(accounts, passwordValidator, eventPublisher, log)
	passwordResetService := usecase.NewPasswordResetService(cfg, accounts, rateLimitStore, notifier, eventPublisher, passwordValidator, log)

	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	engine := routes.Register(routes.Dependencies{
		Config:   cfg,
		Logger:   log,
		Metrics:  metrics,
		Database: pool,
		Cache:    redisClient,
		Services: routes.ServiceSet{
			Auth:          authService,
			Registration:  registrationService,
			PasswordReset: passwordResetService,
		},
	})

	return &Application{
		cfg:    cfg,
		engine: engine,
		logger: log,
		pool:   pool,
		redis:  redisClient,
		kafka:  kafkaProducer,
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.kafka != nil {
			_ = a.kafka.Close()
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting auth API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
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

func buildPasswordValidator(cfg *config.AppConfig) *security.PasswordValidator {
	minLength := cfg.Password.MinLength
	if minLength <= 0 {
		minLength = 8
	}

	rules := []security.PasswordRule{security.MinLengthRule(minLength)}
	if cfg.Password.MinScore > 0 {
		rules = append(rules, security.RequirePasswordStrengthRule(cfg.Password.MinScore))
	}

	return security.NewPasswordValidator(rules...)
}
