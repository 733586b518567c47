package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/liorefaelbe/BePay-BankApp/libs/health"
	"github.com/liorefaelbe/BePay-BankApp/libs/logging"
	"github.com/liorefaelbe/BePay-BankApp/libs/metrics"
	"github.com/liorefaelbe/BePay-BankApp/libs/trace"

	"github.com/liorefaelbe/BePay-BankApp/internal/config"
	"github.com/liorefaelbe/BePay-BankApp/internal/credential"
	"github.com/liorefaelbe/BePay-BankApp/internal/delivery"
	"github.com/liorefaelbe/BePay-BankApp/internal/events"
	"github.com/liorefaelbe/BePay-BankApp/internal/handlers"
	"github.com/liorefaelbe/BePay-BankApp/internal/notify"
	"github.com/liorefaelbe/BePay-BankApp/internal/rate"
	"github.com/liorefaelbe/BePay-BankApp/internal/security"
	"github.com/liorefaelbe/BePay-BankApp/internal/storage"
	"github.com/liorefaelbe/BePay-BankApp/internal/transfer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.App.LogLevel, cfg.App.ServiceName, cfg.App.Env)
	shutdownTracer, err := trace.InitTracer(cfg.App.ServiceName, cfg.App.Env)
	if err != nil {
		logger.Error("tracer init failed", "error", err)
	} else {
		defer func() {
			_ = shutdownTracer(context.Background())
		}()
	}

	if cfg.App.Env == "dev" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(registry)

	ready := health.NewManager(true)

	pool, err := connectDB(cfg)
	if err != nil {
		logger.Error("db connection failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	err = storage.RunMigrations(migrateCtx, cfg.DB.ConnString())
	cancelMigrate()
	if err != nil {
		logger.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	redisClient, err := connectRedis(cfg, logger)
	if err != nil {
		logger.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer func() {
			_ = redisClient.Close()
		}()
	}

	creds, err := buildCredentialStore(cfg, redisClient)
	if err != nil {
		logger.Error("credential store init failed", "error", err)
		os.Exit(1)
	}

	authLimiter := buildLimiter(cfg.RateLimit.Auth, redisClient, cfg.Redis.Prefix+"rl:auth:")
	otpLimiter := buildLimiter(cfg.RateLimit.OTP, redisClient, cfg.Redis.Prefix+"rl:otp:")
	transferLimiter := buildLimiter(cfg.RateLimit.Transfer, redisClient, cfg.Redis.Prefix+"rl:transfer:")

	store := storage.New(pool)

	bus := events.NewBus(logger)
	hub := notify.NewHub(logger)
	bus.Subscribe(hub)

	if len(cfg.Kafka.Brokers) > 0 {
		audit, err := events.NewKafkaAuditPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger, events.NewPublisherMetrics(registry))
		if err != nil {
			logger.Error("kafka audit publisher init failed", "error", err)
			os.Exit(1)
		}
		defer func() {
			_ = audit.Close()
		}()
		bus.Subscribe(audit)
	}

	sender := buildSender(cfg, logger)

	engine := transfer.NewEngine(store, bus, decimal.NewFromInt(cfg.MaxTransferAmount), logger, transfer.NewMetrics(registry))

	secret := []byte(cfg.JWTSecret)
	authHandler := handlers.NewAuthHandler(store, creds, sender, handlers.AuthConfig{
		JWTSecret:      secret,
		JWTIssuer:      cfg.JWTIssuer,
		AccessTokenTTL: cfg.AccessTokenTTL,
		Argon2: security.Argon2Params{
			Memory:      cfg.Argon2.Memory,
			Iterations:  cfg.Argon2.Iterations,
			Parallelism: cfg.Argon2.Parallelism,
			SaltLength:  cfg.Argon2.SaltLength,
			KeyLength:   cfg.Argon2.KeyLength,
		},
		ResetTTL: cfg.ResetTTL,
		// Never echo codes once a real mail provider is wired up.
		DevShowOTP:      cfg.DevShowOTP && !cfg.SMTP.Configured(),
		FrontendBaseURL: cfg.FrontendBaseURL,
	}, logger)

	router := handlers.NewRouter(handlers.RouterDeps{
		Logger:          logger,
		ServiceName:     cfg.App.ServiceName,
		Registry:        registry,
		Health:          ready,
		Auth:            authHandler,
		Transfer:        handlers.NewTransferHandler(engine, logger),
		User:            handlers.NewUserHandler(store, engine, logger),
		WS:              handlers.NewWSHandler(hub, secret, logger),
		JWTSecret:       secret,
		AuthLimiter:     authLimiter,
		OTPLimiter:      otpLimiter,
		TransferLimiter: transferLimiter,
	})

	addr := fmt.Sprintf("%s:%d", cfg.App.HTTP.Host, cfg.App.HTTP.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.App.HTTP.ReadTimeout,
		WriteTimeout: cfg.App.HTTP.WriteTimeout,
		IdleTimeout:  cfg.App.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("bepay api starting", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
		}
	}()

	waitForShutdown(server, logger)
}

func connectDB(cfg *config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DB.ConnString())
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// connectRedis returns nil when redis is not configured. Outside dev/test a
// missing redis is a hard error: in-memory credentials and rate limits do
// not survive restarts or span replicas.
func connectRedis(cfg *config.Config, logger *slog.Logger) (*redis.Client, error) {
	devLike := cfg.App.Env == "dev" || cfg.App.Env == "test"

	if cfg.Redis.Addr == "" {
		if devLike {
			logger.Warn("redis not configured, using in-memory credential store and rate limits")
			return nil, nil
		}
		return nil, fmt.Errorf("redis required outside dev: set BEPAY_REDIS_ADDR")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		if devLike {
			logger.Warn("redis unavailable, falling back to memory", "error", err)
			return nil, nil
		}
		return nil, err
	}

	return client, nil
}

func buildCredentialStore(cfg *config.Config, client *redis.Client) (credential.Store, error) {
	if client != nil {
		return credential.NewRedisStore(client, cfg.OTPTTL, cfg.ResetTTL, cfg.Redis.Prefix), nil
	}
	return credential.NewMemoryStore(cfg.OTPTTL, cfg.ResetTTL), nil
}

func buildLimiter(profile config.RateLimitProfile, client *redis.Client, prefix string) rate.Limiter {
	if client != nil {
		return rate.NewRedisLimiter(client, profile.Limit, profile.Window, prefix)
	}
	return rate.NewMemory(profile.Limit, profile.Window)
}

func buildSender(cfg *config.Config, logger *slog.Logger) *delivery.Service {
	var email delivery.EmailSender
	if cfg.SMTP.Configured() {
		email = delivery.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password, cfg.SMTP.From, cfg.SMTP.Port == 465)
	}

	var sms delivery.SMSSender
	if cfg.Twilio.Configured() {
		sms = delivery.NewTwilioSender(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.FromNumber)
	}

	return delivery.NewService(email, sms, cfg.AppName, logger)
}

func waitForShutdown(server *http.Server, logger *slog.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutdown started")
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		return
	}
	logger.Info("shutdown complete")
}
