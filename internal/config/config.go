package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	base "github.com/liorefaelbe/BePay-BankApp/libs/config"
)

type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

type DBConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

func (d DBConfig) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type RateLimitProfile struct {
	Limit  int
	Window time.Duration
}

type RateLimitConfig struct {
	Auth     RateLimitProfile
	OTP      RateLimitProfile
	Transfer RateLimitProfile
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

func (s SMTPConfig) Configured() bool {
	return s.Host != "" && s.Port != 0 && s.User != "" && s.Password != "" && s.From != ""
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

func (t TwilioConfig) Configured() bool {
	return t.AccountSID != "" && t.AuthToken != "" && t.FromNumber != ""
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type Config struct {
	App               base.AppConfig
	AppName           string
	JWTSecret         string
	JWTIssuer         string
	AccessTokenTTL    time.Duration
	OTPTTL            time.Duration
	ResetTTL          time.Duration
	DevShowOTP        bool
	FrontendBaseURL   string
	MaxTransferAmount int64
	Argon2            Argon2Params
	DB                DBConfig
	Redis             RedisConfig
	RateLimit         RateLimitConfig
	SMTP              SMTPConfig
	Twilio            TwilioConfig
	Kafka             KafkaConfig
}

func Load() (*Config, error) {
	appCfg, err := base.Load(os.Getenv("BEPAY_CONFIG"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		App:               *appCfg,
		AppName:           envString("BEPAY_APP_NAME", "BePay"),
		JWTSecret:         envString("BEPAY_JWT_SECRET", ""),
		JWTIssuer:         envString("BEPAY_JWT_ISSUER", "bepay-api"),
		AccessTokenTTL:    envDuration("BEPAY_ACCESS_TOKEN_TTL", 1*time.Hour),
		OTPTTL:            envDuration("BEPAY_OTP_TTL", 5*time.Minute),
		ResetTTL:          envDuration("BEPAY_RESET_TTL", 15*time.Minute),
		DevShowOTP:        envBool("BEPAY_DEV_SHOW_OTP", true),
		FrontendBaseURL:   envString("BEPAY_FRONTEND_BASE_URL", "http://localhost:5173"),
		MaxTransferAmount: int64(envInt("BEPAY_MAX_TRANSFER_AMOUNT", 1000000)),
		Argon2: Argon2Params{
			Memory:      uint32(envInt("BEPAY_ARGON2_MEMORY", 64*1024)),
			Iterations:  uint32(envInt("BEPAY_ARGON2_ITERATIONS", 3)),
			Parallelism: uint8(envInt("BEPAY_ARGON2_PARALLELISM", 2)),
			SaltLength:  uint32(envInt("BEPAY_ARGON2_SALT_LENGTH", 16)),
			KeyLength:   uint32(envInt("BEPAY_ARGON2_KEY_LENGTH", 32)),
		},
		DB: DBConfig{
			Host:     envString("POSTGRES_HOST", "localhost"),
			Port:     envInt("POSTGRES_PORT", 5432),
			Name:     envString("POSTGRES_DB", "bepay"),
			User:     envString("POSTGRES_USER", "bepay"),
			Password: envString("POSTGRES_PASSWORD", "bepay"),
			SSLMode:  envString("POSTGRES_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     envString("BEPAY_REDIS_ADDR", ""),
			Password: envString("BEPAY_REDIS_PASSWORD", ""),
			DB:       envInt("BEPAY_REDIS_DB", 0),
			Prefix:   envString("BEPAY_REDIS_PREFIX", "bepay:"),
		},
		RateLimit: RateLimitConfig{
			Auth: RateLimitProfile{
				Limit:  envInt("BEPAY_AUTH_RATE_LIMIT", 5),
				Window: envDuration("BEPAY_AUTH_RATE_WINDOW", 15*time.Minute),
			},
			OTP: RateLimitProfile{
				Limit:  envInt("BEPAY_OTP_RATE_LIMIT", 3),
				Window: envDuration("BEPAY_OTP_RATE_WINDOW", 5*time.Minute),
			},
			Transfer: RateLimitProfile{
				Limit:  envInt("BEPAY_TRANSFER_RATE_LIMIT", 10),
				Window: envDuration("BEPAY_TRANSFER_RATE_WINDOW", 1*time.Minute),
			},
		},
		SMTP: SMTPConfig{
			Host:     envString("EMAIL_SMTP_HOST", ""),
			Port:     envInt("EMAIL_SMTP_PORT", 587),
			User:     envString("EMAIL_SMTP_USER", ""),
			Password: envString("EMAIL_SMTP_PASS", ""),
			From:     envString("EMAIL_FROM", ""),
		},
		Twilio: TwilioConfig{
			AccountSID: envString("TWILIO_ACCOUNT_SID", ""),
			AuthToken:  envString("TWILIO_AUTH_TOKEN", ""),
			FromNumber: envString("TWILIO_FROM_NUMBER", ""),
		},
		Kafka: KafkaConfig{
			Brokers: envList("BEPAY_KAFKA_BROKERS"),
			Topic:   envString("BEPAY_KAFKA_TRANSFER_TOPIC", "bepay.transfers"),
		},
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("BEPAY_JWT_SECRET must be set")
	}

	return cfg, nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	v := strings.ToLower(os.Getenv(key))
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
