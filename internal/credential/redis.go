package credential

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "bepay:"

// Entries outlive their TTL in redis by this much so that an expired
// validation attempt can be told apart from a never-issued one.
const expiredRetention = 1 * time.Hour

// verifyOTPScript performs the read-compare-delete sequence atomically so
// exactly one concurrent validation can consume the entry.
var verifyOTPScript = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if not v then
  return "MISSING"
end
local sep = string.find(v, "|")
local code = string.sub(v, 1, sep - 1)
local exp = tonumber(string.sub(v, sep + 1))
if tonumber(ARGV[2]) > exp then
  redis.call("DEL", KEYS[1])
  return "EXPIRED"
end
if code ~= ARGV[1] then
  return "MISMATCH"
end
redis.call("DEL", KEYS[1])
return "OK"
`)

var consumeResetScript = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if not v then
  return {"MISSING", ""}
end
local sep = string.find(v, "|")
local identity = string.sub(v, 1, sep - 1)
local exp = tonumber(string.sub(v, sep + 1))
redis.call("DEL", KEYS[1])
if tonumber(ARGV[1]) > exp then
  return {"EXPIRED", ""}
end
return {"OK", identity}
`)

type RedisStore struct {
	client   *redis.Client
	otpTTL   time.Duration
	resetTTL time.Duration
	prefix   string
	clock    Clock
}

func NewRedisStore(client *redis.Client, otpTTL, resetTTL time.Duration, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{
		client:   client,
		otpTTL:   otpTTL,
		resetTTL: resetTTL,
		prefix:   prefix,
		clock:    systemClock{},
	}
}

func (s *RedisStore) WithClock(clock Clock) *RedisStore {
	s.clock = clock
	return s
}

func (s *RedisStore) IssueOTP(ctx context.Context, identity string) (string, time.Duration, error) {
	code, err := generateOTP()
	if err != nil {
		return "", 0, err
	}

	expiresAt := s.clock.Now().Add(s.otpTTL)
	value := fmt.Sprintf("%s|%d", code, expiresAt.UnixMilli())
	if err := s.client.Set(ctx, s.otpKey(identity), value, s.otpTTL+expiredRetention).Err(); err != nil {
		return "", 0, fmt.Errorf("store otp: %w", err)
	}
	return code, s.otpTTL, nil
}

func (s *RedisStore) VerifyOTP(ctx context.Context, identity, candidate string) error {
	now := s.clock.Now().UnixMilli()
	res, err := verifyOTPScript.Run(ctx, s.client, []string{s.otpKey(identity)}, candidate, now).Result()
	if err != nil {
		return fmt.Errorf("verify otp: %w", err)
	}

	switch res {
	case "OK":
		return nil
	case "EXPIRED":
		return ErrCodeExpired
	case "MISSING", "MISMATCH":
		return ErrCodeInvalid
	default:
		return fmt.Errorf("unexpected redis response %v", res)
	}
}

func (s *RedisStore) IssueResetToken(ctx context.Context, identity string) (string, time.Duration, error) {
	raw, err := generateResetToken()
	if err != nil {
		return "", 0, err
	}

	expiresAt := s.clock.Now().Add(s.resetTTL)
	value := fmt.Sprintf("%s|%d", identity, expiresAt.UnixMilli())
	if err := s.client.Set(ctx, s.resetKey(hashToken(raw)), value, s.resetTTL+expiredRetention).Err(); err != nil {
		return "", 0, fmt.Errorf("store reset token: %w", err)
	}
	return raw, s.resetTTL, nil
}

func (s *RedisStore) ConsumeResetToken(ctx context.Context, rawToken string) (string, error) {
	if strings.TrimSpace(rawToken) == "" {
		return "", ErrCodeInvalid
	}

	now := s.clock.Now().UnixMilli()
	res, err := consumeResetScript.Run(ctx, s.client, []string{s.resetKey(hashToken(rawToken))}, now).Result()
	if err != nil {
		return "", fmt.Errorf("consume reset token: %w", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return "", fmt.Errorf("unexpected redis response %v", res)
	}
	status, _ := vals[0].(string)
	identity, _ := vals[1].(string)

	switch status {
	case "OK":
		return identity, nil
	case "EXPIRED":
		return "", ErrCodeExpired
	default:
		return "", ErrCodeInvalid
	}
}

func (s *RedisStore) otpKey(identity string) string {
	return s.prefix + "otp:" + identity
}

func (s *RedisStore) resetKey(hash string) string {
	return s.prefix + "reset:" + hash
}
