package credential

import (
	"context"
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type otpEntry struct {
	code      string
	expiresAt time.Time
}

type resetEntry struct {
	identity  string
	expiresAt time.Time
}

// MemoryStore keeps credentials in process memory. Suitable for a single
// instance; multi-instance deployments use RedisStore.
type MemoryStore struct {
	mu       sync.Mutex
	otpTTL   time.Duration
	resetTTL time.Duration
	clock    Clock
	otps     map[string]otpEntry
	resets   map[string]resetEntry
}

func NewMemoryStore(otpTTL, resetTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		otpTTL:   otpTTL,
		resetTTL: resetTTL,
		clock:    systemClock{},
		otps:     map[string]otpEntry{},
		resets:   map[string]resetEntry{},
	}
}

// WithClock replaces the time source, for tests.
func (s *MemoryStore) WithClock(clock Clock) *MemoryStore {
	s.clock = clock
	return s
}

func (s *MemoryStore) IssueOTP(_ context.Context, identity string) (string, time.Duration, error) {
	code, err := generateOTP()
	if err != nil {
		return "", 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.otps[identity] = otpEntry{
		code:      code,
		expiresAt: s.clock.Now().Add(s.otpTTL),
	}
	return code, s.otpTTL, nil
}

func (s *MemoryStore) VerifyOTP(_ context.Context, identity, candidate string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.otps[identity]
	if !ok {
		return ErrCodeInvalid
	}
	if s.clock.Now().After(entry.expiresAt) {
		delete(s.otps, identity)
		return ErrCodeExpired
	}
	if entry.code != candidate {
		return ErrCodeInvalid
	}

	delete(s.otps, identity)
	return nil
}

func (s *MemoryStore) IssueResetToken(_ context.Context, identity string) (string, time.Duration, error) {
	raw, err := generateResetToken()
	if err != nil {
		return "", 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	s.dropExpiredResetsLocked(now)
	s.resets[hashToken(raw)] = resetEntry{
		identity:  identity,
		expiresAt: now.Add(s.resetTTL),
	}
	return raw, s.resetTTL, nil
}

func (s *MemoryStore) ConsumeResetToken(_ context.Context, rawToken string) (string, error) {
	if rawToken == "" {
		return "", ErrCodeInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := hashToken(rawToken)
	entry, ok := s.resets[key]
	if !ok {
		return "", ErrCodeInvalid
	}
	if s.clock.Now().After(entry.expiresAt) {
		delete(s.resets, key)
		return "", ErrCodeExpired
	}

	delete(s.resets, key)
	return entry.identity, nil
}

// Reset tokens are keyed by hash, so stale entries are never overwritten by
// reissue the way OTP entries are. Issuance sweeps them instead.
func (s *MemoryStore) dropExpiredResetsLocked(now time.Time) {
	for key, entry := range s.resets {
		if now.After(entry.expiresAt) {
			delete(s.resets, key)
		}
	}
}
