// Package credential issues and validates short-lived single-use secrets:
// six-digit OTP codes keyed by account email, and password-reset tokens
// looked up by the hash of the raw token. Entries are last-write-wins per
// identity and are consumed on first successful validation.
package credential

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"
)

var (
	// ErrCodeInvalid covers unknown identities, wrong codes and unknown
	// tokens. A wrong candidate does not consume the pending entry.
	ErrCodeInvalid = errors.New("credential invalid")
	// ErrCodeExpired means the entry existed but its TTL had elapsed.
	// The entry is removed; a retry reports ErrCodeInvalid.
	ErrCodeExpired = errors.New("credential expired")
)

const resetTokenBytes = 32

type Store interface {
	// IssueOTP generates a six-digit code for the identity, replacing any
	// pending code. Returns the code and its TTL.
	IssueOTP(ctx context.Context, identity string) (string, time.Duration, error)

	// VerifyOTP consumes the pending code on match. Exactly one of any
	// number of concurrent calls with the correct code succeeds.
	VerifyOTP(ctx context.Context, identity, candidate string) error

	// IssueResetToken generates a raw reset token for the identity. Only
	// the SHA-256 of the token is retained; the raw value is returned once.
	IssueResetToken(ctx context.Context, identity string) (string, time.Duration, error)

	// ConsumeResetToken looks the entry up by hash of the presented token
	// and returns the owning identity. The lookup is the authentication.
	ConsumeResetToken(ctx context.Context, rawToken string) (string, error)
}

func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

func generateResetToken() (string, error) {
	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
