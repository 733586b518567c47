package security

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims must stay in sync with libs/auth.Claims, which verifies tokens.
type Claims struct {
	Verified bool `json:"verified"`
	jwt.RegisteredClaims
}

func NewAccessToken(email string, verified bool, secret []byte, ttl time.Duration, now time.Time, issuer string) (string, error) {
	claims := Claims{
		Verified: verified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}
