// Package handlers exposes the HTTP surface: registration with OTP
// verification, login, password reset, transfers, history, and the
// websocket notification endpoint.
package handlers

import (
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 100
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?\d{9,15}$`)
)

func respondError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"code": code, "message": message})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	return emailPattern.MatchString(email)
}

func validPassword(password string) bool {
	return len(password) >= minPasswordLength && len(password) <= maxPasswordLength
}

// validPhone accepts an empty phone; SMS delivery is optional.
func validPhone(phone string) bool {
	return phone == "" || phonePattern.MatchString(phone)
}
