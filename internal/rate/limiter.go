package rate

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"log/slog"

	"github.com/gin-gonic/gin"
)

type Limiter interface {
	// Allow reports whether the request identified by key may proceed and,
	// when denied, how long until the window resets.
	Allow(ctx context.Context, key string, now time.Time) (bool, time.Duration, error)
}

// Middleware enforces a per-client-IP limit on a route group. On limiter
// backend errors the request is allowed through; losing rate limiting beats
// refusing service.
func Middleware(limiter Limiter, logger *slog.Logger, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, retryAfter, err := limiter.Allow(c.Request.Context(), c.ClientIP(), time.Now())
		if err != nil {
			logger.Error("rate limiter failed", "error", err)
			c.Next()
			return
		}
		if !allowed {
			seconds := int(retryAfter.Round(time.Second) / time.Second)
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"code": "RATE_LIMITED", "message": message})
			return
		}
		c.Next()
	}
}
