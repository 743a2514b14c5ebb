// shared/pkg/middleware/ratelimit.go
package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"
)

// NewLimiter builds an in-memory limiter from a formatted rate such as "60-M".
func NewLimiter(formatted string) (*limiter.Limiter, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, err
	}
	return limiter.New(memory.NewStore(), rate), nil
}

// RateLimit limits requests per authenticated user, or per client IP when unauthenticated.
func RateLimit(l *limiter.Limiter, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := GetUserID(c)
		if !ok {
			key = c.ClientIP()
		}

		lctx, err := l.Get(c.Request.Context(), key)
		if err != nil {
			log.Error("rate limiter failure", zap.String("key", key), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		if lctx.Reached {
			log.Warn("rate limit exceeded", zap.String("key", key), zap.Int64("limit", lctx.Limit))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests. Please try again later."})
			return
		}

		c.Next()
	}
}
