package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/maypok86/otter"
	"golang.org/x/time/rate"

	"github.com/Miguel-Alzate/modr/internal/pkg/apperrors"
	"github.com/Miguel-Alzate/modr/internal/pkg/logger"
)

const maxTrackedClients = 10000

// RateLimitMiddleware applies a token bucket per client IP. Idle clients age
// out of the limiter table.
func RateLimitMiddleware(qps float64, burst int) gin.HandlerFunc {
	if qps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst <= 0 {
		burst = 1
	}
	limiters, err := otter.MustBuilder[string, *rate.Limiter](maxTrackedClients).
		WithTTL(10 * time.Minute).
		Build()
	if err != nil {
		logger.Error("rate limiter disabled", "error", err)
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		ip := c.ClientIP()
		limiter, ok := limiters.Get(ip)
		if !ok {
			limiter = rate.NewLimiter(rate.Limit(qps), burst)
			limiters.Set(ip, limiter)
		}

		if !limiter.Allow() {
			c.Header("Retry-After", "1")
			_ = c.Error(apperrors.New(apperrors.ErrRateLimited, "rate limit exceeded", nil))
			c.Abort()
			return
		}

		c.Next()
	}
}
