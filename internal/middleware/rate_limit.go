package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"storebot/internal/monitor"
	"storebot/pkg/limiter"
	"storebot/pkg/log"
	"storebot/pkg/utils"
)

// RateLimitConfig rate limiting middleware configuration
type RateLimitConfig struct {
	// Scope labels metrics and logs, e.g. "ip" or "session"
	Scope string
	// Limiter decides per key
	Limiter limiter.RateLimiter
	// KeyFunc function to generate rate limit key; empty keys are not limited
	KeyFunc func(c *gin.Context) string
	// RetryAfter is advertised to rejected clients
	RetryAfter time.Duration
	// Metrics may be nil
	Metrics *monitor.MetricsCollector
}

// RateLimit rate limiting middleware. A limiter error lets the request
// through: an unavailable limiter must not take the chat down.
func RateLimit(config RateLimitConfig) gin.HandlerFunc {
	if config.RetryAfter <= 0 {
		config.RetryAfter = time.Second
	}
	retryAfter := strconv.Itoa(int(config.RetryAfter.Round(time.Second) / time.Second))

	return func(c *gin.Context) {
		key := config.KeyFunc(c)
		if key == "" {
			c.Next()
			return
		}

		allowed, err := config.Limiter.Allow(c.Request.Context(), key)
		if err != nil {
			log.WithFields(log.Fields{
				"scope": config.Scope,
				"key":   key,
				"error": err.Error(),
			}).Warn("Rate limiter failed, allowing request")
			c.Next()
			return
		}

		if !allowed {
			config.Metrics.RecordRateLimited(config.Scope)
			log.WithFields(log.Fields{
				"scope":  config.Scope,
				"key":    key,
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
				"ip":     c.ClientIP(),
			}).Warn("Rate limit exceeded")

			c.Header("Retry-After", retryAfter)
			utils.Error(c, utils.CodeRateLimit, "Too many requests, please slow down")
			return
		}

		c.Next()
	}
}

// IPRateLimit limits every request by client IP.
func IPRateLimit(l limiter.RateLimiter, metrics *monitor.MetricsCollector) gin.HandlerFunc {
	return RateLimit(RateLimitConfig{
		Scope:   "ip",
		Limiter: l,
		KeyFunc: func(c *gin.Context) string {
			return "ip:" + c.ClientIP()
		},
		Metrics: metrics,
	})
}

// SessionRateLimit limits sends within one chat session, keyed by the :id
// route parameter.
func SessionRateLimit(l limiter.RateLimiter, window time.Duration, metrics *monitor.MetricsCollector) gin.HandlerFunc {
	return RateLimit(RateLimitConfig{
		Scope:   "session",
		Limiter: l,
		KeyFunc: func(c *gin.Context) string {
			if id := c.Param("id"); id != "" {
				return limiter.SessionKey(id)
			}
			return ""
		},
		RetryAfter: window,
		Metrics:    metrics,
	})
}
