package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SovereignSignal/discusswatch/internal/config"
	"github.com/SovereignSignal/discusswatch/internal/logger"
	"github.com/SovereignSignal/discusswatch/internal/metrics"
	"github.com/SovereignSignal/discusswatch/internal/ratelimit"
)

// RecoveryMiddleware converts panics into a 500 response.
func RecoveryMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error("panic recovered",
					logger.Any("error", err),
					logger.String("path", c.Request.URL.Path),
					logger.String("method", c.Request.Method),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "internal server error",
				})
			}
		}()
		c.Next()
	}
}

// LoggerMiddleware logs each request after it completes.
func LoggerMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info("http request",
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", c.Writer.Status()),
			logger.Int64("duration_ms", time.Since(start).Milliseconds()),
			logger.String("client_ip", c.ClientIP()),
		)
	}
}

// CORSMiddleware allows cross-origin reads. The API is read-mostly and
// unauthenticated, so a permissive policy is fine.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RateLimitMiddleware enforces the per-client-IP fixed window. Denied
// requests get a 429 with a Retry-After hint.
func RateLimitMiddleware(limiter *ratelimit.Limiter, cfg config.RateLimitConfig, m *metrics.Metrics, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "inbound:" + c.ClientIP()
		d := limiter.TryAcquire(key, cfg.InboundWindow, cfg.InboundMax)
		if !d.Allowed {
			m.RateLimitDenials.Inc()
			retryAfter := int(time.Until(d.ResetAt).Seconds()) + 1
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			log.Warn("inbound request rate limited",
				logger.String("client_ip", c.ClientIP()),
				logger.String("path", c.Request.URL.Path),
			)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": retryAfter,
			})
			return
		}
		c.Next()
	}
}
