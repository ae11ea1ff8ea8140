package app

import (
	"math"
	"net/http"
	"strconv"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/examacademy/academy-server/internal/ctxutil"
	domerrors "github.com/examacademy/academy-server/internal/errors"
	"github.com/examacademy/academy-server/internal/logger"
	"github.com/examacademy/academy-server/internal/metrics"
	"github.com/examacademy/academy-server/internal/ratelimit"
)

// requestIDHeaders are checked in order for an upstream request id.
var requestIDHeaders = []string{"X-Request-Id", "X-Request-ID", "X-Correlation-Id", "X-Correlation-ID"}

// securityHeadersMiddleware adds security headers to responses.
func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Content-Security-Policy", "default-src 'none'")
		c.Header("X-Permitted-Cross-Domain-Policies", "none")
		c.Next()
	}
}

// loggingMiddleware assigns a request id, stores it with the client IP in
// the request context, and logs requests with status-based log levels:
// 5xx=Error, 4xx=Warn, 404=Debug, 3xx/2xx=Debug.
func loggingMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		requestID := ""
		for _, h := range requestIDHeaders {
			if requestID = c.GetHeader(h); requestID != "" {
				break
			}
		}
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-Id", requestID)

		ctx := ctxutil.WithRequestID(c.Request.Context(), requestID)
		ctx = ctxutil.WithClientIP(ctx, c.ClientIP())
		c.Request = c.Request.WithContext(ctx)

		if hub := sentrygin.GetHubFromContext(c); hub != nil {
			hub.Scope().SetTag("request_id", requestID)
		}

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()

		entry := log.WithField("http_method", method).
			WithField("http_path", path).
			WithField("http_status", status).
			WithField("duration_ms", duration.Milliseconds()).
			WithField("client_ip", c.ClientIP()).
			WithRequestID(requestID)

		if status >= 500 {
			entry.Error("HTTP request failed")
		} else if status >= 400 && status != 404 {
			entry.Warn("HTTP request rejected")
		} else if status == 404 {
			entry.Debug("HTTP request not found")
		} else {
			entry.Debug("HTTP request completed")
		}
	}
}

// rateLimitMiddleware applies the per-IP token bucket. Allowed requests
// carry X-RateLimit-Remaining; an empty bucket is answered with 429 and a
// Retry-After header.
func rateLimitMiddleware(limiter *ratelimit.KeyedLimiter, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if limiter.Allow(ip) {
			c.Header("X-RateLimit-Remaining", strconv.Itoa(int(limiter.GetAvailable(ip))))
			c.Next()
			return
		}

		retryAfter := int(math.Ceil(limiter.RetryAfter(ip).Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		if m != nil {
			m.RecordHTTPError("rate_limit", "api")
		}

		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"success":     false,
			"error":       domerrors.ErrRateLimitExceeded.Error(),
			"retry_after": retryAfter,
		})
	}
}

// requestDeadlineMiddleware replaces the server-wide read and write
// deadlines for the routes it guards, so long uploads are not cut off by
// HTTPRead and HTTPWrite.
func requestDeadlineMiddleware(d time.Duration, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := http.NewResponseController(c.Writer)
		deadline := time.Now().Add(d)
		if err := rc.SetReadDeadline(deadline); err != nil {
			log.WithError(err).DebugContext(c.Request.Context(), "Read deadline not extended")
		}
		if err := rc.SetWriteDeadline(deadline); err != nil {
			log.WithError(err).DebugContext(c.Request.Context(), "Write deadline not extended")
		}
		c.Next()
	}
}
