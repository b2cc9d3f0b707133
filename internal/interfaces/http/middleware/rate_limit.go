package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dmirchev92/server-maystorfix-sub010/internal/application/dto"
	domainsvc "github.com/dmirchev92/server-maystorfix-sub010/internal/domain/service"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/constants"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/logger"
)

// RateLimit is the coarse per-IP abuse guard on the public endpoints. The
// precise regeneration quota lives in the application service; this layer
// fails open when the limiter itself errors.
func RateLimit(limiter domainsvc.RateLimitService, scope constants.RateLimitScope, log logger.Logger) gin.HandlerFunc {
	limitLogger := log.WithComponent("rate_limit_middleware")
	return func(c *gin.Context) {
		decision, err := limiter.Allow(c.Request.Context(), scope, c.ClientIP())
		if err != nil {
			limitLogger.Warn(c.Request.Context(), "rate limit check failed, allowing request",
				logger.Error(err))
			c.Next()
			return
		}

		if !decision.Allowed {
			seconds := int(decision.RetryAfter.Seconds())
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				dto.Fail("rate_limited", "too many requests"))
			return
		}
		c.Next()
	}
}
