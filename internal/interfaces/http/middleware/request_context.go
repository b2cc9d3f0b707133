// Package middleware contains the gin middleware stack: request context,
// access logging, rate limiting, and admin authentication.
package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dmirchev92/server-maystorfix-sub010/pkg/constants"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/logger"
)

const requestIDHeader = "X-Request-ID"

// RequestContext assigns a request id (honoring an inbound header) and puts
// it on the request context so the logger can pick it up everywhere.
func RequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := context.WithValue(c.Request.Context(), constants.ContextKeyRequestID, requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Header(requestIDHeader, requestID)
		c.Next()
	}
}

// AccessLog logs one line per request with latency and status.
func AccessLog(log logger.Logger) gin.HandlerFunc {
	accessLogger := log.WithComponent("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		accessLogger.Info(c.Request.Context(), "request handled",
			logger.String("method", c.Request.Method),
			logger.String("path", c.FullPath()),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("latency", time.Since(start)),
			logger.String("client_ip", c.ClientIP()),
		)
	}
}

// Recovery converts panics into a 500 without killing the process.
func Recovery(log logger.Logger) gin.HandlerFunc {
	recoveryLogger := log.WithComponent("http")
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		recoveryLogger.Error(c.Request.Context(), "panic recovered", nil,
			logger.Any("panic", recovered),
			logger.String("path", c.Request.URL.Path),
		)
		c.AbortWithStatusJSON(500, gin.H{"success": false, "error": gin.H{
			"code":    "internal",
			"message": "internal server error",
		}})
	})
}
