package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/dmirchev92/server-maystorfix-sub010/internal/application/dto"
	"github.com/dmirchev92/server-maystorfix-sub010/internal/config"
)

// AdminAuth guards the admin endpoints with an HMAC-signed JWT.
func AdminAuth(secret []byte, cfg *config.AdminAuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				dto.Fail("unauthorized", "missing bearer token"))
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")

		parserOpts := []jwt.ParserOption{
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		}
		if cfg.Issuer != "" {
			parserOpts = append(parserOpts, jwt.WithIssuer(cfg.Issuer))
		}
		if cfg.Audience != "" {
			parserOpts = append(parserOpts, jwt.WithAudience(cfg.Audience))
		}

		token, err := jwt.Parse(raw, func(*jwt.Token) (interface{}, error) {
			return secret, nil
		}, parserOpts...)
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				dto.Fail("unauthorized", "invalid token"))
			return
		}

		c.Next()
	}
}
