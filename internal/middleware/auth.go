package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"storebot/internal/backend"
	"storebot/pkg/utils"
)

const (
	// AuthorizationHeader header carrying the shopper's token
	AuthorizationHeader = "Authorization"
	// BearerPrefix token scheme
	BearerPrefix = "Bearer "
)

// StorefrontToken puts the shopper's bearer token in the request context so
// backend calls can forward it verbatim.
// Guests without a token pass; order lookups will ask them to log in.
func StorefrontToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(AuthorizationHeader)
		if authHeader == "" {
			c.Next()
			return
		}

		// scheme is case-insensitive
		if len(authHeader) < len(BearerPrefix) || !strings.EqualFold(authHeader[:len(BearerPrefix)], BearerPrefix) {
			utils.Error(c, utils.CodeUnauthorized, "Invalid authorization header format")
			return
		}

		token := strings.TrimSpace(authHeader[len(BearerPrefix):])
		if token == "" {
			utils.Error(c, utils.CodeUnauthorized, "Missing token")
			return
		}

		c.Request = c.Request.WithContext(backend.WithToken(c.Request.Context(), token))
		c.Next()
	}
}
