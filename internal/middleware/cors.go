package middleware

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"storebot/internal/config"
)

// CORS lets the storefront pages embed the chat widget.
func CORS(cfg config.CORSConfig) gin.HandlerFunc {
	c := cors.DefaultConfig()

	if len(cfg.AllowOrigins) == 0 || (len(cfg.AllowOrigins) == 1 && cfg.AllowOrigins[0] == "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = cfg.AllowOrigins
	}

	c.AllowHeaders = []string{
		"Origin",
		"Content-Length",
		"Content-Type",
		"Authorization",
		"Accept",
		"Accept-Language",
		RequestIDHeader,
	}
	c.ExposeHeaders = []string{RequestIDHeader, "Retry-After"}
	c.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}

	// browsers refuse credentials with a wildcard origin
	c.AllowCredentials = cfg.AllowCredentials && !c.AllowAllOrigins
	if cfg.MaxAge > 0 {
		c.MaxAge = cfg.MaxAge
	}

	return cors.New(c)
}
