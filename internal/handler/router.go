package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"storebot/internal/config"
	"storebot/internal/middleware"
	"storebot/internal/monitor"
	"storebot/pkg/limiter"
)

// RouterDeps are the pieces NewRouter wires together. Limiters, Tracer,
// Metrics and Gatherer may be nil.
type RouterDeps struct {
	Chat           *ChatHandler
	Health         *HealthHandler
	IPLimiter      limiter.RateLimiter
	SessionLimiter limiter.RateLimiter
	SessionWindow  time.Duration
	RequestTimeout time.Duration
	CORS           config.CORSConfig
	Tracer         *monitor.Tracer
	Metrics        *monitor.MetricsCollector
	Gatherer       prometheus.Gatherer
	MetricsPath    string
}

// NewRouter builds the HTTP API.
func NewRouter(d RouterDeps) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Tracing(d.Tracer, d.Metrics))
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(d.CORS))

	router.GET("/health", d.Health.Health)
	router.GET("/ping", d.Health.Ping)
	if d.Gatherer != nil {
		path := d.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api")
	{
		v1 := api.Group("/v1")
		if d.IPLimiter != nil {
			v1.Use(middleware.IPRateLimit(d.IPLimiter, d.Metrics))
		}
		v1.Use(middleware.StorefrontToken())

		chat := v1.Group("/chat/sessions")
		{
			chat.POST("", d.Chat.CreateSession)
			chat.GET("/:id/messages", d.Chat.GetMessages)
			chat.POST("/:id/reset", d.Chat.ResetSession)
			chat.DELETE("/:id", d.Chat.CloseSession)

			sends := chat.Group("")
			if d.SessionLimiter != nil {
				sends.Use(middleware.SessionRateLimit(d.SessionLimiter, d.SessionWindow, d.Metrics))
			}
			sends.Use(middleware.Timeout(d.RequestTimeout))
			{
				sends.POST("/:id/messages", d.Chat.SendMessage)
				sends.POST("/:id/forms", d.Chat.SubmitForm)
			}
		}
	}

	return router
}
