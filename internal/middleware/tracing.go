package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"storebot/internal/monitor"
)

// Tracing opens a server span per request and records HTTP metrics, both
// labelled with the route template so session ids do not explode cardinality.
func Tracing(tracer *monitor.Tracer, metrics *monitor.MetricsCollector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		if tracer != nil {
			ctx, span := tracer.StartHTTPSpan(c.Request.Context(), route, c.Request)
			c.Request = c.Request.WithContext(ctx)
			defer func() { tracer.FinishHTTPSpan(span, c.Writer.Status()) }()
		}

		c.Next()

		metrics.RecordHTTPRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
