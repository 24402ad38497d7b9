package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

// Version is reported by /health.
const Version = "1.0.0"

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// BreakerSnapshot lists circuit breaker states by endpoint.
type BreakerSnapshot interface {
	Snapshot() map[string]string
}

// SessionCounter reports the number of live chats.
type SessionCounter interface {
	Len() int
}

// HealthHandler serves /health and /ping.
type HealthHandler struct {
	checks   map[string]HealthCheck
	breakers BreakerSnapshot
	sessions SessionCounter
	timeout  time.Duration
}

// NewHealthHandler creates a health handler. Any of the arguments may be
// nil.
func NewHealthHandler(checks map[string]HealthCheck, breakers BreakerSnapshot, sessions SessionCounter) *HealthHandler {
	return &HealthHandler{
		checks:   checks,
		breakers: breakers,
		sessions: sessions,
		timeout:  3 * time.Second,
	}
}

// Health runs every check concurrently. A failed check answers 503; an
// open breaker only marks the service degraded, since the chat still
// answers with apologies and menus.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]gin.H, len(names))
	var g errgroup.Group
	for i, name := range names {
		check := h.checks[name]
		g.Go(func() error {
			if err := check(ctx); err != nil {
				results[i] = gin.H{"healthy": false, "error": err.Error()}
				return err
			}
			results[i] = gin.H{"healthy": true, "status": "connected"}
			return nil
		})
	}
	failed := g.Wait() != nil

	services := make(map[string]interface{}, len(names))
	for i, name := range names {
		services[name] = results[i]
	}

	status := "ok"
	breakers := map[string]string{}
	if h.breakers != nil {
		breakers = h.breakers.Snapshot()
		for _, state := range breakers {
			if state != "closed" {
				status = "degraded"
			}
		}
	}

	health := gin.H{
		"status":    status,
		"timestamp": time.Now().Unix(),
		"version":   Version,
		"services":  services,
		"breakers":  breakers,
	}
	if h.sessions != nil {
		health["sessions"] = h.sessions.Len()
	}

	if failed {
		health["status"] = "error"
		c.JSON(http.StatusServiceUnavailable, health)
		return
	}
	c.JSON(http.StatusOK, health)
}

// Ping liveness probe
func (h *HealthHandler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":   "pong",
		"timestamp": time.Now().Unix(),
	})
}
