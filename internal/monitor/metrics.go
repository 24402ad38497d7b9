package monitor

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector holds the service's Prometheus metrics.
//
// Every Record* method is a no-op on a nil receiver, so tests can pass nil.
type MetricsCollector struct {
	registry prometheus.Gatherer

	// conversation
	intentTotal      *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	handlerFailures  *prometheus.CounterVec
	staleDispatches  prometheus.Counter
	miniGameEvents   *prometheus.CounterVec
	reminderEvents   *prometheus.CounterVec

	// order lookups
	resolverLookups    *prometheus.CounterVec
	resolverPagesFetch prometheus.Histogram

	// backend calls
	backendRequestTotal    *prometheus.CounterVec
	backendRequestDuration *prometheus.HistogramVec
	breakerState           *prometheus.GaugeVec

	// sessions
	sessionsActive  prometheus.Gauge
	sessionsClosed  *prometheus.CounterVec
	rateLimitedSend *prometheus.CounterVec

	// cache
	cacheRequests *prometheus.CounterVec

	// HTTP
	httpRequestTotal    *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// queue
	queueMessageTotal *prometheus.CounterVec

	// runtime
	memoryUsage    prometheus.Gauge
	goroutineCount prometheus.Gauge
	gcDuration     prometheus.Gauge
}

// NewMetricsCollector registers the metrics on reg, or on a fresh registry when reg is nil.
func NewMetricsCollector(reg *prometheus.Registry) *MetricsCollector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	mc := &MetricsCollector{registry: reg}
	mc.initMetrics(promauto.With(reg))
	return mc
}

// initMetrics creates all metrics
func (mc *MetricsCollector) initMetrics(f promauto.Factory) {
	mc.intentTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_intent_total",
			Help: "Utterances classified, by intent",
		},
		[]string{"intent"},
	)

	mc.dispatchDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_dispatch_duration_seconds",
			Help:    "Time spent in an intent handler",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"intent"},
	)

	mc.handlerFailures = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_handler_failures_total",
			Help: "Handler errors and panics converted to an apology",
		},
		[]string{"intent", "kind"},
	)

	mc.staleDispatches = f.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_stale_dispatch_total",
			Help: "Handler results dropped because a newer message superseded them",
		},
	)

	mc.miniGameEvents = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_minigame_events_total",
			Help: "Mini-game state machine events",
		},
		[]string{"event"},
	)

	mc.reminderEvents = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_reminder_events_total",
			Help: "Reading reminders scheduled, fired and cancelled",
		},
		[]string{"event"},
	)

	mc.resolverLookups = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resolver_lookups_total",
			Help: "Order lookups by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	mc.resolverPagesFetch = f.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "resolver_pages_fetched",
			Help:    "Listing pages fetched per order-code lookup",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
		},
	)

	mc.backendRequestTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_request_total",
			Help: "Calls to the storefront backend",
		},
		[]string{"endpoint", "status"},
	)

	mc.backendRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backend_request_duration_seconds",
			Help:    "Latency of storefront backend calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	mc.breakerState = f.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "backend_breaker_state",
			Help: "Circuit breaker state per endpoint (0 closed, 1 open, 2 half-open)",
		},
		[]string{"name"},
	)

	mc.sessionsActive = f.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_sessions_active",
			Help: "Open chat sessions",
		},
	)

	mc.sessionsClosed = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_sessions_closed_total",
			Help: "Chat sessions closed, by reason",
		},
		[]string{"reason"},
	)

	mc.rateLimitedSend = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_rate_limited_total",
			Help: "Requests rejected by a rate limiter",
		},
		[]string{"scope"},
	)

	mc.cacheRequests = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_requests_total",
			Help: "Catalog cache lookups",
		},
		[]string{"result"},
	)

	mc.httpRequestTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	mc.httpRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	mc.queueMessageTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_messages_total",
			Help: "Queue messages by topic, operation and status",
		},
		[]string{"topic", "operation", "status"},
	)

	mc.memoryUsage = f.NewGauge(
		prometheus.GaugeOpts{
			Name: "memory_usage_bytes",
			Help: "Bytes of allocated heap objects",
		},
	)

	mc.goroutineCount = f.NewGauge(
		prometheus.GaugeOpts{
			Name: "goroutine_count",
			Help: "Number of goroutines",
		},
	)

	mc.gcDuration = f.NewGauge(
		prometheus.GaugeOpts{
			Name: "gc_pause_total_seconds",
			Help: "Cumulative GC pause time",
		},
	)
}

// Gatherer is what /metrics serves.
func (mc *MetricsCollector) Gatherer() prometheus.Gatherer {
	return mc.registry
}

// Conversation

// RecordIntent counts a classification result
func (mc *MetricsCollector) RecordIntent(intent string) {
	if mc == nil {
		return
	}
	mc.intentTotal.WithLabelValues(intent).Inc()
}

// RecordDispatch observes handler latency
func (mc *MetricsCollector) RecordDispatch(intent string, duration time.Duration) {
	if mc == nil {
		return
	}
	mc.dispatchDuration.WithLabelValues(intent).Observe(duration.Seconds())
}

// RecordHandlerFailure counts a failed handler; kind is error, timeout or panic.
func (mc *MetricsCollector) RecordHandlerFailure(intent, kind string) {
	if mc == nil {
		return
	}
	mc.handlerFailures.WithLabelValues(intent, kind).Inc()
}

// RecordStaleDispatch counts results dropped because a newer message superseded them
func (mc *MetricsCollector) RecordStaleDispatch() {
	if mc == nil {
		return
	}
	mc.staleDispatches.Inc()
}

// RecordMiniGameEvent counts mini-game transitions
func (mc *MetricsCollector) RecordMiniGameEvent(event string) {
	if mc == nil {
		return
	}
	mc.miniGameEvents.WithLabelValues(event).Inc()
}

// RecordReminderEvent counts reminder events
func (mc *MetricsCollector) RecordReminderEvent(event string) {
	if mc == nil {
		return
	}
	mc.reminderEvents.WithLabelValues(event).Inc()
}

// Order lookups

// RecordLookup records one order lookup and the pages it read
func (mc *MetricsCollector) RecordLookup(method, outcome string, pages int) {
	if mc == nil {
		return
	}
	mc.resolverLookups.WithLabelValues(method, outcome).Inc()
	if method == "code" {
		mc.resolverPagesFetch.Observe(float64(pages))
	}
}

// Backend

// RecordBackendRequest records a storefront API call
func (mc *MetricsCollector) RecordBackendRequest(endpoint, status string, duration time.Duration) {
	if mc == nil {
		return
	}
	mc.backendRequestTotal.WithLabelValues(endpoint, status).Inc()
	mc.backendRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// SetBreakerState publishes a breaker's state
func (mc *MetricsCollector) SetBreakerState(name string, state int) {
	if mc == nil {
		return
	}
	mc.breakerState.WithLabelValues(name).Set(float64(state))
}

// Sessions

// SessionOpened counts a new session
func (mc *MetricsCollector) SessionOpened() {
	if mc == nil {
		return
	}
	mc.sessionsActive.Inc()
}

// SessionClosed counts a closed session by reason
func (mc *MetricsCollector) SessionClosed(reason string) {
	if mc == nil {
		return
	}
	mc.sessionsActive.Dec()
	mc.sessionsClosed.WithLabelValues(reason).Inc()
}

// RecordRateLimited counts a rejected request
func (mc *MetricsCollector) RecordRateLimited(scope string) {
	if mc == nil {
		return
	}
	mc.rateLimitedSend.WithLabelValues(scope).Inc()
}

// RecordCache counts catalog cache results: hit, miss or shared.
func (mc *MetricsCollector) RecordCache(result string) {
	if mc == nil {
		return
	}
	mc.cacheRequests.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records an HTTP request
func (mc *MetricsCollector) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if mc == nil {
		return
	}
	mc.httpRequestTotal.WithLabelValues(method, path, status).Inc()
	mc.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordQueueMessage counts a queue operation
func (mc *MetricsCollector) RecordQueueMessage(topic, operation, status string) {
	if mc == nil {
		return
	}
	mc.queueMessageTotal.WithLabelValues(topic, operation, status).Inc()
}

// UpdateSystemMetrics samples runtime stats
func (mc *MetricsCollector) UpdateSystemMetrics() {
	if mc == nil {
		return
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mc.memoryUsage.Set(float64(m.Alloc))
	mc.goroutineCount.Set(float64(runtime.NumGoroutine()))
	mc.gcDuration.Set(float64(m.PauseTotalNs) / 1e9)
}

// StartSystemMetricsCollection samples runtime stats until ctx ends
func (mc *MetricsCollector) StartSystemMetricsCollection(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	mc.UpdateSystemMetrics()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mc.UpdateSystemMetrics()
		}
	}
}
