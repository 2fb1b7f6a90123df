// Package metrics provides Prometheus metrics collection for the offline sync gateway.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// proxyPath labels requests that fell through to the gateway proxy so that
// arbitrary upstream paths do not explode label cardinality.
const proxyPath = "proxy"

var (
	// HTTPRequestDuration tracks HTTP request duration by method, path, and status code.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status_code"},
	)

	// HTTPRequestTotal tracks total HTTP requests by method, path, and status code.
	HTTPRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)

	// CacheOperationsTotal tracks cache lookups and writes per partition.
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_operations_total",
			Help: "Total number of cache operations",
		},
		[]string{"partition", "result"},
	)

	// HotCacheSize tracks the in-memory hot tier size.
	HotCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hot_cache_size",
			Help: "Current number of entries held in the in-memory hot cache",
		},
	)

	// HotCacheCapacity tracks the in-memory hot tier capacity.
	HotCacheCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hot_cache_capacity",
			Help: "Capacity of the in-memory hot cache",
		},
	)

	// InterceptorRequestsTotal counts intercepted requests by class and outcome.
	InterceptorRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interceptor_requests_total",
			Help: "Total number of intercepted requests",
		},
		[]string{"class", "outcome"},
	)

	// QueueActions tracks queued actions per status.
	QueueActions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_actions",
			Help: "Number of queued actions per status",
		},
		[]string{"status"},
	)

	// SyncPassesTotal counts reconciler passes by result.
	SyncPassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_passes_total",
			Help: "Total number of sync passes",
		},
		[]string{"result"},
	)

	// SyncActionsTotal counts replayed actions by result.
	SyncActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_actions_total",
			Help: "Total number of replayed actions",
		},
		[]string{"result"},
	)

	// SyncPassDuration tracks how long a reconciler pass takes.
	SyncPassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_pass_duration_seconds",
			Help:    "Sync pass duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// SyncTriggersTotal counts reconciler triggers by source and whether they started a pass.
	SyncTriggersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_triggers_total",
			Help: "Total number of sync triggers",
		},
		[]string{"source", "result"},
	)

	// JanitorRemovedTotal counts records removed by the janitor.
	JanitorRemovedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "janitor_removed_total",
			Help: "Total number of records removed by the janitor",
		},
		[]string{"target"},
	)

	// ConnectivityOnline is 1 while the remote API is considered reachable.
	ConnectivityOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "connectivity_online",
			Help: "Whether the remote API is currently considered reachable",
		},
	)

	// CircuitBreakerState is 0 closed, 1 open, 2 half-open.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state by breaker name (0 closed, 1 open, 2 half-open)",
		},
		[]string{"name"},
	)
)

// PrometheusMiddleware returns a Gin middleware that collects HTTP metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = proxyPath
		}

		c.Next()

		duration := time.Since(start).Seconds()
		statusCode := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method

		HTTPRequestDuration.WithLabelValues(method, path, statusCode).Observe(duration)
		HTTPRequestTotal.WithLabelValues(method, path, statusCode).Inc()
	}
}

// RecordCacheOperation records a cache lookup or write for a partition.
func RecordCacheOperation(partition, result string) {
	CacheOperationsTotal.WithLabelValues(partition, result).Inc()
}

// UpdateHotCacheMetrics updates hot cache size and capacity metrics.
func UpdateHotCacheMetrics(size, capacity int) {
	HotCacheSize.Set(float64(size))
	HotCacheCapacity.Set(float64(capacity))
}

// RecordInterception records how an intercepted request was served.
func RecordInterception(class, outcome string) {
	InterceptorRequestsTotal.WithLabelValues(class, outcome).Inc()
}

// SetQueueCounts publishes the number of actions per status.
func SetQueueCounts(counts map[string]int) {
	for status, n := range counts {
		QueueActions.WithLabelValues(status).Set(float64(n))
	}
}

// RecordSyncPass records the outcome and duration of a reconciler pass.
func RecordSyncPass(duration time.Duration, result string) {
	SyncPassDuration.Observe(duration.Seconds())
	SyncPassesTotal.WithLabelValues(result).Inc()
}

// RecordSyncAction records the result of replaying a single action.
func RecordSyncAction(result string) {
	SyncActionsTotal.WithLabelValues(result).Inc()
}

// RecordSyncTrigger records a trigger and whether it started a pass or was coalesced.
func RecordSyncTrigger(source, result string) {
	SyncTriggersTotal.WithLabelValues(source, result).Inc()
}

// RecordJanitorRemoved adds n removed records for target.
func RecordJanitorRemoved(target string, n int) {
	if n <= 0 {
		return
	}
	JanitorRemovedTotal.WithLabelValues(target).Add(float64(n))
}

// SetOnline publishes the connectivity state.
func SetOnline(online bool) {
	if online {
		ConnectivityOnline.Set(1)
		return
	}
	ConnectivityOnline.Set(0)
}

// SetCircuitBreakerState publishes a breaker transition. state follows the
// circuitbreaker.State numbering.
func SetCircuitBreakerState(name string, state int) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}
