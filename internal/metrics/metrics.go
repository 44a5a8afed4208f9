package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Notification pipeline metrics
var (
	// NotificationsDispatchedTotal tracks dispatched Discord messages by action (create/update) and status
	NotificationsDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_dispatched_total",
			Help: "Total Discord notification dispatches by action and status",
		},
		[]string{"action", "status"},
	)

	// NotificationPipelineDurationSeconds tracks fetch/compose/dispatch latency per trigger
	NotificationPipelineDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "notification_pipeline_duration_seconds",
			Help:    "Fetch/compose/dispatch pipeline duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	// PlatformFetchesTotal tracks live-state and VOD fetches by platform, kind and status
	PlatformFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platform_fetches_total",
			Help: "Total platform API fetches by platform, kind (live/vod/streamer) and status",
		},
		[]string{"platform", "kind", "status"},
	)

	// WebhookEventsTotal tracks incoming platform webhook events by platform and type
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Total platform webhook events by platform and event type",
		},
		[]string{"platform", "type"},
	)

	// CommandInvocationsTotal tracks Discord command invocations by command and status
	CommandInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "command_invocations_total",
			Help: "Total Discord command invocations by command and status",
		},
		[]string{"command", "status"},
	)
)

// Redis operation metrics
var (
	// RedisOpsTotal tracks total Redis operations by operation type and status
	RedisOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total Redis operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// RedisOpDuration tracks Redis operation latency in seconds
	RedisOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// RedisConnectionErrors tracks Redis connection errors
	RedisConnectionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redis_connection_errors_total",
			Help: "Total Redis connection errors",
		},
	)

	// AutocompleteCacheHits tracks autocomplete cache lookups by source (redis/postgres)
	AutocompleteCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autocomplete_cache_hits_total",
			Help: "Autocomplete name lookups by backing source",
		},
		[]string{"source"},
	)

	// CircuitBreakerState tracks the current circuit breaker state per component (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state per component (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)

	// CircuitBreakerStateChanges tracks circuit breaker transitions
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Total circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)
)
