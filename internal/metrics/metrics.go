// Visey Recommender - Hybrid Content Recommendation Service
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics provides Prometheus instrumentation for the recommender:
// platform API request latency and errors, cache efficiency, sync runs,
// feedback writes and recommendation latency. All collectors are registered
// with the default registry via promauto and exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Platform API client metrics

	PlatformRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "platform_request_duration_seconds",
			Help:    "Duration of content platform API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	PlatformRequestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platform_request_errors_total",
			Help: "Total number of content platform API request errors",
		},
		[]string{"endpoint", "kind"}, // kind: auth, network, not_found
	)

	PlatformRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "platform_request_retries_total",
			Help: "Total number of retried platform API requests",
		},
	)

	PlatformRateLimitWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "platform_rate_limit_wait_seconds",
			Help:    "Time spent waiting on the platform rate limiter",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 60},
		},
	)

	// Circuit breaker metrics

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Circuit breaker request outcomes",
		},
		[]string{"name", "outcome"}, // outcome: success, failure, rejected
	)

	// Cache metrics

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total cache hits by entity kind",
		},
		[]string{"kind"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total cache misses (including expirations) by entity kind",
		},
		[]string{"kind"},
	)

	// Sync metrics

	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_runs_total",
			Help: "Total sync runs by outcome",
		},
		[]string{"outcome"}, // outcome: success, partial, coalesced
	)

	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_duration_seconds",
			Help:    "Duration of sync runs in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
	)

	SyncEntities = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_entities_total",
			Help: "Total entities written to cache by sync runs",
		},
		[]string{"kind"},
	)

	// Feedback store metrics

	FeedbackUpserts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feedback_upserts_total",
			Help: "Total feedback upserts",
		},
	)

	// HTTP server metrics

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, path and status code",
		},
		[]string{"method", "path", "status"},
	)

	// Recommendation metrics

	RecommendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recommend_duration_seconds",
			Help:    "End-to-end latency of recommendation requests",
			Buckets: prometheus.DefBuckets,
		},
	)

	RecommendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommend_requests_total",
			Help: "Total recommendation requests by outcome",
		},
		[]string{"outcome"}, // outcome: ok, no_data, error
	)
)
