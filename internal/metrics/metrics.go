package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	// HTTPRequestsTotal counts HTTP requests by method, route pattern and status code
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolnest_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP request latency by method and route pattern
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "toolnest_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path"},
	)
)

// Authentication and limiting
var (
	// AuthFailuresTotal counts rejected credentials by credential type and reason
	AuthFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolnest_auth_failures_total",
			Help: "Total number of rejected credentials",
		},
		[]string{"credential", "reason"},
	)

	// RateLimitedTotal counts requests rejected by the fixed-window limiter
	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolnest_rate_limited_total",
			Help: "Total number of requests rejected by rate limiting",
		},
		[]string{"endpoint"},
	)

	// RateLimitErrorsTotal counts counter store failures (the request is allowed)
	RateLimitErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "toolnest_rate_limit_errors_total",
			Help: "Total number of rate limit counter store failures",
		},
	)
)

// API key lifecycle and usage accounting
var (
	APIKeysCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "toolnest_api_keys_created_total",
			Help: "Total number of API keys created",
		},
	)

	APIKeysRevokedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "toolnest_api_keys_revoked_total",
			Help: "Total number of API keys revoked",
		},
	)

	// UsageRecordsTotal counts usage records by result (stored, dropped, failed)
	UsageRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolnest_usage_records_total",
			Help: "Total number of usage records by persistence result",
		},
		[]string{"result"},
	)
)

// Upstream LLM provider
var (
	// UpstreamRequestsTotal counts provider calls by operation and result
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolnest_upstream_requests_total",
			Help: "Total number of calls to the LLM provider",
		},
		[]string{"operation", "result"},
	)

	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "toolnest_upstream_duration_seconds",
			Help:    "LLM provider call latency in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60},
		},
		[]string{"operation"},
	)
)
