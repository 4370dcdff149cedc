package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// Cart metrics
	CartMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cart_mutations_total",
			Help: "Total number of cart mutations by operation",
		},
		[]string{"operation"},
	)

	CartPersistErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cart_persist_errors_total",
			Help: "Number of cart mutations whose write-through to storage failed",
		},
	)

	CartsLive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "carts_live",
			Help: "Number of carts currently held in memory",
		},
	)

	CheckoutEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_events_total",
			Help: "Checkout-completed events consumed, by result",
		},
		[]string{"result"},
	)

	// Session gate metrics
	SessionDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_gate_decisions_total",
			Help: "Session gate outcomes by route class and action",
		},
		[]string{"route_class", "action"},
	)

	TokenRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_refresh_total",
			Help: "Token refresh attempts by result",
		},
		[]string{"result"},
	)

	TokenRefreshShared = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "token_refresh_shared_total",
			Help: "Requests that joined an in-flight refresh instead of starting one",
		},
	)

	APIValidationRejectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_validation_rejects_total",
			Help: "API requests rejected by OpenAPI validation, by reason",
		},
		[]string{"reason"},
	)

	// Upstream API metrics
	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Latency of calls to the storefront backend API",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint", "status"},
	)
)
