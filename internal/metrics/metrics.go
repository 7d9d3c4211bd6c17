package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replypilot_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "replypilot_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "replypilot_http_requests_in_flight",
			Help: "HTTP requests currently being served.",
		},
	)

	RateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replypilot_rate_limited_total",
			Help: "Requests rejected by the IP rate limiter.",
		},
		[]string{"scope"},
	)

	// GenerationsTotal counts generate-response outcomes: ok, invalid_input,
	// quota_exceeded, provider_unavailable, provider_busy, provider_empty, error.
	GenerationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replypilot_generations_total",
			Help: "Reply generation attempts by outcome.",
		},
		[]string{"outcome"},
	)

	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "replypilot_provider_request_duration_seconds",
			Help:    "Latency of generation provider calls.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		},
		[]string{"model"},
	)

	TokensConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replypilot_tokens_consumed_total",
			Help: "Provider tokens consumed by successful generations.",
		},
		[]string{"plan"},
	)

	BillingEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replypilot_billing_events_total",
			Help: "Billing webhook events by type and result.",
		},
		[]string{"type", "result"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		HTTPRequestsInFlight,
		RateLimitedTotal,
		GenerationsTotal,
		ProviderLatency,
		TokensConsumedTotal,
		BillingEventsTotal,
	)
}
