// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring securest.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LatencyBuckets suit request handling and user-store lookups, from 1ms to 5s.
var LatencyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5}

var (
	// RequestsTotal counts HTTP requests by method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "securest_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration records HTTP request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "securest_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LatencyBuckets,
		},
		[]string{"method"},
	)

	// AuthAttemptsTotal counts provider attempts by provider name and outcome.
	AuthAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "securest_auth_attempts_total",
			Help: "Authentication attempts per provider",
		},
		[]string{"provider", "outcome"},
	)

	// UnauthorizedTotal counts requests rejected because no provider succeeded.
	UnauthorizedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "securest_unauthorized_total",
			Help: "Requests rejected as unauthorized",
		},
	)

	// TokensIssuedTotal counts signed tokens issued.
	TokensIssuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "securest_tokens_issued_total",
			Help: "Tokens issued",
		},
	)

	// UserLookupsTotal counts user-store lookups by store and result (hit, miss, error).
	UserLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "securest_user_lookups_total",
			Help: "User store lookups",
		},
		[]string{"store", "result"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		AuthAttemptsTotal,
		UnauthorizedTotal,
		TokensIssuedTotal,
		UserLookupsTotal,
	)
}
