package metrics

import "github.com/prometheus/client_golang/prometheus"

// Text generation Prometheus metrics.
var (
	GenerationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_requests_total",
			Help:      "Total number of chat completion requests",
		},
		[]string{"model", "status"},
	)

	GenerationRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_request_duration_seconds",
			Help:      "Chat completion duration in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		},
		[]string{"model"},
	)

	GenerationTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_tokens_total",
			Help:      "Chat completion tokens consumed",
		},
		[]string{"model", "type"}, // "prompt" / "completion"
	)
)
