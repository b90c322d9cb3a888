package apiclient

import "github.com/prometheus/client_golang/prometheus"

var (
	upstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Upstream API attempts by method, resource and status (\"error\" when no response).",
		},
		[]string{"method", "resource", "status"},
	)

	upstreamRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_retries_total",
			Help: "Upstream API retries scheduled after a transport failure.",
		},
		[]string{"method", "resource"},
	)

	upstreamLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Duration of upstream API attempts in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "resource"},
	)
)

func init() {
	prometheus.MustRegister(upstreamRequests, upstreamRetries, upstreamLatency)
}
