// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file exposes Prometheus instrumentation for dashboard traffic. Labels
// stay bounded: the registered route (e.g. /api/v1/enquiries/:id/status,
// falling back to the raw path when nothing matched), the method, and the
// status code. Streaming routes are counted but kept out of the latency and
// size histograms, since a browser stream lives for minutes.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "enquirydesk"

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "Dashboard HTTP requests by method, route and status.",
		},
		[]string{"method", "path", "status"},
	)

	// Status is left out to keep the histogram small.
	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of non-streaming dashboard requests.",
			// intents wait on upstream retries (3 x 1s by default)
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 20},
		},
		[]string{"method", "path"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_inflight",
			Help:      "Dashboard requests currently being served, streams excluded.",
		},
	)

	httpRespSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_response_size_bytes",
			Help:      "Size of non-streaming responses in bytes.",
			Buckets: []float64{
				200, 500, 1 << 10, 5 << 10,
				10 << 10, 50 << 10, 100 << 10,
				500 << 10, 1 << 20, 5 << 20,
			},
		},
		[]string{"method", "path"},
	)

	rateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_rate_limited_total",
			Help:      "Requests rejected by the rate limiter, by collection.",
		},
		[]string{"resource"},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpRespSize, rateLimited)
}

// Metrics instruments every request. Routes listed in streams (gin full
// paths) only increment the request counter.
//
//	r.Use(middleware.Metrics("/api/v1/events"))
//	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
func Metrics(streams ...string) gin.HandlerFunc {
	streaming := make(map[string]struct{}, len(streams))
	for _, p := range streams {
		streaming[p] = struct{}{}
	}
	return func(c *gin.Context) {
		_, isStream := streaming[c.FullPath()]
		start := time.Now()
		if !isStream {
			httpInflight.Inc()
			defer httpInflight.Dec()
		}

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method
		httpReqs.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		if isStream {
			return
		}
		httpLat.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		// -1 when nothing was written
		if size := c.Writer.Size(); size >= 0 {
			httpRespSize.WithLabelValues(method, path).Observe(float64(size))
		}
	}
}
