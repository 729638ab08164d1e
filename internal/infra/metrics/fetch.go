package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(sourceRequestsTotal, sourceRateWaitSeconds, sourceUnavailableTotal)
}

var (
	sourceRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_requests_total",
			Help: "Requests sent to the post source, labeled by endpoint and HTTP status.",
		},
		[]string{"endpoint", "status"},
	)

	sourceRateWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "source_rate_wait_seconds",
			Help:    "Time spent waiting on the shared request budget.",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	sourceUnavailableTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "source_unavailable_total",
			Help: "Search combinations skipped after exhausting retries.",
		},
	)
)

func IncSourceRequest(endpoint string, status int) {
	sourceRequestsTotal.WithLabelValues(norm(endpoint), strconv.Itoa(status)).Inc()
}

func ObserveRateWait(seconds float64) {
	sourceRateWaitSeconds.Observe(seconds)
}

func IncSourceUnavailable() {
	sourceUnavailableTotal.Inc()
}
