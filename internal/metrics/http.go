package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var httpRequests = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "API request latency by operation and status",
	Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1},
}, []string{"operation", "status"})

// ObserveHTTPRequest records one completed API request.
func ObserveHTTPRequest(operation string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(operation, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
