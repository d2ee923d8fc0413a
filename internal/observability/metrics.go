package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	resolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlrag_resolutions_total",
			Help: "Total number of query resolutions by path and outcome.",
		},
		[]string{"path", "outcome"},
	)

	repairsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlrag_repairs_total",
			Help: "Total number of SQL repair cycles triggered.",
		},
	)

	resolutionDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqlrag_resolution_duration_seconds",
			Help:    "Query resolution latency by path.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)
)

func init() {
	prometheus.MustRegister(resolutionsTotal, repairsTotal, resolutionDurationSeconds)
}

// ObserveResolution records one finished resolution attempt.
func ObserveResolution(path, outcome string, elapsed time.Duration) {
	resolutionsTotal.WithLabelValues(path, outcome).Inc()
	resolutionDurationSeconds.WithLabelValues(path).Observe(elapsed.Seconds())
}

// ObserveRepair counts a triggered repair cycle.
func ObserveRepair() {
	repairsTotal.Inc()
}

// MetricsHandler serves the prometheus scrape endpoint.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
