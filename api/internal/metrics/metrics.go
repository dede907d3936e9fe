package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// AnalysesTotal counts question analyses by provider and outcome
	// (ok, fallback, or the error kind).
	AnalysesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "screenmind",
		Subsystem: "analyzer",
		Name:      "analyses_total",
		Help:      "Total number of question analyses, labeled by provider and result.",
	}, []string{"provider", "result"})

	// AnalysisDurationSeconds is end-to-end time per analysis including parsing.
	AnalysisDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "screenmind",
		Subsystem: "analyzer",
		Name:      "analysis_duration_seconds",
		Help:      "Time to analyze one image (provider call + parse).",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"provider"})

	WorkerInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "screenmind",
		Subsystem: "worker",
		Name:      "in_flight",
		Help:      "Current number of jobs being processed by pool workers.",
	})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "screenmind",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests, labeled by route and status code.",
	}, []string{"route", "code"})

	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "screenmind",
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the local rate limiter.",
	})
)

// Register registers all metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			AnalysesTotal,
			AnalysisDurationSeconds,
			WorkerInFlight,
			HTTPRequestsTotal,
			RateLimitedTotal,
		)
	})
}
