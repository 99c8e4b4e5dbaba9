package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	requestsTotal          *prometheus.CounterVec
	latencySeconds         *prometheus.HistogramVec
	errorsTotal            *prometheus.CounterVec
	gradingJobsTotal       *prometheus.CounterVec
	gradingDurationSeconds prometheus.Histogram
)

// RegisterMetrics initialises the Prometheus collectors used by the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		latencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grading_api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_api_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		gradingJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_jobs_total",
			Help: "Grading jobs that reached a terminal state, by outcome.",
		}, []string{"outcome"})

		gradingDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "grading_job_duration_seconds",
			Help:    "Wall-clock duration of grading jobs from trigger to terminal state.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		})

		prometheus.MustRegister(requestsTotal, latencySeconds, errorsTotal, gradingJobsTotal, gradingDurationSeconds)
	})
}

// Requests exposes the counter for API requests.
func Requests() *prometheus.CounterVec {
	RegisterMetrics()
	return requestsTotal
}

// Latency exposes the latency histogram for API requests.
func Latency() *prometheus.HistogramVec {
	RegisterMetrics()
	return latencySeconds
}

// Errors exposes the counter for API error responses.
func Errors() *prometheus.CounterVec {
	RegisterMetrics()
	return errorsTotal
}

// GradingJobs exposes the terminal-state counter for grading jobs.
func GradingJobs() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingJobsTotal
}

// GradingDuration exposes the grading job duration histogram.
func GradingDuration() prometheus.Histogram {
	RegisterMetrics()
	return gradingDurationSeconds
}
