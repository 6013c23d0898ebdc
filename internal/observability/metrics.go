package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	requestsTotal         *prometheus.CounterVec
	requestLatencySeconds *prometheus.HistogramVec
	requestErrorsTotal    *prometheus.CounterVec
	authorizationsTotal   *prometheus.CounterVec
	submissionsTotal      *prometheus.CounterVec
	certificatesTotal     *prometheus.CounterVec
	eventsPublishedTotal  *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors for the assessment API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assessment_requests_total",
			Help: "Total number of assessment API requests served.",
		}, []string{"method", "route", "status"})

		requestLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "assessment_request_latency_seconds",
			Help:    "Latency distribution for assessment API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		requestErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assessment_request_errors_total",
			Help: "Total number of error responses returned by assessment endpoints.",
		}, []string{"method", "route", "status"})

		authorizationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assessment_authorizations_total",
			Help: "Authorization gate decisions by outcome.",
		}, []string{"outcome"})

		submissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assessment_submissions_total",
			Help: "Submission attempts by outcome.",
		}, []string{"outcome"})

		certificatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assessment_certificates_total",
			Help: "Certificate issuance results by outcome.",
		}, []string{"outcome"})

		eventsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assessment_events_published_total",
			Help: "Assessment events published to brokers by type.",
		}, []string{"type"})

		prometheus.MustRegister(
			requestsTotal,
			requestLatencySeconds,
			requestErrorsTotal,
			authorizationsTotal,
			submissionsTotal,
			certificatesTotal,
			eventsPublishedTotal,
		)
	})
}

// Requests exposes the counter for assessment requests.
func Requests() *prometheus.CounterVec {
	RegisterMetrics()
	return requestsTotal
}

// RequestLatency exposes the latency histogram for assessment requests.
func RequestLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return requestLatencySeconds
}

// RequestErrors exposes the counter for error responses.
func RequestErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return requestErrorsTotal
}

// Authorizations exposes the authorization decision counter.
func Authorizations() *prometheus.CounterVec {
	RegisterMetrics()
	return authorizationsTotal
}

// Submissions exposes the submission outcome counter.
func Submissions() *prometheus.CounterVec {
	RegisterMetrics()
	return submissionsTotal
}

// Certificates exposes the certificate issuance counter.
func Certificates() *prometheus.CounterVec {
	RegisterMetrics()
	return certificatesTotal
}

// EventsPublished exposes the broker publish counter.
func EventsPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return eventsPublishedTotal
}
