package proctor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	attemptsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "interngate",
		Subsystem: "proctor",
		Name:      "attempts_finished_total",
		Help:      "Attempts that left the in-progress state, by reason",
	}, []string{"reason"})

	integrityViolations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "interngate",
		Subsystem: "proctor",
		Name:      "integrity_violations_total",
		Help:      "Attention-loss violations counted by integrity monitors",
	})

	noticesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "interngate",
		Subsystem: "proctor",
		Name:      "notices_dropped_total",
		Help:      "Integrity notices dropped because no reader kept up",
	})

	submissionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "interngate",
		Subsystem: "proctor",
		Name:      "submission_duration_seconds",
		Help:      "Time spent delivering a result including retries",
	}, []string{"outcome"})

	submissionRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "interngate",
		Subsystem: "proctor",
		Name:      "submission_retries_total",
		Help:      "Retried submission deliveries",
	})
)
