package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Submissions counts graded submissions by mode and outcome.
	Submissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codearena_submissions_total",
			Help: "Graded submissions by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	// SandboxDuration observes wall time of a full multi-case execution.
	SandboxDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codearena_sandbox_execution_seconds",
			Help:    "Duration of sandbox executions",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"language", "result"},
	)

	// SandboxRequests counts raw HTTP calls to the sandbox.
	SandboxRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codearena_sandbox_requests_total",
			Help: "Sandbox HTTP calls by operation and status class",
		},
		[]string{"op", "status"},
	)

	// ActiveRooms tracks rooms currently held by the coordinator.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "codearena_active_rooms",
		Help: "Rooms currently registered with the coordinator",
	})

	// RoundsFinished counts finished rounds by mode and reason.
	RoundsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codearena_rounds_finished_total",
			Help: "Rounds finished by mode and end reason",
		},
		[]string{"mode", "reason"},
	)

	// EventsPublished counts room events handed to the broadcaster.
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codearena_events_published_total",
			Help: "Room events published by type",
		},
		[]string{"type"},
	)

	// SlowSubscribers counts subscriptions dropped for falling behind.
	SlowSubscribers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "codearena_event_subscribers_dropped_total",
		Help: "Subscriptions closed because their queue overflowed",
	})

	// HistoryFailures counts finished-round records that could not be stored.
	HistoryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codearena_history_failures_total",
			Help: "Round record persistence failures by sink",
		},
		[]string{"sink"},
	)

	// HTTPRequests counts API requests by route and status.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codearena_http_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPDuration observes API latency by route.
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codearena_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)
)
