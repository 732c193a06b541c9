package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "huddle_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Signaling metrics
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "huddle_active_connections",
			Help: "Open signaling connections",
		},
	)

	ActiveRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "huddle_active_rooms",
			Help: "Rooms with at least one member",
		},
	)

	RoomsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "huddle_rooms_created_total",
			Help: "Total rooms created",
		},
	)

	JoinsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_joins_rejected_total",
			Help: "Rejected create/join attempts",
		},
		[]string{"kind"}, // domain.ErrorKind
	)

	SignalsRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_signals_relayed_total",
			Help: "Frames delivered to recipients",
		},
		[]string{"type"},
	)

	SignalsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_signals_dropped_total",
			Help: "Frames not delivered",
		},
		[]string{"reason"}, // "no_target" or "backpressure"
	)

	// Ledger metrics
	Reclaimed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_reclaimed_total",
			Help: "Records purged by reclaim",
		},
		[]string{"kind"}, // "closed_session", "orphan_session", "room_metrics"
	)

	AuthSessionsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "huddle_auth_sessions_evicted_total",
			Help: "Expired dashboard auth sessions evicted by sweep",
		},
	)
)
