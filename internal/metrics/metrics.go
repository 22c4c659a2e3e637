package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codepair_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codepair_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Relay metrics
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "codepair_ws_connections_active",
			Help: "Currently open websocket connections",
		},
	)

	RelayEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codepair_relay_events_total",
			Help: "Total inbound relay events by type",
		},
		[]string{"event"},
	)

	RoomsOccupied = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "codepair_rooms_occupied",
			Help: "Rooms with at least one member",
		},
	)

	// Execution gateway metrics
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codepair_executions_total",
			Help: "Total code executions forwarded to the execution API",
		},
		[]string{"outcome"}, // "ok", "bad_status" or "error"
	)

	ExecutionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "codepair_execution_duration_seconds",
			Help:    "Execution API round-trip duration",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)
)
