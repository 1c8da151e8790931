package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connection metrics (operator surface: current/peak/total)
	ConnectionsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatter_connections_current",
			Help: "Currently open gateway connections",
		},
	)

	ConnectionsPeak = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatter_connections_peak",
			Help: "Peak concurrent gateway connections since start",
		},
	)

	ConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatter_connections_total",
			Help: "Total gateway connections accepted since start",
		},
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatter_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatter_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatter_messages_sent_total",
			Help: "Total messages persisted and relayed",
		},
		[]string{"type"}, // text, image, video, document, audio, link
	)

	EventsRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatter_events_relayed_total",
			Help: "Total realtime events relayed",
		},
		[]string{"event"},
	)

	AuthFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatter_auth_failures_total",
			Help: "Total rejected connection attempts",
		},
		[]string{"reason"},
	)

	// Backbone metrics
	BackbonePublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatter_backbone_publish_errors_total",
			Help: "Total failed backbone publishes",
		},
	)

	BackboneDroppedEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatter_backbone_dropped_events_total",
			Help: "Total backbone events dropped on a stalled consumer",
		},
	)

	// Infrastructure metrics
	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatter_redis_latency_seconds",
			Help:    "Redis operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)

	PostgresLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatter_postgres_latency_seconds",
			Help:    "PostgreSQL query latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1},
		},
	)
)
