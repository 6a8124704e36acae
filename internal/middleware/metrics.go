package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	wsConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_connections_total",
			Help: "Total number of WebSocket connections",
		},
	)

	wsActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_active_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	messagesSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "channel_messages_sent_total",
			Help: "Total number of messages sent",
		},
	)

	messageDeletesRequestedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "channel_message_deletes_requested_total",
			Help: "Total number of message delete requests",
		},
	)

	messageDeletesUndoneTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "channel_message_deletes_undone_total",
			Help: "Total number of message deletes undone within the grace window",
		},
	)

	typingSignalsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "channel_typing_signals_total",
			Help: "Total number of typing start signals",
		},
	)

	channelsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "channels_active",
			Help: "Number of existing channels",
		},
	)
)

// Metrics returns a Gin middleware that collects Prometheus metrics.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		httpRequestsInFlight.Inc()

		c.Next()

		httpRequestsInFlight.Dec()
		duration := time.Since(start).Seconds()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler exposes the Prometheus scrape endpoint.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

func RecordWebSocketConnection() {
	wsConnectionsTotal.Inc()
	wsActiveConnections.Inc()
}

func RecordWebSocketDisconnection() {
	wsActiveConnections.Dec()
}

func RecordMessageSent() {
	messagesSentTotal.Inc()
}

func RecordDeleteRequested() {
	messageDeletesRequestedTotal.Inc()
}

func RecordDeleteUndone() {
	messageDeletesUndoneTotal.Inc()
}

func RecordTypingSignal() {
	typingSignalsTotal.Inc()
}

func RecordChannelCreated() {
	channelsActive.Inc()
}

func RecordChannelDeleted() {
	channelsActive.Dec()
}
