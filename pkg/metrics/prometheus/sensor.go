// Package prometheus implements the metrics interfaces on top of the
// Prometheus client, registering everything in metrics.GetRegistry().
package prometheus

import (
	"time"

	"github.com/marmos91/sensord/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// sensorMetrics is the Prometheus implementation of metrics.SensorMetrics.
type sensorMetrics struct {
	requestsTotal          *prometheus.CounterVec
	requestDuration        *prometheus.HistogramVec
	bytesSent              *prometheus.CounterVec
	authTotal              *prometheus.CounterVec
	activeConnections      prometheus.Gauge
	connectionsAccepted    prometheus.Counter
	connectionsClosed      prometheus.Counter
	connectionsForceClosed prometheus.Counter
}

// NewSensorMetrics creates a Prometheus-backed SensorMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewSensorMetrics() metrics.SensorMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopSensorMetrics()
	}

	reg := metrics.GetRegistry()

	return &sensorMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "sensord_requests_total",
				Help: "Total number of protocol requests by request and response",
			},
			[]string{"request", "response"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "sensord_request_duration_milliseconds",
				Help: "Duration of protocol requests in milliseconds",
				Buckets: []float64{
					1,    // 1ms
					10,   // 10ms
					100,  // 100ms
					1000, // 1s
				},
			},
			[]string{"request"},
		),
		bytesSent: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "sensord_bytes_sent_total",
				Help: "Total payload bytes sent to clients",
			},
			[]string{"request"},
		),
		authTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "sensord_authentications_total",
				Help: "Total number of connect exchanges by outcome",
			},
			[]string{"result"},
		),
		activeConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "sensord_active_connections",
				Help: "Current number of active client connections",
			},
		),
		connectionsAccepted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "sensord_connections_accepted_total",
				Help: "Total number of connections accepted",
			},
		),
		connectionsClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "sensord_connections_closed_total",
				Help: "Total number of connections closed",
			},
		),
		connectionsForceClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "sensord_connections_force_closed_total",
				Help: "Total number of connections force-closed during shutdown timeout",
			},
		),
	}
}

func (m *sensorMetrics) RecordRequest(request string, response string, duration time.Duration) {
	m.requestsTotal.WithLabelValues(request, response).Inc()
	m.requestDuration.WithLabelValues(request).Observe(duration.Seconds() * 1000)
}

func (m *sensorMetrics) RecordBytesSent(request string, bytes int64) {
	m.bytesSent.WithLabelValues(request).Add(float64(bytes))
}

func (m *sensorMetrics) RecordAuthentication(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.authTotal.WithLabelValues(result).Inc()
}

func (m *sensorMetrics) SetActiveConnections(count int32) {
	m.activeConnections.Set(float64(count))
}

func (m *sensorMetrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

func (m *sensorMetrics) RecordConnectionClosed() {
	m.connectionsClosed.Inc()
}

func (m *sensorMetrics) RecordConnectionForceClosed() {
	m.connectionsForceClosed.Inc()
}
