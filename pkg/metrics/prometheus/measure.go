package prometheus

import (
	"time"

	"github.com/marmos91/sensord/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type measureMetrics struct {
	measurements     *prometheus.CounterVec
	measureDuration  prometheus.Histogram
	dataFileSize     prometheus.Gauge
	configuredPeriod prometheus.Gauge
}

// NewMeasureMetrics creates a Prometheus-backed MeasureMetrics instance.
func NewMeasureMetrics() metrics.MeasureMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopMeasureMetrics()
	}

	reg := metrics.GetRegistry()

	return &measureMetrics{
		measurements: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "sensord_measurements_total",
				Help: "Total number of measurement cycles by status",
			},
			[]string{"status"},
		),
		measureDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sensord_measurement_duration_milliseconds",
				Help:    "Time from starting an acquisition to the sample being stored",
				Buckets: []float64{5, 10, 25, 50, 100, 250},
			},
		),
		dataFileSize: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "sensord_data_file_bytes",
				Help: "Current size of the measurement data file",
			},
		),
		configuredPeriod: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "sensord_measurement_period_seconds",
				Help: "Configured measurement period; 0 means paused",
			},
		),
	}
}

func (m *measureMetrics) RecordMeasurement(duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.measurements.WithLabelValues(status).Inc()
	m.measureDuration.Observe(duration.Seconds() * 1000)
}

func (m *measureMetrics) SetDataFileSize(bytes int64) {
	m.dataFileSize.Set(float64(bytes))
}

func (m *measureMetrics) SetPeriod(seconds int32) {
	m.configuredPeriod.Set(float64(seconds))
}
