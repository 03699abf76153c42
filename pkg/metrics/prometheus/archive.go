package prometheus

import (
	"time"

	"github.com/marmos91/sensord/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type archiveMetrics struct {
	uploads        *prometheus.CounterVec
	uploadDuration prometheus.Histogram
	bytesUploaded  prometheus.Counter
}

// NewArchiveMetrics creates a Prometheus-backed ArchiveMetrics instance.
func NewArchiveMetrics() metrics.ArchiveMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopArchiveMetrics()
	}

	reg := metrics.GetRegistry()

	return &archiveMetrics{
		uploads: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "sensord_archive_uploads_total",
				Help: "Total number of data file uploads by status",
			},
			[]string{"status"},
		),
		uploadDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "sensord_archive_upload_duration_seconds",
				Help: "Duration of data file uploads in seconds",
				Buckets: []float64{
					0.1,  // 100ms
					0.5,  // 500ms
					1.0,  // 1s
					5.0,  // 5s
					30.0, // 30s
				},
			},
		),
		bytesUploaded: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "sensord_archive_bytes_uploaded_total",
				Help: "Total bytes uploaded to the archive bucket",
			},
		),
	}
}

func (m *archiveMetrics) RecordUpload(duration time.Duration, bytes int64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.uploads.WithLabelValues(status).Inc()
	m.uploadDuration.Observe(duration.Seconds())
	if err == nil {
		m.bytesUploaded.Add(float64(bytes))
	}
}
