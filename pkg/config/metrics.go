package config

import (
	"github.com/marmos91/sensord/pkg/metrics"
	promMetrics "github.com/marmos91/sensord/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// SensorMetrics is the collector for the sensor adapter (never nil, uses noop if disabled)
	SensorMetrics metrics.SensorMetrics

	// MeasureMetrics is the collector for the measurement loop (never nil)
	MeasureMetrics metrics.MeasureMetrics

	// ArchiveMetrics is the collector for the archiver (never nil)
	ArchiveMetrics metrics.ArchiveMetrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are disabled the result carries a nil server and no-op
// collectors. health backs the /healthz probe and may be nil.
func InitializeMetrics(cfg *Config, health func() error) *MetricsResult {
	if !cfg.Server.Metrics.Enabled {
		return &MetricsResult{
			SensorMetrics:  metrics.NewNoopSensorMetrics(),
			MeasureMetrics: metrics.NewNoopMeasureMetrics(),
			ArchiveMetrics: metrics.NewNoopArchiveMetrics(),
		}
	}

	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Address: cfg.Server.Metrics.Address,
		Port:    cfg.Server.Metrics.Port,
		Health:  health,
	})

	return &MetricsResult{
		Server:         server,
		SensorMetrics:  promMetrics.NewSensorMetrics(),
		MeasureMetrics: promMetrics.NewMeasureMetrics(),
		ArchiveMetrics: promMetrics.NewArchiveMetrics(),
	}
}
