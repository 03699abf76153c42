package config

import (
	"fmt"

	"github.com/marmos91/sensord/pkg/adapter"
	sensorAdapter "github.com/marmos91/sensord/pkg/adapter/sensor"
	"github.com/marmos91/sensord/pkg/metrics"
)

// CreateAdapters creates all enabled protocol adapters from the configuration.
//
// Parameters:
//   - cfg: The complete sensord configuration
//   - sensorMetrics: Optional sensor metrics collector (nil = no metrics)
func CreateAdapters(cfg *Config, sensorMetrics metrics.SensorMetrics) ([]adapter.Adapter, error) {
	var adapters []adapter.Adapter

	if cfg.Adapters.Sensor.Enabled {
		adapters = append(adapters, sensorAdapter.New(cfg.Adapters.Sensor, sensorMetrics))
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no adapters enabled in configuration")
	}

	return adapters, nil
}
