// Package metrics defines the observability interfaces of sensord components
// and owns the Prometheus registry they report to.
//
// Metrics are opt-in. Until InitRegistry runs, GetRegistry returns nil and
// every constructor in pkg/metrics/prometheus hands out a no-op collector, so
// components never need to check whether metrics are on:
//
//	metrics.InitRegistry()
//	adapter := sensor.New(cfg, prometheus.NewSensorMetrics())
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry creates the process-wide registry and registers the Go
// runtime and process collectors on it. Later calls are no-ops.
func InitRegistry() {
	registryOnce.Do(func() {
		r := prometheus.NewRegistry()
		r.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		registry = r
	})
}

// GetRegistry returns the registry, or nil while metrics are disabled.
// The sync.Once in InitRegistry orders the write before any read that
// observes a non-nil value.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has run.
func IsEnabled() bool {
	return GetRegistry() != nil
}
