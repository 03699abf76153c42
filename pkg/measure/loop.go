// Package measure runs the background acquisition loop: read a sample with
// the current settings, append it to the data store, sleep for the period.
package measure

import (
	"context"
	"time"

	"github.com/marmos91/sensord/internal/logger"
	"github.com/marmos91/sensord/pkg/datastore"
	"github.com/marmos91/sensord/pkg/metrics"
	"github.com/marmos91/sensord/pkg/settings"
)

// Config tunes the loop timing.
type Config struct {
	// PausedPollInterval is how often a paused loop (period 0) re-reads
	// the period. Default 2s.
	PausedPollInterval time.Duration

	// PeriodUnit is the length of one period step. Default 1s; tests
	// shorten it.
	PeriodUnit time.Duration
}

func (c *Config) applyDefaults() {
	if c.PausedPollInterval <= 0 {
		c.PausedPollInterval = 2 * time.Second
	}
	if c.PeriodUnit <= 0 {
		c.PeriodUnit = time.Second
	}
}

// Loop is the single measurement task.
type Loop struct {
	config   Config
	settings *settings.State
	data     *datastore.Store
	metrics  metrics.MeasureMetrics
}

// New creates a loop. m may be nil.
func New(config Config, state *settings.State, data *datastore.Store, m metrics.MeasureMetrics) *Loop {
	config.applyDefaults()
	if m == nil {
		m = metrics.NewNoopMeasureMetrics()
	}
	return &Loop{
		config:   config,
		settings: state,
		data:     data,
		metrics:  m,
	}
}

// Run measures until ctx is cancelled, then returns nil.
//
// The sleep length is taken from the settings in force when the sample was
// read. A period change made during a sleep applies after that sleep ends.
func (l *Loop) Run(ctx context.Context) error {
	logger.Info("Measurement loop started")
	defer logger.Info("Measurement loop stopped")

	for {
		wait := l.Cycle(ctx)
		if ctx.Err() != nil {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// Cycle performs one iteration without sleeping and returns how long to
// wait before the next one. A zero period skips the measurement.
func (l *Loop) Cycle(ctx context.Context) time.Duration {
	if l.settings.Snapshot().PeriodSeconds == 0 {
		l.metrics.SetPeriod(0)
		logger.Debug("Measurement paused (period 0)")
		return l.config.PausedPollInterval
	}

	start := time.Now()
	sample, used, err := l.settings.Measure(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return 0
		}
		l.metrics.RecordMeasurement(time.Since(start), err)
		logger.Error("Failed to get sensor data: %v", err)
		return l.wait(used.PeriodSeconds)
	}

	err = l.data.Append(sample.Mask(used))
	l.metrics.RecordMeasurement(time.Since(start), err)
	if err != nil {
		logger.Error("Failed to save measurement: %v", err)
	} else {
		logger.Debug("Measured T=%.2f H=%.2f P=%.2f", sample.Temperature, sample.Humidity, sample.Pressure)
		if size, err := l.data.Size(); err == nil {
			l.metrics.SetDataFileSize(size)
		}
	}

	return l.wait(used.PeriodSeconds)
}

func (l *Loop) wait(period int32) time.Duration {
	l.metrics.SetPeriod(period)
	if period <= 0 {
		return l.config.PausedPollInterval
	}
	return time.Duration(period) * l.config.PeriodUnit
}
