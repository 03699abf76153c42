package metrics

import "time"

// MeasureMetrics observes the background measurement loop.
type MeasureMetrics interface {
	// RecordMeasurement records one acquisition; err is the read or append error.
	RecordMeasurement(duration time.Duration, err error)

	// SetDataFileSize reports the data file size after an append.
	SetDataFileSize(bytes int64)

	// SetPeriod reports the configured measurement period in seconds.
	SetPeriod(seconds int32)
}

// NewNoopMeasureMetrics returns a MeasureMetrics that discards everything.
func NewNoopMeasureMetrics() MeasureMetrics {
	return noopMeasureMetrics{}
}

type noopMeasureMetrics struct{}

func (noopMeasureMetrics) RecordMeasurement(duration time.Duration, err error) {}
func (noopMeasureMetrics) SetDataFileSize(bytes int64)                         {}
func (noopMeasureMetrics) SetPeriod(seconds int32)                             {}
