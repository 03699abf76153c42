package metrics

import "time"

// ArchiveMetrics observes uploads of the data file to object storage.
type ArchiveMetrics interface {
	// RecordUpload records one upload attempt.
	RecordUpload(duration time.Duration, bytes int64, err error)
}

// NewNoopArchiveMetrics returns an ArchiveMetrics that discards everything.
func NewNoopArchiveMetrics() ArchiveMetrics {
	return noopArchiveMetrics{}
}

type noopArchiveMetrics struct{}

func (noopArchiveMetrics) RecordUpload(duration time.Duration, bytes int64, err error) {}
