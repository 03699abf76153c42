// Package archive periodically uploads snapshots of the measurement data file
// to S3 or an S3-compatible object store.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/marmos91/sensord/internal/logger"
	"github.com/marmos91/sensord/pkg/datastore"
	"github.com/marmos91/sensord/pkg/metrics"
)

// ObjectName is the base name of every archived object.
const ObjectName = "meas_data"

// PutObjectAPI is the subset of the S3 client used by the archiver.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config contains the archiver settings.
type Config struct {
	// Client uploads the snapshots. *s3.Client satisfies it.
	Client PutObjectAPI

	// Bucket is the destination bucket. It must already exist.
	Bucket string

	// KeyPrefix is prepended to every object key.
	// Example: "site-a/" results in keys like "site-a/meas_data-20250101T120000Z-<uuid>"
	KeyPrefix string

	// Interval between uploads. Default 1h.
	Interval time.Duration
}

// Archiver uploads data file snapshots.
//
// Thread Safety:
// ArchiveNow may be called concurrently with Run; each call takes its own
// snapshot under the data store lock.
type Archiver struct {
	client    PutObjectAPI
	bucket    string
	keyPrefix string
	interval  time.Duration
	data      *datastore.Store
	metrics   metrics.ArchiveMetrics
	now       func() time.Time
}

// New creates an archiver for data. m may be nil.
func New(cfg Config, data *datastore.Store, m metrics.ArchiveMetrics) (*Archiver, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if data == nil {
		return nil, fmt.Errorf("data store is required")
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	if m == nil {
		m = metrics.NewNoopArchiveMetrics()
	}

	return &Archiver{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		interval:  interval,
		data:      data,
		metrics:   m,
		now:       time.Now,
	}, nil
}

// Run uploads a snapshot every interval until ctx is cancelled. Upload
// failures are logged and retried at the next tick.
func (a *Archiver) Run(ctx context.Context) error {
	logger.Info("Archiver started: bucket=%s, prefix=%s, interval=%v", a.bucket, a.keyPrefix, a.interval)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Archiver stopped")
			return nil
		case <-ticker.C:
			key, err := a.ArchiveNow(ctx)
			switch {
			case err != nil:
				if ctx.Err() != nil {
					return nil
				}
				logger.Error("Archive upload failed: %v", err)
			case key == "":
				logger.Debug("Archive skipped: data file is empty")
			}
		}
	}
}

// ArchiveNow uploads the current data file and returns the object key. An
// empty or never-opened file is skipped and returns "".
func (a *Archiver) ArchiveNow(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	snapshot, err := a.snapshot()
	if err != nil {
		return "", err
	}
	if len(snapshot) == 0 {
		return "", nil
	}

	key := a.objectKey()
	start := time.Now()

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(snapshot),
		ContentLength: aws.Int64(int64(len(snapshot))),
		ContentType:   aws.String("application/octet-stream"),
	})
	a.metrics.RecordUpload(time.Since(start), int64(len(snapshot)), err)
	if err != nil {
		return "", fmt.Errorf("failed to upload %s to S3: %w", key, err)
	}

	logger.Info("Archived %d bytes to s3://%s/%s", len(snapshot), a.bucket, key)
	return key, nil
}

// snapshot copies the data file while the store lock is held, so the upload
// never sees a partially appended record.
func (a *Archiver) snapshot() ([]byte, error) {
	var buf bytes.Buffer
	err := a.data.Transfer(func(size int64, body io.Reader) error {
		if size == 0 {
			return nil
		}
		buf.Grow(int(size))
		_, err := io.CopyN(&buf, body, size)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot data file: %w", err)
	}
	return buf.Bytes(), nil
}

func (a *Archiver) objectKey() string {
	ts := a.now().UTC().Format("20060102T150405Z")
	return a.keyPrefix + ObjectName + "-" + ts + "-" + uuid.NewString()
}

