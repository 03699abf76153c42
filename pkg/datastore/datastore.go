// Package datastore manages the measurement data file: a flat sequence of
// fixed-size records (3 x float32, host byte order, no header).
//
// All operations share one exclusive lock. In particular Transfer holds it
// across the size lookup and the full body stream, so a concurrent removal
// or append can never produce a torn read.
package datastore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"

	"github.com/marmos91/sensord/pkg/sensor"
)

// RecordSize is the on-disk width of one sample.
const RecordSize = 12

// ErrNotOpen is returned by Size when nothing has opened the file yet.
var ErrNotOpen = errors.New("data file not open")

// Records use host byte order; readers on a different architecture must swap.
var byteOrder = binary.NativeEndian

// Store is the lock-guarded data file handle. The file is opened lazily by the
// first Append or Truncate and stays open until Close.
type Store struct {
	mu   sync.Mutex
	path string
	file *os.File
}

func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Append writes one record at the end of the file, opening it first if
// needed. The first open truncates any file left over from a previous run.
func (s *Store) Append(sample sensor.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		if err := s.openLocked(); err != nil {
			return err
		}
	}

	if _, err := s.file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek data file: %w", err)
	}

	var buf [RecordSize]byte
	EncodeSample(buf[:], sample)
	if _, err := s.file.Write(buf[:]); err != nil {
		return fmt.Errorf("write sample: %w", err)
	}
	return nil
}

// Truncate discards all records. It is a no-op if the file was never opened;
// otherwise the file is closed, recreated empty and left open.
func (s *Store) Truncate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}

	if err := s.file.Close(); err != nil {
		s.file = nil
		return fmt.Errorf("close data file: %w", err)
	}
	s.file = nil

	return s.openLocked()
}

// Size returns the current file size, or ErrNotOpen.
func (s *Store) Size() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sizeLocked()
}

// Transfer calls fn with the current size and a reader over exactly that many
// bytes, holding the lock for the whole call. A store that was never opened is
// reported as empty. If the size cannot be determined fn is not called.
//
// The reader is an *io.LimitedReader over the *os.File, which lets a
// *net.TCPConn destination use sendfile.
func (s *Store) Transfer(fn func(size int64, body io.Reader) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	size, err := s.sizeLocked()
	if errors.Is(err, ErrNotOpen) {
		return fn(0, eofReader{})
	}
	if err != nil {
		return err
	}

	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek data file: %w", err)
	}

	return fn(size, io.LimitReader(s.file, size))
}

// Close closes the file if open. Best effort at shutdown.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *Store) openLocked() error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("open data file %s: %w", s.path, err)
	}
	s.file = f
	return nil
}

func (s *Store) sizeLocked() (int64, error) {
	if s.file == nil {
		return 0, ErrNotOpen
	}
	info, err := s.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat data file: %w", err)
	}
	return info.Size(), nil
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }

// EncodeSample writes s into dst, which must be at least RecordSize bytes.
func EncodeSample(dst []byte, s sensor.Sample) {
	byteOrder.PutUint32(dst[0:4], math.Float32bits(s.Temperature))
	byteOrder.PutUint32(dst[4:8], math.Float32bits(s.Humidity))
	byteOrder.PutUint32(dst[8:12], math.Float32bits(s.Pressure))
}

// DecodeSamples reads every record from r. A trailing partial record is an error.
func DecodeSamples(r io.Reader) ([]sensor.Sample, error) {
	var (
		samples []sensor.Sample
		buf     [RecordSize]byte
	)

	for {
		_, err := io.ReadFull(r, buf[:])
		if err == io.EOF {
			return samples, nil
		}
		if err == io.ErrUnexpectedEOF {
			return samples, fmt.Errorf("truncated record after %d samples", len(samples))
		}
		if err != nil {
			return samples, err
		}

		samples = append(samples, sensor.Sample{
			Temperature: math.Float32frombits(byteOrder.Uint32(buf[0:4])),
			Humidity:    math.Float32frombits(byteOrder.Uint32(buf[4:8])),
			Pressure:    math.Float32frombits(byteOrder.Uint32(buf[8:12])),
		})
	}
}
