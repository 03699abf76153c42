package datastore

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/marmos91/sensord/pkg/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "meas_data"))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSize_NotOpen(t *testing.T) {
	s := newStore(t)
	_, err := s.Size()
	assert.ErrorIs(t, err, ErrNotOpen)
}

func TestAppend_Monotonic(t *testing.T) {
	s := newStore(t)

	for k := 1; k <= 5; k++ {
		require.NoError(t, s.Append(sensor.Sample{Temperature: float32(k)}))
		size, err := s.Size()
		require.NoError(t, err)
		assert.Equal(t, int64(k*RecordSize), size)
	}
}

func TestAppend_TruncatesStaleFileOnFirstOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meas_data")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{1}, 48), 0644))

	s := New(path)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Append(sensor.Sample{}))
	size, err := s.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(RecordSize), size)
}

func TestTruncate(t *testing.T) {
	s := newStore(t)

	// Never opened: no-op, still not open.
	require.NoError(t, s.Truncate())
	_, err := s.Size()
	assert.ErrorIs(t, err, ErrNotOpen)

	require.NoError(t, s.Append(sensor.Sample{Temperature: 1}))
	require.NoError(t, s.Append(sensor.Sample{Temperature: 2}))

	for i := 0; i < 2; i++ {
		require.NoError(t, s.Truncate())
		size, err := s.Size()
		require.NoError(t, err)
		assert.Equal(t, int64(0), size)
	}

	require.NoError(t, s.Append(sensor.Sample{Temperature: 3}))
	size, err := s.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(RecordSize), size)
}

func TestTransfer(t *testing.T) {
	s := newStore(t)

	var got int64 = -1
	require.NoError(t, s.Transfer(func(size int64, body io.Reader) error {
		got = size
		return nil
	}))
	assert.Equal(t, int64(0), got, "never-opened store reports empty")

	want := []sensor.Sample{
		{Temperature: 21.5, Humidity: 40, Pressure: 1012},
		{Temperature: sensor.DisabledValue, Humidity: 41, Pressure: sensor.DisabledValue},
	}
	for _, w := range want {
		require.NoError(t, s.Append(w))
	}

	var buf bytes.Buffer
	require.NoError(t, s.Transfer(func(size int64, body io.Reader) error {
		assert.Equal(t, int64(2*RecordSize), size)
		_, err := io.Copy(&buf, body)
		return err
	}))

	samples, err := DecodeSamples(&buf)
	require.NoError(t, err)
	assert.Equal(t, want, samples)
}

func TestTransfer_StatFailure(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Append(sensor.Sample{Temperature: 1}))

	// Close the descriptor underneath the store so Stat fails.
	require.NoError(t, s.file.Close())

	called := false
	err := s.Transfer(func(int64, io.Reader) error {
		called = true
		return nil
	})
	assert.Error(t, err)
	assert.False(t, called)
}

func TestDecodeSamples_Truncated(t *testing.T) {
	_, err := DecodeSamples(bytes.NewReader(make([]byte, RecordSize+3)))
	assert.Error(t, err)
}

func TestEncodeSample_Layout(t *testing.T) {
	var buf [RecordSize]byte
	EncodeSample(buf[:], sensor.Sample{Temperature: -1, Humidity: 0, Pressure: 1})
	// -1.0f = 0xBF800000, 1.0f = 0x3F800000, on a little-endian host
	assert.Equal(t, []byte{0x00, 0x00, 0x80, 0xBF, 0, 0, 0, 0, 0x00, 0x00, 0x80, 0x3F}, buf[:])
}

// Concurrent readers interleaved with a removal must only ever see sizes
// that correspond to a whole number of records, with a body of that length.
func TestTransfer_ConcurrentWithTruncate(t *testing.T) {
	s := newStore(t)
	for i := 0; i < 50; i++ {
		require.NoError(t, s.Append(sensor.Sample{Temperature: float32(i)}))
	}

	var wg sync.WaitGroup
	errs := make(chan error, 64)

	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				err := s.Transfer(func(size int64, body io.Reader) error {
					n, err := io.Copy(io.Discard, body)
					if err != nil {
						return err
					}
					if n != size || size%RecordSize != 0 {
						return assert.AnError
					}
					return nil
				})
				if err != nil {
					errs <- err
					return
				}
			}
		}()
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 10; i++ {
			if err := s.Truncate(); err != nil {
				errs <- err
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if err := s.Append(sensor.Sample{}); err != nil {
				errs <- err
				return
			}
		}
	}()

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}
}
