package sensor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"path/filepath"
	"testing"

	"github.com/marmos91/sensord/pkg/auth"
	"github.com/marmos91/sensord/pkg/datastore"
	"github.com/marmos91/sensord/pkg/sensor"
	"github.com/marmos91/sensord/pkg/sensor/simulated"
	"github.com/marmos91/sensord/pkg/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exchange is an in-memory request/response pipe: the handler reads from in
// and writes to out.
type exchange struct {
	in  *bytes.Buffer
	out *bytes.Buffer
}

func (e *exchange) Read(p []byte) (int, error)  { return e.in.Read(p) }
func (e *exchange) Write(p []byte) (int, error) { return e.out.Write(p) }

func newExchange(request ...byte) *exchange {
	return &exchange{in: bytes.NewBuffer(request), out: &bytes.Buffer{}}
}

type fixture struct {
	hc     *HandlerContext
	device *simulated.Device
	data   *datastore.Store
}

func newFixture(t *testing.T, group auth.Group) *fixture {
	t.Helper()

	dev := simulated.New(simulated.Config{Seed: 3})
	st := settings.New(dev, sensor.DefaultSettings(), nil)
	require.NoError(t, st.Init(context.Background()))

	data := datastore.New(filepath.Join(t.TempDir(), "meas_data"))
	t.Cleanup(func() { _ = data.Close() })

	return &fixture{
		device: dev,
		data:   data,
		hc: &HandlerContext{
			Context:    context.Background(),
			ClientAddr: "127.0.0.1:50000",
			SessionID:  "test",
			User:       &auth.User{Name: "tester", Group: group},
			Settings:   st,
			Data:       data,
		},
	}
}

func int32Bytes(v int32) []byte {
	var buf bytes.Buffer
	_ = WriteInt32(&buf, v)
	return buf.Bytes()
}

func TestAuthorize(t *testing.T) {
	guest := &auth.User{Name: "g", Group: auth.GroupGuest}
	conf := &auth.User{Name: "c", Group: auth.GroupConfidential}

	tests := []struct {
		code  RequestCode
		guest ResponseCode
		conf  ResponseCode
	}{
		{RequestDisconnect, ResponseAccept, ResponseAccept},
		{RequestSetConfig, ResponseNoPermission, ResponseAccept},
		{RequestGetConfig, ResponseAccept, ResponseAccept},
		{RequestRemoveData, ResponseNoPermission, ResponseAccept},
		{RequestGetData, ResponseAccept, ResponseAccept},
		{RequestCode(0x03), ResponseInvalid, ResponseInvalid},
		{RequestCode(0xFF), ResponseInvalid, ResponseInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			assert.Equal(t, tt.guest, Authorize(guest, tt.code))
			assert.Equal(t, tt.conf, Authorize(conf, tt.code))
		})
	}
}

func TestDispatchTableIsExhaustive(t *testing.T) {
	for _, code := range []RequestCode{RequestDisconnect, RequestSetConfig, RequestGetConfig, RequestRemoveData, RequestGetData} {
		_, ok := RequiredGroup(code)
		assert.True(t, ok, "code %s", code)
	}
	assert.Len(t, dispatchTable, 5)
}

func TestHandleRequest_EOF(t *testing.T) {
	f := newFixture(t, auth.GroupGuest)
	_, err := HandleRequest(f.hc, newExchange())
	assert.ErrorIs(t, err, io.EOF)
}

func TestHandleRequest_Invalid(t *testing.T) {
	f := newFixture(t, auth.GroupConfidential)
	ex := newExchange(0xFF)

	res, err := HandleRequest(f.hc, ex)
	require.NoError(t, err)
	assert.Equal(t, ResponseInvalid, res.Envelope)
	assert.False(t, res.Stop)
	assert.Equal(t, []byte{byte(ResponseInvalid)}, ex.out.Bytes())
}

func TestHandleRequest_Disconnect(t *testing.T) {
	f := newFixture(t, auth.GroupGuest)
	ex := newExchange(byte(RequestDisconnect))

	res, err := HandleRequest(f.hc, ex)
	require.NoError(t, err)
	assert.True(t, res.Stop)
	assert.Equal(t, []byte{byte(ResponseAccept)}, ex.out.Bytes())
}

func TestSetConfig(t *testing.T) {
	tests := []struct {
		name     string
		group    auth.Group
		request  []byte
		envelope ResponseCode
		status   ResponseCode
		check    func(t *testing.T, s sensor.Settings)
	}{
		{
			name:     "period",
			group:    auth.GroupConfidential,
			request:  append([]byte{byte(RequestSetConfig), byte(NewSelector(ConfigPeriod, true, 0))}, int32Bytes(5)...),
			envelope: ResponseAccept,
			status:   ResponseSuccess,
			check: func(t *testing.T, s sensor.Settings) {
				assert.Equal(t, int32(5), s.PeriodSeconds)
			},
		},
		{
			name:     "filter off",
			group:    auth.GroupConfidential,
			request:  []byte{byte(RequestSetConfig), byte(NewSelector(ConfigFilter, false, 0))},
			envelope: ResponseAccept,
			status:   ResponseSuccess,
			check: func(t *testing.T, s sensor.Settings) {
				assert.False(t, s.IsEnabled(sensor.ChannelFilter))
			},
		},
		{
			name:     "bad oversampling value",
			group:    auth.GroupConfidential,
			request:  []byte{byte(RequestSetConfig), byte(NewSelector(ConfigHumidity, true, 9))},
			envelope: ResponseAccept,
			status:   ResponseFail,
			check: func(t *testing.T, s sensor.Settings) {
				assert.Equal(t, sensor.DefaultSettings(), s)
			},
		},
		{
			name:     "reserved type",
			group:    auth.GroupConfidential,
			request:  []byte{byte(RequestSetConfig), 0x08},
			envelope: ResponseAccept,
			status:   ResponseInvalid,
			check: func(t *testing.T, s sensor.Settings) {
				assert.Equal(t, sensor.DefaultSettings(), s)
			},
		},
		{
			name:     "guest",
			group:    auth.GroupGuest,
			request:  []byte{byte(RequestSetConfig)},
			envelope: ResponseNoPermission,
			check: func(t *testing.T, s sensor.Settings) {
				assert.Equal(t, sensor.DefaultSettings(), s)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.group)
			ex := newExchange(tt.request...)

			res, err := HandleRequest(f.hc, ex)
			require.NoError(t, err)
			assert.Equal(t, tt.envelope, res.Envelope)
			assert.Equal(t, tt.status, res.Response)

			want := []byte{byte(tt.envelope)}
			if tt.status != 0 {
				want = append(want, byte(tt.status))
			}
			assert.Equal(t, want, ex.out.Bytes())
			assert.Zero(t, ex.in.Len(), "request not fully consumed")

			tt.check(t, f.hc.Settings.Snapshot())
		})
	}
}

func TestSetConfig_CommitFailure(t *testing.T) {
	f := newFixture(t, auth.GroupConfidential)
	f.device.ApplyErr = errors.New("i2c write failed")

	ex := newExchange(byte(RequestSetConfig), byte(NewSelector(ConfigTemperature, true, 1)))
	res, err := HandleRequest(f.hc, ex)
	require.NoError(t, err)
	assert.Equal(t, ResponseFail, res.Response)
	assert.ErrorIs(t, res.Err, settings.ErrCommitFailed)
}

func TestSetConfig_TruncatedPeriod(t *testing.T) {
	f := newFixture(t, auth.GroupConfidential)
	ex := newExchange(byte(RequestSetConfig), byte(NewSelector(ConfigPeriod, true, 0)), 0x01)

	_, err := HandleRequest(f.hc, ex)
	assert.Error(t, err)
}

func TestGetConfig(t *testing.T) {
	f := newFixture(t, auth.GroupGuest)
	ex := newExchange(byte(RequestGetConfig))

	res, err := HandleRequest(f.hc, ex)
	require.NoError(t, err)
	assert.Equal(t, int64(ConfigReportSize), res.BytesSent)
	require.Equal(t, 1+ConfigReportSize, ex.out.Len())

	env, _ := ex.out.ReadByte()
	assert.Equal(t, byte(ResponseAccept), env)

	report, err := ReadConfigReport(ex.out)
	require.NoError(t, err)
	assert.Equal(t, ConfigReport{
		Period:      15,
		Temperature: "OS_2X",
		Humidity:    "OS_1X",
		Pressure:    "OS_4X",
		Filter:      "COEFF_4",
	}, report)
}

func TestGetData(t *testing.T) {
	f := newFixture(t, auth.GroupGuest)

	// Never written: size 0, no body.
	ex := newExchange(byte(RequestGetData))
	_, err := HandleRequest(f.hc, ex)
	require.NoError(t, err)
	assert.Equal(t, append([]byte{byte(ResponseAccept)}, int32Bytes(0)...), ex.out.Bytes())

	samples := []sensor.Sample{
		{Temperature: 21.5, Humidity: 40, Pressure: 1013},
		{Temperature: 22, Humidity: sensor.DisabledValue, Pressure: 1012},
	}
	for _, s := range samples {
		require.NoError(t, f.data.Append(s))
	}

	ex = newExchange(byte(RequestGetData))
	res, err := HandleRequest(f.hc, ex)
	require.NoError(t, err)
	assert.Equal(t, int64(2*datastore.RecordSize), res.BytesSent)

	env, _ := ex.out.ReadByte()
	assert.Equal(t, byte(ResponseAccept), env)
	size, err := ReadInt32(ex.out)
	require.NoError(t, err)
	assert.Equal(t, int32(2*datastore.RecordSize), size)

	got, err := datastore.DecodeSamples(ex.out)
	require.NoError(t, err)
	assert.Equal(t, samples, got)
}

// brokenStore fails every size lookup.
type brokenStore struct{}

func (brokenStore) Truncate() error { return nil }

func (brokenStore) Transfer(func(int64, io.Reader) error) error {
	return errors.New("stat data file: bad file descriptor")
}

// hugeStore reports a file too large for the int32 size header.
type hugeStore struct{}

func (hugeStore) Truncate() error { return nil }

func (hugeStore) Transfer(fn func(int64, io.Reader) error) error {
	return fn(math.MaxInt32+1, eofReader{})
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }

func TestGetData_ServerFailure(t *testing.T) {
	tests := []struct {
		name  string
		store DataStore
	}{
		{"size unavailable", brokenStore{}},
		{"file too large", hugeStore{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, auth.GroupGuest)
			f.hc.Data = tt.store

			ex := newExchange(byte(RequestGetData), byte(RequestGetConfig))
			res, err := HandleRequest(f.hc, ex)
			require.NoError(t, err)
			assert.Error(t, res.Err)
			assert.Zero(t, res.BytesSent)
			assert.False(t, res.Stop)

			want := append([]byte{byte(ResponseAccept)}, int32Bytes(DataSizeServerFailure)...)
			assert.Equal(t, want, ex.out.Bytes())

			// The connection stays usable for the next request.
			ex.out.Reset()
			res, err = HandleRequest(f.hc, ex)
			require.NoError(t, err)
			assert.Equal(t, ResponseAccept, res.Envelope)
			assert.Equal(t, byte(ResponseAccept), ex.out.Bytes()[0])
		})
	}
}

func TestRemoveDataThenGetData(t *testing.T) {
	f := newFixture(t, auth.GroupConfidential)
	require.NoError(t, f.data.Append(sensor.Sample{Temperature: 1}))

	ex := newExchange(byte(RequestRemoveData), byte(RequestGetData))

	res, err := HandleRequest(f.hc, ex)
	require.NoError(t, err)
	assert.Equal(t, ResponseSuccess, res.Response)

	_, err = HandleRequest(f.hc, ex)
	require.NoError(t, err)

	want := []byte{byte(ResponseAccept), byte(ResponseSuccess), byte(ResponseAccept)}
	want = append(want, int32Bytes(0)...)
	assert.Equal(t, want, ex.out.Bytes())
}

func TestRemoveData_Guest(t *testing.T) {
	f := newFixture(t, auth.GroupGuest)
	require.NoError(t, f.data.Append(sensor.Sample{Temperature: 1}))

	ex := newExchange(byte(RequestRemoveData))
	res, err := HandleRequest(f.hc, ex)
	require.NoError(t, err)
	assert.Equal(t, ResponseNoPermission, res.Envelope)

	size, err := f.data.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(datastore.RecordSize), size)
}
