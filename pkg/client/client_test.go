package client

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"

	proto "github.com/marmos91/sensord/pkg/protocol/sensor"
	"github.com/marmos91/sensord/pkg/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// step is one scripted exchange: the expected request byte and the reply
// chunks written back.
type step struct {
	request proto.RequestCode
	reply   [][]byte
}

// startFakeServer plays steps on the far end of a pipe and reports the first
// mismatch or transport error on the returned channel.
func startFakeServer(t *testing.T, steps ...step) (*Client, <-chan error) {
	t.Helper()

	clientSide, serverSide := net.Pipe()
	t.Cleanup(func() {
		_ = clientSide.Close()
		_ = serverSide.Close()
	})

	done := make(chan error, 1)
	go func() {
		for _, s := range steps {
			b, err := proto.ReadByte(serverSide)
			if err != nil {
				done <- err
				return
			}
			if proto.RequestCode(b) != s.request {
				done <- errors.New("unexpected request code")
				return
			}
			for _, chunk := range s.reply {
				if _, err := serverSide.Write(chunk); err != nil {
					done <- err
					return
				}
			}
		}
		done <- nil
	}()

	return &Client{conn: clientSide, timeout: 2 * time.Second}, done
}

func int32Bytes(v int32) []byte {
	var buf bytes.Buffer
	_ = proto.WriteInt32(&buf, v)
	return buf.Bytes()
}

func TestGetData_ServerFailure(t *testing.T) {
	report := proto.ReportFromSettings(sensor.DefaultSettings())

	c, done := startFakeServer(t,
		step{proto.RequestGetData, [][]byte{{byte(proto.ResponseAccept)}, int32Bytes(proto.DataSizeServerFailure)}},
		step{proto.RequestGetConfig, [][]byte{{byte(proto.ResponseAccept)}, report.Encode()}},
	)

	var out bytes.Buffer
	n, err := c.GetData(&out)
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.Zero(t, n)
	assert.Zero(t, out.Len())

	// Nothing was left unread: the next exchange lines up.
	got, err := c.GetConfig()
	require.NoError(t, err)
	assert.Equal(t, report, got)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("fake server did not finish")
	}
}

func TestGetData_Body(t *testing.T) {
	body := []byte("0123456789ab")

	c, done := startFakeServer(t,
		step{proto.RequestGetData, [][]byte{{byte(proto.ResponseAccept)}, int32Bytes(int32(len(body))), body}},
	)

	var out bytes.Buffer
	n, err := c.GetData(&out)
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), n)
	assert.Equal(t, body, out.Bytes())
	require.NoError(t, <-done)
}

func TestStatusErrors(t *testing.T) {
	tests := []struct {
		reply proto.ResponseCode
		want  error
	}{
		{proto.ResponseInvalid, ErrInvalidRequest},
		{proto.ResponseNoPermission, ErrNoPermission},
		{proto.ResponseFail, ErrRequestFailed},
		{proto.ResponseCode(0x7f), ErrUnexpectedResponse},
	}

	for _, tt := range tests {
		assert.ErrorIs(t, statusError(tt.reply, proto.ResponseSuccess), tt.want)
	}
	assert.NoError(t, statusError(proto.ResponseSuccess, proto.ResponseSuccess))
}
