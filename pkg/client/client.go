// Package client is a Go client for the sensor configuration protocol.
//
// A Client holds one authenticated connection. Requests are half-duplex: a
// Client must not be used from more than one goroutine at a time.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	proto "github.com/marmos91/sensord/pkg/protocol/sensor"
	"github.com/marmos91/sensord/pkg/datastore"
	"github.com/marmos91/sensord/pkg/sensor"
)

var (
	// ErrAuthFailed is returned by Dial when the server answers AuthFail.
	ErrAuthFailed = errors.New("invalid username or password")

	// ErrInvalidRequest means the server did not recognize the request or its payload.
	ErrInvalidRequest = errors.New("invalid client request")

	// ErrNoPermission means the user's group may not issue the request.
	ErrNoPermission = errors.New("no permission for the issued request")

	// ErrRequestFailed means the server accepted the request but could not carry it out.
	ErrRequestFailed = errors.New("request failed due to server side error")

	// ErrUnexpectedResponse is returned for a reply byte outside the protocol.
	ErrUnexpectedResponse = errors.New("invalid server response")
)

// Options tunes Dial.
type Options struct {
	// DialTimeout bounds connection establishment and the connect exchange.
	DialTimeout time.Duration

	// RequestTimeout bounds each request exchange. 0 means no timeout.
	RequestTimeout time.Duration
}

// Client is an authenticated session.
type Client struct {
	conn    net.Conn
	timeout time.Duration
}

// Dial connects to addr and authenticates. ErrAuthFailed is returned (and
// the connection closed) for wrong credentials.
func Dial(ctx context.Context, addr, username, password string, opts Options) (*Client, error) {
	dialer := net.Dialer{Timeout: opts.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}

	if opts.DialTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(opts.DialTimeout))
	}

	if err := proto.WriteCredentials(conn, proto.Credentials{Username: username, Password: password}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send credentials: %w", err)
	}

	reply, err := proto.ReadByte(conn)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("receive authentication response: %w", err)
	}

	switch reply {
	case proto.AuthSuccess:
	case proto.AuthFail:
		_ = conn.Close()
		return nil, ErrAuthFailed
	default:
		_ = conn.Close()
		return nil, fmt.Errorf("%w: auth reply 0x%02x", ErrUnexpectedResponse, reply)
	}

	_ = conn.SetDeadline(time.Time{})
	return &Client{conn: conn, timeout: opts.RequestTimeout}, nil
}

// RemoteAddr returns the server address.
func (c *Client) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Request sends a bare request code and returns the envelope reply. It is
// exported for tooling that probes the server; the typed methods below should
// be preferred.
func (c *Client) Request(code proto.RequestCode) (proto.ResponseCode, error) {
	c.armDeadline()

	if err := proto.WriteByte(c.conn, byte(code)); err != nil {
		return 0, fmt.Errorf("send request: %w", err)
	}
	reply, err := proto.ReadByte(c.conn)
	if err != nil {
		return 0, fmt.Errorf("receive response: %w", err)
	}
	return proto.ResponseCode(reply), nil
}

// begin sends code and converts a non-Accept envelope into an error.
func (c *Client) begin(code proto.RequestCode) error {
	reply, err := c.Request(code)
	if err != nil {
		return err
	}
	return statusError(reply, proto.ResponseAccept)
}

// SetConfig applies one selector. period is sent only for Period selectors.
func (c *Client) SetConfig(sel proto.Selector, period int32) error {
	if err := c.begin(proto.RequestSetConfig); err != nil {
		return err
	}

	if err := proto.WriteByte(c.conn, byte(sel)); err != nil {
		return fmt.Errorf("send selector: %w", err)
	}
	if sel.Type() == proto.ConfigPeriod {
		if err := proto.WriteInt32(c.conn, period); err != nil {
			return fmt.Errorf("send period: %w", err)
		}
	}

	reply, err := proto.ReadByte(c.conn)
	if err != nil {
		return fmt.Errorf("receive status: %w", err)
	}
	return statusError(proto.ResponseCode(reply), proto.ResponseSuccess)
}

// SetPeriod changes the measurement period. 0 pauses measuring.
func (c *Client) SetPeriod(seconds int32) error {
	return c.SetConfig(proto.NewSelector(proto.ConfigPeriod, true, 0), seconds)
}

// GetConfig fetches the current configuration report.
func (c *Client) GetConfig() (proto.ConfigReport, error) {
	if err := c.begin(proto.RequestGetConfig); err != nil {
		return proto.ConfigReport{}, err
	}

	report, err := proto.ReadConfigReport(c.conn)
	if err != nil {
		return proto.ConfigReport{}, fmt.Errorf("receive config report: %w", err)
	}
	return report, nil
}

// RemoveData truncates the server's measurement data.
func (c *Client) RemoveData() error {
	if err := c.begin(proto.RequestRemoveData); err != nil {
		return err
	}

	reply, err := proto.ReadByte(c.conn)
	if err != nil {
		return fmt.Errorf("receive status: %w", err)
	}
	return statusError(proto.ResponseCode(reply), proto.ResponseSuccess)
}

// GetData streams the raw data file into w and returns the byte count.
// A negative size from the server yields ErrRequestFailed and no body is read.
func (c *Client) GetData(w io.Writer) (int64, error) {
	if err := c.begin(proto.RequestGetData); err != nil {
		return 0, err
	}

	size, err := proto.ReadInt32(c.conn)
	if err != nil {
		return 0, fmt.Errorf("receive data size: %w", err)
	}
	if size < 0 {
		return 0, fmt.Errorf("%w: data size %d", ErrRequestFailed, size)
	}
	if size == 0 {
		return 0, nil
	}

	n, err := io.CopyN(w, c.conn, int64(size))
	if err != nil {
		return n, fmt.Errorf("receive data (%d of %d bytes): %w", n, size, err)
	}
	return n, nil
}

// GetSamples fetches and decodes the data file.
func (c *Client) GetSamples() ([]sensor.Sample, error) {
	var buf bytes.Buffer
	if _, err := c.GetData(&buf); err != nil {
		return nil, err
	}
	return datastore.DecodeSamples(&buf)
}

// Disconnect sends the Disconnect request and closes the connection.
func (c *Client) Disconnect() error {
	err := c.begin(proto.RequestDisconnect)
	if cerr := c.conn.Close(); err == nil && cerr != nil {
		err = cerr
	}
	return err
}

// Close closes the connection without notifying the server.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) armDeadline() {
	if c.timeout > 0 {
		_ = c.conn.SetDeadline(time.Now().Add(c.timeout))
	}
}

func statusError(got, want proto.ResponseCode) error {
	switch got {
	case want:
		return nil
	case proto.ResponseInvalid:
		return ErrInvalidRequest
	case proto.ResponseNoPermission:
		return ErrNoPermission
	case proto.ResponseFail:
		return ErrRequestFailed
	default:
		return fmt.Errorf("%w: 0x%02x", ErrUnexpectedResponse, byte(got))
	}
}
