package sensor

import (
	"context"
	"fmt"
	"io"

	"github.com/marmos91/sensord/internal/logger"
	"github.com/marmos91/sensord/pkg/auth"
	"github.com/marmos91/sensord/pkg/settings"
)

// ============================================================================
// Handler Context
// ============================================================================

// HandlerContext carries everything a request handler may touch. One is built
// per authenticated connection and reused for each request on it.
type HandlerContext struct {
	// Context is cancelled when the server shuts down.
	Context context.Context

	// ClientAddr is the peer address, "IP:port".
	ClientAddr string

	// SessionID identifies the connection in logs.
	SessionID string

	// User is the authenticated account. Never nil once dispatch starts.
	User *auth.User

	Settings *settings.State
	Data     DataStore
}

// DataStore is the measurement data file as seen by the handlers.
// *datastore.Store implements it.
type DataStore interface {
	// Truncate discards all records.
	Truncate() error

	// Transfer calls fn with the current size and a reader over exactly that
	// many bytes, with appends and truncation held off until fn returns. If
	// the size cannot be determined fn is not called and the error returned.
	Transfer(fn func(size int64, body io.Reader) error) error
}

// Result describes how a request ended.
type Result struct {
	// Request is the code read from the wire.
	Request RequestCode

	// Envelope is the generic reply (Accept, Invalid or NoPermission).
	Envelope ResponseCode

	// Response is the handler's final status byte, zero for requests that
	// have none (GetConfig, GetData, Disconnect).
	Response ResponseCode

	// BytesSent counts payload bytes after the envelope.
	BytesSent int64

	// Stop is set when the connection should be closed after this request.
	Stop bool

	// Err holds the domain error behind a Fail/Invalid reply, for logging.
	Err error
}

// ============================================================================
// Dispatch Table
// ============================================================================

// requestHandler runs the request-specific exchange after Accept was sent.
// A returned error is a transport failure and ends the connection; protocol
// level outcomes are recorded in the Result.
type requestHandler func(hc *HandlerContext, rw io.ReadWriter, res *Result) error

type requestInfo struct {
	// Name is used in logs, e.g. "SET_CONFIG".
	Name string

	Handler requestHandler

	// MinGroup is the lowest group allowed to issue the request.
	MinGroup auth.Group
}

// dispatchTable maps every request code the server understands to its
// handler and permission requirement.
var dispatchTable map[RequestCode]*requestInfo

func init() {
	dispatchTable = map[RequestCode]*requestInfo{
		RequestDisconnect: {
			Name:     "DISCONNECT",
			Handler:  handleDisconnect,
			MinGroup: auth.GroupGuest,
		},
		RequestSetConfig: {
			Name:     "SET_CONFIG",
			Handler:  handleSetConfig,
			MinGroup: auth.GroupConfidential,
		},
		RequestGetConfig: {
			Name:     "GET_CONFIG",
			Handler:  handleGetConfig,
			MinGroup: auth.GroupGuest,
		},
		RequestRemoveData: {
			Name:     "REMOVE_DATA",
			Handler:  handleRemoveData,
			MinGroup: auth.GroupConfidential,
		},
		RequestGetData: {
			Name:     "GET_DATA",
			Handler:  handleGetData,
			MinGroup: auth.GroupGuest,
		},
	}
}

// RequiredGroup returns the minimum group for code and whether the code is known.
func RequiredGroup(code RequestCode) (auth.Group, bool) {
	info, ok := dispatchTable[code]
	if !ok {
		return 0, false
	}
	return info.MinGroup, true
}

// Authorize maps a request code and user to the generic envelope reply.
func Authorize(user *auth.User, code RequestCode) ResponseCode {
	minGroup, ok := RequiredGroup(code)
	if !ok {
		return ResponseInvalid
	}
	if user == nil || !user.Group.AtLeast(minGroup) {
		return ResponseNoPermission
	}
	return ResponseAccept
}

// HandleRequest runs one full request exchange: it reads the request byte,
// writes the envelope and, on Accept, the handler's payload.
//
// The returned error is non-nil only for transport failures (including EOF
// while waiting for the request byte); the caller must then close the
// connection. Invalid and NoPermission replies leave the connection usable.
func HandleRequest(hc *HandlerContext, rw io.ReadWriter) (*Result, error) {
	b, err := ReadByte(rw)
	if err != nil {
		return nil, err
	}

	code := RequestCode(b)
	res := &Result{Request: code}

	res.Envelope = Authorize(hc.User, code)

	logger.Debug("[%s] %s from %s (user=%s): %s",
		hc.SessionID, code, hc.ClientAddr, hc.User.Name, res.Envelope)

	if err := WriteByte(rw, byte(res.Envelope)); err != nil {
		return res, fmt.Errorf("send envelope: %w", err)
	}

	if res.Envelope != ResponseAccept {
		return res, nil
	}

	if err := dispatchTable[code].Handler(hc, rw, res); err != nil {
		return res, err
	}

	return res, nil
}
