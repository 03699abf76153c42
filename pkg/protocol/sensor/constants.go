// Package sensor implements the sensor configuration wire protocol: the
// connect exchange, the one-byte request envelope, the per-request payloads
// and the permission-checked dispatch table.
//
// All integers travel in host byte order. This is a known portability limit of
// the protocol, kept so existing clients keep working.
package sensor

import (
	"encoding/binary"
	"fmt"
)

// wireOrder is the byte order of every multi-byte integer on the wire.
var wireOrder = binary.NativeEndian

// Connect exchange.
const (
	CredentialFieldSize = 32

	AuthFail    byte = 0x00
	AuthSuccess byte = 0x01
)

// RequestCode is the first byte of every request.
type RequestCode byte

const (
	RequestDisconnect RequestCode = 0x00
	RequestSetConfig  RequestCode = 0x01
	RequestGetConfig  RequestCode = 0x02
	RequestRemoveData RequestCode = 0x04
	RequestGetData    RequestCode = 0x08
)

func (c RequestCode) String() string {
	if info, ok := dispatchTable[c]; ok {
		return info.Name
	}
	return fmt.Sprintf("UNKNOWN(0x%02x)", byte(c))
}

// ResponseCode is a one-byte server reply.
type ResponseCode byte

const (
	ResponseAccept       ResponseCode = 0x02
	ResponseFail         ResponseCode = 0x03
	ResponseInvalid      ResponseCode = 0x04
	ResponseNoPermission ResponseCode = 0x05
	ResponseSuccess      ResponseCode = 0x06
)

func (c ResponseCode) String() string {
	switch c {
	case ResponseAccept:
		return "ACCEPT"
	case ResponseFail:
		return "FAIL"
	case ResponseInvalid:
		return "INVALID"
	case ResponseNoPermission:
		return "NO_PERMISSION"
	case ResponseSuccess:
		return "SUCCESS"
	default:
		return fmt.Sprintf("RESPONSE(0x%02x)", byte(c))
	}
}

// GetConfig payload layout.
const (
	PeriodFieldSize       = 4
	ChannelConfigSize     = 8
	FilterConfigSize      = 16
	ConfigReportSize      = PeriodFieldSize + 3*ChannelConfigSize + FilterConfigSize
	DataSizeFieldSize     = 4
	DataSizeServerFailure = -1
)

// Strings reported by GetConfig.
const (
	ReportDisabled = "X"
	ReportError    = "ERROR"
)
