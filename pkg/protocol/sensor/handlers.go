package sensor

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/marmos91/sensord/internal/logger"
	"github.com/marmos91/sensord/pkg/settings"
)

// handleDisconnect ends the session. The envelope Accept is the only reply.
func handleDisconnect(hc *HandlerContext, rw io.ReadWriter, res *Result) error {
	logger.Info("[%s] %s requested disconnect", hc.SessionID, hc.User.Name)
	res.Stop = true
	return nil
}

// handleSetConfig reads a selector (plus a period for Period selectors),
// applies it and replies Success, Fail or Invalid.
func handleSetConfig(hc *HandlerContext, rw io.ReadWriter, res *Result) error {
	b, err := ReadByte(rw)
	if err != nil {
		return fmt.Errorf("read selector: %w", err)
	}
	sel := Selector(b)

	var period int32
	if sel.Type() == ConfigPeriod {
		if period, err = ReadInt32(rw); err != nil {
			return fmt.Errorf("read period: %w", err)
		}
	}

	err = hc.Settings.Apply(hc.Context, sel.Update(period))
	switch {
	case err == nil:
		res.Response = ResponseSuccess
		logger.Info("[%s] %s set %s (period=%d)", hc.SessionID, hc.User.Name, sel, period)
	case errors.Is(err, settings.ErrInvalidType):
		res.Response = ResponseInvalid
	default:
		res.Response = ResponseFail
	}

	if err != nil {
		res.Err = err
		logger.Warn("[%s] %s set %s rejected: %v", hc.SessionID, hc.User.Name, sel, err)
	}

	if err := WriteByte(rw, byte(res.Response)); err != nil {
		return fmt.Errorf("send status: %w", err)
	}
	return nil
}

// handleGetConfig sends the fixed-size settings report. The lock is released
// before any socket write.
func handleGetConfig(hc *HandlerContext, rw io.ReadWriter, res *Result) error {
	payload := ReportFromSettings(hc.Settings.Snapshot()).Encode()

	n, err := rw.Write(payload)
	res.BytesSent += int64(n)
	if err != nil {
		return fmt.Errorf("send config report: %w", err)
	}
	return nil
}

// handleRemoveData truncates the data store and replies Success or Fail.
func handleRemoveData(hc *HandlerContext, rw io.ReadWriter, res *Result) error {
	res.Response = ResponseSuccess
	if err := hc.Data.Truncate(); err != nil {
		res.Response = ResponseFail
		res.Err = err
		logger.Error("[%s] Failed to remove data: %v", hc.SessionID, err)
	} else {
		logger.Info("[%s] %s removed measurement data", hc.SessionID, hc.User.Name)
	}

	if err := WriteByte(rw, byte(res.Response)); err != nil {
		return fmt.Errorf("send status: %w", err)
	}
	return nil
}

// handleGetData sends the data size followed by the raw records, all while
// the store is locked against truncation and appends.
//
// If the size cannot be determined the header carries DataSizeServerFailure
// and no body follows. A failure after the header was sent cannot be
// signalled in-band and aborts the connection.
func handleGetData(hc *HandlerContext, rw io.ReadWriter, res *Result) error {
	headerSent := false

	err := hc.Data.Transfer(func(size int64, body io.Reader) error {
		if size > math.MaxInt32 {
			return fmt.Errorf("data file too large for transfer: %d bytes", size)
		}

		headerSent = true
		if err := WriteInt32(rw, int32(size)); err != nil {
			return fmt.Errorf("send data size: %w", err)
		}

		if size == 0 {
			return nil
		}

		n, err := io.Copy(rw, body)
		res.BytesSent += n
		if err != nil {
			return fmt.Errorf("stream data: %w", err)
		}
		if n != size {
			return fmt.Errorf("stream data: sent %d of %d bytes", n, size)
		}
		return nil
	})

	if err == nil {
		return nil
	}
	if headerSent {
		return err
	}

	res.Err = err
	logger.Error("[%s] Failed to read data size: %v", hc.SessionID, err)
	if werr := WriteInt32(rw, DataSizeServerFailure); werr != nil {
		return fmt.Errorf("send data size: %w", werr)
	}
	return nil
}
