package sensor

import (
	"io"

	"github.com/marmos91/sensord/pkg/sensor"
)

// ConfigReport is the GetConfig payload in decoded form.
type ConfigReport struct {
	Period      int32
	Temperature string
	Humidity    string
	Pressure    string
	Filter      string
}

// ReportFromSettings formats a settings snapshot the way GetConfig reports it.
func ReportFromSettings(s sensor.Settings) ConfigReport {
	return ConfigReport{
		Period:      s.PeriodSeconds,
		Temperature: oversamplingString(s, sensor.ChannelTemperature, s.TemperatureOversampling),
		Humidity:    oversamplingString(s, sensor.ChannelHumidity, s.HumidityOversampling),
		Pressure:    oversamplingString(s, sensor.ChannelPressure, s.PressureOversampling),
		Filter:      filterString(s),
	}
}

func oversamplingString(s sensor.Settings, c sensor.Channel, o sensor.Oversampling) string {
	if !s.IsEnabled(c) {
		return ReportDisabled
	}
	switch o {
	case sensor.OversamplingOff:
		return "OS_OFF"
	case sensor.Oversampling1x:
		return "OS_1X"
	case sensor.Oversampling2x:
		return "OS_2X"
	case sensor.Oversampling4x:
		return "OS_4X"
	case sensor.Oversampling8x:
		return "OS_8X"
	case sensor.Oversampling16x:
		return "OS_16X"
	default:
		return ReportError
	}
}

func filterString(s sensor.Settings) string {
	if !s.IsEnabled(sensor.ChannelFilter) {
		return ReportDisabled
	}
	switch s.Filter {
	case sensor.FilterOff:
		return "COEFF_OFF"
	case sensor.Filter2:
		return "COEFF_2"
	case sensor.Filter4:
		return "COEFF_4"
	case sensor.Filter8:
		return "COEFF_8"
	case sensor.Filter16:
		return "COEFF_16"
	default:
		return ReportError
	}
}

// Encode renders the report in wire layout: period, three 8-byte strings
// (temperature, humidity, pressure) and a 16-byte filter string.
func (r ConfigReport) Encode() []byte {
	buf := make([]byte, ConfigReportSize)
	wireOrder.PutUint32(buf[0:PeriodFieldSize], uint32(r.Period))

	off := PeriodFieldSize
	for _, s := range []string{r.Temperature, r.Humidity, r.Pressure} {
		EncodeFixedString(buf[off:off+ChannelConfigSize], s)
		off += ChannelConfigSize
	}
	EncodeFixedString(buf[off:off+FilterConfigSize], r.Filter)

	return buf
}

// ReadConfigReport reads a full GetConfig payload.
func ReadConfigReport(rd io.Reader) (ConfigReport, error) {
	buf := make([]byte, ConfigReportSize)
	if _, err := io.ReadFull(rd, buf); err != nil {
		return ConfigReport{}, err
	}

	off := PeriodFieldSize
	next := func(n int) string {
		s := DecodeFixedString(buf[off : off+n])
		off += n
		return s
	}

	return ConfigReport{
		Period:      int32(wireOrder.Uint32(buf[0:PeriodFieldSize])),
		Temperature: next(ChannelConfigSize),
		Humidity:    next(ChannelConfigSize),
		Pressure:    next(ChannelConfigSize),
		Filter:      next(FilterConfigSize),
	}, nil
}
