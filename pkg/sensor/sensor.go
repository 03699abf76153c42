// Package sensor defines the capability interface consumed by the server to talk
// to an environmental sensor, together with the settings and sample types shared
// by every other component.
//
// The physical driver (I2C register access, calibration) is an external
// collaborator. The server only needs:
//   - Init: bring the device up once at startup
//   - ApplySettings: commit oversampling and filter settings
//   - MinDelay: settling time required before a sample is valid
//   - ReadSample: read one {temperature, humidity, pressure} tuple
package sensor

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Oversampling is the number of raw samples averaged into one reported value.
type Oversampling uint8

const (
	OversamplingOff Oversampling = iota
	Oversampling1x
	Oversampling2x
	Oversampling4x
	Oversampling8x
	Oversampling16x
)

// Valid reports whether o is one of the six defined levels.
func (o Oversampling) Valid() bool {
	return o <= Oversampling16x
}

// Factor returns the multiplier used by the settling delay formula.
func (o Oversampling) Factor() int {
	switch o {
	case Oversampling1x:
		return 1
	case Oversampling2x:
		return 2
	case Oversampling4x:
		return 4
	case Oversampling8x:
		return 8
	case Oversampling16x:
		return 16
	default:
		return 0
	}
}

func (o Oversampling) String() string {
	switch o {
	case OversamplingOff:
		return "off"
	case Oversampling1x:
		return "1x"
	case Oversampling2x:
		return "2x"
	case Oversampling4x:
		return "4x"
	case Oversampling8x:
		return "8x"
	case Oversampling16x:
		return "16x"
	default:
		return fmt.Sprintf("Oversampling(%d)", uint8(o))
	}
}

// ParseOversampling accepts "off", "1x" ... "16x" (case-insensitive).
func ParseOversampling(s string) (Oversampling, error) {
	for o := OversamplingOff; o <= Oversampling16x; o++ {
		if strings.EqualFold(s, o.String()) {
			return o, nil
		}
	}
	return 0, fmt.Errorf("unknown oversampling %q", s)
}

// FilterCoefficient is the IIR filter strength.
type FilterCoefficient uint8

const (
	FilterOff FilterCoefficient = iota
	Filter2
	Filter4
	Filter8
	Filter16
)

func (f FilterCoefficient) Valid() bool {
	return f <= Filter16
}

func (f FilterCoefficient) String() string {
	switch f {
	case FilterOff:
		return "off"
	case Filter2:
		return "2"
	case Filter4:
		return "4"
	case Filter8:
		return "8"
	case Filter16:
		return "16"
	default:
		return fmt.Sprintf("FilterCoefficient(%d)", uint8(f))
	}
}

// ParseFilterCoefficient accepts "off", "2", "4", "8", "16".
func ParseFilterCoefficient(s string) (FilterCoefficient, error) {
	for f := FilterOff; f <= Filter16; f++ {
		if strings.EqualFold(s, f.String()) {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown filter coefficient %q", s)
}

// Channel is a bit in the enabled-channel set.
type Channel uint8

const (
	ChannelTemperature Channel = 1 << iota
	ChannelHumidity
	ChannelPressure
	ChannelFilter

	AllChannels = ChannelTemperature | ChannelHumidity | ChannelPressure | ChannelFilter
)

func (c Channel) String() string {
	switch c {
	case ChannelTemperature:
		return "temperature"
	case ChannelHumidity:
		return "humidity"
	case ChannelPressure:
		return "pressure"
	case ChannelFilter:
		return "filter"
	default:
		return fmt.Sprintf("Channel(%#x)", uint8(c))
	}
}

// ParseChannel maps a configuration name to a channel bit.
func ParseChannel(s string) (Channel, error) {
	for _, c := range []Channel{ChannelTemperature, ChannelHumidity, ChannelPressure, ChannelFilter} {
		if strings.EqualFold(s, c.String()) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown channel %q", s)
}

// Settings is the complete device configuration. It is a plain value: copies
// never alias the live state held by settings.State.
type Settings struct {
	Enabled                 Channel
	TemperatureOversampling Oversampling
	HumidityOversampling    Oversampling
	PressureOversampling    Oversampling
	Filter                  FilterCoefficient
	PeriodSeconds           int32
}

// IsEnabled reports whether channel c is in the enabled set.
func (s Settings) IsEnabled(c Channel) bool {
	return s.Enabled&c != 0
}

// DefaultSettings mirrors the factory configuration of the server:
// every channel on, temperature 2x, humidity 1x, pressure 4x, filter 4, 15s period.
func DefaultSettings() Settings {
	return Settings{
		Enabled:                 AllChannels,
		TemperatureOversampling: Oversampling2x,
		HumidityOversampling:    Oversampling1x,
		PressureOversampling:    Oversampling4x,
		Filter:                  Filter4,
		PeriodSeconds:           15,
	}
}

// Sample is one reading. Disabled channels are reported as DisabledValue.
type Sample struct {
	Temperature float32
	Humidity    float32
	Pressure    float32
}

// DisabledValue marks a channel that was not measured.
const DisabledValue float32 = -1.0

// Mask replaces readings of disabled channels with DisabledValue so that
// every persisted record has the same width.
func (s Sample) Mask(settings Settings) Sample {
	if !settings.IsEnabled(ChannelTemperature) {
		s.Temperature = DisabledValue
	}
	if !settings.IsEnabled(ChannelHumidity) {
		s.Humidity = DisabledValue
	}
	if !settings.IsEnabled(ChannelPressure) {
		s.Pressure = DisabledValue
	}
	return s
}

// Device is the capability interface of the physical sensor.
//
// Implementations are not required to be safe for concurrent use: the server
// serializes every call through the settings lock.
type Device interface {
	Init(ctx context.Context) error
	ApplySettings(s Settings) error
	MinDelay(s Settings) time.Duration
	ReadSample(ctx context.Context) (Sample, error)
}

// MeasurementDelay computes the maximum measurement time of a BME280 for the
// given settings: 1.25ms + 2.3ms*osr_t + (2.3ms*osr_p + 0.575ms) + (2.3ms*osr_h + 0.575ms).
// Disabled channels contribute nothing.
func MeasurementDelay(s Settings) time.Duration {
	us := 1250

	if s.IsEnabled(ChannelTemperature) {
		us += 2300 * s.TemperatureOversampling.Factor()
	}
	if s.IsEnabled(ChannelPressure) && s.PressureOversampling != OversamplingOff {
		us += 2300*s.PressureOversampling.Factor() + 575
	}
	if s.IsEnabled(ChannelHumidity) && s.HumidityOversampling != OversamplingOff {
		us += 2300*s.HumidityOversampling.Factor() + 575
	}

	// Round up to whole milliseconds like the vendor driver.
	ms := (us + 999) / 1000
	return time.Duration(ms) * time.Millisecond
}
