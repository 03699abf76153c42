package sensor

import (
	"fmt"

	"github.com/marmos91/sensord/pkg/sensor"
	"github.com/marmos91/sensord/pkg/settings"
)

// Selector is the one-byte SetConfig payload:
//
//	bits [2:0] type, bit [3] status (1 = on), bits [7:4] value code
//
// A Period selector is followed by a 4-byte signed period in seconds and its
// value bits are ignored, as are the value bits of any selector with status off.
type Selector byte

const (
	selectorTypeMask   = 0x07
	selectorStatusMask = 0x08
	selectorValueMask  = 0xF0
	selectorValueShift = 4
)

// ConfigType is the selector's target field. Zero is reserved and invalid.
type ConfigType uint8

const (
	ConfigPeriod      ConfigType = 1
	ConfigFilter      ConfigType = 2
	ConfigHumidity    ConfigType = 3
	ConfigPressure    ConfigType = 4
	ConfigTemperature ConfigType = 5
)

func (t ConfigType) String() string {
	switch t {
	case ConfigPeriod:
		return "PRD"
	case ConfigFilter:
		return "IIR"
	case ConfigHumidity:
		return "HUM"
	case ConfigPressure:
		return "PRS"
	case ConfigTemperature:
		return "TMP"
	default:
		return fmt.Sprintf("TYPE(%d)", uint8(t))
	}
}

// ParseConfigType accepts the client's short names (TMP, PRS, HUM, IIR, PRD).
func ParseConfigType(s string) (ConfigType, error) {
	for t := ConfigPeriod; t <= ConfigTemperature; t++ {
		if s == t.String() {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown config type %q", s)
}

// NewSelector builds a selector; value is the raw code (0-15), not pre-shifted.
func NewSelector(t ConfigType, on bool, value uint8) Selector {
	b := byte(t) & selectorTypeMask
	if on {
		b |= selectorStatusMask
	}
	b |= (value << selectorValueShift) & selectorValueMask
	return Selector(b)
}

func (s Selector) Type() ConfigType {
	return ConfigType(byte(s) & selectorTypeMask)
}

func (s Selector) On() bool {
	return byte(s)&selectorStatusMask != 0
}

// Value returns the code in the high nibble, shifted down.
func (s Selector) Value() uint8 {
	return (byte(s) & selectorValueMask) >> selectorValueShift
}

func (s Selector) String() string {
	status := "OFF"
	if s.On() {
		status = "ON"
	}
	return fmt.Sprintf("%s/%s/%d", s.Type(), status, s.Value())
}

// Update converts the selector (and period, for Period selectors) into a
// settings update. Unknown types produce a field that settings.State rejects
// with ErrInvalidType.
func (s Selector) Update(period int32) settings.Update {
	u := settings.Update{
		Enable: s.On(),
		Value:  s.Value(),
	}

	switch s.Type() {
	case ConfigPeriod:
		u.Field = settings.FieldPeriod
		u.Period = period
	case ConfigFilter:
		u.Field = settings.FieldFilter
	case ConfigHumidity:
		u.Field = settings.FieldHumidity
	case ConfigPressure:
		u.Field = settings.FieldPressure
	case ConfigTemperature:
		u.Field = settings.FieldTemperature
	}

	return u
}

// ParseValue interprets a client value token for a type: "OFF", "1X"..."16X"
// for oversampling fields and "OFF", "2", "4", "8", "16" for the filter.
func ParseValue(t ConfigType, token string) (uint8, error) {
	switch t {
	case ConfigFilter:
		f, err := sensor.ParseFilterCoefficient(token)
		return uint8(f), err
	case ConfigHumidity, ConfigPressure, ConfigTemperature:
		o, err := sensor.ParseOversampling(token)
		return uint8(o), err
	default:
		return 0, fmt.Errorf("type %s takes no value code", t)
	}
}
