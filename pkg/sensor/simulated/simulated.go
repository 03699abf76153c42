// Package simulated provides a sensor.Device that produces plausible indoor
// readings without hardware. It is the default driver and the one used in tests.
package simulated

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/marmos91/sensord/pkg/sensor"
)

// ErrNotInitialized is returned by ReadSample before Init.
var ErrNotInitialized = errors.New("simulated sensor not initialized")

// Config tunes the simulated environment.
type Config struct {
	// BaseTemperature in degrees Celsius
	BaseTemperature float64 `mapstructure:"base_temperature"`

	// BaseHumidity in %RH
	BaseHumidity float64 `mapstructure:"base_humidity"`

	// BasePressure in hPa
	BasePressure float64 `mapstructure:"base_pressure"`

	// Noise is the amplitude of the random jitter added to every reading
	Noise float64 `mapstructure:"noise"`

	// Seed makes the jitter reproducible. Zero uses the current time.
	Seed int64 `mapstructure:"seed"`
}

func (c *Config) applyDefaults() {
	if c.BaseTemperature == 0 {
		c.BaseTemperature = 22.5
	}
	if c.BaseHumidity == 0 {
		c.BaseHumidity = 45
	}
	if c.BasePressure == 0 {
		c.BasePressure = 1013.25
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
}

// Device is a simulated BME280.
type Device struct {
	mu       sync.Mutex
	config   Config
	rng      *rand.Rand
	ready    bool
	settings sensor.Settings
	reads    int

	// Fault injection hooks, nil in production.
	InitErr  error
	ApplyErr error
	ReadErr  error
}

var _ sensor.Device = (*Device)(nil)

func New(config Config) *Device {
	config.applyDefaults()
	return &Device{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

func (d *Device) Init(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.InitErr != nil {
		return d.InitErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	d.ready = true
	return nil
}

func (d *Device) ApplySettings(s sensor.Settings) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ApplyErr != nil {
		return d.ApplyErr
	}

	d.settings = s
	return nil
}

func (d *Device) MinDelay(s sensor.Settings) time.Duration {
	return sensor.MeasurementDelay(s)
}

// ReadSample returns a reading with oversampling-dependent noise: higher
// oversampling averages more raw samples and therefore jitters less.
func (d *Device) ReadSample(ctx context.Context) (sensor.Sample, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ReadErr != nil {
		return sensor.Sample{}, d.ReadErr
	}
	if !d.ready {
		return sensor.Sample{}, ErrNotInitialized
	}
	if err := ctx.Err(); err != nil {
		return sensor.Sample{}, err
	}

	d.reads++
	drift := math.Sin(float64(d.reads) / 20)

	return sensor.Sample{
		Temperature: float32(d.config.BaseTemperature + drift + d.jitter(d.settings.TemperatureOversampling)),
		Humidity:    float32(d.config.BaseHumidity + 2*drift + d.jitter(d.settings.HumidityOversampling)),
		Pressure:    float32(d.config.BasePressure + drift/2 + d.jitter(d.settings.PressureOversampling)),
	}, nil
}

// Settings returns the last committed settings.
func (d *Device) Settings() sensor.Settings {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settings
}

// Reads returns how many samples have been read.
func (d *Device) Reads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads
}

func (d *Device) jitter(o sensor.Oversampling) float64 {
	if d.config.Noise == 0 {
		return 0
	}
	factor := o.Factor()
	if factor == 0 {
		factor = 1
	}
	return (d.rng.Float64()*2 - 1) * d.config.Noise / math.Sqrt(float64(factor))
}
