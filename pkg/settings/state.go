// Package settings owns the live sensor configuration shared by the request
// handlers and the measurement loop.
//
// Every read and write goes through one exclusive lock. Readers receive value
// copies (Snapshot) so they can format responses or sleep without holding it.
// A field update and the commit to the device happen inside the same critical
// section, so no reader can observe settings the device has not accepted.
package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/sensord/internal/logger"
	"github.com/marmos91/sensord/pkg/sensor"
)

var (
	// ErrInvalidType is returned for a selector whose type is not one of the five known fields.
	ErrInvalidType = errors.New("invalid configuration type")

	// ErrInvalidValue is returned for an unknown oversampling or filter code, or a negative period.
	ErrInvalidValue = errors.New("invalid configuration value")

	// ErrCommitFailed wraps a device error raised while applying new settings.
	ErrCommitFailed = errors.New("failed to commit settings to sensor")
)

// Field identifies which part of the settings an update targets.
type Field uint8

const (
	FieldPeriod Field = iota + 1
	FieldFilter
	FieldHumidity
	FieldPressure
	FieldTemperature
)

func (f Field) String() string {
	switch f {
	case FieldPeriod:
		return "period"
	case FieldFilter:
		return "filter"
	case FieldHumidity:
		return "humidity"
	case FieldPressure:
		return "pressure"
	case FieldTemperature:
		return "temperature"
	default:
		return fmt.Sprintf("Field(%d)", uint8(f))
	}
}

// Update is a single-field change. Value is an oversampling or filter code
// depending on Field; it is ignored when Enable is false or Field is FieldPeriod.
type Update struct {
	Field  Field
	Enable bool
	Value  uint8
	Period int32
}

// Store persists snapshots across restarts. Implementations live in
// settings/memory and settings/badger.
type Store interface {
	Load(ctx context.Context) (sensor.Settings, bool, error)
	Save(ctx context.Context, s sensor.Settings) error
	Close() error
}

// State is the lock-guarded settings record.
type State struct {
	mu      sync.Mutex
	current sensor.Settings
	device  sensor.Device
	store   Store
}

// New creates the state with initial settings. The settings are not committed
// to the device until Init is called.
func New(device sensor.Device, initial sensor.Settings, store Store) *State {
	if device == nil {
		panic("settings: device cannot be nil")
	}
	return &State{
		current: initial,
		device:  device,
		store:   store,
	}
}

// Init initializes the device, restores persisted settings if any, and commits
// the resulting configuration. Errors here are fatal to startup.
func (s *State) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.device.Init(ctx); err != nil {
		return fmt.Errorf("sensor init: %w", err)
	}

	if s.store != nil {
		saved, ok, err := s.store.Load(ctx)
		if err != nil {
			return fmt.Errorf("load persisted settings: %w", err)
		}
		if ok {
			logger.Info("Restored persisted sensor settings (period=%ds)", saved.PeriodSeconds)
			s.current = saved
		}
	}

	if err := s.device.ApplySettings(s.current); err != nil {
		return fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}

	return nil
}

// Snapshot returns a copy of the current settings.
func (s *State) Snapshot() sensor.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Apply validates u, mutates the settings and commits them to the device,
// all under the lock. On a commit failure the previous settings are restored.
func (s *State) Apply(ctx context.Context, u Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := applyUpdate(s.current, u)
	if err != nil {
		return err
	}

	if err := s.device.ApplySettings(next); err != nil {
		// Put the device back in a known state; the in-memory record is untouched.
		if rerr := s.device.ApplySettings(s.current); rerr != nil {
			logger.Warn("Failed to restore sensor settings after commit error: %v", rerr)
		}
		return fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}

	s.current = next

	if s.store != nil {
		if err := s.store.Save(ctx, next); err != nil {
			logger.Warn("Failed to persist sensor settings: %v", err)
		}
	}

	return nil
}

// Measure performs one acquisition under the lock: it computes the settling
// delay, waits for it, reads a sample and returns it together with the
// settings in force when it was taken.
func (s *State) Measure(ctx context.Context) (sensor.Sample, sensor.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings := s.current
	delay := s.device.MinDelay(settings)

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return sensor.Sample{}, settings, ctx.Err()
		case <-timer.C:
		}
	}

	sample, err := s.device.ReadSample(ctx)
	if err != nil {
		return sensor.Sample{}, settings, fmt.Errorf("read sample: %w", err)
	}

	return sample, settings, nil
}

// Close releases the persistence store.
func (s *State) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}

func applyUpdate(cur sensor.Settings, u Update) (sensor.Settings, error) {
	next := cur

	switch u.Field {
	case FieldPeriod:
		if u.Period < 0 {
			return cur, fmt.Errorf("%w: period %d", ErrInvalidValue, u.Period)
		}
		next.PeriodSeconds = u.Period
		return next, nil

	case FieldFilter:
		if !u.Enable {
			next.Enabled &^= sensor.ChannelFilter
			return next, nil
		}
		coeff := sensor.FilterCoefficient(u.Value)
		if !coeff.Valid() {
			return cur, fmt.Errorf("%w: filter code %d", ErrInvalidValue, u.Value)
		}
		next.Enabled |= sensor.ChannelFilter
		next.Filter = coeff
		return next, nil

	case FieldHumidity, FieldPressure, FieldTemperature:
		channel, target := oversamplingTarget(&next, u.Field)
		if !u.Enable {
			next.Enabled &^= channel
			return next, nil
		}
		level := sensor.Oversampling(u.Value)
		if !level.Valid() {
			return cur, fmt.Errorf("%w: oversampling code %d", ErrInvalidValue, u.Value)
		}
		next.Enabled |= channel
		*target = level
		return next, nil

	default:
		return cur, fmt.Errorf("%w: %d", ErrInvalidType, uint8(u.Field))
	}
}

func oversamplingTarget(s *sensor.Settings, f Field) (sensor.Channel, *sensor.Oversampling) {
	switch f {
	case FieldHumidity:
		return sensor.ChannelHumidity, &s.HumidityOversampling
	case FieldPressure:
		return sensor.ChannelPressure, &s.PressureOversampling
	default:
		return sensor.ChannelTemperature, &s.TemperatureOversampling
	}
}
