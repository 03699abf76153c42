// Package badger persists sensor settings in an embedded BadgerDB so that a
// SetConfig survives a server restart.
package badger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/sensord/pkg/sensor"
)

// settingsKey is the single key holding the current snapshot.
var settingsKey = []byte("settings:current")

// BadgerSettingsStoreConfig is decoded from the settings_store.badger section.
type BadgerSettingsStoreConfig struct {
	// DBPath is the directory where BadgerDB keeps its files
	DBPath string `mapstructure:"db_path"`

	// InMemory runs Badger without touching disk (tests)
	InMemory bool `mapstructure:"in_memory"`
}

type BadgerSettingsStore struct {
	db *badger.DB
}

// settingsData is the serialized form. JSON keeps the record readable with
// badger's CLI tools and tolerant to added fields.
type settingsData struct {
	Enabled                 uint8 `json:"enabled"`
	TemperatureOversampling uint8 `json:"temperature_oversampling"`
	HumidityOversampling    uint8 `json:"humidity_oversampling"`
	PressureOversampling    uint8 `json:"pressure_oversampling"`
	Filter                  uint8 `json:"filter"`
	PeriodSeconds           int32 `json:"period_seconds"`
}

func NewBadgerSettingsStore(ctx context.Context, config BadgerSettingsStoreConfig) (*BadgerSettingsStore, error) {
	if config.DBPath == "" && !config.InMemory {
		return nil, fmt.Errorf("badger settings store: db_path is required")
	}

	opts := badger.DefaultOptions(config.DBPath)
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithCompression(options.None)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", config.DBPath, err)
	}

	return &BadgerSettingsStore{db: db}, nil
}

func (s *BadgerSettingsStore) Load(ctx context.Context) (sensor.Settings, bool, error) {
	if err := ctx.Err(); err != nil {
		return sensor.Settings{}, false, err
	}

	var (
		data  settingsData
		found bool
	)

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(settingsKey)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get settings: %w", err)
		}

		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &data)
		})
	})
	if err != nil {
		return sensor.Settings{}, false, err
	}
	if !found {
		return sensor.Settings{}, false, nil
	}

	return sensor.Settings{
		Enabled:                 sensor.Channel(data.Enabled),
		TemperatureOversampling: sensor.Oversampling(data.TemperatureOversampling),
		HumidityOversampling:    sensor.Oversampling(data.HumidityOversampling),
		PressureOversampling:    sensor.Oversampling(data.PressureOversampling),
		Filter:                  sensor.FilterCoefficient(data.Filter),
		PeriodSeconds:           data.PeriodSeconds,
	}, true, nil
}

func (s *BadgerSettingsStore) Save(ctx context.Context, settings sensor.Settings) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	val, err := json.Marshal(settingsData{
		Enabled:                 uint8(settings.Enabled),
		TemperatureOversampling: uint8(settings.TemperatureOversampling),
		HumidityOversampling:    uint8(settings.HumidityOversampling),
		PressureOversampling:    uint8(settings.PressureOversampling),
		Filter:                  uint8(settings.Filter),
		PeriodSeconds:           settings.PeriodSeconds,
	})
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(settingsKey, val)
	})
}

func (s *BadgerSettingsStore) Close() error {
	return s.db.Close()
}
