package config

import (
	"context"
	"fmt"

	"github.com/marmos91/sensord/internal/logger"
	"github.com/marmos91/sensord/pkg/datastore"
	"github.com/marmos91/sensord/pkg/registry"
	"github.com/marmos91/sensord/pkg/settings"
)

// InitializeRegistry creates a fully configured Registry from the provided configuration.
//
// This function orchestrates the startup sequence:
//  1. Builds the user table from cfg.Users
//  2. Creates the sensor driver and the settings store
//  3. Initializes the device and commits the initial settings (a persisted
//     snapshot takes precedence over cfg.Sensor)
//  4. Creates the data store (the file is opened lazily on first append)
//
// Any failure here is a startup error: the process must not serve clients
// with an uninitialized sensor.
func InitializeRegistry(ctx context.Context, cfg *Config) (*registry.Registry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is nil")
	}

	logger.Debug("Initializing registry from configuration")

	users, err := CreateUserTable(cfg.Users)
	if err != nil {
		return nil, fmt.Errorf("failed to build user table: %w", err)
	}
	logger.Debug("Registered %d user(s)", users.Len())

	initial, err := cfg.Sensor.Settings()
	if err != nil {
		return nil, fmt.Errorf("invalid sensor settings: %w", err)
	}

	device, err := CreateDevice(&cfg.Sensor)
	if err != nil {
		return nil, err
	}

	store, err := CreateSettingsStore(ctx, &cfg.SettingsStore)
	if err != nil {
		return nil, err
	}

	state := settings.New(device, initial, store)
	if err := state.Init(ctx); err != nil {
		_ = state.Close()
		return nil, fmt.Errorf("failed to initialize sensor: %w", err)
	}
	logger.Info("Sensor initialized (driver: %s, period: %ds)", cfg.Sensor.Driver, state.Snapshot().PeriodSeconds)

	data := datastore.New(cfg.Data.Path)

	reg, err := registry.NewRegistry(users, state, data)
	if err != nil {
		_ = state.Close()
		return nil, err
	}

	return reg, nil
}
