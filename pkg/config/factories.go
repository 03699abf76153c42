package config

import (
	"context"
	"fmt"

	"github.com/marmos91/sensord/internal/logger"
	"github.com/marmos91/sensord/pkg/archive"
	"github.com/marmos91/sensord/pkg/auth"
	"github.com/marmos91/sensord/pkg/datastore"
	"github.com/marmos91/sensord/pkg/metrics"
	"github.com/marmos91/sensord/pkg/sensor"
	"github.com/marmos91/sensord/pkg/sensor/simulated"
	"github.com/marmos91/sensord/pkg/settings"
	"github.com/marmos91/sensord/pkg/settings/badger"
	"github.com/marmos91/sensord/pkg/settings/memory"
	"github.com/mitchellh/mapstructure"
)

// CreateSettingsStore creates a settings persistence store based on configuration.
//
// Supported types:
//   - "memory": Uses pkg/settings/memory (lost on restart)
//   - "badger": Uses pkg/settings/badger (BadgerDB, persistent)
func CreateSettingsStore(ctx context.Context, cfg *SettingsStoreConfig) (settings.Store, error) {
	switch cfg.Type {
	case "memory":
		return memory.NewMemorySettingsStore(), nil
	case "badger":
		return createBadgerSettingsStore(ctx, cfg.Badger)
	default:
		return nil, fmt.Errorf("unknown settings store type: %q (supported: memory, badger)", cfg.Type)
	}
}

// createBadgerSettingsStore creates a BadgerDB-based persistent settings store.
func createBadgerSettingsStore(ctx context.Context, options map[string]any) (settings.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var storeCfg badger.BadgerSettingsStoreConfig
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode badger settings store options: %w", err)
	}

	if storeCfg.DBPath == "" && !storeCfg.InMemory {
		return nil, fmt.Errorf("badger settings store: db_path is required")
	}

	store, err := badger.NewBadgerSettingsStore(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create badger settings store: %w", err)
	}

	logger.Info("Badger settings store opened at %s", storeCfg.DBPath)
	return store, nil
}

// CreateDevice creates the sensor driver based on configuration.
//
// Supported drivers:
//   - "simulated": Uses pkg/sensor/simulated
func CreateDevice(cfg *SensorConfig) (sensor.Device, error) {
	switch cfg.Driver {
	case "simulated":
		var simCfg simulated.Config
		if err := decodeOptions(cfg.Simulated, &simCfg); err != nil {
			return nil, fmt.Errorf("failed to decode simulated sensor options: %w", err)
		}
		return simulated.New(simCfg), nil
	default:
		return nil, fmt.Errorf("unknown sensor driver: %q (supported: simulated)", cfg.Driver)
	}
}

// CreateUserTable builds the authentication table.
func CreateUserTable(users []UserConfig) (*auth.Table, error) {
	entries := make([]auth.User, 0, len(users))
	for i, u := range users {
		group, err := auth.ParseGroup(u.Group)
		if err != nil {
			return nil, fmt.Errorf("users[%d]: %w", i, err)
		}
		entries = append(entries, auth.User{Name: u.Name, Password: u.Password, Group: group})
	}
	return auth.New(entries)
}

// CreateArchiver creates the S3 archiver for data. Returns nil when the
// archive is disabled.
func CreateArchiver(ctx context.Context, cfg *ArchiveConfig, data *datastore.Store, m metrics.ArchiveMetrics) (*archive.Archiver, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	var opts archive.S3Options
	if err := decodeOptions(cfg.S3, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode archive S3 options: %w", err)
	}

	client, err := archive.NewS3Client(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	arch, err := archive.New(archive.Config{
		Client:    client,
		Bucket:    cfg.Bucket,
		KeyPrefix: cfg.KeyPrefix,
		Interval:  cfg.Interval,
	}, data, m)
	if err != nil {
		return nil, fmt.Errorf("failed to create archiver: %w", err)
	}

	logger.Info("S3 archive initialized: bucket=%s, region=%s, prefix=%s", cfg.Bucket, opts.Region, cfg.KeyPrefix)
	return arch, nil
}

// decodeOptions decodes a type-specific options section, accepting duration
// strings like "30s" and weakly typed scalars from environment overrides.
func decodeOptions(options map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	return decoder.Decode(options)
}
