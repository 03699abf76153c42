package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sensorAdapter "github.com/marmos91/sensord/pkg/adapter/sensor"
	"github.com/marmos91/sensord/pkg/sensor"
	"github.com/spf13/viper"
)

// Config represents the complete sensord configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (SENSORD_*)
//  2. Configuration file (YAML)
//  3. Default values
//
// Store Configuration Pattern:
// Pluggable components (settings store, sensor driver, archive target) carry a
// Type/Driver selector plus a map[string]any section per implementation. Only
// the section matching the selected type is decoded, by the factory for that
// type.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains process-wide settings
	Server ServerConfig `mapstructure:"server"`

	// Sensor selects the device driver and its factory settings
	Sensor SensorConfig `mapstructure:"sensor"`

	// Data locates the measurement data file
	Data DataConfig `mapstructure:"data"`

	// SettingsStore persists the live sensor settings across restarts
	SettingsStore SettingsStoreConfig `mapstructure:"settings_store"`

	// Archive periodically uploads the data file to S3
	Archive ArchiveConfig `mapstructure:"archive"`

	// Users is the static account table
	Users []UserConfig `mapstructure:"users" validate:"dive"`

	// Adapters contains protocol adapter configurations
	Adapters AdaptersConfig `mapstructure:"adapters"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// ServerConfig contains process-wide settings.
type ServerConfig struct {
	// ShutdownTimeout bounds the whole shutdown sequence
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig configures the metrics HTTP server.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
	Port    int    `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
}

// SensorConfig selects the device and its factory configuration. These
// values seed the live settings at startup unless a persisted snapshot
// exists in the settings store.
type SensorConfig struct {
	// Driver selects the device implementation
	// Valid values: simulated
	Driver string `mapstructure:"driver" validate:"required,oneof=simulated"`

	// InitialPeriod is the measurement period in seconds. 0 starts paused.
	InitialPeriod int32 `mapstructure:"initial_period" validate:"min=0"`

	// Oversampling per channel: off, 1x, 2x, 4x, 8x, 16x
	Temperature string `mapstructure:"temperature" validate:"required"`
	Humidity    string `mapstructure:"humidity" validate:"required"`
	Pressure    string `mapstructure:"pressure" validate:"required"`

	// Filter is the IIR coefficient: off, 2, 4, 8, 16
	Filter string `mapstructure:"filter" validate:"required"`

	// Enabled lists the active channels: temperature, humidity, pressure, filter
	Enabled []string `mapstructure:"enabled"`

	// Simulated contains simulated-driver configuration
	// Only used when Driver = "simulated"
	Simulated map[string]any `mapstructure:"simulated"`
}

// DataConfig locates the measurement data file.
type DataConfig struct {
	// Path of the append-only record file
	Path string `mapstructure:"path" validate:"required"`
}

// SettingsStoreConfig specifies where the live settings are persisted.
type SettingsStoreConfig struct {
	// Type specifies which store implementation to use
	// Valid values: memory, badger
	Type string `mapstructure:"type" validate:"required,oneof=memory badger"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger"`
}

// ArchiveConfig configures the S3 archiver.
type ArchiveConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Interval between uploads
	Interval time.Duration `mapstructure:"interval" validate:"min=0"`

	// Bucket is the destination bucket (required when enabled)
	Bucket string `mapstructure:"bucket"`

	// KeyPrefix is prepended to every object key
	KeyPrefix string `mapstructure:"key_prefix"`

	// S3 contains connection options: region, endpoint, access_key_id,
	// secret_access_key, max_retries
	S3 map[string]any `mapstructure:"s3"`
}

// UserConfig is one account.
type UserConfig struct {
	Name     string `mapstructure:"name" validate:"required,max=31"`
	Password string `mapstructure:"password" validate:"max=31"`

	// Group is the permission level
	// Valid values: guest, confidential
	Group string `mapstructure:"group" validate:"required,oneof=guest confidential"`
}

// AdaptersConfig contains all protocol adapter configurations.
type AdaptersConfig struct {
	// Sensor contains the sensor protocol configuration.
	// Uses the sensorAdapter.SensorConfig type directly to avoid duplication.
	Sensor sensorAdapter.SensorConfig `mapstructure:"sensor"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	return decode(v)
}

// decode unmarshals, defaults and validates the current viper state.
func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: SENSORD_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("SENSORD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Zero is a valid period, so this default cannot live in ApplyDefaults
	v.SetDefault("sensor.initial_period", sensor.DefaultSettings().PeriodSeconds)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		// An explicit path that does not exist is reported by the os layer
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "sensord")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "sensord")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
