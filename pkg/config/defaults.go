package config

import (
	"strings"
	"time"

	sensorAdapter "github.com/marmos91/sensord/pkg/adapter/sensor"
	"github.com/marmos91/sensord/pkg/auth"
	"github.com/marmos91/sensord/pkg/sensor"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Store-specific defaults are handled by store implementations
//
// sensor.initial_period is the exception: 0 is a meaningful value (paused),
// so its default is registered with viper in setupViper instead.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applySensorDefaults(&cfg.Sensor)
	applyDataDefaults(&cfg.Data)
	applySettingsStoreDefaults(&cfg.SettingsStore)
	applyArchiveDefaults(&cfg.Archive)

	if len(cfg.Users) == 0 {
		cfg.Users = defaultUsers()
	}
	for i := range cfg.Users {
		cfg.Users[i].Group = strings.ToLower(cfg.Users[i].Group)
	}

	applyAdaptersDefaults(&cfg.Adapters)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
}

// applySensorDefaults fills the factory configuration from
// sensor.DefaultSettings so the two never drift apart.
func applySensorDefaults(cfg *SensorConfig) {
	def := sensor.DefaultSettings()

	if cfg.Driver == "" {
		cfg.Driver = "simulated"
	}
	if cfg.Temperature == "" {
		cfg.Temperature = def.TemperatureOversampling.String()
	}
	if cfg.Humidity == "" {
		cfg.Humidity = def.HumidityOversampling.String()
	}
	if cfg.Pressure == "" {
		cfg.Pressure = def.PressureOversampling.String()
	}
	if cfg.Filter == "" {
		cfg.Filter = def.Filter.String()
	}
	if cfg.Enabled == nil {
		cfg.Enabled = channelNames(def.Enabled)
	}
	if cfg.Simulated == nil {
		cfg.Simulated = make(map[string]any)
	}
}

func applyDataDefaults(cfg *DataConfig) {
	if cfg.Path == "" {
		cfg.Path = "./meas_data"
	}
}

func applySettingsStoreDefaults(cfg *SettingsStoreConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if _, ok := cfg.Badger["db_path"]; !ok {
		cfg.Badger["db_path"] = "./sensord-settings"
	}
}

func applyArchiveDefaults(cfg *ArchiveConfig) {
	if cfg.Interval == 0 {
		cfg.Interval = time.Hour
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}
	if _, ok := cfg.S3["region"]; !ok {
		cfg.S3["region"] = "us-east-1"
	}
}

// applyAdaptersDefaults enables the sensor adapter when it looks
// unconfigured (no port set), then fills its defaults.
func applyAdaptersDefaults(cfg *AdaptersConfig) {
	if !cfg.Sensor.Enabled && cfg.Sensor.Port == 0 {
		cfg.Sensor.Enabled = true
	}

	applySensorAdapterDefaults(&cfg.Sensor)
}

func applySensorAdapterDefaults(cfg *sensorAdapter.SensorConfig) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = "::"
	}
	if cfg.Port == 0 {
		cfg.Port = 2233
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = 4
	}
	if cfg.AuthTimeout == 0 {
		cfg.AuthTimeout = 30 * time.Second
	}
	if cfg.AuthFailLinger == 0 {
		cfg.AuthFailLinger = 5 * time.Second
	}
	if cfg.KeepAlivePeriod == 0 {
		cfg.KeepAlivePeriod = 30 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.MetricsLogInterval == 0 {
		cfg.MetricsLogInterval = 5 * time.Minute
	}
}

func defaultUsers() []UserConfig {
	users := auth.DefaultUsers()
	out := make([]UserConfig, len(users))
	for i, u := range users {
		out[i] = UserConfig{Name: u.Name, Password: u.Password, Group: u.Group.String()}
	}
	return out
}

func channelNames(set sensor.Channel) []string {
	names := []string{}
	for _, c := range []sensor.Channel{sensor.ChannelTemperature, sensor.ChannelHumidity, sensor.ChannelPressure, sensor.ChannelFilter} {
		if set&c != 0 {
			names = append(names, c.String())
		}
	}
	return names
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
func GetDefaultConfig() *Config {
	cfg := &Config{
		Sensor: SensorConfig{
			InitialPeriod: sensor.DefaultSettings().PeriodSeconds,
		},
		Adapters: AdaptersConfig{
			Sensor: sensorAdapter.SensorConfig{
				Enabled: true,
			},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
