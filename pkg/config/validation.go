package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/marmos91/sensord/pkg/sensor"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if len(cfg.Users) == 0 {
		return fmt.Errorf("users: at least one user must be configured")
	}

	names := make(map[string]bool, len(cfg.Users))
	for i, u := range cfg.Users {
		if names[u.Name] {
			return fmt.Errorf("users[%d]: duplicate user name %q", i, u.Name)
		}
		names[u.Name] = true
	}

	if !cfg.Adapters.Sensor.Enabled {
		return fmt.Errorf("adapters: at least one adapter must be enabled")
	}

	if _, err := cfg.Sensor.Settings(); err != nil {
		return fmt.Errorf("sensor: %w", err)
	}

	if cfg.Archive.Enabled && cfg.Archive.Bucket == "" {
		return fmt.Errorf("archive: bucket is required when archive is enabled")
	}

	return nil
}

// Settings converts the factory configuration to device settings.
func (c *SensorConfig) Settings() (sensor.Settings, error) {
	var s sensor.Settings
	var err error

	if s.TemperatureOversampling, err = sensor.ParseOversampling(c.Temperature); err != nil {
		return s, fmt.Errorf("temperature: %w", err)
	}
	if s.HumidityOversampling, err = sensor.ParseOversampling(c.Humidity); err != nil {
		return s, fmt.Errorf("humidity: %w", err)
	}
	if s.PressureOversampling, err = sensor.ParseOversampling(c.Pressure); err != nil {
		return s, fmt.Errorf("pressure: %w", err)
	}
	if s.Filter, err = sensor.ParseFilterCoefficient(c.Filter); err != nil {
		return s, fmt.Errorf("filter: %w", err)
	}

	for _, name := range c.Enabled {
		ch, err := sensor.ParseChannel(name)
		if err != nil {
			return s, fmt.Errorf("enabled: %w", err)
		}
		s.Enabled |= ch
	}

	if c.InitialPeriod < 0 {
		return s, fmt.Errorf("initial_period must be >= 0, got %d", c.InitialPeriod)
	}
	s.PeriodSeconds = c.InitialPeriod

	return s, nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
