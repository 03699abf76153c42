package config

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/marmos91/sensord/internal/logger"
	"github.com/spf13/viper"
)

// Watch re-reads configPath whenever it changes and passes the new,
// validated configuration to onChange. An invalid edit is logged and
// ignored. The watcher runs for the rest of the process lifetime.
//
// Only settings that are safe to change at runtime should be acted upon by
// onChange; sensord uses it for the logging section.
func Watch(configPath string, onChange func(*Config)) error {
	v := viper.New()
	setupViper(v, configPath)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file for watching: %w", err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		cfg, err := decode(v)
		if err != nil {
			logger.Warn("Ignoring config change in %s: %v", e.Name, err)
			return
		}

		logger.Info("Config file %s changed", e.Name)
		onChange(cfg)
	})
	v.WatchConfig()

	return nil
}
