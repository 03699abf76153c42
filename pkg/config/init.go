package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

const configHeader = `# sensord Configuration File
#
# Every key can be overridden by an environment variable with the SENSORD_
# prefix, dots replaced by underscores (e.g. SENSORD_LOGGING_LEVEL=DEBUG).
`

// sectionComments are attached above the top-level keys of the generated file.
var sectionComments = map[string]string{
	"logging":        "Log output: level (DEBUG, INFO, WARN, ERROR), format (text, json), output (stdout, stderr, path)",
	"server":         "Process-wide settings and the Prometheus endpoint",
	"sensor":         "Sensor driver and factory settings (oversampling: off, 1x, 2x, 4x, 8x, 16x; filter: off, 2, 4, 8, 16)\nA snapshot saved in the settings store takes precedence at startup",
	"data":           "Measurement data file (12-byte records)",
	"settings_store": "Settings persistence: memory (lost on restart) or badger",
	"archive":        "Periodic upload of the data file to S3 or an S3-compatible store",
	"users":          "Accounts: group is guest (read only) or confidential (read and write)",
	"adapters":       "Protocol adapters",
}

// InitConfig writes the default configuration to the default location and
// returns its path. An existing file is only replaced when force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes the default configuration to path, creating parent
// directories as needed.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	// 0600: the file holds user passwords
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// generateYAMLWithComments renders cfg with its mapstructure key names, so
// the output is exactly what Load reads back.
func generateYAMLWithComments(cfg *Config) (string, error) {
	var doc yaml.Node
	if err := doc.Encode(toYAMLValue(cfg)); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}

	// doc is a mapping node: keys at even positions
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key := doc.Content[i]
		if comment, ok := sectionComments[key.Value]; ok {
			key.HeadComment = comment
		}
	}

	var buf bytes.Buffer
	buf.WriteString(configHeader)
	buf.WriteString("\n")

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}

	return buf.String(), nil
}

// toYAMLValue converts structs to maps keyed by their mapstructure tags and
// durations to their string form ("30s").
func toYAMLValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case time.Duration:
		return x.String()
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = toYAMLValue(e)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return nil
		}
		return toYAMLValue(rv.Elem().Interface())
	case reflect.Struct:
		var m map[string]any
		if err := mapstructure.Decode(v, &m); err != nil {
			return v
		}
		return toYAMLValue(m)
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.String {
			return v
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = toYAMLValue(rv.Index(i).Interface())
		}
		return out
	}
	return v
}
