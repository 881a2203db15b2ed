package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrConfigExists is returned by InitConfig when the target file exists and
// force is false.
var ErrConfigExists = errors.New("configuration file already exists")

const sampleHeader = `# staticd configuration file
#
# Every key can be overridden with an environment variable:
#   STATICD_<SECTION>_<KEY>, e.g. STATICD_SERVER_WORKERS=8
#
# Durations use Go syntax ("5s", "1m"); sizes accept "1KiB", "4KB" or bytes.

`

// InitConfig writes a sample configuration to the default location and
// returns its path.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	return path, InitConfigToPath(path, force)
}

// InitConfigToPath writes a sample configuration to path.
func InitConfigToPath(path string, force bool) error {
	return WriteSample(path, GetDefaultConfig(), force)
}

// WriteSample writes cfg to path with the sample header. It refuses to
// replace an existing file unless force is set.
func WriteSample(path string, cfg *Config, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s (use --force to overwrite)", ErrConfigExists, path)
		}
	}

	data, err := render(cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SampleConfig renders the defaults as commented YAML.
func SampleConfig() ([]byte, error) {
	return render(GetDefaultConfig())
}

func render(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(sampleHeader)

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("failed to marshal sample config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to marshal sample config: %w", err)
	}
	return buf.Bytes(), nil
}
