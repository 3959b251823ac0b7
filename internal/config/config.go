// Package config loads the subsystem configuration from a YAML file and
// applies defaults for unset fields.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

type Config struct {
	// Paths contains data directories for the key store. Currently only
	// the first path is used.
	Paths []string `yaml:"paths"`

	// MinimumFreeGB is a free-space threshold checked when the store opens.
	MinimumFreeGB int `yaml:"minimumFreeGB"`

	// DeriveWorkers bounds concurrent key derivations. 0 means one per CPU.
	DeriveWorkers int `yaml:"deriveWorkers"`

	// DefaultIterations is the PBKDF2 iteration count for new keys.
	DefaultIterations int `yaml:"defaultIterations"`

	// LogLevel is a logrus level name (debug, info, warn, error).
	LogLevel string `yaml:"logLevel"`
}

// Load reads a YAML config file. An empty path yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		var config Config
		config.applyDefaults()
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	config.applyDefaults()
	return config, nil
}

func (c *Config) applyDefaults() {
	if len(c.Paths) == 0 {
		c.Paths = []string{"./docsafe-data"}
	}

	if c.DefaultIterations == 0 {
		c.DefaultIterations = 500000
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
