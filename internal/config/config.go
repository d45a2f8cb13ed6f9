// Package config loads and saves YAML run files.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/cwbudde/flwopt/internal/bench"
	"github.com/cwbudde/flwopt/internal/flw"
)

// Config is the root of a run file.
type Config struct {
	Optimizer flw.Config   `yaml:"optimizer"`
	Objective string       `yaml:"objective"`
	Seed      int64        `yaml:"seed"`
	Server    ServerConfig `yaml:"server"`
}

// ServerConfig holds settings for the serve command.
type ServerConfig struct {
	Addr    string `yaml:"addr"`
	DataDir string `yaml:"data_dir"`
}

// Default returns the reference run: Rastrigin in two dimensions.
func Default() *Config {
	return &Config{
		Optimizer: flw.DefaultConfig(),
		Objective: "rastrigin",
		Seed:      1,
		Server: ServerConfig{
			Addr:    ":8080",
			DataDir: "./data",
		},
	}
}

// Load loads configuration from a file. Keys missing from the file keep
// their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault returns the defaults when path is empty and loads path
// otherwise. A path that was given but cannot be read is an error.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Save saves configuration to a file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks the optimizer parameters and that the objective exists.
func (c *Config) Validate() error {
	if err := c.Optimizer.Validate(); err != nil {
		return err
	}
	if _, err := bench.Lookup(c.Objective, c.Optimizer.Dimension); err != nil {
		return fmt.Errorf("invalid objective: %w", err)
	}
	return nil
}
