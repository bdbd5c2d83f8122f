package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/poisvin/tusk/internal/domain"
)

// Config models tusk.yml.
type Config struct {
	Defaults struct {
		Priority string `yaml:"priority"`
		Category string `yaml:"category"`
	} `yaml:"defaults"`
	Sweep struct {
		// Schedule is a cron expression for the daily carry-over sweep
		// run by `tusk serve`.
		Schedule string `yaml:"schedule"`
	} `yaml:"sweep"`
	Server struct {
		Addr      string `yaml:"addr"`
		BasePath  string `yaml:"base_path"`
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"server"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Defaults.Priority != "" {
		if _, err := domain.ParsePriority(c.Defaults.Priority); err != nil {
			return fmt.Errorf("config.defaults.priority: %w", err)
		}
	}
	if c.Defaults.Category != "" {
		if _, err := domain.ParseCategory(c.Defaults.Category); err != nil {
			return fmt.Errorf("config.defaults.category: %w", err)
		}
	}
	if c.Sweep.Schedule == "" {
		return fmt.Errorf("config.sweep.schedule is required")
	}
	return nil
}

// DefaultPriority returns the configured default task priority.
func (c *Config) DefaultPriority() domain.Priority {
	if c != nil && c.Defaults.Priority != "" {
		return domain.Priority(c.Defaults.Priority)
	}
	return domain.PriorityMedium
}

// DefaultCategory returns the configured default task category.
func (c *Config) DefaultCategory() domain.Category {
	if c != nil && c.Defaults.Category != "" {
		return domain.Category(c.Defaults.Category)
	}
	return domain.CategoryPersonal
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "tusk.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if no file exists.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

const defaultTemplate = `defaults:
  priority: medium
  category: personal

sweep:
  schedule: "5 0 * * *"

server:
  addr: 127.0.0.1:8080
  base_path: /v1
`
