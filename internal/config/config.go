// Package config loads predictivelab settings from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"predictivelab/internal/model"
	"predictivelab/internal/preset"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config holds all predictivelab configuration.
type Config struct {
	Lab     LabConfig      `yaml:"lab"`
	Store   StoreConfig    `yaml:"store"`
	Logging LoggingConfig  `yaml:"logging"`
	Presets []PresetConfig `yaml:"presets,omitempty"`
}

// LabConfig tunes the simulation host.
type LabConfig struct {
	InitialPreset string  `yaml:"initial_preset"`
	Seed          int64   `yaml:"seed"`           // 0 = time based
	FrameInterval string  `yaml:"frame_interval"` // e.g. "16ms"
	MaxDt         float64 `yaml:"max_dt"`
	FirstDt       float64 `yaml:"first_dt"`
	HistorySize   int     `yaml:"history_size"`
}

// StoreConfig selects the run store backend.
type StoreConfig struct {
	Kind string `yaml:"kind"` // memory, sqlite
	Path string `yaml:"path"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	JSON  bool   `yaml:"json"`
}

// PresetConfig declares an extra preset, or replaces a built-in by name.
type PresetConfig struct {
	Name      string `yaml:"name"`
	Mode      string `yaml:"mode"`
	Precision int    `yaml:"precision"`
	Noise     int    `yaml:"noise"`
	Load      int    `yaml:"load"`
	Guide     string `yaml:"guide,omitempty"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Lab: LabConfig{
			InitialPreset: preset.Baseline,
			FrameInterval: "16ms",
			MaxDt:         0.05,
			FirstDt:       1.0 / 60,
			HistorySize:   120,
		},
		Store: StoreConfig{
			Kind: "memory",
			Path: "predictivelab.db",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML file over the defaults. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save writes the configuration as YAML, creating parent directories.
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
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

func (c *Config) applyEnvOverrides() {
	if kind := os.Getenv("PREDICTIVELAB_STORE"); kind != "" {
		c.Store.Kind = kind
	}
	if path := os.Getenv("PREDICTIVELAB_DB_PATH"); path != "" {
		c.Store.Path = path
	}
	if level := os.Getenv("PREDICTIVELAB_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// GetFrameInterval parses Lab.FrameInterval, falling back to 16ms.
func (c *Config) GetFrameInterval() time.Duration {
	if d, err := time.ParseDuration(c.Lab.FrameInterval); err == nil && d > 0 {
		return d
	}
	return 16 * time.Millisecond
}

var validLevels = []string{"debug", "info", "warn", "error"}

// Validate checks ranges and names. Errors wrap ErrInvalidConfig.
func (c *Config) Validate() error {
	if c.Lab.MaxDt <= 0 {
		return fmt.Errorf("%w: lab.max_dt must be positive, got %v", ErrInvalidConfig, c.Lab.MaxDt)
	}
	if c.Lab.FirstDt <= 0 || c.Lab.FirstDt > c.Lab.MaxDt {
		return fmt.Errorf("%w: lab.first_dt must be in (0, max_dt], got %v", ErrInvalidConfig, c.Lab.FirstDt)
	}
	if c.Lab.HistorySize < 0 {
		return fmt.Errorf("%w: lab.history_size must not be negative", ErrInvalidConfig)
	}
	if c.Lab.FrameInterval != "" {
		d, err := time.ParseDuration(c.Lab.FrameInterval)
		if err != nil || d <= 0 {
			return fmt.Errorf("%w: lab.frame_interval %q", ErrInvalidConfig, c.Lab.FrameInterval)
		}
	}
	switch c.Store.Kind {
	case "", "memory", "sqlite":
	default:
		return fmt.Errorf("%w: unsupported store kind %q", ErrInvalidConfig, c.Store.Kind)
	}
	validLevel := false
	for _, level := range validLevels {
		if strings.EqualFold(c.Logging.Level, level) {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return fmt.Errorf("%w: logging.level %q (valid: %v)", ErrInvalidConfig, c.Logging.Level, validLevels)
	}

	registry, err := c.Registry()
	if err != nil {
		return err
	}
	if c.Lab.InitialPreset != "" {
		if _, err := registry.Lookup(c.Lab.InitialPreset); err != nil {
			return fmt.Errorf("%w: lab.initial_preset: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}

// Registry builds the preset registry: built-ins plus configured presets.
func (c *Config) Registry() (*preset.Registry, error) {
	extra := make([]preset.Preset, 0, len(c.Presets))
	for _, p := range c.Presets {
		mode, err := model.ParseMode(p.Mode)
		if err != nil {
			return nil, fmt.Errorf("%w: preset %s: %v", ErrInvalidConfig, p.Name, err)
		}
		extra = append(extra, preset.Preset{
			Name:     p.Name,
			Mode:     mode,
			Controls: model.Controls{Precision: p.Precision, Noise: p.Noise, Load: p.Load},
			Guide:    p.Guide,
		})
	}
	registry, err := preset.NewRegistry(extra)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return registry, nil
}
