package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/manav-chan/tic-tac-toe/internal/domain"
	"gopkg.in/yaml.v2"
)

// Config holds the server settings.
type Config struct {
	Addr              string        `yaml:"addr"`
	ThinkDelay        time.Duration `yaml:"think_delay"`
	Difficulty        string        `yaml:"difficulty"`
	LogLevel          string        `yaml:"log_level"`
	LogDevelopment    bool          `yaml:"log_development"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ThinkDelay:        500 * time.Millisecond,
		Difficulty:        "random",
		LogLevel:          "info",
		HeartbeatInterval: 15 * time.Second,
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := Parse(raw, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Parse decodes YAML into cfg, keeping values for missing keys.
func Parse(raw []byte, cfg *Config) error {
	if err := yaml.UnmarshalStrict(raw, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return cfg.Validate()
}

// ApplyEnv overrides the listen address from PORT when set.
func (c *Config) ApplyEnv() {
	if port, ok := os.LookupEnv("PORT"); ok && port != "" {
		c.Addr = ":" + port
	}
}

// Mode returns the parsed difficulty.
func (c Config) Mode() domain.Mode {
	m, _ := domain.ParseMode(c.Difficulty)
	return m
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("config: addr is required")
	}
	if c.ThinkDelay < 0 {
		return fmt.Errorf("config: think_delay %v is negative", c.ThinkDelay)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("config: heartbeat_interval %v must be positive", c.HeartbeatInterval)
	}
	if _, err := domain.ParseMode(c.Difficulty); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	return nil
}
