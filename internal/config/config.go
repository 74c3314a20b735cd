package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Device         DeviceConfig         `yaml:"device"`
	ServiceChanged ServiceChangedConfig `yaml:"service_changed"`
	Reconnect      ReconnectConfig      `yaml:"reconnect"`
	Stack          StackConfig          `yaml:"stack"`
	LogLevel       string               `yaml:"log_level"`
}

// DeviceConfig identifies the peripheral to watch.
type DeviceConfig struct {
	Address        string `yaml:"address"`         // MAC address (CoreBluetooth UUID on macOS)
	ScanTimeout    int    `yaml:"scan_timeout"`    // seconds
	ConnectTimeout int    `yaml:"connect_timeout"` // seconds
}

// ServiceChangedConfig holds Service Changed client settings.
type ServiceChangedConfig struct {
	EnableIndications bool `yaml:"enable_indications"`
	ResetOnDisconnect bool `yaml:"reset_on_disconnect"`
}

// ReconnectConfig holds reconnection settings.
type ReconnectConfig struct {
	Enabled    bool `yaml:"enabled"`
	MaxBackoff int  `yaml:"max_backoff"` // seconds
}

// StackConfig holds event dispatch settings.
type StackConfig struct {
	EventQueueSize   int `yaml:"event_queue_size"`
	MaxRegistrations int `yaml:"max_registrations"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "scwatch")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			ScanTimeout:    5,
			ConnectTimeout: 10,
		},
		ServiceChanged: ServiceChangedConfig{
			EnableIndications: true,
		},
		Reconnect: ReconnectConfig{
			Enabled:    true,
			MaxBackoff: 30,
		},
		Stack: StackConfig{
			EventQueueSize:   64,
			MaxRegistrations: 8,
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.Device.Address = strings.TrimSpace(cfg.Device.Address)

	return cfg, nil
}

const defaultHeader = `# scwatch configuration
# device.address is the peripheral's MAC address (a CoreBluetooth UUID on macOS).
# Timeouts and backoff are in seconds.
`

// WriteDefault writes the default config to DefaultConfigPath and returns
// the path written. If a config file already exists it is left untouched
// and WriteDefault returns ("", nil).
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Device.ScanTimeout <= 0 {
		return fmt.Errorf("device.scan_timeout must be > 0")
	}

	if c.Device.ConnectTimeout <= 0 {
		return fmt.Errorf("device.connect_timeout must be > 0")
	}

	if c.Reconnect.Enabled && c.Reconnect.MaxBackoff <= 0 {
		return fmt.Errorf("reconnect.max_backoff must be > 0 when reconnect is enabled")
	}

	if c.Stack.EventQueueSize <= 0 {
		return fmt.Errorf("stack.event_queue_size must be > 0")
	}

	if c.Stack.MaxRegistrations <= 0 {
		return fmt.Errorf("stack.max_registrations must be > 0")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// ValidateWatch checks the settings the watch command needs on top of
// Validate.
func (c *Config) ValidateWatch() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Device.Address == "" {
		return fmt.Errorf("device.address must not be empty")
	}
	return nil
}

// ParseLogLevel maps a log_level string to a slog.Level, defaulting to info.
func ParseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
