package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Device.Address != "" {
		t.Errorf("Device.Address = %q, want empty", cfg.Device.Address)
	}
	if cfg.Device.ScanTimeout != 5 {
		t.Errorf("Device.ScanTimeout = %d, want 5", cfg.Device.ScanTimeout)
	}
	if cfg.Device.ConnectTimeout != 10 {
		t.Errorf("Device.ConnectTimeout = %d, want 10", cfg.Device.ConnectTimeout)
	}
	if !cfg.ServiceChanged.EnableIndications {
		t.Error("ServiceChanged.EnableIndications should default to true")
	}
	if cfg.ServiceChanged.ResetOnDisconnect {
		t.Error("ServiceChanged.ResetOnDisconnect should default to false")
	}
	if !cfg.Reconnect.Enabled || cfg.Reconnect.MaxBackoff != 30 {
		t.Errorf("Reconnect = %+v, want enabled with max_backoff 30", cfg.Reconnect)
	}
	if cfg.Stack.EventQueueSize != 64 {
		t.Errorf("Stack.EventQueueSize = %d, want 64", cfg.Stack.EventQueueSize)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
}

func TestLoad(t *testing.T) {
	yamlContent := `
device:
  address: " AA:BB:CC:DD:EE:FF "
  scan_timeout: 3
  connect_timeout: 20
service_changed:
  enable_indications: false
  reset_on_disconnect: true
reconnect:
  enabled: false
  max_backoff: 5
stack:
  event_queue_size: 16
  max_registrations: 2
log_level: debug
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Device.Address != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("Device.Address = %q, want %q", cfg.Device.Address, "AA:BB:CC:DD:EE:FF")
	}
	if cfg.Device.ScanTimeout != 3 || cfg.Device.ConnectTimeout != 20 {
		t.Errorf("Device = %+v, want scan 3 connect 20", cfg.Device)
	}
	if cfg.ServiceChanged.EnableIndications || !cfg.ServiceChanged.ResetOnDisconnect {
		t.Errorf("ServiceChanged = %+v", cfg.ServiceChanged)
	}
	if cfg.Reconnect.Enabled || cfg.Reconnect.MaxBackoff != 5 {
		t.Errorf("Reconnect = %+v", cfg.Reconnect)
	}
	if cfg.Stack.EventQueueSize != 16 || cfg.Stack.MaxRegistrations != 2 {
		t.Errorf("Stack = %+v", cfg.Stack)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	yamlContent := `
device:
  address: "AA:BB:CC:DD:EE:FF"
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Device.ScanTimeout != 5 {
		t.Errorf("Device.ScanTimeout = %d, want default 5", cfg.Device.ScanTimeout)
	}
	if !cfg.ServiceChanged.EnableIndications {
		t.Error("ServiceChanged.EnableIndications should keep its default")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want default %q", cfg.LogLevel, "info")
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load() should return error for nonexistent file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("device: [unterminated"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	if _, err := Load(cfgPath); err == nil {
		t.Error("Load() should return error for invalid YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "zero scan timeout",
			modify:  func(c *Config) { c.Device.ScanTimeout = 0 },
			wantErr: true,
		},
		{
			name:    "negative connect timeout",
			modify:  func(c *Config) { c.Device.ConnectTimeout = -1 },
			wantErr: true,
		},
		{
			name:    "zero max backoff with reconnect",
			modify:  func(c *Config) { c.Reconnect.MaxBackoff = 0 },
			wantErr: true,
		},
		{
			name: "zero max backoff without reconnect",
			modify: func(c *Config) {
				c.Reconnect.Enabled = false
				c.Reconnect.MaxBackoff = 0
			},
			wantErr: false,
		},
		{
			name:    "zero event queue",
			modify:  func(c *Config) { c.Stack.EventQueueSize = 0 },
			wantErr: true,
		},
		{
			name:    "zero registrations",
			modify:  func(c *Config) { c.Stack.MaxRegistrations = 0 },
			wantErr: true,
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.LogLevel = "invalid" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateWatchRequiresAddress(t *testing.T) {
	cfg := Default()
	if err := cfg.ValidateWatch(); err == nil {
		t.Error("ValidateWatch() should fail without device.address")
	}

	cfg.Device.Address = "AA:BB:CC:DD:EE:FF"
	if err := cfg.ValidateWatch(); err != nil {
		t.Errorf("ValidateWatch() unexpected error: %v", err)
	}

	cfg.LogLevel = "loud"
	if err := cfg.ValidateWatch(); err == nil {
		t.Error("ValidateWatch() should include Validate checks")
	}
}

func TestWriteDefault_CreatesFile(t *testing.T) {
	// Use a temp dir as fake home to avoid touching real config
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	expectedPath := filepath.Join(tmpHome, ".config", "scwatch", "config.yaml")
	if path != expectedPath {
		t.Errorf("WriteDefault() path = %q, want %q", path, expectedPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read written config: %v", err)
	}
	if !strings.HasPrefix(string(data), "# scwatch") {
		t.Error("written config should start with header comment")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("written config is not valid YAML: %v", err)
	}
	if cfg.Stack.EventQueueSize != 64 {
		t.Errorf("written config Stack.EventQueueSize = %d, want 64", cfg.Stack.EventQueueSize)
	}
	if !cfg.ServiceChanged.EnableIndications {
		t.Error("written config should enable indications")
	}
}

func TestWriteDefault_NoOpIfExists(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	configDir := filepath.Join(tmpHome, ".config", "scwatch")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	existingContent := []byte("device:\n  address: AA:BB:CC:DD:EE:FF\n")
	configPath := filepath.Join(configDir, "config.yaml")
	if err := os.WriteFile(configPath, existingContent, 0644); err != nil {
		t.Fatalf("failed to write existing config: %v", err)
	}

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	if path != "" {
		t.Errorf("WriteDefault() path = %q, want empty string for existing file", path)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	if string(data) != string(existingContent) {
		t.Error("WriteDefault() should not overwrite existing config file")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo}, // defaults to info
		{"", slog.LevelInfo},        // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
