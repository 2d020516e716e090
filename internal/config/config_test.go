package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	configContent := `
sensor:
  id: "test-sensor-01"
  location: "Test Lab"
  type: "DHT11"
  gpio_pin: 4
  read_interval: 30s

server:
  url: "wss://example.com/sensor-stream"
  auth_token: "test-token-12345"
  connect_timeout: 10s
  reconnect_interval: 1s
  max_reconnect_interval: 5m
  ping_interval: 30s
  pong_timeout: 10s

buffer:
  size: 1000
  drop_oldest: true
  batch_size: 25

logging:
  level: "info"
  format: "json"
  file_path: "/var/log/sensor.log"
  max_size_mb: 10
  max_backups: 3
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Sensor.ID != "test-sensor-01" {
		t.Errorf("Sensor.ID = %v, want test-sensor-01", cfg.Sensor.ID)
	}
	if cfg.Sensor.GPIOPin != 4 {
		t.Errorf("Sensor.GPIOPin = %v, want 4", cfg.Sensor.GPIOPin)
	}
	if cfg.Sensor.ReadInterval != 30*time.Second {
		t.Errorf("Sensor.ReadInterval = %v, want 30s", cfg.Sensor.ReadInterval)
	}
	if cfg.Server.URL != "wss://example.com/sensor-stream" {
		t.Errorf("Server.URL = %v", cfg.Server.URL)
	}
	if cfg.Server.AuthToken != "test-token-12345" {
		t.Errorf("Server.AuthToken = %v", cfg.Server.AuthToken)
	}
	if cfg.Buffer.Size != 1000 {
		t.Errorf("Buffer.Size = %v, want 1000", cfg.Buffer.Size)
	}
	if cfg.Buffer.BatchSize != 25 {
		t.Errorf("Buffer.BatchSize = %v, want 25", cfg.Buffer.BatchSize)
	}
	if cfg.Logging.MaxBackups != 3 {
		t.Errorf("Logging.MaxBackups = %v, want 3", cfg.Logging.MaxBackups)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Expected error for missing file")
	}
}

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()

	if cfg.Sensor.Type != "DHT11" {
		t.Errorf("Default Sensor.Type = %v, want DHT11", cfg.Sensor.Type)
	}
	if cfg.Sensor.ReadInterval != 30*time.Second {
		t.Errorf("Default ReadInterval = %v, want 30s", cfg.Sensor.ReadInterval)
	}
	if cfg.Server.HeartbeatInterval != time.Minute {
		t.Errorf("Default HeartbeatInterval = %v, want 1m", cfg.Server.HeartbeatInterval)
	}
	if cfg.Buffer.Size != 1000 {
		t.Errorf("Default Buffer.Size = %v, want 1000", cfg.Buffer.Size)
	}
	if !cfg.Buffer.DropOldest {
		t.Error("Default Buffer.DropOldest should be true")
	}
	if cfg.Buffer.BatchSize != 50 {
		t.Errorf("Default Buffer.BatchSize = %v, want 50", cfg.Buffer.BatchSize)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Default Logging.Level = %v, want info", cfg.Logging.Level)
	}
}

func TestConfig_OverrideFromEnv(t *testing.T) {
	t.Setenv("SENSOR_ID", "env-sensor-01")
	t.Setenv("SERVER_URL", "wss://env-server.com/ws")
	t.Setenv("SERVER_AUTH_TOKEN", "env-token-xyz")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := &Config{
		Sensor:  SensorConfig{ID: "config-sensor"},
		Server:  ServerConfig{URL: "wss://config-server.com/ws", AuthToken: "config-token"},
		Logging: LoggingConfig{Level: "info"},
	}

	cfg.OverrideFromEnv()

	if cfg.Sensor.ID != "env-sensor-01" {
		t.Errorf("Sensor.ID = %v, want env-sensor-01", cfg.Sensor.ID)
	}
	if cfg.Server.URL != "wss://env-server.com/ws" {
		t.Errorf("Server.URL = %v", cfg.Server.URL)
	}
	if cfg.Server.AuthToken != "env-token-xyz" {
		t.Errorf("Server.AuthToken = %v", cfg.Server.AuthToken)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %v, want debug", cfg.Logging.Level)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			Sensor: SensorConfig{ID: "sensor-01", GPIOPin: 4, ReadInterval: 30 * time.Second},
			Server: ServerConfig{URL: "wss://example.com/ws", AuthToken: "token123"},
			Buffer: BufferConfig{Size: 1000, BatchSize: 50},
		}
	}

	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantError bool
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "auth token is optional", mutate: func(c *Config) { c.Server.AuthToken = "" }},
		{name: "plain ws scheme", mutate: func(c *Config) { c.Server.URL = "ws://localhost:8081/sensor-stream" }},
		{name: "missing sensor ID", mutate: func(c *Config) { c.Sensor.ID = "" }, wantError: true},
		{name: "invalid GPIO pin", mutate: func(c *Config) { c.Sensor.GPIOPin = 0 }, wantError: true},
		{name: "missing server URL", mutate: func(c *Config) { c.Server.URL = "" }, wantError: true},
		{name: "invalid server URL scheme", mutate: func(c *Config) { c.Server.URL = "http://example.com/ws" }, wantError: true},
		{name: "buffer size too small", mutate: func(c *Config) { c.Buffer.Size = 5 }, wantError: true},
		{name: "batch larger than buffer", mutate: func(c *Config) { c.Buffer.BatchSize = 2000 }, wantError: true},
		{name: "read interval too short", mutate: func(c *Config) { c.Sensor.ReadInterval = 500 * time.Millisecond }, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantError && err == nil {
				t.Error("Validate() expected error, got nil")
			}
			if !tt.wantError && err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestConfig_String_MasksToken(t *testing.T) {
	cfg := &Config{
		Sensor: SensorConfig{ID: "sensor-01"},
		Server: ServerConfig{URL: "wss://example.com/ws", AuthToken: "secret-token-12345"},
	}

	str := cfg.String()

	if strings.Contains(str, "secret-token-12345") {
		t.Error("String() should mask auth token")
	}
	if !strings.Contains(str, "secr****") {
		t.Error("String() should contain masked token")
	}
}

func TestLoadConfig_ShippedExample(t *testing.T) {
	cfg, err := LoadConfig("../../configs/sensor.yaml")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Server.HeartbeatInterval != time.Minute {
		t.Errorf("HeartbeatInterval = %v, want 1m", cfg.Server.HeartbeatInterval)
	}
	if cfg.Buffer.BatchSize != 50 {
		t.Errorf("BatchSize = %d, want 50", cfg.Buffer.BatchSize)
	}
}
