package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the sensor agent
type Config struct {
	Sensor  SensorConfig  `yaml:"sensor"`
	Server  ServerConfig  `yaml:"server"`
	Buffer  BufferConfig  `yaml:"buffer"`
	Logging LoggingConfig `yaml:"logging"`
}

// SensorConfig contains sensor-specific settings
type SensorConfig struct {
	ID           string        `yaml:"id"`
	Location     string        `yaml:"location"`
	Type         string        `yaml:"type"`
	GPIOPin      int           `yaml:"gpio_pin"`
	ReadInterval time.Duration `yaml:"read_interval"`
}

// ServerConfig contains connection settings for the dashboard server
type ServerConfig struct {
	URL                  string        `yaml:"url"`        // ws:// or wss:// stream endpoint
	AuthToken            string        `yaml:"auth_token"` // optional
	ConnectTimeout       time.Duration `yaml:"connect_timeout"`
	ReconnectInterval    time.Duration `yaml:"reconnect_interval"`
	MaxReconnectInterval time.Duration `yaml:"max_reconnect_interval"`
	PingInterval         time.Duration `yaml:"ping_interval"`
	PongTimeout          time.Duration `yaml:"pong_timeout"`
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
}

// BufferConfig contains settings for the outbound reading buffer
type BufferConfig struct {
	Size       int  `yaml:"size"`
	DropOldest bool `yaml:"drop_oldest"`
	BatchSize  int  `yaml:"batch_size"` // readings per batch when draining after a reconnect
}

// LoggingConfig contains logging settings shared by both binaries
type LoggingConfig struct {
	Level      string `yaml:"level"`     // debug, info, warn, error
	Format     string `yaml:"format"`    // json or text
	FilePath   string `yaml:"file_path"` // empty logs to stdout only
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// LoadConfig loads agent configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	yamlData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var config Config
	if err := yaml.Unmarshal(yamlData, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.ApplyDefaults()
	config.OverrideFromEnv()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

// ApplyDefaults sets default values for any unset fields
func (c *Config) ApplyDefaults() {
	if c.Sensor.Type == "" {
		c.Sensor.Type = "DHT11"
	}
	if c.Sensor.ReadInterval == 0 {
		c.Sensor.ReadInterval = 30 * time.Second
	}
	if c.Server.ConnectTimeout == 0 {
		c.Server.ConnectTimeout = 10 * time.Second
	}
	if c.Server.ReconnectInterval == 0 {
		c.Server.ReconnectInterval = 1 * time.Second
	}
	if c.Server.MaxReconnectInterval == 0 {
		c.Server.MaxReconnectInterval = 5 * time.Minute
	}
	if c.Server.PingInterval == 0 {
		c.Server.PingInterval = 30 * time.Second
	}
	if c.Server.PongTimeout == 0 {
		c.Server.PongTimeout = 10 * time.Second
	}
	if c.Server.HeartbeatInterval == 0 {
		c.Server.HeartbeatInterval = time.Minute
	}
	if c.Buffer.Size == 0 {
		c.Buffer.Size = 1000
		c.Buffer.DropOldest = true
	}
	if c.Buffer.BatchSize == 0 {
		c.Buffer.BatchSize = 50
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 100
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 10
	}
}

// OverrideFromEnv overrides config values from environment variables
func (c *Config) OverrideFromEnv() {
	if v := os.Getenv("SENSOR_ID"); v != "" {
		c.Sensor.ID = v
	}
	if v := os.Getenv("SENSOR_LOCATION"); v != "" {
		c.Sensor.Location = v
	}
	if v := os.Getenv("SERVER_URL"); v != "" {
		c.Server.URL = v
	}
	if v := os.Getenv("SERVER_AUTH_TOKEN"); v != "" {
		c.Server.AuthToken = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Sensor.ID == "" {
		return fmt.Errorf("sensor ID is required")
	}
	if c.Sensor.GPIOPin <= 0 {
		return fmt.Errorf("GPIO pin must be greater than 0")
	}
	if c.Server.URL == "" {
		return fmt.Errorf("server URL is required")
	}
	if !strings.HasPrefix(c.Server.URL, "ws://") && !strings.HasPrefix(c.Server.URL, "wss://") {
		return fmt.Errorf("server URL must start with ws:// or wss://")
	}
	if c.Sensor.ReadInterval < 1*time.Second {
		return fmt.Errorf("read interval must be at least 1 second")
	}
	if c.Buffer.Size < 10 || c.Buffer.Size > 100000 {
		return fmt.Errorf("buffer size must be between 10 and 100000")
	}
	if c.Buffer.BatchSize < 1 || c.Buffer.BatchSize > c.Buffer.Size {
		return fmt.Errorf("batch size must be between 1 and the buffer size")
	}
	return nil
}

// String returns a safe string representation (hides auth token)
func (c *Config) String() string {
	return fmt.Sprintf("Config{Sensor: %+v, Server: [URL=%s, Token=%s], Buffer: %+v, Logging: %+v}",
		c.Sensor,
		c.Server.URL,
		maskToken(c.Server.AuthToken),
		c.Buffer,
		c.Logging,
	)
}

// maskToken masks all but first 4 characters of a token
func maskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 4 {
		return "****"
	}
	return token[:4] + "****"
}
