package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/afroash/envdash/internal/ingest"
	"github.com/afroash/envdash/internal/sampling"
	"github.com/afroash/envdash/internal/storage"
)

// AppConfig holds the dashboard server configuration
type AppConfig struct {
	Server   ServerSettings   `yaml:"server"`
	Storage  StorageSettings  `yaml:"storage"`
	Sampling SamplingSettings `yaml:"sampling"`
	Ingest   IngestSettings   `yaml:"ingest"`
	Logging  LoggingConfig    `yaml:"logging"`
}

// ServerSettings contains HTTP server configuration
type ServerSettings struct {
	Port            int           `yaml:"port"`
	Host            string        `yaml:"host"`
	AuthToken       string        `yaml:"auth_token"` // empty disables auth on ingest
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	IngestRate      float64       `yaml:"ingest_rate"` // requests per second, 0 disables limiting
	IngestBurst     int           `yaml:"ingest_burst"`
	DashboardPath   string        `yaml:"dashboard_path"` // static page served at /, optional
}

// StorageSettings contains storage configuration
type StorageSettings struct {
	Driver         string `yaml:"driver"` // sqlite or memory
	Path           string `yaml:"path"`
	MemoryCapacity int    `yaml:"memory_capacity"`
}

// SamplingSettings configures range resolution and downsampling
type SamplingSettings struct {
	DefaultRange  string         `yaml:"default_range"`
	FallbackCount int            `yaml:"fallback_count"` // negative disables the fallback
	CacheSize     int            `yaml:"cache_size"`
	Ranges        []RangeSetting `yaml:"ranges"`
}

// RangeSetting is one row of the range table
type RangeSetting struct {
	Token       string        `yaml:"token"`
	Minutes     int64         `yaml:"minutes"`
	Strategy    string        `yaml:"strategy"` // tail, spacing or nearest
	Interval    time.Duration `yaml:"interval"`
	Tolerance   time.Duration `yaml:"tolerance"`
	Description string        `yaml:"description"`
}

// IngestSettings declares the accepted payload shape. Empty Fields keeps the built-in schema.
type IngestSettings struct {
	SchemaVersion int            `yaml:"schema_version"`
	Fields        []FieldSetting `yaml:"fields"`
}

// FieldSetting declares one payload field
type FieldSetting struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"` // number, boolean or string
	Required bool   `yaml:"required"`
}

// LoadAppConfig loads server configuration from a YAML file
func LoadAppConfig(path string) (*AppConfig, error) {
	yamlData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseAppConfig(yamlData)
}

// ParseAppConfig parses YAML, applies defaults and environment overrides, and validates
func ParseAppConfig(yamlData []byte) (*AppConfig, error) {
	var config AppConfig
	if err := yaml.Unmarshal(yamlData, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	config.ApplyDefaults()
	if err := config.OverrideFromEnv(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

// ApplyDefaults sets default values for server config
func (ac *AppConfig) ApplyDefaults() {
	if ac.Server.Port == 0 {
		ac.Server.Port = 8081
	}
	if ac.Server.Host == "" {
		ac.Server.Host = "localhost"
	}
	if ac.Server.ReadTimeout == 0 {
		ac.Server.ReadTimeout = 60 * time.Second
	}
	if ac.Server.WriteTimeout == 0 {
		ac.Server.WriteTimeout = 10 * time.Second
	}
	if ac.Server.ShutdownTimeout == 0 {
		ac.Server.ShutdownTimeout = 10 * time.Second
	}
	if ac.Server.IngestRate > 0 && ac.Server.IngestBurst == 0 {
		ac.Server.IngestBurst = int(ac.Server.IngestRate) + 1
	}
	if ac.Storage.Driver == "" {
		ac.Storage.Driver = "sqlite"
	}
	if ac.Storage.Path == "" {
		ac.Storage.Path = "./data/envdash.db"
	}
	if ac.Storage.MemoryCapacity == 0 {
		ac.Storage.MemoryCapacity = storage.DefaultMemoryCapacity
	}
	if ac.Sampling.DefaultRange == "" {
		ac.Sampling.DefaultRange = "5m"
	}
	if ac.Sampling.FallbackCount == 0 {
		ac.Sampling.FallbackCount = sampling.DefaultFallbackCount
	}
	if ac.Sampling.CacheSize == 0 {
		ac.Sampling.CacheSize = 128
	}
	if ac.Logging.Level == "" {
		ac.Logging.Level = "info"
	}
	if ac.Logging.Format == "" {
		ac.Logging.Format = "json"
	}
	if ac.Logging.MaxSizeMB == 0 {
		ac.Logging.MaxSizeMB = 100
	}
	if ac.Logging.MaxBackups == 0 {
		ac.Logging.MaxBackups = 10
	}
}

// OverrideFromEnv overrides config from environment variables
func (ac *AppConfig) OverrideFromEnv() error {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SERVER_PORT: %w", err)
		}
		ac.Server.Port = port
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		ac.Server.Host = v
	}
	if v := os.Getenv("SERVER_AUTH_TOKEN"); v != "" {
		ac.Server.AuthToken = v
	}
	if v := os.Getenv("STORAGE_DRIVER"); v != "" {
		ac.Storage.Driver = v
	}
	if v := os.Getenv("STORAGE_PATH"); v != "" {
		ac.Storage.Path = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		ac.Logging.Level = v
	}
	return nil
}

// Validate checks if server configuration is valid
func (ac *AppConfig) Validate() error {
	if ac.Server.Port < 1 || ac.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if ac.Server.IngestRate < 0 {
		return fmt.Errorf("ingest rate must not be negative")
	}
	switch ac.Storage.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unknown storage driver %q", ac.Storage.Driver)
	}
	if ac.Storage.MemoryCapacity < 1 {
		return fmt.Errorf("memory capacity must be positive")
	}
	if ac.Sampling.CacheSize < 0 {
		return fmt.Errorf("cache size must not be negative")
	}

	table, err := ac.RangeTable()
	if err != nil {
		return err
	}
	if _, err := table.Resolve(ac.Sampling.DefaultRange); err != nil {
		return fmt.Errorf("default range: %w", err)
	}
	if _, err := ac.Schema(); err != nil {
		return err
	}
	return nil
}

// RangeTable builds the range table, the canonical one when none is configured
func (ac *AppConfig) RangeTable() (*sampling.Table, error) {
	if len(ac.Sampling.Ranges) == 0 {
		return sampling.DefaultTable(), nil
	}

	specs := make([]sampling.RangeSpec, 0, len(ac.Sampling.Ranges))
	for _, r := range ac.Sampling.Ranges {
		specs = append(specs, sampling.RangeSpec{
			Token:   r.Token,
			Minutes: r.Minutes,
			Strategy: sampling.Strategy{
				Kind:      sampling.StrategyKind(r.Strategy),
				Interval:  r.Interval,
				Tolerance: r.Tolerance,
			},
			Description: r.Description,
		})
	}
	table, err := sampling.NewTable(specs)
	if err != nil {
		return nil, fmt.Errorf("sampling ranges: %w", err)
	}
	return table, nil
}

// ServiceConfig returns the query service configuration
func (ac *AppConfig) ServiceConfig() (sampling.ServiceConfig, error) {
	table, err := ac.RangeTable()
	if err != nil {
		return sampling.ServiceConfig{}, err
	}
	return sampling.ServiceConfig{
		Table:         table,
		DefaultRange:  ac.Sampling.DefaultRange,
		FallbackCount: ac.Sampling.FallbackCount,
		CacheSize:     ac.Sampling.CacheSize,
	}, nil
}

// Schema returns the ingest schema, the built-in one when no fields are configured
func (ac *AppConfig) Schema() (ingest.Schema, error) {
	if len(ac.Ingest.Fields) == 0 {
		schema := ingest.DefaultSchema()
		if ac.Ingest.SchemaVersion != 0 {
			schema.Version = ac.Ingest.SchemaVersion
		}
		return schema, nil
	}

	schema := ingest.Schema{Version: ac.Ingest.SchemaVersion}
	for _, f := range ac.Ingest.Fields {
		schema.Fields = append(schema.Fields, ingest.Field{
			Name:     f.Name,
			Kind:     ingest.Kind(f.Type),
			Required: f.Required,
		})
	}
	if err := schema.Check(); err != nil {
		return ingest.Schema{}, fmt.Errorf("ingest schema: %w", err)
	}
	return schema, nil
}

// StorageOptions returns the options for storage.Open
func (ac *AppConfig) StorageOptions() storage.Options {
	return storage.Options{
		Driver:         ac.Storage.Driver,
		Path:           ac.Storage.Path,
		MemoryCapacity: ac.Storage.MemoryCapacity,
	}
}

// Addr returns the listen address
func (ac *AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", ac.Server.Host, ac.Server.Port)
}

// String returns a safe string representation (hides auth token)
func (ac *AppConfig) String() string {
	server := ac.Server
	server.AuthToken = maskToken(server.AuthToken)
	return fmt.Sprintf("AppConfig{Server: %+v, Storage: %+v, Sampling: [default=%s fallback=%d cache=%d ranges=%d], Logging: %+v}",
		server,
		ac.Storage,
		ac.Sampling.DefaultRange,
		ac.Sampling.FallbackCount,
		ac.Sampling.CacheSize,
		len(ac.Sampling.Ranges),
		ac.Logging,
	)
}
