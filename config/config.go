// Package config provides Viper-based configuration for the Mindbody MCP server
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the complete server configuration
type Config struct {
	Mindbody MindbodyConfig `mapstructure:"mindbody"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Data     DataConfig     `mapstructure:"data"`
	Database DatabaseConfig `mapstructure:"database"`
	Quota    QuotaConfig    `mapstructure:"quota"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// MindbodyConfig holds upstream credentials and transport settings
type MindbodyConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	SiteID            string        `mapstructure:"site_id"`
	StaffUsername     string        `mapstructure:"staff_username"`
	StaffPassword     string        `mapstructure:"staff_password"`
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// ServerConfig contains MCP server identity
type ServerConfig struct {
	Name string `mapstructure:"name"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DataConfig locates the embedded database
type DataConfig struct {
	Dir string `mapstructure:"dir"`
}

// DatabaseConfig selects the store driver
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// QuotaConfig contains the daily call ceiling
type QuotaConfig struct {
	DailyLimit int `mapstructure:"daily_limit"`
}

// CacheConfig contains cache lifetimes
type CacheConfig struct {
	ResponseTTL    time.Duration `mapstructure:"response_ttl"`
	AppointmentTTL time.Duration `mapstructure:"appointment_ttl"`
	BookableTTL    time.Duration `mapstructure:"bookable_ttl"`
}

// SyncConfig contains bulk sync paging settings
type SyncConfig struct {
	PageSize  int `mapstructure:"page_size"`
	ChunkDays int `mapstructure:"chunk_days"`
}

// MetricsConfig contains the Prometheus listener address; empty disables it
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// envBindings maps configuration keys to their environment variables
var envBindings = map[string]string{
	"mindbody.api_key":             "MINDBODY_API_KEY",
	"mindbody.site_id":             "MINDBODY_SITE_ID",
	"mindbody.staff_username":      "MINDBODY_STAFF_USERNAME",
	"mindbody.staff_password":      "MINDBODY_STAFF_PASSWORD",
	"mindbody.base_url":            "MINDBODY_BASE_URL",
	"mindbody.timeout":             "MINDBODY_TIMEOUT",
	"mindbody.requests_per_second": "MINDBODY_REQUESTS_PER_SECOND",
	"server.name":                  "MCP_SERVER_NAME",
	"log.level":                    "LOG_LEVEL",
	"log.format":                   "LOG_FORMAT",
	"data.dir":                     "DATA_DIR",
	"database.driver":              "DATABASE_DRIVER",
	"database.dsn":                 "DATABASE_DSN",
	"quota.daily_limit":            "DAILY_API_LIMIT",
	"cache.response_ttl":           "CACHE_RESPONSE_TTL",
	"cache.appointment_ttl":        "CACHE_APPOINTMENT_TTL",
	"cache.bookable_ttl":           "CACHE_BOOKABLE_TTL",
	"sync.page_size":               "SYNC_PAGE_SIZE",
	"sync.chunk_days":              "SYNC_CHUNK_DAYS",
	"metrics.addr":                 "METRICS_ADDR",
}

// Load reads .env, the optional config file and environment variables.
// Upstream credentials are not checked here; commands that call the API run Validate.
func Load(cfgFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(".mindbody-mcp")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/mindbody-mcp")
	}

	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.validateSettings(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mindbody.base_url", "https://api.mindbodyonline.com/public/v6")
	v.SetDefault("mindbody.timeout", 30*time.Second)
	v.SetDefault("mindbody.requests_per_second", 0)

	v.SetDefault("server.name", "mindbody-mcp")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("data.dir", "./data")
	v.SetDefault("database.driver", "sqlite")

	v.SetDefault("quota.daily_limit", 950)

	v.SetDefault("cache.response_ttl", time.Hour)
	v.SetDefault("cache.appointment_ttl", 5*time.Minute)
	v.SetDefault("cache.bookable_ttl", 15*time.Minute)

	v.SetDefault("sync.page_size", 100)
	v.SetDefault("sync.chunk_days", 7)
}

// Validate checks everything needed to reach the upstream API
func (c *Config) Validate() error {
	required := []struct {
		key   string
		value string
	}{
		{"MINDBODY_API_KEY", c.Mindbody.APIKey},
		{"MINDBODY_SITE_ID", c.Mindbody.SiteID},
		{"MINDBODY_STAFF_USERNAME", c.Mindbody.StaffUsername},
		{"MINDBODY_STAFF_PASSWORD", c.Mindbody.StaffPassword},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%s is required", r.key)
		}
	}
	return c.validateSettings()
}

// validateSettings checks the settings every command depends on
func (c *Config) validateSettings() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Log.Format)] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Log.Format)
	}

	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("DATABASE_DSN is required when DATABASE_DRIVER is postgres")
		}
	default:
		return fmt.Errorf("invalid database driver: %s (must be sqlite or postgres)", c.Database.Driver)
	}

	if c.Quota.DailyLimit <= 0 {
		return fmt.Errorf("DAILY_API_LIMIT must be positive, got %d", c.Quota.DailyLimit)
	}
	if c.Mindbody.RequestsPerSecond < 0 {
		return fmt.Errorf("MINDBODY_REQUESTS_PER_SECOND must not be negative")
	}
	if c.Sync.PageSize <= 0 || c.Sync.PageSize > 200 {
		return fmt.Errorf("SYNC_PAGE_SIZE must be between 1 and 200, got %d", c.Sync.PageSize)
	}
	if c.Sync.ChunkDays <= 0 {
		return fmt.Errorf("SYNC_CHUNK_DAYS must be positive, got %d", c.Sync.ChunkDays)
	}
	return nil
}

// NewTestConfig returns a fully populated configuration for tests
func NewTestConfig() *Config {
	return &Config{
		Mindbody: MindbodyConfig{
			APIKey:        "test-api-key",
			SiteID:        "-99",
			StaffUsername: "test-staff",
			StaffPassword: "test-password",
			BaseURL:       "http://localhost:0",
			Timeout:       5 * time.Second,
		},
		Server:   ServerConfig{Name: "mindbody-mcp-test"},
		Log:      LogConfig{Level: "debug", Format: "text"},
		Data:     DataConfig{Dir: os.TempDir()},
		Database: DatabaseConfig{Driver: "sqlite"},
		Quota:    QuotaConfig{DailyLimit: 950},
		Cache: CacheConfig{
			ResponseTTL:    time.Hour,
			AppointmentTTL: 5 * time.Minute,
			BookableTTL:    15 * time.Minute,
		},
		Sync: SyncConfig{PageSize: 100, ChunkDays: 7},
	}
}
