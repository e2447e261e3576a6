// Package config handles configuration loading for optionyield.
// It supports YAML config files with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/seenimoa/optionyield/pkg/models"
	"github.com/seenimoa/optionyield/pkg/utils"
)

// EnvPrefix prefixes every environment override, e.g. OPTIONYIELD_REFRESH_CONCURRENCY.
const EnvPrefix = "OPTIONYIELD"

// Config represents the complete application configuration.
type Config struct {
	Refresh  RefreshConfig  `mapstructure:"refresh"  yaml:"refresh"`
	Euronext EuronextConfig `mapstructure:"euronext" yaml:"euronext"`
	Calendar CalendarConfig `mapstructure:"calendar" yaml:"calendar"`
	API      APIConfig      `mapstructure:"api"      yaml:"api"`
	Logging  LoggingConfig  `mapstructure:"logging"  yaml:"logging"`
}

// RefreshConfig holds worker pool and result presentation settings.
type RefreshConfig struct {
	Concurrency int    `mapstructure:"concurrency" yaml:"concurrency"`
	SortKey     string `mapstructure:"sort_key"    yaml:"sort_key"` // "yield_per_spot" or "yield_per_day"
	Side        string `mapstructure:"side"        yaml:"side"`     // "", "call" or "put"
	Limit       int    `mapstructure:"limit"       yaml:"limit"`    // 0 = all rows
}

// EuronextConfig holds data source settings.
type EuronextConfig struct {
	BaseURL           string        `mapstructure:"base_url"            yaml:"base_url"`
	CatalogURL        string        `mapstructure:"catalog_url"         yaml:"catalog_url"`
	MIC               string        `mapstructure:"mic"                 yaml:"mic"`
	Location          string        `mapstructure:"location"            yaml:"location"`
	ProductFamily     string        `mapstructure:"product_family"      yaml:"product_family"`
	IncludeWeekly     bool          `mapstructure:"include_weekly"      yaml:"include_weekly"`
	CatalogCacheFile  string        `mapstructure:"catalog_cache_file"  yaml:"catalog_cache_file"`
	Timeout           time.Duration `mapstructure:"timeout"             yaml:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int           `mapstructure:"burst"               yaml:"burst"`
	SpotCacheTTL      time.Duration `mapstructure:"spot_cache_ttl"      yaml:"spot_cache_ttl"`
	BreakerFailures   uint32        `mapstructure:"breaker_failures"    yaml:"breaker_failures"` // consecutive failures before opening
	BreakerCooldown   time.Duration `mapstructure:"breaker_cooldown"    yaml:"breaker_cooldown"`
	UserAgent         string        `mapstructure:"user_agent"          yaml:"user_agent"`
}

// CalendarConfig holds exchange calendar overrides.
type CalendarConfig struct {
	ExtraClosures []string `mapstructure:"extra_closures" yaml:"extra_closures"` // "2006-01-02"
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	Host               string   `mapstructure:"host"                 yaml:"host"`
	Port               int      `mapstructure:"port"                 yaml:"port"`
	CORSOrigins        []string `mapstructure:"cors_origins"         yaml:"cors_origins"`
	ProgressIntervalMS int      `mapstructure:"progress_interval_ms" yaml:"progress_interval_ms"`
}

// ProgressInterval returns the WebSocket push interval.
func (a APIConfig) ProgressInterval() time.Duration {
	return time.Duration(a.ProgressIntervalMS) * time.Millisecond
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"        yaml:"level"`  // "debug", "info", "warn", "error"
	Format     string `mapstructure:"format"       yaml:"format"` // "text" or "json"
	Output     string `mapstructure:"output"       yaml:"output"` // "stdout", "file" or "both"
	File       string `mapstructure:"file"         yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"  yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"  yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress"     yaml:"compress"`
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.optionyield/config.yaml (home directory)
//  3. /etc/optionyield/config.yaml (system)
//
// Environment variables override config file values.
// Format: OPTIONYIELD_<SECTION>_<KEY>, e.g., OPTIONYIELD_EURONEXT_MIC
func Load() (*Config, error) {
	v := newViper()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".optionyield"))
	v.AddConfigPath("/etc/optionyield")

	// Config file is optional; defaults and env vars still apply.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return decode(v)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := newViperWithoutEnv()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func newViperWithoutEnv() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.Calendar.ExtraClosures = splitList(cfg.Calendar.ExtraClosures)
	cfg.API.CORSOrigins = splitList(cfg.API.CORSOrigins)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	// Refresh defaults
	v.SetDefault("refresh.concurrency", 4)
	v.SetDefault("refresh.sort_key", string(models.SortByYieldPerSpot))
	v.SetDefault("refresh.side", "")
	v.SetDefault("refresh.limit", 0)

	// Euronext defaults
	v.SetDefault("euronext.base_url", "https://live.euronext.com")
	v.SetDefault("euronext.catalog_url", "https://live.euronext.com/derivatives_contracts/getFullDownloadAjax")
	v.SetDefault("euronext.mic", "DAMS")
	v.SetDefault("euronext.location", "Amsterdam")
	v.SetDefault("euronext.product_family", "Stock options")
	v.SetDefault("euronext.include_weekly", true)
	v.SetDefault("euronext.catalog_cache_file", "")
	v.SetDefault("euronext.timeout", "20s")
	v.SetDefault("euronext.requests_per_second", 5.0)
	v.SetDefault("euronext.burst", 4)
	v.SetDefault("euronext.spot_cache_ttl", "1m")
	v.SetDefault("euronext.breaker_failures", 5)
	v.SetDefault("euronext.breaker_cooldown", "30s")
	v.SetDefault("euronext.user_agent", "")

	// Calendar defaults
	v.SetDefault("calendar.extra_closures", []string{})

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("api.progress_interval_ms", 1000)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.file", "logs/optionyield.log")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", true)
}

// Validate rejects settings that would make every refresh fail.
func (c *Config) Validate() error {
	var errs []error
	if c.Refresh.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("refresh.concurrency must be at least 1, got %d", c.Refresh.Concurrency))
	}
	if _, err := models.ParseSortKey(c.Refresh.SortKey); err != nil {
		errs = append(errs, fmt.Errorf("refresh.sort_key: %w", err))
	}
	if _, err := models.ParseSide(c.Refresh.Side); err != nil {
		errs = append(errs, fmt.Errorf("refresh.side: %w", err))
	}
	if c.Refresh.Limit < 0 {
		errs = append(errs, fmt.Errorf("refresh.limit must not be negative, got %d", c.Refresh.Limit))
	}
	if c.Euronext.BaseURL == "" {
		errs = append(errs, errors.New("euronext.base_url is required"))
	}
	if c.Euronext.RequestsPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("euronext.requests_per_second must be positive, got %g", c.Euronext.RequestsPerSecond))
	}
	for _, d := range c.Calendar.ExtraClosures {
		if _, err := utils.ParseDateAMS(d); err != nil {
			errs = append(errs, fmt.Errorf("calendar.extra_closures: invalid date %q", d))
		}
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("api.port out of range: %d", c.API.Port))
	}
	if c.API.ProgressIntervalMS < 1 {
		errs = append(errs, fmt.Errorf("api.progress_interval_ms must be positive, got %d", c.API.ProgressIntervalMS))
	}
	switch c.Logging.Output {
	case "stdout", "file", "both":
	default:
		errs = append(errs, fmt.Errorf("logging.output must be stdout, file or both, got %q", c.Logging.Output))
	}
	return errors.Join(errs...)
}

// splitList accepts both YAML lists and a single comma-separated env value.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
