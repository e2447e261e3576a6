package config

import (
	"fmt"
	"os"
	"strings"
)

// SettingSource represents where an effective setting comes from.
type SettingSource string

const (
	SourceEnv     SettingSource = "env"
	SourceConfig  SettingSource = "config"
	SourceDefault SettingSource = "default"
)

// Setting is one effective setting as shown by the status command.
type Setting struct {
	Key    string        `json:"key"`
	Value  string        `json:"value"`
	Source SettingSource `json:"source"`
}

// Describe returns the settings that shape a refresh, with their origin.
func Describe(cfg *Config) []Setting {
	defaults := defaultConfig()
	return []Setting{
		describe("refresh.concurrency", cfg.Refresh.Concurrency, defaults.Refresh.Concurrency),
		describe("refresh.sort_key", cfg.Refresh.SortKey, defaults.Refresh.SortKey),
		describe("refresh.side", cfg.Refresh.Side, defaults.Refresh.Side),
		describe("euronext.base_url", cfg.Euronext.BaseURL, defaults.Euronext.BaseURL),
		describe("euronext.mic", cfg.Euronext.MIC, defaults.Euronext.MIC),
		describe("euronext.location", cfg.Euronext.Location, defaults.Euronext.Location),
		describe("euronext.include_weekly", cfg.Euronext.IncludeWeekly, defaults.Euronext.IncludeWeekly),
		describe("euronext.requests_per_second", cfg.Euronext.RequestsPerSecond, defaults.Euronext.RequestsPerSecond),
		describe("euronext.catalog_cache_file", cfg.Euronext.CatalogCacheFile, defaults.Euronext.CatalogCacheFile),
		describe("calendar.extra_closures", strings.Join(cfg.Calendar.ExtraClosures, ","), ""),
		describe("logging.level", cfg.Logging.Level, defaults.Logging.Level),
	}
}

func describe(key string, value, def any) Setting {
	s := Setting{Key: key, Value: fmt.Sprint(value)}
	switch {
	case os.Getenv(EnvName(key)) != "":
		s.Source = SourceEnv
	case s.Value != fmt.Sprint(def):
		s.Source = SourceConfig
	default:
		s.Source = SourceDefault
	}
	return s
}

// EnvName returns the environment variable overriding key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func defaultConfig() *Config {
	v := newViperWithoutEnv()
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}
