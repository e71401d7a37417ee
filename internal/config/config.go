// Package config loads runtime configuration for the trialscope server.
//
// Configuration is read from an optional trialscope.yaml in the working
// directory, overridable via TRIALSCOPE_* environment variables. Every
// knob has a default so the server runs with zero configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable for the server process.
type Config struct {
	// DataDir is the root directory for the SQLite database, the disk
	// cache tier, and the audit log.
	DataDir string

	// APIBaseURL is the study registry endpoint the source client
	// queries, e.g. https://clinicaltrials.gov/api/v2.
	APIBaseURL string

	// PageSize is the number of studies requested per API page.
	PageSize int

	// MaxSearchResults caps how many studies a single search ingests.
	MaxSearchResults int

	// MemoryTTL is the lifetime of the fast in-process cache tier.
	MemoryTTL time.Duration

	// DiskTTL is the lifetime of the durable on-disk cache tier.
	DiskTTL time.Duration

	// LogLevel is a logrus level name (debug, info, warn, error).
	LogLevel string
}

// Load reads configuration from trialscope.yaml (if present) and the
// environment. Missing config files are not an error.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("trialscope")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix("TRIALSCOPE")
	v.AutomaticEnv()

	home, _ := os.UserHomeDir()

	v.SetDefault("data_dir", filepath.Join(home, ".trialscope"))
	v.SetDefault("api_base_url", "https://clinicaltrials.gov/api/v2")
	v.SetDefault("page_size", 100)
	v.SetDefault("max_search_results", 1000)
	v.SetDefault("memory_ttl", "60s")
	v.SetDefault("disk_ttl", "24h")
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := &Config{
		DataDir:          v.GetString("data_dir"),
		APIBaseURL:       v.GetString("api_base_url"),
		PageSize:         v.GetInt("page_size"),
		MaxSearchResults: v.GetInt("max_search_results"),
		MemoryTTL:        v.GetDuration("memory_ttl"),
		DiskTTL:          v.GetDuration("disk_ttl"),
		LogLevel:         v.GetString("log_level"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page_size must be positive, got %d", c.PageSize)
	}
	if c.MaxSearchResults <= 0 {
		return fmt.Errorf("max_search_results must be positive, got %d", c.MaxSearchResults)
	}
	if c.MemoryTTL <= 0 || c.DiskTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	return nil
}
