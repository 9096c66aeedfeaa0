// Package config loads tala configuration from TOML files.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	// Catalog settings
	Catalog CatalogConfig `koanf:"catalog"`

	// Playback tuning
	Playback PlaybackConfig `koanf:"playback"`

	// CacheDir overrides the XDG audio cache directory.
	CacheDir string `koanf:"cache_dir"`

	// Logging
	Log LogConfig `koanf:"log"`
}

// CatalogConfig holds catalog API settings.
type CatalogConfig struct {
	BaseURL      string   `koanf:"base_url"`      // e.g., "https://api.example.com"
	TrustedHosts []string `koanf:"trusted_hosts"` // CDN hosts whose stream URLs are reused without a fresh fetch
}

// PlaybackConfig holds retry and navigation tuning.
type PlaybackConfig struct {
	RetryMax           int     `koanf:"retry_max"`            // per-track failure budget (default: 3)
	RetryBaseMs        int     `koanf:"retry_base_ms"`        // backoff base in milliseconds (default: 1000)
	PreviousRestartSec float64 `koanf:"previous_restart_sec"` // previous restarts instead of navigating past this (default: 5)
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `koanf:"level"`  // "debug", "info", "warn", "error" (default: "info")
	Output string `koanf:"output"` // "stdout", "stderr", or a file path (default: "stderr")
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Try config files in order of priority (last wins)
	configPaths := getConfigPaths()

	for _, path := range configPaths {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, err
			}
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	// Normalize catalog URL (remove trailing slash)
	cfg.Catalog.BaseURL = strings.TrimSuffix(cfg.Catalog.BaseURL, "/")

	// Expand ~ in cache_dir
	if cfg.CacheDir != "" {
		cfg.CacheDir = expandPath(cfg.CacheDir)
	}

	return cfg, nil
}

func getConfigPaths() []string {
	paths := []string{}

	// 1. ~/.config/tala/config.toml
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "tala", "config.toml"))
	}

	// 2. ./config.toml (pwd, highest priority)
	paths = append(paths, "config.toml")

	return paths
}

func expandPath(path string) string {
	if path != "" && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// HasCatalog returns true if a catalog API is configured.
func (c *Config) HasCatalog() bool {
	return c.Catalog.BaseURL != ""
}
