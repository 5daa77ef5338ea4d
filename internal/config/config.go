// Package config provides the YAML-backed service configuration with
// first-run default creation, an environment-variable overlay and atomic
// 0600 saves.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"
)

// TeamConfig describes one team's calendar feed subscription.
type TeamConfig struct {
	// ID is the team identifier used in store paths and API routes.
	ID string `yaml:"id" json:"id" koanf:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name" koanf:"name"`
	// FeedURL is the ICS subscription endpoint.
	FeedURL string `yaml:"feed_url" json:"feed_url" koanf:"feed_url"`
	// Source labels where the feed comes from (e.g. "google").
	Source string `yaml:"source" json:"source" koanf:"source"`
	// Timezone is the team's default IANA zone, used when neither the
	// occurrence nor the feed header declares a concrete one.
	Timezone string `yaml:"timezone" json:"timezone" koanf:"timezone"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username" koanf:"username"`
	Password string `yaml:"password" json:"password" koanf:"password"`
}

// Config is the top-level service configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen" koanf:"listen"`

	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level" koanf:"log_level"`

	// RefreshCron schedules periodic feed imports (cron expression).
	RefreshCron string `yaml:"refresh" json:"refresh" koanf:"refresh"`

	// FallbackTimezone is the hard fallback display zone when every
	// candidate in the resolution chain is UTC or invalid.
	FallbackTimezone string `yaml:"fallback_timezone" json:"fallback_timezone" koanf:"fallback_timezone"`

	// ImportLookbackDays / ImportLookaheadDays bound the expansion window
	// around "now" for each import pass.
	ImportLookbackDays  int `yaml:"import_lookback_days" json:"import_lookback_days" koanf:"import_lookback_days"`
	ImportLookaheadDays int `yaml:"import_lookahead_days" json:"import_lookahead_days" koanf:"import_lookahead_days"`

	// RetentionDays is the margin past session end before a training is
	// deleted by cleanup.
	RetentionDays int `yaml:"retention_days" json:"retention_days" koanf:"retention_days"`

	// FetchTimeoutSeconds bounds each feed HTTP request.
	FetchTimeoutSeconds int `yaml:"fetch_timeout_seconds" json:"fetch_timeout_seconds" koanf:"fetch_timeout_seconds"`

	// CacheDir is where fetched feed bodies and conditional-request
	// metadata are cached.
	CacheDir string `yaml:"cache_dir" json:"cache_dir" koanf:"cache_dir"`

	// Teams lists the subscribed team feeds.
	Teams []TeamConfig `yaml:"teams" json:"teams" koanf:"teams"`

	// BasicAuth, if non-nil, protects all endpoints except /health and
	// /metrics.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty" koanf:"basic_auth"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:              "127.0.0.1:8080",
		LogLevel:            "info",
		RefreshCron:         "*/15 * * * *",
		FallbackTimezone:    "Europe/Paris",
		ImportLookbackDays:  1,
		ImportLookaheadDays: 60,
		RetentionDays:       2,
		FetchTimeoutSeconds: 15,
		CacheDir:            "./var/feed-cache",
		Teams:               []TeamConfig{},
	}
}

// Normalize fills missing/zero values with defaults so partially-filled
// configs from older versions still behave.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.RefreshCron == "" {
		c.RefreshCron = d.RefreshCron
	}
	if c.FallbackTimezone == "" {
		c.FallbackTimezone = d.FallbackTimezone
	}
	if c.ImportLookbackDays <= 0 {
		c.ImportLookbackDays = d.ImportLookbackDays
	}
	if c.ImportLookaheadDays <= 0 {
		c.ImportLookaheadDays = d.ImportLookaheadDays
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = d.RetentionDays
	}
	if c.FetchTimeoutSeconds <= 0 {
		c.FetchTimeoutSeconds = d.FetchTimeoutSeconds
	}
	if c.CacheDir == "" {
		c.CacheDir = d.CacheDir
	}
	if c.Teams == nil {
		c.Teams = []TeamConfig{}
	}
	for i := range c.Teams {
		if c.Teams[i].Source == "" {
			c.Teams[i].Source = "google"
		}
		if c.Teams[i].Timezone == "" {
			c.Teams[i].Timezone = c.FallbackTimezone
		}
	}
}

// Team returns the configured team by ID.
func (c *Config) Team(id string) (TeamConfig, bool) {
	for _, t := range c.Teams {
		if t.ID == id {
			return t, true
		}
	}
	return TeamConfig{}, false
}

// Load builds the configuration by layering (low to high precedence):
//  1. built-in defaults
//  2. the YAML file at path (created with defaults on first run)
//  3. environment variables with the TRAINSYNC_ prefix
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		cfg := DefaultConfig()
		if err := Save(path, cfg); err != nil {
			return cfg, err
		}
		return cfg, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), kyaml.Parser()); err != nil {
		return nil, err
	}

	// TRAINSYNC_LISTEN -> listen, TRAINSYNC_LOG_LEVEL -> log_level, ...
	envProvider := env.Provider("TRAINSYNC_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "TRAINSYNC_"))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".trainsync-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
