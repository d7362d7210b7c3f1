// Package config loads the application configuration from YAML with
// environment-variable overrides and validated defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults. The staleness threshold is deliberately shorter than the
// validity window so background refresh fires before passive reads miss.
const (
	DefaultValiditySeconds        = 300
	DefaultStaleAfterSeconds      = 120
	DefaultRefreshIntervalSeconds = 30
	DefaultBucketCap              = 32

	// configDirName is the per-user application directory under $HOME.
	configDirName = ".pharmacache"

	// snapshotFileName is the persistence slot inside the config dir.
	snapshotFileName = "snapshot.json"
)

// Environment variable overrides. Each takes precedence over the config
// file but yields to explicit CLI flags.
const (
	EnvValiditySeconds        = "PHARMACACHE_VALIDITY_SECONDS"
	EnvStaleAfterSeconds      = "PHARMACACHE_STALE_AFTER_SECONDS"
	EnvRefreshIntervalSeconds = "PHARMACACHE_REFRESH_INTERVAL_SECONDS"
	EnvBucketCap              = "PHARMACACHE_BUCKET_CAP"
	EnvSnapshotPath           = "PHARMACACHE_SNAPSHOT_PATH"
	EnvLogLevel               = "PHARMACACHE_LOG_LEVEL"
)

// Validation errors.
var (
	ErrNonPositiveValidity = errors.New("cache.validity_seconds must be > 0")
	ErrNonPositiveInterval = errors.New("cache.refresh_interval_seconds must be > 0")
	ErrStaleBeyondValidity = errors.New("cache.stale_after_seconds must be <= cache.validity_seconds")
)

// Config is the root configuration.
type Config struct {
	Cache    CacheConfig    `yaml:"cache"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// CacheConfig tunes the cache engine.
type CacheConfig struct {
	// ValiditySeconds is how long a bucket is served as fresh.
	ValiditySeconds int `yaml:"validity_seconds"`

	// StaleAfterSeconds is the background-refresh staleness threshold.
	StaleAfterSeconds int `yaml:"stale_after_seconds"`

	// RefreshIntervalSeconds is the scheduler tick.
	RefreshIntervalSeconds int `yaml:"refresh_interval_seconds"`

	// BucketCap bounds retained buckets per domain (0 = unbounded).
	BucketCap int `yaml:"bucket_cap"`
}

// SnapshotConfig controls warm-start persistence.
type SnapshotConfig struct {
	// Enabled toggles persistence. When off, the cache lives and dies with
	// the process.
	Enabled bool `yaml:"enabled"`

	// Path is the snapshot slot; empty resolves to
	// ~/.pharmacache/snapshot.json.
	Path string `yaml:"path"`
}

// LoggingConfig controls zerolog output.
type LoggingConfig struct {
	// Level is any zerolog level name (debug, info, warn, error).
	Level string `yaml:"level"`

	// Format is "console" or "json".
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Cache: CacheConfig{
			ValiditySeconds:        DefaultValiditySeconds,
			StaleAfterSeconds:      DefaultStaleAfterSeconds,
			RefreshIntervalSeconds: DefaultRefreshIntervalSeconds,
			BucketCap:              DefaultBucketCap,
		},
		Snapshot: SnapshotConfig{Enabled: true},
		Logging:  LoggingConfig{Level: "info", Format: "console"},
	}
}

// Load reads the config file at path, layers environment overrides on top,
// and validates the result. A missing file is not an error — defaults plus
// environment apply. An empty path resolves to the per-user location.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err == nil {
			path = defaultPath
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// Defaults apply.
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays PHARMACACHE_* environment variables. Unparseable values
// are ignored in favor of whatever the file or defaults set.
func (c *Config) applyEnv() {
	if v, ok := envInt(EnvValiditySeconds); ok {
		c.Cache.ValiditySeconds = v
	}
	if v, ok := envInt(EnvStaleAfterSeconds); ok {
		c.Cache.StaleAfterSeconds = v
	}
	if v, ok := envInt(EnvRefreshIntervalSeconds); ok {
		c.Cache.RefreshIntervalSeconds = v
	}
	if v, ok := envInt(EnvBucketCap); ok {
		c.Cache.BucketCap = v
	}
	if v := os.Getenv(EnvSnapshotPath); v != "" {
		c.Snapshot.Path = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate checks the tuning values for internal consistency.
func (c *Config) Validate() error {
	if c.Cache.ValiditySeconds <= 0 {
		return fmt.Errorf("%w: got %d", ErrNonPositiveValidity, c.Cache.ValiditySeconds)
	}
	if c.Cache.RefreshIntervalSeconds <= 0 {
		return fmt.Errorf("%w: got %d", ErrNonPositiveInterval, c.Cache.RefreshIntervalSeconds)
	}
	if c.Cache.StaleAfterSeconds > c.Cache.ValiditySeconds {
		return fmt.Errorf("%w: %d > %d", ErrStaleBeyondValidity,
			c.Cache.StaleAfterSeconds, c.Cache.ValiditySeconds)
	}
	return nil
}

// Validity returns the freshness window as a duration.
func (c CacheConfig) Validity() time.Duration {
	return time.Duration(c.ValiditySeconds) * time.Second
}

// StaleAfter returns the staleness threshold as a duration.
func (c CacheConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterSeconds) * time.Second
}

// RefreshInterval returns the scheduler tick as a duration.
func (c CacheConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalSeconds) * time.Second
}

// SnapshotPath resolves the persistence slot, creating nothing. Returns an
// empty string when persistence is disabled.
func (c *Config) SnapshotPath() (string, error) {
	if !c.Snapshot.Enabled {
		return "", nil
	}
	if c.Snapshot.Path != "" {
		return c.Snapshot.Path, nil
	}
	dir, err := appDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, snapshotFileName), nil
}

// DefaultConfigPath returns ~/.pharmacache/config.yaml.
func DefaultConfigPath() (string, error) {
	dir, err := appDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func appDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, configDirName), nil
}

// WriteDefault writes a commented default config file at path, refusing to
// overwrite an existing one.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0600)
}

const defaultConfigYAML = `# pharmacache configuration
cache:
  # How long a cached window is served without refetching (seconds).
  validity_seconds: 300
  # Age at which the background scheduler refreshes the active window.
  # Keep this below validity_seconds so refresh beats passive misses.
  stale_after_seconds: 120
  # Background staleness check interval (seconds).
  refresh_interval_seconds: 30
  # Retained windows per domain before least-recently-served eviction.
  bucket_cap: 32

snapshot:
  # Persist cached windows for instant rendering after a relaunch.
  enabled: true
  # Defaults to ~/.pharmacache/snapshot.json when empty.
  path: ""

logging:
  level: info
  format: console
`
