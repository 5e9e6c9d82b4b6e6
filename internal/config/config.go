// Package config loads and validates Flint configuration with layered
// precedence: hardcoded defaults, then the user config, then the vault
// config, then FLINT_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete Flint configuration.
type Config struct {
	Version int           `yaml:"version" json:"version"`
	Vault   VaultConfig   `yaml:"vault" json:"vault"`
	Sync    SyncConfig    `yaml:"sync" json:"sync"`
	Storage StorageConfig `yaml:"storage" json:"storage"`
	Index   IndexConfig   `yaml:"index" json:"index"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// VaultConfig configures the note vault.
type VaultConfig struct {
	// Root is the vault directory. Usually set by flag, not file.
	Root string `yaml:"root" json:"root"`

	// ScanOnStart imports untracked markdown files at startup. A pointer
	// so an explicit false in a config file is distinguishable from the
	// field being absent; unset means enabled.
	ScanOnStart *bool `yaml:"scan_on_start" json:"scan_on_start"`
}

// SyncConfig configures the write queue and change watcher.
// Durations are strings ("1s", "200ms") so config files stay readable.
type SyncConfig struct {
	// WriteDebounce is how long a note must stay quiet before its pending
	// write flushes to disk. Default: "1s".
	WriteDebounce string `yaml:"write_debounce" json:"write_debounce"`

	// WatchDebounce is the watcher-side coalescing window for external
	// change events. Default: "200ms".
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`

	// PollInterval is the fallback polling cadence when fsnotify is
	// unavailable. Default: "5s".
	PollInterval string `yaml:"poll_interval" json:"poll_interval"`

	// MaxRetries is how many times a failed disk write is retried.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// RetryInitialDelay is the first retry backoff. Default: "100ms".
	RetryInitialDelay string `yaml:"retry_initial_delay" json:"retry_initial_delay"`

	// RetryMaxDelay caps the backoff ladder. Default: "1s".
	RetryMaxDelay string `yaml:"retry_max_delay" json:"retry_max_delay"`

	// EventBufferSize is the watcher's event channel capacity.
	EventBufferSize int `yaml:"event_buffer_size" json:"event_buffer_size"`
}

// StorageConfig configures the record store.
type StorageConfig struct {
	// DBPath is the SQLite database location, relative to the vault's
	// .flint directory when not absolute. Default: "notes.db".
	DBPath string `yaml:"db_path" json:"db_path"`

	// CacheSize is the record LRU cache capacity. Default: 512.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// IndexConfig configures full-text search.
type IndexConfig struct {
	// Enabled controls whether notes are indexed. Default: true.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Path is the bleve index location, relative to the vault's .flint
	// directory when not absolute. Default: "index.bleve".
	Path string `yaml:"path" json:"path"`

	// MaxResults bounds search result sets. Default: 20.
	MaxResults int `yaml:"max_results" json:"max_results"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error. Default: "info".
	Level string `yaml:"level" json:"level"`

	// File is the log file path; empty logs to stderr.
	File string `yaml:"file" json:"file"`

	// MaxSizeMB rotates the log file past this size. Default: 10.
	MaxSizeMB int `yaml:"max_size_mb" json:"max_size_mb"`

	// MaxBackups is how many rotated files to keep. Default: 3.
	MaxBackups int `yaml:"max_backups" json:"max_backups"`

	// MaxAgeDays prunes rotated files older than this. Default: 30.
	MaxAgeDays int `yaml:"max_age_days" json:"max_age_days"`
}

// NewConfig returns a Config with defaults applied.
func NewConfig() *Config {
	scanOnStart := true
	return &Config{
		Version: 1,
		Vault: VaultConfig{
			ScanOnStart: &scanOnStart,
		},
		Sync: SyncConfig{
			WriteDebounce:     "1s",
			WatchDebounce:     "200ms",
			PollInterval:      "5s",
			MaxRetries:        3,
			RetryInitialDelay: "100ms",
			RetryMaxDelay:     "1s",
			EventBufferSize:   256,
		},
		Storage: StorageConfig{
			DBPath:    "notes.db",
			CacheSize: 512,
		},
		Index: IndexConfig{
			Enabled:    true,
			Path:       "index.bleve",
			MaxResults: 20,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 30,
		},
	}
}

// GetUserConfigPath returns the user configuration path following XDG:
// $XDG_CONFIG_HOME/flint/config.yaml, else ~/.config/flint/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "flint", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "flint", "config.yaml")
	}
	return filepath.Join(home, ".config", "flint", "config.yaml")
}

// UserConfigExists reports whether a user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// StateDir returns the vault's .flint state directory.
func StateDir(vaultRoot string) string {
	return filepath.Join(vaultRoot, ".flint")
}

// VaultConfigPath returns the per-vault config file location.
func VaultConfigPath(vaultRoot string) string {
	return filepath.Join(StateDir(vaultRoot), "config.yaml")
}

// Load loads configuration for a vault in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/flint/config.yaml)
//  3. Vault config (<vault>/.flint/config.yaml)
//  4. Environment variables (FLINT_*)
func Load(vaultRoot string) (*Config, error) {
	cfg := NewConfig()
	cfg.Vault.Root = vaultRoot

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("load user config: %w", err)
		}
	}

	if path := VaultConfigPath(vaultRoot); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("load vault config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadYAML parses a YAML file and merges its non-zero values.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c. Vault.Root is never
// merged from files; it comes from the caller or flags.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Sync.WriteDebounce != "" {
		c.Sync.WriteDebounce = other.Sync.WriteDebounce
	}
	if other.Sync.WatchDebounce != "" {
		c.Sync.WatchDebounce = other.Sync.WatchDebounce
	}
	if other.Sync.PollInterval != "" {
		c.Sync.PollInterval = other.Sync.PollInterval
	}
	if other.Sync.MaxRetries != 0 {
		c.Sync.MaxRetries = other.Sync.MaxRetries
	}
	if other.Sync.RetryInitialDelay != "" {
		c.Sync.RetryInitialDelay = other.Sync.RetryInitialDelay
	}
	if other.Sync.RetryMaxDelay != "" {
		c.Sync.RetryMaxDelay = other.Sync.RetryMaxDelay
	}
	if other.Sync.EventBufferSize != 0 {
		c.Sync.EventBufferSize = other.Sync.EventBufferSize
	}

	if other.Storage.DBPath != "" {
		c.Storage.DBPath = other.Storage.DBPath
	}
	if other.Storage.CacheSize != 0 {
		c.Storage.CacheSize = other.Storage.CacheSize
	}

	// Index.Enabled defaults true; a file can only disable it alongside
	// another index field so a bare zero value is not misread.
	if other.Index.Path != "" || other.Index.MaxResults != 0 {
		c.Index.Enabled = other.Index.Enabled
	}
	if other.Index.Path != "" {
		c.Index.Path = other.Index.Path
	}
	if other.Index.MaxResults != 0 {
		c.Index.MaxResults = other.Index.MaxResults
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.File != "" {
		c.Logging.File = other.Logging.File
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxBackups != 0 {
		c.Logging.MaxBackups = other.Logging.MaxBackups
	}
	if other.Logging.MaxAgeDays != 0 {
		c.Logging.MaxAgeDays = other.Logging.MaxAgeDays
	}

	if other.Vault.ScanOnStart != nil {
		c.Vault.ScanOnStart = other.Vault.ScanOnStart
	}
}

// applyEnvOverrides applies FLINT_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("FLINT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("FLINT_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
	if v := os.Getenv("FLINT_WRITE_DEBOUNCE"); v != "" {
		c.Sync.WriteDebounce = v
	}
	if v := os.Getenv("FLINT_WATCH_DEBOUNCE"); v != "" {
		c.Sync.WatchDebounce = v
	}
	if v := os.Getenv("FLINT_POLL_INTERVAL"); v != "" {
		c.Sync.PollInterval = v
	}
	if v := os.Getenv("FLINT_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Sync.MaxRetries = n
		}
	}
	if v := os.Getenv("FLINT_DB_PATH"); v != "" {
		c.Storage.DBPath = v
	}
	if v := os.Getenv("FLINT_INDEX_ENABLED"); v != "" {
		c.Index.Enabled = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("FLINT_SCAN_ON_START"); v != "" {
		enabled := strings.ToLower(v) == "true" || v == "1"
		c.Vault.ScanOnStart = &enabled
	}
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	for name, value := range map[string]string{
		"sync.write_debounce":      c.Sync.WriteDebounce,
		"sync.watch_debounce":      c.Sync.WatchDebounce,
		"sync.poll_interval":       c.Sync.PollInterval,
		"sync.retry_initial_delay": c.Sync.RetryInitialDelay,
		"sync.retry_max_delay":     c.Sync.RetryMaxDelay,
	} {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%s is not a valid duration: %q", name, value)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %q", name, value)
		}
	}

	if c.Sync.MaxRetries < 0 || c.Sync.MaxRetries > 10 {
		return fmt.Errorf("sync.max_retries must be between 0 and 10, got %d", c.Sync.MaxRetries)
	}
	if c.Storage.CacheSize <= 0 {
		return fmt.Errorf("storage.cache_size must be positive, got %d", c.Storage.CacheSize)
	}
	if c.Index.MaxResults <= 0 {
		return fmt.Errorf("index.max_results must be positive, got %d", c.Index.MaxResults)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// ScanOnStartEnabled reports whether the startup vault scan should run.
func (c *Config) ScanOnStartEnabled() bool {
	return c.Vault.ScanOnStart == nil || *c.Vault.ScanOnStart
}

// WriteDebounceDuration returns the parsed write debounce. Call Validate
// first; an unparseable value falls back to the default.
func (c *Config) WriteDebounceDuration() time.Duration {
	return parseDuration(c.Sync.WriteDebounce, time.Second)
}

// WatchDebounceDuration returns the parsed watcher debounce window.
func (c *Config) WatchDebounceDuration() time.Duration {
	return parseDuration(c.Sync.WatchDebounce, 200*time.Millisecond)
}

// PollIntervalDuration returns the parsed polling fallback interval.
func (c *Config) PollIntervalDuration() time.Duration {
	return parseDuration(c.Sync.PollInterval, 5*time.Second)
}

// RetryInitialDelayDuration returns the parsed first retry backoff.
func (c *Config) RetryInitialDelayDuration() time.Duration {
	return parseDuration(c.Sync.RetryInitialDelay, 100*time.Millisecond)
}

// RetryMaxDelayDuration returns the parsed retry backoff cap.
func (c *Config) RetryMaxDelayDuration() time.Duration {
	return parseDuration(c.Sync.RetryMaxDelay, time.Second)
}

// ResolveDBPath returns the absolute database path for a vault.
func (c *Config) ResolveDBPath(vaultRoot string) string {
	if filepath.IsAbs(c.Storage.DBPath) {
		return c.Storage.DBPath
	}
	return filepath.Join(StateDir(vaultRoot), c.Storage.DBPath)
}

// ResolveIndexPath returns the absolute search index path for a vault.
func (c *Config) ResolveIndexPath(vaultRoot string) string {
	if filepath.IsAbs(c.Index.Path) {
		return c.Index.Path
	}
	return filepath.Join(StateDir(vaultRoot), c.Index.Path)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// FindVaultRoot walks up from startDir looking for an existing .flint
// state directory. Returns startDir (absolute) when none is found.
func FindVaultRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path: %w", err)
	}

	current := absDir
	for {
		if dirExists(filepath.Join(current, ".flint")) {
			return current, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return absDir, nil
		}
		current = parent
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
