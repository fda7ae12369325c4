// Package config loads and validates the gateway configuration.
// Precedence, lowest to highest: built-in defaults, user config
// (~/.config/docgate/config.yaml), project config (docgate.yaml),
// DOCGATE_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete gateway configuration.
type Config struct {
	Version int           `yaml:"version" json:"version"`
	Engine  EngineConfig  `yaml:"engine" json:"engine"`
	Server  ServerConfig  `yaml:"server" json:"server"`
	Search  SearchConfig  `yaml:"search" json:"search"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// EngineConfig selects and locates the search engine backend.
// Changing these fields requires a restart; the config watcher only
// warns when they change on disk.
type EngineConfig struct {
	// Backend is "bleve" (default) or "sqlite".
	Backend string `yaml:"backend" json:"backend"`
	// DataDir is where indices are stored. Empty means in-memory.
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`

	// RateRPS is the sustained per-client request rate.
	RateRPS float64 `yaml:"rate_rps" json:"rate_rps"`
	// RateBurst is the per-client burst allowance.
	RateBurst int `yaml:"rate_burst" json:"rate_burst"`
	// RateClientCacheSize bounds the per-client limiter table.
	RateClientCacheSize int `yaml:"rate_client_cache_size" json:"rate_client_cache_size"`

	// ShutdownTimeout is how long graceful shutdown waits (e.g. "10s").
	ShutdownTimeout string `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// SearchConfig configures search result sizing.
type SearchConfig struct {
	// DefaultLimit applies when a request carries no limit.
	DefaultLimit int `yaml:"default_limit" json:"default_limit"`
	// MaxLimit caps any requested limit.
	MaxLimit int `yaml:"max_limit" json:"max_limit"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	// Applied live on config reload.
	Level string `yaml:"level" json:"level"`
	// File is the log file path. Empty means stderr only.
	File string `yaml:"file" json:"file"`
	// MaxSizeMB is the rotation threshold.
	MaxSizeMB int `yaml:"max_size_mb" json:"max_size_mb"`
	// MaxFiles is how many rotated files to keep.
	MaxFiles int `yaml:"max_files" json:"max_files"`
}

// ProjectConfigName is the per-project config file name.
const ProjectConfigName = "docgate.yaml"

// NewConfig returns the built-in defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Engine: EngineConfig{
			Backend: "bleve",
			DataDir: defaultDataDir(),
		},
		Server: ServerConfig{
			Host:                "127.0.0.1",
			Port:                8190,
			RateRPS:             25,
			RateBurst:           50,
			RateClientCacheSize: 1024,
			ShutdownTimeout:     "10s",
		},
		Search: SearchConfig{
			DefaultLimit: 20,
			MaxLimit:     100,
		},
		Logging: LoggingConfig{
			Level:     "info",
			File:      "",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// defaultDataDir returns the default index storage directory.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".docgate", "indices")
	}
	return filepath.Join(home, ".docgate", "indices")
}

// GetUserConfigPath returns the user/global configuration path,
// following the XDG Base Directory convention.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "docgate", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "docgate", "config.yaml")
	}
	return filepath.Join(home, ".config", "docgate", "config.yaml")
}

// Load builds the effective configuration for a project directory.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	projectPath := filepath.Join(dir, ProjectConfigName)
	if fileExists(projectPath) {
		if err := cfg.loadYAML(projectPath); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFile loads a single explicit config file over the defaults.
// Used by the --config flag and the config watcher.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadYAML parses path and merges its non-zero values into c.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Engine.Backend != "" {
		c.Engine.Backend = other.Engine.Backend
	}
	if other.Engine.DataDir != "" {
		c.Engine.DataDir = other.Engine.DataDir
	}

	if other.Server.Host != "" {
		c.Server.Host = other.Server.Host
	}
	if other.Server.Port != 0 {
		c.Server.Port = other.Server.Port
	}
	if other.Server.RateRPS != 0 {
		c.Server.RateRPS = other.Server.RateRPS
	}
	if other.Server.RateBurst != 0 {
		c.Server.RateBurst = other.Server.RateBurst
	}
	if other.Server.RateClientCacheSize != 0 {
		c.Server.RateClientCacheSize = other.Server.RateClientCacheSize
	}
	if other.Server.ShutdownTimeout != "" {
		c.Server.ShutdownTimeout = other.Server.ShutdownTimeout
	}

	if other.Search.DefaultLimit != 0 {
		c.Search.DefaultLimit = other.Search.DefaultLimit
	}
	if other.Search.MaxLimit != 0 {
		c.Search.MaxLimit = other.Search.MaxLimit
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
	if other.Logging.MaxFiles != 0 {
		c.Logging.MaxFiles = other.Logging.MaxFiles
	}
}

// applyEnvOverrides applies DOCGATE_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DOCGATE_ENGINE_BACKEND"); v != "" {
		c.Engine.Backend = v
	}
	if v := os.Getenv("DOCGATE_DATA_DIR"); v != "" {
		c.Engine.DataDir = v
	}
	if v := os.Getenv("DOCGATE_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("DOCGATE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("DOCGATE_RATE_RPS"); v != "" {
		if r, err := strconv.ParseFloat(v, 64); err == nil && r > 0 {
			c.Server.RateRPS = r
		}
	}
	if v := os.Getenv("DOCGATE_RATE_BURST"); v != "" {
		if b, err := strconv.Atoi(v); err == nil && b > 0 {
			c.Server.RateBurst = b
		}
	}
	if v := os.Getenv("DOCGATE_MAX_LIMIT"); v != "" {
		if m, err := strconv.Atoi(v); err == nil && m > 0 {
			c.Search.MaxLimit = m
		}
	}
	if v := os.Getenv("DOCGATE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("DOCGATE_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
}

// Validate checks the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Engine.Backend) {
	case "bleve", "sqlite":
	default:
		return fmt.Errorf("engine.backend must be 'bleve' or 'sqlite', got %s", c.Engine.Backend)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RateRPS <= 0 {
		return fmt.Errorf("server.rate_rps must be positive, got %g", c.Server.RateRPS)
	}
	if c.Server.RateBurst < 1 {
		return fmt.Errorf("server.rate_burst must be at least 1, got %d", c.Server.RateBurst)
	}
	if c.Server.RateClientCacheSize < 1 {
		return fmt.Errorf("server.rate_client_cache_size must be at least 1, got %d", c.Server.RateClientCacheSize)
	}

	if c.Search.DefaultLimit < 1 {
		return fmt.Errorf("search.default_limit must be at least 1, got %d", c.Search.DefaultLimit)
	}
	if c.Search.MaxLimit < c.Search.DefaultLimit {
		return fmt.Errorf("search.max_limit (%d) must be >= search.default_limit (%d)",
			c.Search.MaxLimit, c.Search.DefaultLimit)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// Addr returns the host:port the HTTP server binds to.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
