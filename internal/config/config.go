// Package config provides configuration management for gotab.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hfi/gotab/internal/audit"
	"github.com/hfi/gotab/internal/logging"
	"github.com/hfi/gotab/internal/mapping"
	"github.com/hfi/gotab/internal/resolver"
	"github.com/hfi/gotab/internal/storage"
	"github.com/hfi/gotab/pkg/urlcheck"
)

// DefaultFileName is the config file looked up in the working directory
const DefaultFileName = "config.yaml"

// Config represents the main configuration structure
type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Resolver ResolverConfig `yaml:"resolver"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// StorageConfig contains mapping storage settings
type StorageConfig struct {
	Type  string      `yaml:"type"` // "file", "memory" or "redis"
	Key   string      `yaml:"key"`  // key the mapping set is stored under
	File  FileConfig  `yaml:"file"`
	Redis RedisConfig `yaml:"redis"`
}

// FileConfig contains file backend settings
type FileConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"` //#nosec G117 -- Password field is intentional for Redis auth config
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// ResolverConfig contains keyword resolution settings
type ResolverConfig struct {
	// SearchURL is the fallback search template; {query} is replaced by
	// the percent-encoded text.
	SearchURL string `yaml:"search_url"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string       `yaml:"level"`
	Format string       `yaml:"format"`
	Audit  audit.Config `yaml:"audit"`
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Type: storage.TypeFile,
			Key:  mapping.DefaultKey,
			File: FileConfig{
				Path: storage.DefaultFileName,
			},
			Redis: RedisConfig{
				Address: "localhost:6379",
				DB:      0,
				Prefix:  storage.DefaultRedisPrefix,
			},
		},
		Resolver: ResolverConfig{
			SearchURL: resolver.DefaultSearchURL,
		},
		Server: ServerConfig{
			Listen: "127.0.0.1:8787",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Audit:  defaultAudit(),
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// defaultAudit keeps the audit trail off until an output is chosen, so
// one-shot CLI commands do not interleave audit lines with their output.
func defaultAudit() audit.Config {
	cfg := *audit.DefaultConfig()
	cfg.Enabled = false
	return cfg
}

// Load loads the configuration from the file named by GOTAB_CONFIG, or
// config.yaml in the working directory, then applies environment overrides.
// A missing file yields the defaults.
func Load() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getwd: %w", err)
	}

	configPath := os.Getenv("GOTAB_CONFIG")
	if configPath == "" {
		configPath = DefaultFileName
	}

	// Sanitize and validate path to prevent path traversal
	configPath, err = sanitizeConfigPath(configPath, wd)
	if err != nil {
		return nil, err
	}

	return load(configPath, true)
}

// LoadFile loads the configuration from an explicitly given path, which
// must exist, then applies environment overrides.
func LoadFile(path string) (*Config, error) {
	return load(path, false)
}

func load(path string, optional bool) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path) //#nosec G304 -- path is sanitized or given explicitly by the operator
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			// No config file, use defaults
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides lets GOTAB_* variables replace file settings
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GOTAB_STORAGE_TYPE"); v != "" {
		c.Storage.Type = v
	}
	if v := os.Getenv("GOTAB_STORAGE_PATH"); v != "" {
		c.Storage.File.Path = v
	}
	if v := os.Getenv("GOTAB_REDIS_ADDR"); v != "" {
		c.Storage.Redis.Address = v
	}
	if v := os.Getenv("GOTAB_REDIS_PASSWORD"); v != "" {
		c.Storage.Redis.Password = v
	}
	if v := os.Getenv("GOTAB_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Storage.Redis.DB = db
		}
	}
	if v := os.Getenv("GOTAB_SEARCH_URL"); v != "" {
		c.Resolver.SearchURL = v
	}
	if v := os.Getenv("GOTAB_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("GOTAB_LISTEN"); v != "" {
		c.Server.Listen = v
	}
}

// Validate checks the configuration for values that cannot work
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case storage.TypeFile, storage.TypeMemory, storage.TypeRedis:
	default:
		return fmt.Errorf("storage.type %q: must be file, memory or redis", c.Storage.Type)
	}
	if strings.TrimSpace(c.Storage.Key) == "" {
		return errors.New("storage.key must not be empty")
	}
	if c.Storage.Type == storage.TypeRedis && c.Storage.Redis.Address == "" {
		return errors.New("storage.redis.address must be set for the redis backend")
	}

	search := c.Resolver.SearchURL
	if !strings.Contains(search, resolver.QueryPlaceholder) {
		return fmt.Errorf("resolver.search_url must contain %s", resolver.QueryPlaceholder)
	}
	if !urlcheck.IsValid(strings.ReplaceAll(search, resolver.QueryPlaceholder, "q")) {
		return fmt.Errorf("resolver.search_url %q: %s", search, urlcheck.Reason(search))
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

// StorageOptions converts the storage section for storage.New
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Type:          c.Storage.Type,
		FilePath:      c.Storage.File.Path,
		RedisAddress:  c.Storage.Redis.Address,
		RedisPassword: c.Storage.Redis.Password,
		RedisDB:       c.Storage.Redis.DB,
		RedisPrefix:   c.Storage.Redis.Prefix,
	}
}

// LoggerConfig returns the settings for logging.New
func (c *Config) LoggerConfig() logging.Config {
	return logging.Config{Level: c.Logging.Level, Format: c.Logging.Format}
}

// sanitizeConfigPath resolves path against baseDir and rejects any result
// outside baseDir.
func sanitizeConfigPath(path, baseDir string) (string, error) {
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("resolve base directory: %w", err)
	}

	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(absBase, resolved)
	}
	resolved = filepath.Clean(resolved)

	rel, err := filepath.Rel(absBase, resolved)
	if err != nil {
		return "", fmt.Errorf("path traversal detected: %s", path)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected: %s", path)
	}

	return resolved, nil
}
