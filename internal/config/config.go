package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends selectable with the backend key.
const (
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
	BackendMemory = "memory"
)

// keys lists the configuration keys accepted by Get and Update.
var keys = []string{
	"backend",
	"db-path",
	"media-dir",
	"poll-interval-ms",
	"sweep-interval-seconds",
	"log-level",
	"log-format",
}

// Keys returns the configuration keys accepted by Get and Update.
func Keys() []string {
	return slices.Clone(keys)
}

// IsKey reports whether key is a configuration key.
func IsKey(key string) bool {
	return slices.Contains(keys, key)
}

// Config represents the clipkeep process configuration. Clipboard policy
// lives in the preference table, not here.
type Config struct {
	Backend              string `yaml:"backend"`
	DBPath               string `yaml:"db_path,omitempty"`
	MediaDir             string `yaml:"media_dir,omitempty"`
	PollIntervalMs       int    `yaml:"poll_interval_ms"`
	SweepIntervalSeconds int    `yaml:"sweep_interval_seconds"`
	LogLevel             string `yaml:"log_level"`
	LogFormat            string `yaml:"log_format"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Backend:              BackendSQLite,
		PollIntervalMs:       250,
		SweepIntervalSeconds: 10,
		LogLevel:             "info",
		LogFormat:            "auto",
	}
}

// PollInterval returns the host clipboard poll interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// SweepInterval returns the eviction interval.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// ConfigDir returns ~/.config/clipkeep.
func ConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "clipkeep"), nil
}

// ResolveDBPath returns the database file for the configured backend. An
// empty db_path picks a file in the config directory; a relative one is
// taken relative to it. The memory backend has no file.
func (c *Config) ResolveDBPath() (string, error) {
	if c.Backend == BackendMemory {
		return "", nil
	}
	if filepath.IsAbs(c.DBPath) {
		return c.DBPath, nil
	}

	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	name := c.DBPath
	if name == "" {
		name = "history.db"
		if c.Backend == BackendBolt {
			name = "history.bolt"
		}
	}
	return filepath.Join(dir, name), nil
}

// ConfigManager manages configuration persistence
type ConfigManager struct {
	configPath string
}

// NewConfigManager creates a new configuration manager
func NewConfigManager() (*ConfigManager, error) {
	configDir, err := ConfigDir()
	if err != nil {
		return nil, err
	}

	return &ConfigManager{
		configPath: filepath.Join(configDir, "config.yaml"),
	}, nil
}

// NewConfigManagerWithPath creates a config manager with custom config path
func NewConfigManagerWithPath(configPath string) *ConfigManager {
	return &ConfigManager{
		configPath: configPath,
	}
}

// Load reads the configuration from file, or returns default if file doesn't exist.
// Keys missing from the file keep their defaults.
func (cm *ConfigManager) Load() (*Config, error) {
	if _, err := os.Stat(cm.configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(cm.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := validate(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Save writes the configuration to file
func (cm *ConfigManager) Save(config *Config) error {
	if err := validate(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	configDir := filepath.Dir(cm.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(cm.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks every field against its allowed values.
func (c *Config) Validate() error {
	return validate(c)
}

func validate(config *Config) error {
	switch config.Backend {
	case BackendSQLite, BackendBolt, BackendMemory:
	default:
		return fmt.Errorf("backend must be one of sqlite, bolt, memory")
	}

	if config.PollIntervalMs < 10 || config.PollIntervalMs > 60000 {
		return fmt.Errorf("poll_interval_ms must be between 10 and 60000")
	}

	if config.SweepIntervalSeconds < 1 || config.SweepIntervalSeconds > 3600 {
		return fmt.Errorf("sweep_interval_seconds must be between 1 and 3600")
	}

	switch config.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error")
	}

	switch config.LogFormat {
	case "auto", "text", "json":
	default:
		return fmt.Errorf("log_format must be one of auto, text, json")
	}

	return nil
}

// GetConfigPath returns the path to the config file
func (cm *ConfigManager) GetConfigPath() string {
	return cm.configPath
}

// Update modifies a specific configuration value
func (cm *ConfigManager) Update(key, value string) error {
	config, err := cm.Load()
	if err != nil {
		return err
	}

	switch key {
	case "backend":
		config.Backend = value
	case "db-path":
		config.DBPath = value
	case "media-dir":
		config.MediaDir = value
	case "poll-interval-ms":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for poll-interval-ms: %s", value)
		}
		config.PollIntervalMs = n
	case "sweep-interval-seconds":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for sweep-interval-seconds: %s", value)
		}
		config.SweepIntervalSeconds = n
	case "log-level":
		config.LogLevel = value
	case "log-format":
		config.LogFormat = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}

	return cm.Save(config)
}

// Get returns the value for a specific configuration key
func (cm *ConfigManager) Get(key string) (string, error) {
	values, err := cm.List()
	if err != nil {
		return "", err
	}

	value, ok := values[key]
	if !ok {
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
	return value, nil
}

// List returns all configuration keys and values
func (cm *ConfigManager) List() (map[string]string, error) {
	config, err := cm.Load()
	if err != nil {
		return nil, err
	}

	result := map[string]string{
		"backend":                config.Backend,
		"db-path":                config.DBPath,
		"media-dir":              config.MediaDir,
		"poll-interval-ms":       strconv.Itoa(config.PollIntervalMs),
		"sweep-interval-seconds": strconv.Itoa(config.SweepIntervalSeconds),
		"log-level":              config.LogLevel,
		"log-format":             config.LogFormat,
	}

	for _, key := range []string{"db-path", "media-dir"} {
		if result[key] == "" {
			result[key] = "[default]"
		}
	}

	return result, nil
}
