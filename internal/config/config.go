// ABOUTME: Configuration loading and parsing for loom
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete loom configuration
type Config struct {
	Backend    BackendConfig    `yaml:"backend"`
	Credential CredentialConfig `yaml:"credential"`
	Cache      CacheConfig      `yaml:"cache"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// BackendConfig holds conversation backend configuration
type BackendConfig struct {
	BaseURL string `yaml:"base_url"`

	Timeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TimeoutRaw string `yaml:"timeout"`
}

// CredentialConfig holds session credential configuration
type CredentialConfig struct {
	// Path is where the captured session credential is persisted.
	Path string `yaml:"path"`

	LoginTimeout time.Duration `yaml:"-"`

	// KeepLoginVisible keeps the interactive login surface on screen after
	// a credential is captured. Debugging aid only; the authenticator is
	// the sole consumer.
	KeepLoginVisible bool `yaml:"keep_login_visible"`

	// Raw string value for YAML unmarshaling
	LoginTimeoutRaw string `yaml:"login_timeout"`
}

// CacheConfig holds local conversation cache configuration
type CacheConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`

	// File receives a JSON copy of the log stream when set.
	File string `yaml:"file"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills unset fields with their defaults.
func (c *Config) applyDefaults() {
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = "https://chat.openai.com/backend-api"
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = 2 * time.Minute
	}
	if c.Credential.LoginTimeout == 0 {
		c.Credential.LoginTimeout = 5 * time.Minute
	}

	stateDir := defaultStateDir()
	if c.Credential.Path == "" {
		c.Credential.Path = filepath.Join(stateDir, "credential.json")
	}
	if c.Cache.Path == "" {
		c.Cache.Path = filepath.Join(stateDir, "conversations.db")
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// defaultStateDir resolves the per-user state directory, falling back to the
// working directory when the home cannot be determined.
func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".loom"
	}
	return filepath.Join(home, ".loom")
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if c.Backend.Timeout < 0 {
		return fmt.Errorf("backend.timeout must not be negative")
	}
	if c.Credential.LoginTimeout <= 0 {
		return fmt.Errorf("credential.login_timeout must be positive")
	}
	if c.Credential.Path == "" {
		return fmt.Errorf("credential.path is required")
	}
	if c.Cache.Path == "" {
		return fmt.Errorf("cache.path is required")
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Backend.TimeoutRaw != "" {
		cfg.Backend.Timeout, err = time.ParseDuration(cfg.Backend.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing backend.timeout %q: %w", cfg.Backend.TimeoutRaw, err)
		}
	}

	if cfg.Credential.LoginTimeoutRaw != "" {
		cfg.Credential.LoginTimeout, err = time.ParseDuration(cfg.Credential.LoginTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing credential.login_timeout %q: %w", cfg.Credential.LoginTimeoutRaw, err)
		}
	}

	return nil
}
