// ABOUTME: Configuration loading and parsing for the skillforge chat client
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete chat client configuration
type Config struct {
	API     APIConfig     `yaml:"api"`
	Channel ChannelConfig `yaml:"channel"`
	Cache   CacheConfig   `yaml:"cache"`
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig holds REST endpoint configuration
type APIConfig struct {
	BaseURL string `yaml:"base_url"`

	Timeout    time.Duration `yaml:"-"`
	TimeoutRaw string        `yaml:"timeout"`
}

// ChannelConfig holds the realtime event channel configuration
type ChannelConfig struct {
	URL                  string `yaml:"url"`
	ReconnectMaxAttempts int    `yaml:"reconnect_max_attempts"`

	ReconnectBackoff    time.Duration `yaml:"-"`
	ReconnectMaxBackoff time.Duration `yaml:"-"`
	TypingTimeout       time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	ReconnectBackoffRaw    string `yaml:"reconnect_backoff"`
	ReconnectMaxBackoffRaw string `yaml:"reconnect_max_backoff"`
	TypingTimeoutRaw       string `yaml:"typing_timeout"`
}

// CacheConfig holds the offline cache database configuration
type CacheConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied when the file leaves a field unset.
const (
	defaultAPITimeout           = 15 * time.Second
	defaultReconnectMaxAttempts = 5
	defaultReconnectBackoff     = time.Second
	defaultReconnectMaxBackoff  = 30 * time.Second
	defaultTypingTimeout        = 2 * time.Second
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.Channel.URL == "" {
		return fmt.Errorf("channel.url is required")
	}
	if c.Channel.ReconnectMaxAttempts < 0 {
		return fmt.Errorf("channel.reconnect_max_attempts must not be negative")
	}
	if c.Cache.Path == "" {
		return fmt.Errorf("cache.path is required")
	}
	return nil
}

// applyDefaults fills in zero-valued optional fields.
func (c *Config) applyDefaults() {
	if c.API.Timeout == 0 {
		c.API.Timeout = defaultAPITimeout
	}
	if c.Channel.ReconnectMaxAttempts == 0 {
		c.Channel.ReconnectMaxAttempts = defaultReconnectMaxAttempts
	}
	if c.Channel.ReconnectBackoff == 0 {
		c.Channel.ReconnectBackoff = defaultReconnectBackoff
	}
	if c.Channel.ReconnectMaxBackoff == 0 {
		c.Channel.ReconnectMaxBackoff = defaultReconnectMaxBackoff
	}
	if c.Channel.TypingTimeout == 0 {
		c.Channel.TypingTimeout = defaultTypingTimeout
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.API.TimeoutRaw != "" {
		cfg.API.Timeout, err = time.ParseDuration(cfg.API.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing api.timeout %q: %w", cfg.API.TimeoutRaw, err)
		}
	}

	if cfg.Channel.ReconnectBackoffRaw != "" {
		cfg.Channel.ReconnectBackoff, err = time.ParseDuration(cfg.Channel.ReconnectBackoffRaw)
		if err != nil {
			return fmt.Errorf("parsing channel.reconnect_backoff %q: %w", cfg.Channel.ReconnectBackoffRaw, err)
		}
	}

	if cfg.Channel.ReconnectMaxBackoffRaw != "" {
		cfg.Channel.ReconnectMaxBackoff, err = time.ParseDuration(cfg.Channel.ReconnectMaxBackoffRaw)
		if err != nil {
			return fmt.Errorf("parsing channel.reconnect_max_backoff %q: %w", cfg.Channel.ReconnectMaxBackoffRaw, err)
		}
	}

	if cfg.Channel.TypingTimeoutRaw != "" {
		cfg.Channel.TypingTimeout, err = time.ParseDuration(cfg.Channel.TypingTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing channel.typing_timeout %q: %w", cfg.Channel.TypingTimeoutRaw, err)
		}
	}

	return nil
}
