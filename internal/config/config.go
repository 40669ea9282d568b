// ABOUTME: Configuration loading and parsing for zap-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete zap-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Driver   DriverConfig   `yaml:"driver"`
	Sessions SessionsConfig `yaml:"sessions"`
	Webhooks WebhooksConfig `yaml:"webhooks"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration. When JWTSecret is empty the
// API runs unauthenticated.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// DriverConfig selects and configures the chat-network driver backend
type DriverConfig struct {
	Mode string          `yaml:"mode"` // "sim" is the only built-in mode
	Sim  SimDriverConfig `yaml:"sim"`
}

// SimDriverConfig tunes the simulated driver used for development and tests
type SimDriverConfig struct {
	PairingDelay time.Duration `yaml:"-"`
	ReadyDelay   time.Duration `yaml:"-"`
	Registered   []string      `yaml:"registered"`

	// Raw string values for YAML unmarshaling
	PairingDelayRaw string `yaml:"pairing_delay"`
	ReadyDelayRaw   string `yaml:"ready_delay"`
}

// SessionsConfig holds session reconnect policy
type SessionsConfig struct {
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts"`

	ReconnectBackoff    time.Duration `yaml:"-"`
	ReconnectBackoffMax time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	ReconnectBackoffRaw    string `yaml:"reconnect_backoff"`
	ReconnectBackoffMaxRaw string `yaml:"reconnect_backoff_max"`
}

// WebhooksConfig holds webhook delivery configuration
type WebhooksConfig struct {
	Timeout time.Duration `yaml:"-"`

	TimeoutRaw string `yaml:"timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
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

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with sensible development defaults.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{HTTPAddr: ":8080"},
		Database: DatabaseConfig{Path: "zap-gateway.db"},
		Driver: DriverConfig{
			Mode: "sim",
			Sim: SimDriverConfig{
				PairingDelay: 100 * time.Millisecond,
				ReadyDelay:   100 * time.Millisecond,
			},
		},
		Sessions: SessionsConfig{
			MaxReconnectAttempts: 5,
			ReconnectBackoff:     time.Second,
			ReconnectBackoffMax:  30 * time.Second,
		},
		Webhooks: WebhooksConfig{Timeout: 10 * time.Second},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
	}
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

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Driver.Mode != "" && c.Driver.Mode != "sim" {
		return fmt.Errorf("driver.mode %q is not supported", c.Driver.Mode)
	}

	if c.Sessions.MaxReconnectAttempts < 0 {
		return fmt.Errorf("sessions.max_reconnect_attempts must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"driver.sim.pairing_delay", cfg.Driver.Sim.PairingDelayRaw, &cfg.Driver.Sim.PairingDelay},
		{"driver.sim.ready_delay", cfg.Driver.Sim.ReadyDelayRaw, &cfg.Driver.Sim.ReadyDelay},
		{"sessions.reconnect_backoff", cfg.Sessions.ReconnectBackoffRaw, &cfg.Sessions.ReconnectBackoff},
		{"sessions.reconnect_backoff_max", cfg.Sessions.ReconnectBackoffMaxRaw, &cfg.Sessions.ReconnectBackoffMax},
		{"webhooks.timeout", cfg.Webhooks.TimeoutRaw, &cfg.Webhooks.Timeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
