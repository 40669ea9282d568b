// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, duration parsing, and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"

database:
  path: "./test.db"

auth:
  jwt_secret: "test-secret"

driver:
  mode: "sim"
  sim:
    pairing_delay: "250ms"
    ready_delay: "1s"
    registered:
      - "5511987654321@c.us"
      - "558112345678@c.us"

sessions:
  max_reconnect_attempts: 3
  reconnect_backoff: "2s"
  reconnect_backoff_max: "1m"

webhooks:
  timeout: "15s"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}
	if cfg.Auth.JWTSecret != "test-secret" {
		t.Errorf("Auth.JWTSecret = %q, want %q", cfg.Auth.JWTSecret, "test-secret")
	}

	if cfg.Driver.Mode != "sim" {
		t.Errorf("Driver.Mode = %q, want %q", cfg.Driver.Mode, "sim")
	}
	if cfg.Driver.Sim.PairingDelay != 250*time.Millisecond {
		t.Errorf("Driver.Sim.PairingDelay = %v, want %v", cfg.Driver.Sim.PairingDelay, 250*time.Millisecond)
	}
	if cfg.Driver.Sim.ReadyDelay != time.Second {
		t.Errorf("Driver.Sim.ReadyDelay = %v, want %v", cfg.Driver.Sim.ReadyDelay, time.Second)
	}
	if len(cfg.Driver.Sim.Registered) != 2 {
		t.Errorf("Driver.Sim.Registered len = %d, want 2", len(cfg.Driver.Sim.Registered))
	}

	if cfg.Sessions.MaxReconnectAttempts != 3 {
		t.Errorf("Sessions.MaxReconnectAttempts = %d, want 3", cfg.Sessions.MaxReconnectAttempts)
	}
	if cfg.Sessions.ReconnectBackoff != 2*time.Second {
		t.Errorf("Sessions.ReconnectBackoff = %v, want %v", cfg.Sessions.ReconnectBackoff, 2*time.Second)
	}
	if cfg.Sessions.ReconnectBackoffMax != time.Minute {
		t.Errorf("Sessions.ReconnectBackoffMax = %v, want %v", cfg.Sessions.ReconnectBackoffMax, time.Minute)
	}

	if cfg.Webhooks.Timeout != 15*time.Second {
		t.Errorf("Webhooks.Timeout = %v, want %v", cfg.Webhooks.Timeout, 15*time.Second)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_ZAP_JWT_SECRET", "secret-from-env")
	t.Setenv("TEST_ZAP_DB_PATH", "/tmp/zap.db")

	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"

database:
  path: "${TEST_ZAP_DB_PATH}"

auth:
  jwt_secret: "${TEST_ZAP_JWT_SECRET}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Auth.JWTSecret != "secret-from-env" {
		t.Errorf("Auth.JWTSecret = %q, want %q", cfg.Auth.JWTSecret, "secret-from-env")
	}
	if cfg.Database.Path != "/tmp/zap.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/zap.db")
	}
}

func TestLoad_EnvVarExpansion_UnsetVar(t *testing.T) {
	os.Unsetenv("UNSET_VAR_FOR_TEST")

	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"

database:
  path: "./test.db"

auth:
  jwt_secret: "${UNSET_VAR_FOR_TEST}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Unset env vars expand to the empty string
	if cfg.Auth.JWTSecret != "" {
		t.Errorf("Auth.JWTSecret = %q, want empty string for unset env var", cfg.Auth.JWTSecret)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr "missing colon"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"

database:
  path: "./test.db"

sessions:
  reconnect_backoff: "invalid-duration"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid duration, got nil")
	}
}

func TestLoad_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name          string
		configContent string
		wantErrSubstr string
	}{
		{
			name: "missing http_addr",
			configContent: `
server:
  http_addr: ""
database:
  path: "./test.db"
`,
			wantErrSubstr: "server.http_addr is required",
		},
		{
			name: "missing database path",
			configContent: `
server:
  http_addr: "0.0.0.0:8080"
database:
  path: ""
`,
			wantErrSubstr: "database.path is required",
		},
		{
			name: "unsupported driver mode",
			configContent: `
server:
  http_addr: "0.0.0.0:8080"
database:
  path: "./test.db"
driver:
  mode: "venom"
`,
			wantErrSubstr: "driver.mode",
		},
		{
			name: "negative reconnect attempts",
			configContent: `
server:
  http_addr: "0.0.0.0:8080"
database:
  path: "./test.db"
sessions:
  max_reconnect_attempts: -1
`,
			wantErrSubstr: "max_reconnect_attempts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeConfig(t, tt.configContent)

			_, err := Load(configPath)
			if err == nil {
				t.Errorf("Load() expected error containing %q, got nil", tt.wantErrSubstr)
				return
			}

			if !strings.Contains(err.Error(), tt.wantErrSubstr) {
				t.Errorf("Load() error = %q, want error containing %q", err.Error(), tt.wantErrSubstr)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("FOO", "bar")
	t.Setenv("BAZ", "qux")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "single env var",
			input:    "${FOO}",
			expected: "bar",
		},
		{
			name:     "env var with surrounding text",
			input:    "prefix-${FOO}-suffix",
			expected: "prefix-bar-suffix",
		},
		{
			name:     "multiple env vars",
			input:    "${FOO}/${BAZ}",
			expected: "bar/qux",
		},
		{
			name:     "no env vars",
			input:    "no-vars-here",
			expected: "no-vars-here",
		},
		{
			name:     "unset env var",
			input:    "${UNSET_VAR}",
			expected: "",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := expandEnvVars(tt.input)
			if result != tt.expected {
				t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default() config fails validation: %v", err)
	}
	if cfg.Driver.Mode != "sim" {
		t.Errorf("Default() Driver.Mode = %q, want %q", cfg.Driver.Mode, "sim")
	}
	if cfg.Sessions.MaxReconnectAttempts == 0 {
		t.Error("Default() Sessions.MaxReconnectAttempts = 0, want a positive retry budget")
	}
}
