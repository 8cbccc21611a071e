// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults and duration parsing

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
server:
  api_url: "https://api.linku.test"
  push_url: "wss://api.linku.test/ws/chat"

sync:
  active_poll_interval: "2s"
  idle_poll_interval: "1m"
  reconnect_delay: "4s"
  max_reconnect_attempts: 7
  dedup_window: "5s"
  recount_debounce: "150ms"
  bootstrap_timeout: "8s"

storage:
  path: "./client.db"

logging:
  level: "debug"
  format: "json"

metrics:
  enabled: true
  addr: "127.0.0.1:9464"
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, "chat.yaml", validYAML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.APIURL != "https://api.linku.test" {
		t.Errorf("Server.APIURL = %q", cfg.Server.APIURL)
	}
	if cfg.Server.PushURL != "wss://api.linku.test/ws/chat" {
		t.Errorf("Server.PushURL = %q", cfg.Server.PushURL)
	}
	if cfg.Sync.ActivePollInterval != 2*time.Second {
		t.Errorf("Sync.ActivePollInterval = %v, want 2s", cfg.Sync.ActivePollInterval)
	}
	if cfg.Sync.IdlePollInterval != time.Minute {
		t.Errorf("Sync.IdlePollInterval = %v, want 1m", cfg.Sync.IdlePollInterval)
	}
	if cfg.Sync.ReconnectDelay != 4*time.Second {
		t.Errorf("Sync.ReconnectDelay = %v, want 4s", cfg.Sync.ReconnectDelay)
	}
	if cfg.Sync.MaxReconnectAttempts != 7 {
		t.Errorf("Sync.MaxReconnectAttempts = %d, want 7", cfg.Sync.MaxReconnectAttempts)
	}
	if cfg.Sync.RecountDebounce != 150*time.Millisecond {
		t.Errorf("Sync.RecountDebounce = %v, want 150ms", cfg.Sync.RecountDebounce)
	}
	if cfg.Sync.BootstrapTimeout != 8*time.Second {
		t.Errorf("Sync.BootstrapTimeout = %v, want 8s", cfg.Sync.BootstrapTimeout)
	}
	if cfg.Storage.Path != "./client.db" {
		t.Errorf("Storage.Path = %q", cfg.Storage.Path)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics = %+v", cfg.Metrics)
	}
}

func TestLoad_Defaults(t *testing.T) {
	content := `
server:
  api_url: "http://localhost:8000"
  push_url: "ws://localhost:8000/ws"
storage:
  path: "./client.db"
`
	cfg, err := Load(writeConfig(t, "chat.yaml", content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Sync.ActivePollInterval != DefaultActivePollInterval {
		t.Errorf("ActivePollInterval = %v, want %v", cfg.Sync.ActivePollInterval, DefaultActivePollInterval)
	}
	if cfg.Sync.IdlePollInterval != DefaultIdlePollInterval {
		t.Errorf("IdlePollInterval = %v, want %v", cfg.Sync.IdlePollInterval, DefaultIdlePollInterval)
	}
	if cfg.Sync.ReconnectDelay != DefaultReconnectDelay {
		t.Errorf("ReconnectDelay = %v, want %v", cfg.Sync.ReconnectDelay, DefaultReconnectDelay)
	}
	if cfg.Sync.MaxReconnectAttempts != DefaultMaxReconnectAttempts {
		t.Errorf("MaxReconnectAttempts = %d, want %d", cfg.Sync.MaxReconnectAttempts, DefaultMaxReconnectAttempts)
	}
	if cfg.Sync.DedupWindow != DefaultDedupWindow {
		t.Errorf("DedupWindow = %v, want %v", cfg.Sync.DedupWindow, DefaultDedupWindow)
	}
	if cfg.Sync.BootstrapTimeout != DefaultBootstrapTimeout {
		t.Errorf("BootstrapTimeout = %v, want %v", cfg.Sync.BootstrapTimeout, DefaultBootstrapTimeout)
	}
	if cfg.Sync.NearBottomThreshold != DefaultNearBottomThreshold {
		t.Errorf("NearBottomThreshold = %d, want %d", cfg.Sync.NearBottomThreshold, DefaultNearBottomThreshold)
	}
	if cfg.Server.SessionCookie != "session_id" {
		t.Errorf("SessionCookie = %q, want session_id", cfg.Server.SessionCookie)
	}
}

func TestLoad_TOML(t *testing.T) {
	content := `
[server]
api_url = "https://api.linku.test"
push_url = "wss://api.linku.test/ws/chat"

[sync]
active_poll_interval = "5s"
max_reconnect_attempts = 3

[storage]
path = "./client.db"
`
	cfg, err := Load(writeConfig(t, "chat.toml", content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Sync.ActivePollInterval != 5*time.Second {
		t.Errorf("ActivePollInterval = %v, want 5s", cfg.Sync.ActivePollInterval)
	}
	if cfg.Sync.MaxReconnectAttempts != 3 {
		t.Errorf("MaxReconnectAttempts = %d, want 3", cfg.Sync.MaxReconnectAttempts)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_LINKU_API", "https://env.linku.test")

	content := `
server:
  api_url: "${TEST_LINKU_API}"
  push_url: "wss://env.linku.test/ws"
storage:
  path: "./client.db"
`
	cfg, err := Load(writeConfig(t, "chat.yaml", content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.APIURL != "https://env.linku.test" {
		t.Errorf("APIURL = %q, want expanded value", cfg.Server.APIURL)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/chat.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	content := `
server:
  api_url: "http://localhost"
  push_url "missing colon"
`
	_, err := Load(writeConfig(t, "chat.yaml", content))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	content := strings.Replace(validYAML, `reconnect_delay: "4s"`, `reconnect_delay: "soon"`, 1)
	_, err := Load(writeConfig(t, "chat.yaml", content))
	if err == nil {
		t.Fatal("Load() expected error for invalid duration, got nil")
	}
	if !strings.Contains(err.Error(), "reconnect_delay") {
		t.Errorf("error %q should name the field", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		cfg := Config{
			Server:  ServerConfig{APIURL: "https://api.linku.test", PushURL: "wss://api.linku.test/ws"},
			Storage: StorageConfig{Path: "client.db"},
		}
		cfg.ApplyDefaults()
		return cfg
	}

	tests := []struct {
		name          string
		mutate        func(*Config)
		wantErrSubstr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing api_url", mutate: func(c *Config) { c.Server.APIURL = "" }, wantErrSubstr: "server.api_url is required"},
		{name: "api_url bad scheme", mutate: func(c *Config) { c.Server.APIURL = "ftp://x" }, wantErrSubstr: "http or https"},
		{name: "missing push_url", mutate: func(c *Config) { c.Server.PushURL = "" }, wantErrSubstr: "server.push_url is required"},
		{name: "push_url bad scheme", mutate: func(c *Config) { c.Server.PushURL = "https://x" }, wantErrSubstr: "ws or wss"},
		{name: "missing storage", mutate: func(c *Config) { c.Storage.Path = "" }, wantErrSubstr: "storage.path is required"},
		{name: "negative attempts", mutate: func(c *Config) { c.Sync.MaxReconnectAttempts = -1 }, wantErrSubstr: "max_reconnect_attempts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErrSubstr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErrSubstr) {
				t.Errorf("Validate() error = %v, want substring %q", err, tt.wantErrSubstr)
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
		{name: "single env var", input: "${FOO}", expected: "bar"},
		{name: "env var with surrounding text", input: "prefix-${FOO}-suffix", expected: "prefix-bar-suffix"},
		{name: "multiple env vars", input: "${FOO}/${BAZ}", expected: "bar/qux"},
		{name: "no env vars", input: "no-vars-here", expected: "no-vars-here"},
		{name: "unset env var", input: "${UNSET_VAR}", expected: ""},
		{name: "empty string", input: "", expected: ""},
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
