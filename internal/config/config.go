// ABOUTME: Configuration loading and parsing for the LinkU chat sync engine
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Default timings. These match the behavior the marketplace web client ships with.
const (
	DefaultActivePollInterval   = 3 * time.Second
	DefaultIdlePollInterval     = 30 * time.Second
	DefaultReconnectDelay       = 3 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultDedupWindow          = 5 * time.Second
	DefaultRecountDebounce      = 100 * time.Millisecond
	DefaultBootstrapTimeout     = 10 * time.Second
	DefaultNearBottomThreshold  = 150
	DefaultHistoryPageSize      = 20
)

// Config represents the complete engine configuration
type Config struct {
	Server  ServerConfig  `yaml:"server" toml:"server"`
	Sync    SyncConfig    `yaml:"sync" toml:"sync"`
	Storage StorageConfig `yaml:"storage" toml:"storage"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds the marketplace endpoints
type ServerConfig struct {
	APIURL  string `yaml:"api_url" toml:"api_url"`
	PushURL string `yaml:"push_url" toml:"push_url"` // ws:// or wss:// base; the user id is appended
	// SessionCookie is the name of the cookie that carries the authenticated session.
	SessionCookie string `yaml:"session_cookie" toml:"session_cookie"`
	// SessionToken is the cookie value, usually supplied as ${LINKU_SESSION}.
	SessionToken string `yaml:"session_token" toml:"session_token"`
}

// SyncConfig holds timing knobs for the synchronization engine
type SyncConfig struct {
	ActivePollInterval time.Duration `yaml:"-" toml:"-"`
	IdlePollInterval   time.Duration `yaml:"-" toml:"-"`
	ReconnectDelay     time.Duration `yaml:"-" toml:"-"`
	DedupWindow        time.Duration `yaml:"-" toml:"-"`
	RecountDebounce    time.Duration `yaml:"-" toml:"-"`
	BootstrapTimeout   time.Duration `yaml:"-" toml:"-"`

	MaxReconnectAttempts int `yaml:"max_reconnect_attempts" toml:"max_reconnect_attempts"`
	NearBottomThreshold  int `yaml:"near_bottom_threshold" toml:"near_bottom_threshold"`
	HistoryPageSize      int `yaml:"history_page_size" toml:"history_page_size"`

	// Raw string values for unmarshaling
	ActivePollIntervalRaw string `yaml:"active_poll_interval" toml:"active_poll_interval"`
	IdlePollIntervalRaw   string `yaml:"idle_poll_interval" toml:"idle_poll_interval"`
	ReconnectDelayRaw     string `yaml:"reconnect_delay" toml:"reconnect_delay"`
	DedupWindowRaw        string `yaml:"dedup_window" toml:"dedup_window"`
	RecountDebounceRaw    string `yaml:"recount_debounce" toml:"recount_debounce"`
	BootstrapTimeoutRaw   string `yaml:"bootstrap_timeout" toml:"bootstrap_timeout"`
}

// StorageConfig holds durable client-state storage configuration
type StorageConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Addr    string `yaml:"addr" toml:"addr"`
	Path    string `yaml:"path" toml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values and unset fields get defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with every timing set to its default and no endpoints.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Sync.ActivePollInterval == 0 {
		c.Sync.ActivePollInterval = DefaultActivePollInterval
	}
	if c.Sync.IdlePollInterval == 0 {
		c.Sync.IdlePollInterval = DefaultIdlePollInterval
	}
	if c.Sync.ReconnectDelay == 0 {
		c.Sync.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Sync.MaxReconnectAttempts == 0 {
		c.Sync.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Sync.DedupWindow == 0 {
		c.Sync.DedupWindow = DefaultDedupWindow
	}
	if c.Sync.RecountDebounce == 0 {
		c.Sync.RecountDebounce = DefaultRecountDebounce
	}
	if c.Sync.BootstrapTimeout == 0 {
		c.Sync.BootstrapTimeout = DefaultBootstrapTimeout
	}
	if c.Sync.NearBottomThreshold == 0 {
		c.Sync.NearBottomThreshold = DefaultNearBottomThreshold
	}
	if c.Sync.HistoryPageSize == 0 {
		c.Sync.HistoryPageSize = DefaultHistoryPageSize
	}
	if c.Server.SessionCookie == "" {
		c.Server.SessionCookie = "session_id"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
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
	if c.Server.APIURL == "" {
		return fmt.Errorf("server.api_url is required")
	}
	u, err := url.Parse(c.Server.APIURL)
	if err != nil {
		return fmt.Errorf("server.api_url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server.api_url must use http or https scheme")
	}

	if c.Server.PushURL == "" {
		return fmt.Errorf("server.push_url is required")
	}
	p, err := url.Parse(c.Server.PushURL)
	if err != nil {
		return fmt.Errorf("server.push_url is not a valid URL: %w", err)
	}
	if p.Scheme != "ws" && p.Scheme != "wss" {
		return fmt.Errorf("server.push_url must use ws or wss scheme")
	}

	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}

	if c.Sync.MaxReconnectAttempts < 0 {
		return fmt.Errorf("sync.max_reconnect_attempts must not be negative")
	}
	if c.Sync.ActivePollInterval < 0 || c.Sync.IdlePollInterval < 0 {
		return fmt.Errorf("sync poll intervals must be positive")
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
		{"active_poll_interval", cfg.Sync.ActivePollIntervalRaw, &cfg.Sync.ActivePollInterval},
		{"idle_poll_interval", cfg.Sync.IdlePollIntervalRaw, &cfg.Sync.IdlePollInterval},
		{"reconnect_delay", cfg.Sync.ReconnectDelayRaw, &cfg.Sync.ReconnectDelay},
		{"dedup_window", cfg.Sync.DedupWindowRaw, &cfg.Sync.DedupWindow},
		{"recount_debounce", cfg.Sync.RecountDebounceRaw, &cfg.Sync.RecountDebounce},
		{"bootstrap_timeout", cfg.Sync.BootstrapTimeoutRaw, &cfg.Sync.BootstrapTimeout},
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
