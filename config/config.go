package config

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/c360/eipcanvas/errors"
	"github.com/c360/eipcanvas/layout"
)

// Persistence backends
const (
	BackendMemory = "memory" // No durability, state lost on restart
	BackendNATS   = "nats"   // JetStream KV bucket
	BackendSQLite = "sqlite" // Embedded SQLite file
	BackendRedis  = "redis"  // Redis keys under a prefix
)

var backends = []string{BackendMemory, BackendNATS, BackendSQLite, BackendRedis}

// Config represents the complete application configuration
type Config struct {
	HTTP        HTTPConfig        `json:"http"`
	Persistence PersistenceConfig `json:"persistence"`
	Layout      layout.Settings   `json:"layout"`
	Definitions DefinitionsConfig `json:"definitions"`
	Assistant   AssistantConfig   `json:"assistant"`
}

// HTTPConfig defines the gateway listener
type HTTPConfig struct {
	Addr            string   `json:"addr"`
	ReadTimeout     Duration `json:"read_timeout,omitempty"`
	WriteTimeout    Duration `json:"write_timeout,omitempty"`
	ShutdownTimeout Duration `json:"shutdown_timeout,omitempty"`
	// AllowedOrigins for WebSocket upgrades; empty allows same-origin only.
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
	// RateLimit caps mutating requests per second; 0 disables the limit.
	RateLimit float64 `json:"rate_limit,omitempty"`
	RateBurst int     `json:"rate_burst,omitempty"`
}

// PersistenceConfig selects where flow snapshots are stored
type PersistenceConfig struct {
	Backend string       `json:"backend"`
	Key     string       `json:"key"` // Record key of the flow
	NATS    NATSConfig   `json:"nats,omitempty"`
	SQLite  SQLiteConfig `json:"sqlite,omitempty"`
	Redis   RedisConfig  `json:"redis,omitempty"`
}

// NATSConfig defines NATS connection settings
type NATSConfig struct {
	URLs          []string `json:"urls,omitempty"`
	Bucket        string   `json:"bucket,omitempty"`
	MaxReconnects int      `json:"max_reconnects,omitempty"`
	ReconnectWait Duration `json:"reconnect_wait,omitempty"`
	Username      string   `json:"username,omitempty"`
	Password      string   `json:"password,omitempty"`
	Token         string   `json:"token,omitempty"`

	// Zero keeps the client defaults.
	PingInterval Duration `json:"ping_interval,omitempty"`
	Timeout      Duration `json:"timeout,omitempty"`
	DrainTimeout Duration `json:"drain_timeout,omitempty"`
	MaxBackoff   Duration `json:"max_backoff,omitempty"`
}

// SQLiteConfig defines the database file
type SQLiteConfig struct {
	Path string `json:"path,omitempty"`
}

// RedisConfig defines the Redis connection
type RedisConfig struct {
	URL    string `json:"url,omitempty"`
	Prefix string `json:"prefix,omitempty"`
}

// DefinitionsConfig selects the component catalog
type DefinitionsConfig struct {
	// Catalog is a YAML or JSON catalog file. Empty uses the embedded catalog.
	Catalog string `json:"catalog,omitempty"`
}

// AssistantConfig configures flow generation
type AssistantConfig struct {
	Enabled     bool     `json:"enabled"`
	BaseURL     string   `json:"base_url,omitempty"`
	Model       string   `json:"model,omitempty"`
	APIKey      string   `json:"api_key,omitempty"`
	Timeout     Duration `json:"timeout,omitempty"`
	Temperature float32  `json:"temperature,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     Duration(15 * time.Second),
			WriteTimeout:    Duration(15 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
			RateLimit:       50,
			RateBurst:       100,
		},
		Persistence: PersistenceConfig{
			Backend: BackendMemory,
			Key:     "default",
			NATS: NATSConfig{
				URLs:          []string{"nats://localhost:4222"},
				Bucket:        "eipcanvas_flows",
				MaxReconnects: -1,
				ReconnectWait: Duration(2 * time.Second),
			},
			SQLite: SQLiteConfig{Path: "eipcanvas.db"},
			Redis: RedisConfig{
				URL:    "redis://localhost:6379/0",
				Prefix: "eipcanvas:flow:",
			},
		},
		Layout: layout.DefaultSettings(),
		Assistant: AssistantConfig{
			BaseURL: "http://localhost:11434/v1",
			Model:   "mistral",
			Timeout: Duration(2 * time.Minute),
		},
	}
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return invalid("http.addr is required")
	}
	if c.HTTP.RateLimit < 0 {
		return invalid("http.rate_limit cannot be negative")
	}
	if c.HTTP.RateLimit > 0 && c.HTTP.RateBurst < 1 {
		return invalid("http.rate_burst must be at least 1 when http.rate_limit is set")
	}
	for name, d := range map[string]Duration{
		"http.read_timeout":     c.HTTP.ReadTimeout,
		"http.write_timeout":    c.HTTP.WriteTimeout,
		"http.shutdown_timeout": c.HTTP.ShutdownTimeout,
		"assistant.timeout":     c.Assistant.Timeout,
		"nats.reconnect_wait":   c.Persistence.NATS.ReconnectWait,
		"nats.ping_interval":    c.Persistence.NATS.PingInterval,
		"nats.timeout":          c.Persistence.NATS.Timeout,
		"nats.drain_timeout":    c.Persistence.NATS.DrainTimeout,
		"nats.max_backoff":      c.Persistence.NATS.MaxBackoff,
	} {
		if d < 0 {
			return invalid("%s cannot be negative", name)
		}
	}

	if err := c.validatePersistence(); err != nil {
		return err
	}

	if err := c.Layout.Validate(); err != nil {
		return invalid("layout: %v", err)
	}

	if c.Assistant.Enabled {
		if c.Assistant.BaseURL == "" {
			return invalid("assistant.base_url is required when the assistant is enabled")
		}
		if c.Assistant.Model == "" {
			return invalid("assistant.model is required when the assistant is enabled")
		}
	}
	return nil
}

func (c *Config) validatePersistence() error {
	p := c.Persistence
	if !slices.Contains(backends, p.Backend) {
		return invalid("persistence.backend %q is not one of %s", p.Backend, strings.Join(backends, ", "))
	}
	if p.Key == "" {
		return invalid("persistence.key is required")
	}

	switch p.Backend {
	case BackendNATS:
		if len(p.NATS.URLs) == 0 {
			return invalid("persistence.nats.urls is required for the nats backend")
		}
		if p.NATS.Token != "" && p.NATS.Username != "" {
			return invalid("persistence.nats: token and username are mutually exclusive")
		}
	case BackendSQLite:
		if p.SQLite.Path == "" {
			return invalid("persistence.sqlite.path is required for the sqlite backend")
		}
	case BackendRedis:
		if p.Redis.URL == "" {
			return invalid("persistence.redis.url is required for the redis backend")
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errors.ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return Default()
	}
	clone := *c
	clone.HTTP.AllowedOrigins = slices.Clone(c.HTTP.AllowedOrigins)
	clone.Persistence.NATS.URLs = slices.Clone(c.Persistence.NATS.URLs)
	return &clone
}

// String returns a JSON representation of the config with secrets redacted
func (c *Config) String() string {
	redacted := c.Clone()
	for _, secret := range []*string{
		&redacted.Persistence.NATS.Password,
		&redacted.Persistence.NATS.Token,
		&redacted.Assistant.APIKey,
	} {
		if *secret != "" {
			*secret = "[REDACTED]"
		}
	}
	data, err := json.MarshalIndent(redacted, "", "  ")
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}

// Duration is a time.Duration that marshals as a duration string.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v := v.(type) {
	case string:
		parsed, err := parseDurationWithDays(v)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(v)
	case nil:
		*d = 0
	default:
		return fmt.Errorf("invalid duration %v", v)
	}
	return nil
}

// parseDurationWithDays parses durations that may include days (e.g., "14d")
func parseDurationWithDays(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
