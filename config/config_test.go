package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/eipcanvas/errors"
	"github.com/c360/eipcanvas/layout"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

// newTestLoader isolates the loader from the process environment.
func newTestLoader(env map[string]string) *Loader {
	l := NewLoader()
	l.lookupEnv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	return l
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, BackendMemory, cfg.Persistence.Backend)
	assert.Equal(t, layout.DefaultSettings(), cfg.Layout)
	assert.False(t, cfg.Assistant.Enabled)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ShutdownTimeout.Std())
}

func TestLoader_LoadJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"http": {"addr": ":9090", "read_timeout": "30s"},
		"persistence": {
			"backend": "nats",
			"nats": {"urls": ["nats://a:4222", "nats://b:4222"], "reconnect_wait": "5s", "ping_interval": "20s", "max_backoff": "1m"}
		},
		"layout": {"orientation": "vertical", "density": "compact"}
	}`)

	l := newTestLoader(nil)
	l.AddLayer(path)
	l.EnableValidation(true)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 30*time.Second, cfg.HTTP.ReadTimeout.Std())
	assert.Equal(t, 15*time.Second, cfg.HTTP.WriteTimeout.Std(), "unset keys keep defaults")
	assert.Equal(t, BackendNATS, cfg.Persistence.Backend)
	assert.Equal(t, []string{"nats://a:4222", "nats://b:4222"}, cfg.Persistence.NATS.URLs)
	assert.Equal(t, 5*time.Second, cfg.Persistence.NATS.ReconnectWait.Std())
	assert.Equal(t, 20*time.Second, cfg.Persistence.NATS.PingInterval.Std())
	assert.Equal(t, time.Minute, cfg.Persistence.NATS.MaxBackoff.Std())
	assert.Zero(t, cfg.Persistence.NATS.DrainTimeout, "unset tuning keeps client defaults")
	assert.Equal(t, "eipcanvas_flows", cfg.Persistence.NATS.Bucket)
	assert.Equal(t, layout.Settings{Orientation: layout.Vertical, Density: layout.Compact}, cfg.Layout)
}

func TestLoader_LoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
persistence:
  backend: sqlite
  sqlite:
    path: /var/lib/eipcanvas/flows.db
assistant:
  enabled: true
  model: llama3
  timeout: 1d
  temperature: 0.2
`)
	l := newTestLoader(nil)
	l.AddLayer(path)
	l.EnableValidation(true)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, BackendSQLite, cfg.Persistence.Backend)
	assert.Equal(t, "/var/lib/eipcanvas/flows.db", cfg.Persistence.SQLite.Path)
	assert.True(t, cfg.Assistant.Enabled)
	assert.Equal(t, "llama3", cfg.Assistant.Model)
	assert.Equal(t, "http://localhost:11434/v1", cfg.Assistant.BaseURL)
	assert.Equal(t, 24*time.Hour, cfg.Assistant.Timeout.Std())
	assert.InDelta(t, 0.2, cfg.Assistant.Temperature, 1e-6)
}

func TestLoader_Layers(t *testing.T) {
	base := writeFile(t, "base.yaml", `
http:
  addr: ":7000"
  allowed_origins: ["http://a", "http://b"]
persistence:
  backend: redis
  redis:
    url: redis://cache:6379/1
`)
	override := writeFile(t, "prod.json", `{
		"http": {"allowed_origins": ["https://prod"]},
		"persistence": {"redis": {"prefix": "prod:"}}
	}`)

	l := newTestLoader(nil)
	l.AddLayer(base)
	l.AddLayer(override)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.HTTP.Addr)
	assert.Equal(t, []string{"https://prod"}, cfg.HTTP.AllowedOrigins, "lists are replaced")
	assert.Equal(t, "redis://cache:6379/1", cfg.Persistence.Redis.URL)
	assert.Equal(t, "prod:", cfg.Persistence.Redis.Prefix)
}

func TestLoader_EnvOverrides(t *testing.T) {
	l := newTestLoader(map[string]string{
		"EIPCANVAS_HTTP_ADDR":           ":1234",
		"EIPCANVAS_PERSISTENCE_BACKEND": "nats",
		"EIPCANVAS_NATS_URLS":           "nats://x:4222, nats://y:4222,",
		"EIPCANVAS_ASSISTANT_BASE_URL":  "https://api.example.com/v1",
		"EIPCANVAS_ASSISTANT_API_KEY":   "sk-secret",
		"EIPCANVAS_SQLITE_PATH":         "",
	})
	l.EnableValidation(true)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, ":1234", cfg.HTTP.Addr)
	assert.Equal(t, BackendNATS, cfg.Persistence.Backend)
	assert.Equal(t, []string{"nats://x:4222", "nats://y:4222"}, cfg.Persistence.NATS.URLs)
	assert.True(t, cfg.Assistant.Enabled)
	assert.Equal(t, "https://api.example.com/v1", cfg.Assistant.BaseURL)
	assert.Equal(t, "eipcanvas.db", cfg.Persistence.SQLite.Path, "empty values are ignored")

	assert.NotContains(t, cfg.String(), "sk-secret")
	assert.Contains(t, cfg.String(), "[REDACTED]")

	bad := newTestLoader(map[string]string{"EIPCANVAS_HTTP_ADDR": "a\x00b"})
	_, err = bad.Load()
	assert.True(t, errors.IsInvalid(err))
}

func TestLoader_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"unknown key", "config.json", `{"htp": {"addr": ":1"}}`},
		{"bad json", "config.json", `{"http": `},
		{"bad yaml", "config.yaml", "http: [\n"},
		{"bad duration", "config.json", `{"http": {"read_timeout": "soon"}}`},
		{"unsupported extension", "config.toml", `addr = ":1"`},
		{"invalid backend", "config.json", `{"persistence": {"backend": "postgres"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"empty addr", func(c *Config) { c.HTTP.Addr = "" }},
		{"negative timeout", func(c *Config) { c.HTTP.ReadTimeout = Duration(-time.Second) }},
		{"negative rate limit", func(c *Config) { c.HTTP.RateLimit = -1 }},
		{"rate limit without burst", func(c *Config) { c.HTTP.RateBurst = 0 }},
		{"unknown backend", func(c *Config) { c.Persistence.Backend = "mongo" }},
		{"empty key", func(c *Config) { c.Persistence.Key = "" }},
		{"nats without urls", func(c *Config) {
			c.Persistence.Backend = BackendNATS
			c.Persistence.NATS.URLs = nil
		}},
		{"negative nats drain timeout", func(c *Config) { c.Persistence.NATS.DrainTimeout = Duration(-time.Second) }},
		{"nats token and username", func(c *Config) {
			c.Persistence.Backend = BackendNATS
			c.Persistence.NATS.Token = "t"
			c.Persistence.NATS.Username = "u"
		}},
		{"sqlite without path", func(c *Config) {
			c.Persistence.Backend = BackendSQLite
			c.Persistence.SQLite.Path = ""
		}},
		{"redis without url", func(c *Config) {
			c.Persistence.Backend = BackendRedis
			c.Persistence.Redis.URL = ""
		}},
		{"bad orientation", func(c *Config) { c.Layout.Orientation = "diagonal" }},
		{"assistant without model", func(c *Config) {
			c.Assistant.Enabled = true
			c.Assistant.Model = ""
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
		})
	}
}

func TestDuration_JSON(t *testing.T) {
	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"1m30s"`), &d))
	assert.Equal(t, 90*time.Second, d.Std())

	require.NoError(t, json.Unmarshal([]byte(`2000000000`), &d))
	assert.Equal(t, 2*time.Second, d.Std())

	require.NoError(t, json.Unmarshal([]byte(`"14d"`), &d))
	assert.Equal(t, 14*24*time.Hour, d.Std())

	assert.Error(t, json.Unmarshal([]byte(`"xd"`), &d))
	assert.Error(t, json.Unmarshal([]byte(`true`), &d))

	data, err := json.Marshal(Duration(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, `"1m0s"`, string(data))
}

func TestConfig_Clone(t *testing.T) {
	cfg := Default()
	cfg.HTTP.AllowedOrigins = []string{"http://a"}
	clone := cfg.Clone()
	clone.HTTP.AllowedOrigins[0] = "http://b"
	clone.Persistence.NATS.URLs[0] = "nats://other"

	assert.Equal(t, "http://a", cfg.HTTP.AllowedOrigins[0])
	assert.Equal(t, "nats://localhost:4222", cfg.Persistence.NATS.URLs[0])
}

func TestValidateJSONDepth(t *testing.T) {
	nested := func(n int) []byte {
		return []byte(strings.Repeat(`{"a":`, n) + "1" + strings.Repeat("}", n))
	}
	assert.NoError(t, validateJSONDepth(nested(maxJSONDepth)))
	assert.Error(t, validateJSONDepth(nested(maxJSONDepth+1)))
	assert.Error(t, validateJSONDepth([]byte(`{"a": [1, 2}`)))
}

func TestValidateEnvVar(t *testing.T) {
	assert.NoError(t, validateEnvVar("K", ""))
	assert.NoError(t, validateEnvVar("K", "nats://a:4222,nats://b:4222"))
	assert.Error(t, validateEnvVar("K", "a\nb"))
	assert.Error(t, validateEnvVar("K", strings.Repeat("x", maxEnvVarLen+1)))
}
