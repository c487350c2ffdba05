package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360/eipcanvas/errors"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "EIPCANVAS"

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
	lookupEnv  func(string) (string, bool)
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		layers:    []string{},
		envPrefix: EnvPrefix,
		lookupEnv: os.LookupEnv,
	}
}

// Load reads a single file over the defaults, applies environment overrides
// and validates the result. An empty path loads defaults only.
func Load(path string) (*Config, error) {
	l := NewLoader()
	if path != "" {
		l.AddLayer(path)
	}
	l.EnableValidation(true)
	return l.Load()
}

// AddLayer adds a configuration file layer
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// Load loads and merges all configuration layers
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	for _, path := range l.layers {
		raw, err := l.loadRaw(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", "load "+path)
		}
		cfg, err = mergeFromMap(cfg, raw)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", "merge "+path)
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "apply environment")
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", "validate")
		}
	}
	return cfg, nil
}

// loadRaw loads a JSON or YAML file as a map
func (l *Loader) loadRaw(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse YAML: %w", err)
		}
	default:
		if err := validateJSONDepth(data); err != nil {
			return nil, fmt.Errorf("invalid JSON structure: %w", err)
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse JSON: %w", err)
		}
	}
	return raw, nil
}

// mergeFromMap merges configuration from a raw map, only overriding fields
// present in the map
func mergeFromMap(base *Config, override map[string]any) (*Config, error) {
	if override == nil {
		return base, nil
	}

	baseJSON, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}
	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return nil, err
	}

	mergedJSON, err := json.Marshal(deepMergeMaps(baseMap, override))
	if err != nil {
		return nil, err
	}

	merged := &Config{}
	decoder := json.NewDecoder(bytes.NewReader(mergedJSON))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// deepMergeMaps merges override into base. Nested maps merge recursively;
// any other value, including lists, replaces the base value. Null values
// are ignored.
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range override {
		if v == nil {
			continue
		}
		overrideMap, ok := v.(map[string]any)
		if !ok {
			result[k] = v
			continue
		}
		if baseMap, ok := result[k].(map[string]any); ok {
			result[k] = deepMergeMaps(baseMap, overrideMap)
		} else {
			result[k] = overrideMap
		}
	}
	return result
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	overrides := []struct {
		name  string
		apply func(string)
	}{
		{"HTTP_ADDR", func(v string) { cfg.HTTP.Addr = v }},
		{"PERSISTENCE_BACKEND", func(v string) { cfg.Persistence.Backend = v }},
		{"PERSISTENCE_KEY", func(v string) { cfg.Persistence.Key = v }},
		{"NATS_URLS", func(v string) { cfg.Persistence.NATS.URLs = splitList(v) }},
		{"NATS_TOKEN", func(v string) { cfg.Persistence.NATS.Token = v }},
		{"SQLITE_PATH", func(v string) { cfg.Persistence.SQLite.Path = v }},
		{"REDIS_URL", func(v string) { cfg.Persistence.Redis.URL = v }},
		{"DEFINITIONS_CATALOG", func(v string) { cfg.Definitions.Catalog = v }},
		{"ASSISTANT_BASE_URL", func(v string) {
			cfg.Assistant.BaseURL = v
			cfg.Assistant.Enabled = true
		}},
		{"ASSISTANT_MODEL", func(v string) { cfg.Assistant.Model = v }},
		{"ASSISTANT_API_KEY", func(v string) { cfg.Assistant.APIKey = v }},
	}

	for _, o := range overrides {
		key := l.envPrefix + "_" + o.name
		val, ok := l.lookupEnv(key)
		if !ok || val == "" {
			continue
		}
		if err := validateEnvVar(key, val); err != nil {
			return err
		}
		o.apply(val)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
