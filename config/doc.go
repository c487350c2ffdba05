// Package config provides configuration management for the eipcanvas server.
//
// Configuration is loaded from JSON or YAML files, merged in layers over the
// built-in defaults, and finally overridden from EIPCANVAS_* environment
// variables.
//
// # Core Components
//
// Config: Main configuration structure with the http, persistence, layout,
// definitions and assistant sections.
//
// Loader: Loads configuration with layer merging (base + overrides) and
// environment variable overrides for flexible deployment scenarios. Only the
// keys present in a layer override earlier values.
//
// # Basic Usage
//
// Loading configuration from files with layer merging:
//
//	loader := config.NewLoader()
//	loader.AddLayer("config/base.yaml")
//	loader.AddLayer("config/production.json") // Overrides base
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Loading a single file with validation:
//
//	cfg, err := config.Load("eipcanvas.yaml")
//
// # Durations
//
// Duration fields accept Go duration strings ("30s", "2m") and a day suffix
// ("14d") in both formats, or a number of nanoseconds.
//
// # Environment Overrides
//
//	EIPCANVAS_HTTP_ADDR              http.addr
//	EIPCANVAS_PERSISTENCE_BACKEND    persistence.backend
//	EIPCANVAS_PERSISTENCE_KEY        persistence.key
//	EIPCANVAS_NATS_URLS              persistence.nats.urls (comma separated)
//	EIPCANVAS_NATS_TOKEN             persistence.nats.token
//	EIPCANVAS_SQLITE_PATH            persistence.sqlite.path
//	EIPCANVAS_REDIS_URL              persistence.redis.url
//	EIPCANVAS_DEFINITIONS_CATALOG    definitions.catalog
//	EIPCANVAS_ASSISTANT_BASE_URL     assistant.base_url (also enables the assistant)
//	EIPCANVAS_ASSISTANT_MODEL        assistant.model
//	EIPCANVAS_ASSISTANT_API_KEY      assistant.api_key
package config
