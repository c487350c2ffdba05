package main

import (
	"flag"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	EnvFile         string
	LogLevel        string
	LogFormat       string
	Debug           bool
	ShutdownTimeout time.Duration
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	// Define flags with environment variable fallback
	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("EIPCANVAS_CONFIG", ""),
		"Path to a JSON or YAML configuration file, empty for defaults (env: EIPCANVAS_CONFIG)")

	flag.StringVar(&cfg.ConfigPath, "c",
		getEnv("EIPCANVAS_CONFIG", ""),
		"Path to a JSON or YAML configuration file, empty for defaults (env: EIPCANVAS_CONFIG)")

	flag.StringVar(&cfg.EnvFile, "env-file", ".env",
		"Dotenv file loaded before configuration, ignored when missing")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("EIPCANVAS_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: EIPCANVAS_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("EIPCANVAS_LOG_FORMAT", "json"),
		"Log format: json, text (env: EIPCANVAS_LOG_FORMAT)")

	flag.BoolVar(&cfg.Debug, "debug",
		getEnvBool("EIPCANVAS_DEBUG", false),
		"Enable debug mode (env: EIPCANVAS_DEBUG)")

	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("EIPCANVAS_SHUTDOWN_TIMEOUT", 0),
		"Graceful shutdown timeout, 0 uses http.shutdown_timeout (env: EIPCANVAS_SHUTDOWN_TIMEOUT)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	flag.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	flag.Usage = printDetailedHelp

	flag.Parse()

	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	if !slices.Contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.ShutdownTimeout < 0 {
		return fmt.Errorf("invalid shutdown timeout: %s", cfg.ShutdownTimeout)
	}

	return nil
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - Integration flow canvas backend

Usage: %s [options]

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Run with defaults (in-memory persistence on :8080)
  %s

  # Run with a config file and text logging
  %s --config=/etc/eipcanvas/config.yaml --log-format=text

  # Persist flows to NATS JetStream KV
  export EIPCANVAS_PERSISTENCE_BACKEND=nats
  export EIPCANVAS_NATS_URLS=nats://localhost:4222
  %s

  # Enable the flow assistant against a local model server
  export EIPCANVAS_ASSISTANT_BASE_URL=http://localhost:11434/v1
  %s

  # Validate configuration only
  %s --validate

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
