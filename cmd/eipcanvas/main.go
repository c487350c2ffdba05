// Package main implements the entry point for the eipcanvas backend. It
// serves one integration flow over HTTP and WebSocket, persists it to the
// configured backend, and optionally generates flows with an LLM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/c360/eipcanvas/assistant"
	"github.com/c360/eipcanvas/config"
	"github.com/c360/eipcanvas/eipdef"
	"github.com/c360/eipcanvas/flow"
	"github.com/c360/eipcanvas/flowstore"
	"github.com/c360/eipcanvas/gateway"
	"github.com/c360/eipcanvas/health"
	"github.com/c360/eipcanvas/metric"
	"github.com/c360/eipcanvas/natsclient"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "eipcanvas"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, logger, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Debug("Configuration loaded", "config", cfg.String())

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.close(cfg.HTTP.ShutdownTimeout.Std())

	shutdownTimeout := cliCfg.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = cfg.HTTP.ShutdownTimeout.Std()
	}
	return app.serve(ctx, shutdownTimeout)
}

// initializeCLI parses flags, loads the dotenv file and sets up logging
func initializeCLI() (*CLIConfig, *slog.Logger, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, nil, true, nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	if cliCfg.EnvFile != "" {
		if err := godotenv.Load(cliCfg.EnvFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, nil, false, fmt.Errorf("load env file %s: %w", cliCfg.EnvFile, err)
			}
		} else {
			logger.Info("Loaded environment file", "path", cliCfg.EnvFile)
		}
	}

	slog.Info("Starting eipcanvas",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	return cliCfg, logger, false, nil
}

// app owns every long-lived component. close releases them in reverse
// order of construction.
type app struct {
	logger    *slog.Logger
	metrics   *metric.MetricsRegistry
	nats      *natsclient.Client
	backend   flowstore.Backend
	store     *flow.Store
	persister *flowstore.Persister
	assistant *assistant.Assistant
	gateway   *gateway.Server
	server    *http.Server
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{logger: logger, metrics: metric.NewMetricsRegistry()}
	defer func() {
		if err != nil {
			a.close(5 * time.Second)
		}
	}()

	defs, err := loadDefinitions(cfg.Definitions)
	if err != nil {
		return nil, err
	}

	a.store = flow.NewStore(
		flow.WithDefinitions(defs),
		flow.WithLayout(cfg.Layout),
		flow.WithLogger(logger),
		flow.WithMetrics(a.metrics),
	)

	if err := a.openBackend(ctx, cfg.Persistence); err != nil {
		return nil, err
	}
	// The persister writes to the key on the first commit, so a record that
	// cannot be restored is moved aside before it starts.
	rec, err := flowstore.Recover(ctx, a.backend, cfg.Persistence.Key, a.store)
	if err != nil {
		return nil, fmt.Errorf("restore stored flow: %w", err)
	}
	switch {
	case rec.RejectedKey != "":
		logger.Error("Stored flow not restored, record moved aside", "backend", a.backend.Name(),
			"key", cfg.Persistence.Key, "rejected_key", rec.RejectedKey, "error", rec.Cause)
	case rec.Restored:
		logger.Info("Flow restored", "backend", a.backend.Name(), "key", cfg.Persistence.Key,
			"nodes", len(a.store.Nodes()))
	}
	a.persister = flowstore.NewPersister(a.store, a.backend, cfg.Persistence.Key,
		flowstore.WithLogger(logger),
		flowstore.WithMetrics(a.metrics),
	)

	checker := health.NewChecker()
	checker.Register("persistence", func() health.Status {
		return health.FromError("persistence", a.persister.LastError(),
			fmt.Sprintf("%s backend, revision %d written", a.backend.Name(), a.persister.LastWritten()))
	})
	if a.nats != nil {
		checker.Register("nats", func() health.Status {
			status := a.nats.Status().String()
			switch {
			case a.nats.IsHealthy():
				return health.NewHealthy("nats", status)
			case a.nats.Status() == natsclient.StatusCircuitOpen:
				return health.NewUnhealthy("nats", status)
			default:
				return health.NewDegraded("nats", status)
			}
		})
	}

	gatewayOpts := []gateway.Option{
		gateway.WithDefinitions(defs),
		gateway.WithHealth(checker),
		gateway.WithMetrics(a.metrics),
		gateway.WithLogger(logger),
		gateway.WithAllowedOrigins(cfg.HTTP.AllowedOrigins),
		gateway.WithRateLimit(cfg.HTTP.RateLimit, cfg.HTTP.RateBurst),
	}
	if cfg.Assistant.Enabled {
		gen, err := assistant.NewOpenAIGenerator(assistant.OpenAIConfig{
			BaseURL:     cfg.Assistant.BaseURL,
			Model:       cfg.Assistant.Model,
			APIKey:      cfg.Assistant.APIKey,
			Timeout:     cfg.Assistant.Timeout.Std(),
			Temperature: cfg.Assistant.Temperature,
			Logger:      logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create assistant: %w", err)
		}
		a.assistant = assistant.New(a.store, gen,
			assistant.WithDefinitions(defs),
			assistant.WithLogger(logger),
			assistant.WithMetrics(a.metrics),
		)
		gatewayOpts = append(gatewayOpts, gateway.WithAssistant(a.assistant))
		checker.Register("assistant", gen.HealthCheck(5*time.Second))
		logger.Info("Assistant enabled", "base_url", cfg.Assistant.BaseURL, "model", cfg.Assistant.Model)
	}

	a.gateway = gateway.New(a.store, gatewayOpts...)
	a.server = &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      a.gateway.Handler(),
		ReadTimeout:  cfg.HTTP.ReadTimeout.Std(),
		WriteTimeout: cfg.HTTP.WriteTimeout.Std(),
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	return a, nil
}

func loadDefinitions(cfg config.DefinitionsConfig) (*eipdef.Registry, error) {
	var (
		catalog eipdef.Catalog
		err     error
	)
	if cfg.Catalog != "" {
		catalog, err = eipdef.LoadCatalog(cfg.Catalog)
	} else {
		catalog, err = eipdef.DefaultCatalog()
	}
	if err != nil {
		return nil, fmt.Errorf("load component catalog: %w", err)
	}
	slog.Info("Component catalog loaded", "path", cfg.Catalog, "namespaces", len(catalog))
	return eipdef.NewRegistry(catalog), nil
}

func (a *app) openBackend(ctx context.Context, cfg config.PersistenceConfig) error {
	switch cfg.Backend {
	case config.BackendNATS:
		client, err := connectToNATS(ctx, cfg.NATS, a.logger)
		if err != nil {
			return err
		}
		a.nats = client
		backend, err := flowstore.NewNATSBackend(ctx, client, cfg.NATS.Bucket)
		if err != nil {
			return fmt.Errorf("open NATS backend: %w", err)
		}
		a.backend = backend
	case config.BackendSQLite:
		backend, err := flowstore.OpenSQLiteBackend(ctx, cfg.SQLite.Path)
		if err != nil {
			return fmt.Errorf("open SQLite backend: %w", err)
		}
		a.backend = backend
	case config.BackendRedis:
		backend, err := flowstore.DialRedisBackend(ctx, cfg.Redis.URL, cfg.Redis.Prefix)
		if err != nil {
			return fmt.Errorf("open Redis backend: %w", err)
		}
		a.backend = backend
	default:
		a.backend = flowstore.NewMemoryBackend()
	}
	a.logger.Info("Persistence backend ready", "backend", a.backend.Name(), "key", cfg.Key)
	return nil
}

// connectToNATS establishes the NATS connection and waits for it to be ready
func connectToNATS(ctx context.Context, cfg config.NATSConfig, logger *slog.Logger) (*natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithName(appName),
		natsclient.WithLogger(logger),
		natsclient.WithMaxReconnects(cfg.MaxReconnects),
		natsclient.WithReconnectWait(cfg.ReconnectWait.Std()),
	}
	if cfg.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.Token))
	}
	if cfg.PingInterval > 0 {
		opts = append(opts, natsclient.WithPingInterval(cfg.PingInterval.Std()))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, natsclient.WithTimeout(cfg.Timeout.Std()))
	}
	if cfg.DrainTimeout > 0 {
		opts = append(opts, natsclient.WithDrainTimeout(cfg.DrainTimeout.Std()))
	}
	if cfg.MaxBackoff > 0 {
		opts = append(opts, natsclient.WithMaxBackoff(cfg.MaxBackoff.Std()))
	}

	client, err := natsclient.NewClient(strings.Join(cfg.URLs, ","), opts...)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	slog.Info("Connecting to NATS", "urls", cfg.URLs)
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.WaitForConnection(connCtx); err != nil {
		_ = client.Close(context.Background())
		return nil, fmt.Errorf("NATS connection timeout: %w", err)
	}
	return client, nil
}

// serve runs the HTTP server until ctx is cancelled or the listener fails
func (a *app) serve(ctx context.Context, shutdownTimeout time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("HTTP server listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Stream connections are hijacked and not tracked by Shutdown.
		a.gateway.Close()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("eipcanvas shutdown complete")
	return nil
}

func (a *app) close(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if a.gateway != nil {
		a.gateway.Close()
	}
	if a.assistant != nil {
		a.assistant.Close()
	}
	if a.persister != nil {
		if err := a.persister.Close(ctx); err != nil {
			a.logger.Error("Final flow write failed", "error", err)
		}
	}
	if a.store != nil {
		a.store.Close()
	}
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			a.logger.Warn("Backend close failed", "backend", a.backend.Name(), "error", err)
		}
	}
	if a.nats != nil {
		if err := a.nats.Close(ctx); err != nil {
			a.logger.Warn("NATS close failed", "error", err)
		}
	}
}
