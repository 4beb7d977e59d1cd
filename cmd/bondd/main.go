package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"impactbond/config"
	"impactbond/core/state"
	"impactbond/crypto"
	"impactbond/gateway/middleware"
	"impactbond/gateway/routes"
	"impactbond/native/bond"
	"impactbond/observability"
	"impactbond/observability/logging"
	"impactbond/observability/metrics"
	telemetry "impactbond/observability/otel"
	"impactbond/storage"
)

const serviceName = "bondd"

func main() {
	os.Exit(runMain(os.Args[1:], os.Stderr))
}

// runMain returns the process exit code so deferred cleanup runs before exit.
func runMain(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet(serviceName, flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := fs.String("config", "./bondd.toml", "path to bondd configuration")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}

	logger, logCloser := logging.Setup(serviceName, cfg.Environment,
		logging.WithLevel(cfg.Log.Level),
		logging.WithFile(cfg.Log.File, cfg.Log.MaxSizeMB, cfg.Log.MaxBackups),
	)
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("bondd exited", slog.Any("error", err))
		return 1
	}
	return 0
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.FromConfig(serviceName, cfg))
	if err != nil {
		return fmt.Errorf("initialise telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	handler, err := newHandler(cfg, db, logger)
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("listen", listener.Addr().String()))
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	if cfg.InMemory {
		return storage.NewMemDB(), nil
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "registry"))
	if err != nil {
		return nil, fmt.Errorf("open registry database: %w", err)
	}
	return db, nil
}

// newHandler wires the registry over db and returns the HTTP entrypoint.
func newHandler(cfg *config.Config, db storage.Database, logger *slog.Logger) (http.Handler, error) {
	admin, err := cfg.AdminPrincipal()
	if err != nil {
		return nil, fmt.Errorf("admin principal: %w", err)
	}

	manager := state.NewManager(db)
	if err := manager.EnsureStateVersion(); err != nil {
		return nil, err
	}

	bondMetrics := metrics.Bond()
	registry := bond.NewRegistry()
	registry.SetState(manager)
	registry.SetEmitter(observability.NewEventSink(logger, bondMetrics))
	if err := registry.Bootstrap(admin); err != nil {
		return nil, fmt.Errorf("bootstrap registry: %w", err)
	}
	current, err := registry.Admin()
	if err != nil {
		return nil, err
	}
	count, err := registry.BondCount()
	if err != nil {
		return nil, err
	}
	logger.Info("registry ready",
		logging.MaskField("admin", crypto.FormatPrincipal(current)),
		slog.Bool("adminFromConfig", current == admin),
		slog.Uint64("bonds", count),
		slog.Bool("inMemory", cfg.InMemory))

	if cfg.Auth.Enabled {
		logger.Info("bearer authentication enabled", logging.MaskField("hmacSecret", cfg.Auth.HMACSecret))
	}
	limit := middleware.RateLimit{
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Burst:             cfg.RateLimit.Burst,
	}
	router, err := routes.New(routes.Config{
		Registry: registry,
		Metrics:  bondMetrics,
		Logger:   logger,
		Authenticator: middleware.NewAuthenticator(middleware.AuthConfig{
			Enabled:    cfg.Auth.Enabled,
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
		}, logger),
		RateLimiter: middleware.NewRateLimiter(map[string]middleware.RateLimit{
			routes.RateLimitReads:  limit,
			routes.RateLimitWrites: limit,
		}, logger),
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{
			ServiceName: serviceName,
			LogRequests: cfg.Log.Level == "debug",
		}, logger),
		CORS: middleware.CORSConfig{AllowedOrigins: cfg.AllowedOrigins},
	})
	if err != nil {
		return nil, fmt.Errorf("configure routes: %w", err)
	}

	if cfg.Telemetry.Traces {
		return otelhttp.NewHandler(router, serviceName), nil
	}
	return router, nil
}
