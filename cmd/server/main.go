package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/prxgr4mmer/spread-tracker/internal/adapters/dexscreener"
	httpAdapter "github.com/prxgr4mmer/spread-tracker/internal/adapters/http"
	"github.com/prxgr4mmer/spread-tracker/internal/adapters/mexc"
	"github.com/prxgr4mmer/spread-tracker/internal/adapters/postgres"
	"github.com/prxgr4mmer/spread-tracker/internal/adapters/redis"
	"github.com/prxgr4mmer/spread-tracker/internal/config"
	"github.com/prxgr4mmer/spread-tracker/internal/domain"
	"github.com/prxgr4mmer/spread-tracker/internal/services"
	"github.com/prxgr4mmer/spread-tracker/internal/worker"
	"github.com/prxgr4mmer/spread-tracker/pkg/retry"
)

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, closeLog := initLogger(cfg.Logging)
	defer closeLog()
	slog.SetDefault(logger)

	logger.Info("starting spread tracker")

	// Create root context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Build and start application
	app, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build application", "error", err)
		os.Exit(1)
	}

	// Start application components
	if err := app.Start(ctx); err != nil {
		logger.Error("failed to start application", "error", err)
		os.Exit(1)
	}

	// Wait for shutdown signal
	waitForShutdown(ctx, cancel, app, logger)
}

func initLogger(cfg config.LoggingConfig) (*slog.Logger, func()) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var out io.Writer = os.Stdout
	closeFn := func() {}
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotator)
		closeFn = func() { _ = rotator.Close() }
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(handler), closeFn
}

// Application holds all components
type Application struct {
	db         *postgres.DB
	store      *redis.Store
	httpServer *httpAdapter.Server
	scheduler  *worker.Scheduler
	logger     *slog.Logger
}

func buildApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Application, error) {
	logger.Info("building application")

	// 1. Infrastructure Layer - Database
	db, err := postgres.NewDB(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}

	// 2. Infrastructure Layer - Shared store
	storeRetry := retry.DefaultConfig()
	storeRetry.MaxRetries = cfg.Redis.ConnectRetries
	storeRetry.InitialBackoff = cfg.Redis.ConnectBackoff
	store, err := redis.Connect(ctx, cfg.Redis.URL, storeRetry, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	// 3. Infrastructure Layer - Repositories
	tokenRepo := postgres.NewTokenRepository(db)
	priceRepo := postgres.NewPriceRepository(db)

	// 4. Infrastructure Layer - Price sources share one transport
	httpClient := &http.Client{Timeout: cfg.Sources.HTTPTimeout}

	criteria := domain.DefaultPairCriteria()
	criteria.MinLiquidityUSD = cfg.Sources.MinLiquidityUSD
	criteria.MinVolumeUSD = cfg.Sources.MinVolumeUSD

	dexClient := dexscreener.NewClient(
		dexscreener.WithBaseURL(cfg.Sources.DEXBaseURL),
		dexscreener.WithHTTPClient(httpClient),
		dexscreener.WithTimeout(cfg.Sources.DEXTimeout),
		dexscreener.WithCriteria(criteria),
		dexscreener.WithRetry(cfg.Sources.MaxRetries, cfg.Sources.RetryBackoff),
		dexscreener.WithLogger(logger),
	)

	cexClient := mexc.NewClient(
		mexc.WithBaseURL(cfg.Sources.CEXBaseURL),
		mexc.WithHTTPClient(httpClient),
		mexc.WithTimeout(cfg.Sources.CEXTimeout),
		mexc.WithRetry(cfg.Sources.MaxRetries, cfg.Sources.RetryBackoff),
		mexc.WithLogger(logger),
	)

	// 5. Process metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// 6. Service Layer
	metricsService := services.NewMetricsService(
		store,
		cfg.Redis.MetricsRetention,
		registry,
		logger,
	)

	resolver := services.NewPriceResolver(dexClient, cexClient, logger)

	refresher := services.NewTokenRefresher(
		tokenRepo,
		priceRepo,
		resolver,
		logger,
	)

	dispatcher := services.NewDispatcher(
		refresher,
		cfg.Refresh.MaxWorkers,
		cfg.Refresh.RateLimitDelay,
		metricsService,
		logger,
	)

	lock := services.NewLock(store, cfg.Redis.LockKey, cfg.Redis.LockTimeout, logger)

	refreshService := services.NewRefreshService(
		tokenRepo,
		lock,
		refresher,
		dispatcher,
		metricsService,
		cfg.Scheduler.SoftTimeLimit,
		logger,
	)

	// 7. Transport Layer - HTTP Server
	handler := httpAdapter.NewHandler(
		refreshService,
		metricsService,
		resolver,
		db,
		store,
		cfg.Scheduler.TimeLimit,
		logger,
	)
	httpServer := httpAdapter.NewServer(cfg.Server, handler, registry, logger)

	// 8. Background Workers
	scheduler := worker.NewScheduler(refreshService, cfg.Scheduler, logger)

	logger.Info("application built successfully")

	return &Application{
		db:         db,
		store:      store,
		httpServer: httpServer,
		scheduler:  scheduler,
		logger:     logger,
	}, nil
}

func (a *Application) Start(ctx context.Context) error {
	a.logger.Info("starting application components")

	// Start scheduler in background
	go func() {
		if err := a.scheduler.Start(ctx); err != nil && ctx.Err() == nil {
			a.logger.Error("scheduler error", "error", err)
		}
	}()

	// Start HTTP server in background (will block until shutdown)
	go func() {
		if err := a.httpServer.Start(); err != nil {
			a.logger.Error("http server error", "error", err)
		}
	}()

	a.logger.Info("application started",
		"http_addr", a.httpServer.Addr(),
	)

	return nil
}

func (a *Application) Shutdown() {
	a.logger.Info("shutting down application")

	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop scheduler first so in-flight runs release their lock
	if err := a.scheduler.Stop(); err != nil {
		a.logger.Error("failed to stop scheduler", "error", err)
	}

	// Stop HTTP server
	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Error("failed to shutdown http server", "error", err)
	}

	// Close shared store and database connections
	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close store", "error", err)
	}
	a.db.Close()

	a.logger.Info("application shutdown complete")
}

func waitForShutdown(ctx context.Context, cancel context.CancelFunc, app *Application, logger *slog.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
		app.Shutdown()
	case <-ctx.Done():
		app.Shutdown()
	}
}
