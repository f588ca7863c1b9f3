package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	"github.com/the-governor-hq/llm-api/internal/auth"
	"github.com/the-governor-hq/llm-api/internal/chread"
	"github.com/the-governor-hq/llm-api/internal/config"
	"github.com/the-governor-hq/llm-api/internal/pipeline"
	"github.com/the-governor-hq/llm-api/internal/provider"
	"github.com/the-governor-hq/llm-api/internal/ratelimit"
	"github.com/the-governor-hq/llm-api/internal/server"
	"github.com/the-governor-hq/llm-api/internal/storage"
	"github.com/the-governor-hq/llm-api/internal/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	configPath := flag.String("config", envOrDefault("GOVERNOR_CONFIG", "governor.yaml"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Logger
	logger := mustBuildLogger(cfg.Logging.Level)
	defer logger.Sync() //nolint:errcheck // best-effort flush

	policyCfg, err := cfg.Policy()
	if err != nil {
		logger.Fatal("invalid governor config", zap.Error(err))
	}

	logger.Info("starting governor gateway",
		zap.String("addr", cfg.Server.Addr),
		zap.Bool("enabled", policyCfg.Enabled),
		zap.String("domain", string(policyCfg.Domain)),
		zap.String("mode", string(policyCfg.Mode)),
		zap.Int("rate_limit", policyCfg.RateLimit),
	)

	// Storage — ClickHouse or LogWriter fallback
	var writer storage.EventWriter
	var reader *chread.Reader
	if dsn := os.Getenv(cfg.Storage.ClickHouseDSNEnv); dsn != "" {
		chWriter, err := storage.NewClickHouseWriter(dsn, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer",
				zap.Error(err),
			)
			writer = storage.NewLogWriter(logger)
		} else {
			writer = chWriter
			logger.Info("clickhouse writer connected")
		}

		reader, err = chread.NewReader(dsn, logger)
		if err != nil {
			logger.Warn("clickhouse reader connection failed, event inspection disabled",
				zap.Error(err),
			)
		} else {
			defer func() { _ = reader.Close() }()
			logger.Info("clickhouse reader connected")
		}
	} else {
		writer = storage.NewLogWriter(logger)
		logger.Info("no clickhouse dsn set, using log writer")
	}
	defer writer.Close()

	// Rate limiter with background sweep
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	limiter := ratelimit.New(policyCfg.RateLimit, policyCfg.Enabled && policyCfg.RateLimit > 0)
	go limiter.Run(ctx, ratelimit.Window)

	// Postgres pool — client admin endpoints, and auth in postgres mode
	var pgPool *sql.DB
	var clientStore *store.Store
	if dsn := os.Getenv(cfg.Auth.PostgresDSNEnv); dsn != "" {
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			logger.Fatal("failed to open postgres", zap.Error(err))
		}
		defer func() { _ = db.Close() }()
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(ctx); err != nil {
			logger.Fatal("failed to ping postgres", zap.Error(err))
		}
		pgPool = db
		clientStore = store.NewStore(db)
		logger.Info("postgres connected")
	}

	// Authentication
	var authenticator auth.Authenticator
	switch cfg.Auth.Mode {
	case "none", "":
		logger.Info("authentication disabled, identity falls back to client address")
	case "static":
		authenticator = auth.NewStaticAuthenticator()
		logger.Info("static key authentication enabled")
	case "postgres":
		if pgPool == nil {
			logger.Fatal("auth mode is postgres but dsn env var is empty",
				zap.String("env", cfg.Auth.PostgresDSNEnv),
			)
		}
		authenticator = auth.NewPostgresAuthenticator(auth.PostgresAuthConfig{
			DB:       pgPool,
			CacheTTL: time.Duration(cfg.Auth.CacheTTLSeconds) * time.Second,
			Logger:   logger,
		})
		logger.Info("postgres authentication enabled")
	default:
		logger.Fatal("unknown auth mode", zap.String("mode", cfg.Auth.Mode))
	}

	// Upstream provider
	upstreamTimeout := time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second
	upstream := provider.NewOpenAI(
		cfg.Upstream.BaseURL,
		os.Getenv(cfg.Upstream.APIKeyEnv),
		upstreamTimeout,
		cfg.Upstream.MaxResponseBytes,
	)

	pipe := pipeline.New(policyCfg, limiter, writer, logger)

	deps := &server.Dependencies{
		Pipeline:        pipe,
		Provider:        upstream,
		Auth:            authenticator,
		Store:           clientStore,
		Reader:          reader,
		Logger:          logger,
		UpstreamTimeout: upstreamTimeout,
	}
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.NewRouter(deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2 * upstreamTimeout,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	logger.Info("received signal, shutting down")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	logger.Info("governor gateway stopped")
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
