// Command api is the VitalSync API server.
//
// Usage:
//
//	vitalsync-api
//	API_PORT=8080 vitalsync-api

// @title VitalSync API
// @version 1.0.0
// @description Wearable-device health metrics pipeline: provider sync, canonical daily/intraday storage, and heart-rate threshold alerting.
// @host localhost:8000
// @BasePath /
// @schemes http https
// @contact.name VitalSync
// @license.name MIT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/vitalsync/vitalsync/internal/alert"
	"github.com/vitalsync/vitalsync/internal/api"
	"github.com/vitalsync/vitalsync/internal/config"
	"github.com/vitalsync/vitalsync/internal/db"
	"github.com/vitalsync/vitalsync/internal/normalize"
	"github.com/vitalsync/vitalsync/internal/notify"
	"github.com/vitalsync/vitalsync/internal/provider"
	"github.com/vitalsync/vitalsync/internal/provider/fitbit"
	"github.com/vitalsync/vitalsync/internal/provider/withings"
	"github.com/vitalsync/vitalsync/internal/scheduler"
	"github.com/vitalsync/vitalsync/internal/store"
	"github.com/vitalsync/vitalsync/internal/token"
	"github.com/vitalsync/vitalsync/internal/window"

	_ "github.com/vitalsync/vitalsync/docs" // swagger docs
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Load .env if present
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Connect to database
	logger.Info("Connecting to database...")
	pool, err := db.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.EnsureSchema(ctx); err != nil {
		logger.Error("Failed to apply schema", "error", err)
		os.Exit(1)
	}
	logger.Info("Database connected",
		"min_conns", cfg.DBPoolMinConns,
		"max_conns", cfg.DBPoolMaxConns)

	// Correlation-token store: Redis when configured, in-memory otherwise.
	var tokens token.Store
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("Invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		tokens = token.NewRedisStore(redis.NewClient(opts))
		logger.Info("Token store: redis")
	} else {
		mem := token.NewMemoryStore()
		go mem.StartSweeper(ctx, time.Minute)
		tokens = mem
		logger.Info("Token store: in-memory")
	}

	// Pipeline wiring
	st := store.New(pool.Pool)
	windows := window.New(cfg.DefaultTimezone, logger)
	sources := map[string]provider.ReadingSource{
		config.ProviderFitbit:   fitbit.New(cfg.FitbitBaseURL, cfg.ProviderReqPerMin, cfg.ProviderTimeout, logger),
		config.ProviderWithings: withings.New(cfg.WithingsBaseURL, cfg.ProviderReqPerMin, cfg.ProviderTimeout, logger),
	}
	normalizer := normalize.New(sources, st, windows, cfg.FallbackDays, cfg.IntradayResolution, logger)
	mailer := notify.NewMailer(notify.SMTPConfig{
		Host: cfg.SMTPHost,
		Port: cfg.SMTPPort,
		User: cfg.SMTPUser,
		Pass: cfg.SMTPPass,
		From: cfg.SMTPFrom,
	}, logger)
	engine := alert.New(st, mailer, alert.Config{
		Delta:         cfg.AlertDelta,
		ReNotifyAfter: cfg.AlertInterval,
		Freshness:     cfg.AlertFreshness,
		LookbackDays:  cfg.HRFallbackDays,
	}, logger)

	// Start the periodic sync-and-alert cycle
	sched := scheduler.New(st, normalizer, engine, windows, cfg.PollInterval, cfg.SchedulerWorkers, logger)
	go sched.Run(ctx)

	// Create router
	router := api.NewRouter(pool.Pool, st, normalizer, tokens, windows, cfg, logger)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info("Starting VitalSync API",
			"addr", addr,
			"environment", cfg.Environment,
			"docs", fmt.Sprintf("http://localhost:%d/docs/", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt
	<-ctx.Done()
	logger.Info("Shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Server stopped")
}
