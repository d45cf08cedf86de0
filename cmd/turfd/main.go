package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wnt/turfpoints/internal/badges"
	"github.com/wnt/turfpoints/internal/config"
	"github.com/wnt/turfpoints/internal/contest"
	"github.com/wnt/turfpoints/internal/database"
	"github.com/wnt/turfpoints/internal/httpapi"
	"github.com/wnt/turfpoints/internal/ledger"
	"github.com/wnt/turfpoints/internal/logger"
	"github.com/wnt/turfpoints/internal/notify"
	"github.com/wnt/turfpoints/internal/quests"
	"github.com/wnt/turfpoints/internal/scheduler"
	"github.com/wnt/turfpoints/internal/shop"
	"github.com/wnt/turfpoints/internal/spots"
	"github.com/wnt/turfpoints/internal/visits"
)

func main() {
	envFile := flag.String("envFile", ".env", "Path to .env file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		log.Printf("No .env file found at %s, using environment variables", *envFile)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	baseLogger := logger.New(cfg.LogLevel)
	baseLogger.Info().
		Str("http_port", cfg.HTTPPort).
		Str("metrics_port", cfg.MetricsPort).
		Msg("Starting turfpoints engine")

	db, err := database.Connect(cfg.DatabaseDSN)
	if err != nil {
		baseLogger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		baseLogger.Fatal().Err(err).Msg("Failed to migrate database")
	}

	var notifier notify.Notifier = notify.Nop{}
	var queueNotifier *notify.QueueNotifier
	switch {
	case cfg.RedisURL != "":
		queueNotifier, err = notify.NewQueueNotifier(cfg.RedisURL, baseLogger)
		if err != nil {
			baseLogger.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		notifier = queueNotifier
		baseLogger.Info().Msg("Using Redis queue notifier")
	case cfg.NotifyWebhookURL != "":
		notifier = notify.NewWebhookNotifier(cfg.NotifyWebhookURL, baseLogger)
		baseLogger.Info().Msg("Using webhook notifier")
	default:
		baseLogger.Warn().Msg("No notifier configured, notifications will be dropped")
	}

	ledgerSvc := ledger.NewService(db, baseLogger)
	visitSvc := visits.NewService(db, notifier, cfg.HeartbeatInterval, cfg.VisitStaleAfter, baseLogger)
	spotSvc := spots.NewService(db, baseLogger)
	questSvc := quests.NewService(db, baseLogger)
	badgeSvc := badges.NewService(db, notifier, baseLogger)
	shopSvc := shop.NewService(db, baseLogger)
	contestSched := contest.NewScheduler(db, notifier, baseLogger)

	manager := scheduler.NewManager(cfg, contestSched, visitSvc, baseLogger)
	if err := manager.Start(); err != nil {
		baseLogger.Fatal().Err(err).Msg("Failed to start scheduler")
	}

	apiServer := httpapi.NewServer(db, ledgerSvc, visitSvc, spotSvc, questSvc,
		badgeSvc, shopSvc, cfg.WelcomeBalance, baseLogger)

	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: apiServer.Router(),
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			baseLogger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	metricsServer := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: promhttp.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			baseLogger.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	baseLogger.Info().Str("signal", sig.String()).Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error().Err(err).Msg("Metrics server shutdown failed")
	}
	if err := manager.Stop(); err != nil {
		baseLogger.Error().Err(err).Msg("Scheduler shutdown failed")
	}
	if queueNotifier != nil {
		if err := queueNotifier.Close(); err != nil {
			baseLogger.Error().Err(err).Msg("Failed to close Redis connection")
		}
	}

	baseLogger.Info().Msg("Shutdown complete")
}
