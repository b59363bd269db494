package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"pandapal_bot/internal/ai"
	"pandapal_bot/internal/aigate"
	"pandapal_bot/internal/config"
	"pandapal_bot/internal/scheduler"
	"pandapal_bot/internal/storage"
	"pandapal_bot/internal/telegram"
	"pandapal_bot/internal/tutor"
	"pandapal_bot/pkg/logger"
	"pandapal_bot/pkg/metrics"
)

func main() {
	// 1. Load configuration
	cfg := config.MustLoad()

	// 2. Init structured logger (zap based)
	log := logger.New(cfg.LogLevel)
	defer logger.Sync(log)

	log.Infow("starting pandapal-bot", "version", cfg.Version)

	// 3. Root context with graceful shutdown on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 4. Expose Prometheus metrics + health endpoint
	metricsSrv := metrics.MustServe(cfg.MetricsAddr, log)

	// 5. Storage (SQLite for local runs, Postgres for hosted deployments)
	var (
		store storage.Store
		err   error
	)
	switch cfg.DBDriver {
	case "postgres":
		store, err = storage.NewPostgreSQL(cfg.DBDSN)
	default:
		store, err = storage.NewSQLite(cfg.DBPath)
	}
	if err != nil {
		log.Fatalw("init storage failed", "driver", cfg.DBDriver, "err", err)
	}
	defer store.Close()

	// 6. The AI request gate: built once from the single configured capacity
	// and injected into every consumer.
	gate, err := aigate.New(cfg.AIConcurrency,
		aigate.WithInFlightGauge(metrics.AIGateInFlight),
		aigate.WithWaitObserver(metrics.AIGateWaitSeconds),
	)
	if err != nil {
		log.Fatalw("init ai request gate failed", "capacity", cfg.AIConcurrency, "err", err)
	}
	log.Infow("ai request gate ready", "capacity", gate.Capacity())

	// 7. AI provider client and tutor service
	aiClient := ai.New(cfg.AIAPIKey, cfg.AIModel,
		ai.WithBaseURL(cfg.AIBaseURL),
		ai.WithRateLimit(cfg.AIRateRPS, cfg.AIRateBurst),
		ai.WithLogger(log),
	)
	tutorSvc := tutor.New(aiClient, gate, store, log, cfg.HistoryLimit, cfg.FreeDailyLimit)

	// 8. Telegram bot (main interface)
	tgBot, err := telegram.New(cfg.TelegramToken, tutorSvc, store, log)
	if err != nil {
		log.Fatalw("failed to initialize telegram bot", "err", err)
	}
	go tgBot.Run(ctx)

	// 9. Background maintenance once a day: purge chat history past retention
	// and refresh the active-users gauge.
	maintenance := scheduler.New(24*time.Hour, func(ctx context.Context) {
		removed, err := store.PurgeOlderThan(ctx, time.Now().Add(-cfg.HistoryRetention))
		if err != nil {
			log.Warnw("history purge failed", "err", err)
			metrics.IncrementDatabaseError("purge_history")
		} else if removed > 0 {
			log.Infow("history purged", "removed", removed)
		}

		users, err := store.CountUsers(ctx)
		if err != nil {
			log.Warnw("count users failed", "err", err)
			metrics.IncrementDatabaseError("count_users")
			return
		}
		metrics.UpdateActiveUsers(users)
	}, log)
	go maintenance.Run(ctx)

	// 10. Wait for termination signal
	<-ctx.Done()
	log.Info("shutdown signal received, shutting down ...")

	// 11. Graceful shutdown
	maintenance.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Warnw("metrics server shutdown error", "err", err)
	}

	log.Info("bye")
}
