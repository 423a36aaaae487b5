// Package main provides the sweep worker entry point for the quest engine.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quest-engine/internal/config"
	"github.com/quest-engine/internal/engine"
	"github.com/quest-engine/internal/logging"
	"github.com/quest-engine/internal/mirror"
	"github.com/quest-engine/internal/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.GetGlobalLogger().WithError(err).Fatal("Failed to load configuration")
	}

	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger := logging.GetGlobalLogger()

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	questRepo := storage.NewQuestRepository(postgres)
	userRepo := storage.NewUserRepository(postgres)
	userQuestRepo := storage.NewUserQuestRepository(postgres)

	mirrorClient := mirror.NewClient(&cfg.Mirror, logger)
	evaluator := engine.NewEvaluator(mirrorClient, &cfg.Mirror, logger)

	// The evaluation archive is optional; the sweep runs without it.
	var archive engine.Archiver
	if cfg.Database.ClickHouse.Enabled() {
		clickhouseDB, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
		if err != nil {
			logger.WithError(err).Warn("ClickHouse unavailable, evaluation archive disabled")
		} else {
			defer clickhouseDB.Close()
			evaluationArchive := storage.NewEvaluationArchive(clickhouseDB, logger)
			evaluationArchive.Start()
			defer evaluationArchive.Stop()
			archive = evaluationArchive
		}
	}

	sweep, err := engine.NewSweep(&engine.SweepConfig{
		Quests:      questRepo,
		Users:       userRepo,
		Progress:    userQuestRepo,
		Evaluator:   evaluator,
		Archive:     archive,
		Interval:    cfg.Engine.SweepInterval,
		Concurrency: cfg.Engine.Concurrency,
		Logger:      logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create sweep scheduler")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sweep.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start sweep scheduler")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := sweep.Stop(stopCtx); err != nil {
		logger.WithError(err).Error("Sweep scheduler did not stop cleanly")
	}

	logger.Info("Worker exited")
}
