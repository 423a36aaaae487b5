// Package main provides the API server entry point for the quest engine.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quest-engine/internal/api"
	"github.com/quest-engine/internal/chain"
	"github.com/quest-engine/internal/config"
	"github.com/quest-engine/internal/logging"
	"github.com/quest-engine/internal/service"
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

	logger.Info("Connecting to databases...")
	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	// Initialize repositories
	questRepo := storage.NewQuestRepository(postgres)
	userQuestRepo := storage.NewUserQuestRepository(postgres)
	userRepo := storage.NewUserRepository(postgres)
	seasonRepo := storage.NewSeasonRepository(postgres)
	protocolRepo := storage.NewProtocolRepository(postgres)

	// The chain client is optional for the API server: without it quests
	// cannot be claimed or registered, but everything else works.
	var badgeContract *chain.BadgeContract
	badgeContract, err = chain.NewBadgeContract(&cfg.Chain, logger)
	if err != nil {
		logger.WithError(err).Warn("Chain client unavailable, claims and quest registration disabled")
		badgeContract = nil
	} else {
		defer badgeContract.Close()
	}

	// Initialize services
	var registrar service.QuestRegistrar
	var minter service.BadgeMinter
	if badgeContract != nil {
		registrar = badgeContract
		minter = badgeContract
	}

	questService := service.NewQuestService(questRepo, userQuestRepo, userRepo, registrar, redis, logger)
	claimService := service.NewClaimService(userQuestRepo, questRepo, userRepo, seasonRepo, minter, logger)
	leaderboardService := service.NewLeaderboardService(userRepo, redis, logger)
	seasonService := service.NewSeasonService(seasonRepo, logger)
	protocolService := service.NewProtocolService(protocolRepo)

	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		AdminKey:        cfg.AdminKey,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}

	server := api.NewServer(serverConfig, questService, claimService, leaderboardService, seasonService, protocolService, logger)

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
