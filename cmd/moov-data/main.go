package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/moov-data/internal/alerts"
	"github.com/moov-data/internal/clock"
	"github.com/moov-data/internal/common/config"
	"github.com/moov-data/internal/common/db"
	"github.com/moov-data/internal/common/discord"
	"github.com/moov-data/internal/common/logger"
	"github.com/moov-data/internal/common/maintenance"
	"github.com/moov-data/internal/feed"
	"github.com/moov-data/internal/network"
	"github.com/moov-data/internal/stations"
)

func main() {
	// A missing .env is fine, the environment may already be set
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		panic("Failed to load .env file: " + err.Error())
	}

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	loggerConfig := logger.DefaultLoggerConfig()
	loggerConfig.Level = logger.ParseLogLevel(cfg.Logging.Level)
	loggerConfig.FilePath = cfg.Logging.FilePath
	loggerConfig.DiscordURL = cfg.Logging.DiscordURL
	log := logger.NewFromConfig(loggerConfig)

	log.Info("moov-data service starting",
		"version", "1.0.0",
		"network", cfg.Network,
		"feed", cfg.Feed.BaseURL,
		"log_level", cfg.Logging.Level,
	)

	if err := cfg.Database.Validate(); err != nil {
		log.Fatal("Invalid database configuration", "error", err)
	}

	database, err := db.New(cfg.Database.ConnectionString(), log)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}
	defer database.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := database.EnsureSchema(ctx); err != nil {
		log.Fatal("Failed to prepare database schema", "error", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	client := feed.NewClient(cfg.Feed.BaseURL, cfg.Feed.Timeout, log)
	star := network.New(cfg.Network, client, cfg.Feed.Catalog, clock.Paris(), log)

	var wg sync.WaitGroup

	// Pruning of stations that left the feed
	cleanupCfg := maintenance.DefaultSchedulerConfig()
	cleanupCfg.Network = cfg.Network
	cleanupCfg.RetainFor = cfg.Stations.RetainFor
	cleanup := maintenance.NewCleanupScheduler(database, log, cleanupCfg)
	if err := cleanup.Start(ctx); err != nil {
		log.Fatal("Failed to start cleanup scheduler", "error", err)
	}
	defer cleanup.Stop()

	// Station directory sync
	syncer := stations.NewSyncer(star.Fetcher(), star.Modes(), stations.NewStore(database, log), cfg.Network, clock.Paris(), log)
	stationScheduler := stations.NewScheduler(
		cfg.Stations.SyncInterval,
		cfg.Stations.RetainFor/2,
		syncer,
		db.NewSyncLog(database),
		client,
		cleanup,
		clock.Paris(),
		log,
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := stationScheduler.Start(ctx); err != nil {
			log.Error("Station scheduler error", "error", err)
		}
	}()

	// Major traffic alerts to Discord
	webhook := discord.NewClient(cfg.Logging.DiscordURL)
	if webhook.Enabled() {
		notifier := alerts.NewNotifier(star.AlertFilter(), webhook, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := notifier.Run(ctx, cfg.Alerts.PollInterval); err != nil {
				log.Error("Alert notifier error", "error", err)
			}
		}()
	} else {
		log.Info("Alert notifier disabled (no Discord webhook configured)")
	}

	<-sigChan
	log.Info("Shutdown signal received")

	cancel()

	wg.Wait()

	log.Info("moov-data service stopped")
}
