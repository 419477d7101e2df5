package main

import (
	"context"
	"flag"
	"log"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hermish/traders-at-mit-2019/internal/config"
	"github.com/hermish/traders-at-mit-2019/internal/dispatch"
	"github.com/hermish/traders-at-mit-2019/internal/engine"
	"github.com/hermish/traders-at-mit-2019/internal/feed"
	"github.com/hermish/traders-at-mit-2019/internal/logger"
	"github.com/hermish/traders-at-mit-2019/internal/storage"
	"github.com/hermish/traders-at-mit-2019/internal/telegram"
	"github.com/hermish/traders-at-mit-2019/internal/venue"
)

var (
	configPath = flag.String("config", "", "Path to configuration file (defaults and NEWSBOT_* env when empty)")
	feedPath   = flag.String("feed", "", "Event feed to replay, overrides feed.path (\"-\" for stdin)")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *feedPath != "" {
		cfg.Feed.Path = *feedPath
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	if *configPath != "" {
		logger.Info("Configuration loaded from %s", *configPath)
	}

	var store *storage.Storage
	var journal venue.OrderJournal
	if cfg.Storage.Enabled {
		store, err = storage.New(cfg.Storage.DBPath)
		if err != nil {
			logger.Fatal("Failed to initialize storage: %v", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("Failed to close storage: %v", err)
			}
		}()
		journal = store
		logger.Info("Journaling run %s", store.RunID())
	} else {
		logger.Debug("Journal disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var telegramClient *telegram.Client
	var notifier venue.Notifier
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(
			cfg.Telegram.BotToken,
			cfg.Telegram.ChatID,
			cfg.Telegram.MaxRetries,
			cfg.Telegram.RetryDelayBase,
			cfg.Telegram.QueueSize,
		)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		telegramClient.Start(ctx)
		defer telegramClient.Close()
		if cfg.Telegram.NotifyOrders {
			notifier = telegramClient
		}
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	seed := cfg.Engine.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	logger.Info("Engine seed %d (epsilon %.3f, margin %.3f, resolution %s)",
		seed, cfg.Engine.Epsilon, cfg.Engine.Margin, cfg.Engine.ResolutionMode)

	paper := venue.NewPaper(journal, notifier)
	eng := engine.New(engine.Config{
		Epsilon: cfg.Engine.Epsilon,
		Margin:  cfg.Engine.Margin,
	}, paper, rand.New(rand.NewPCG(seed, seed)))
	if store != nil {
		eng.SetJournal(store)
	}
	disp := dispatch.New(eng, dispatch.ResolutionMode(cfg.Engine.ResolutionMode))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, stopping after the current event...")
		cancel()
	}()

	rc, err := feed.Open(cfg.Feed.Path)
	if err != nil {
		logger.Fatal("Failed to open feed: %v", err)
	}
	defer rc.Close()

	startTime := time.Now()
	logger.Info("Replaying feed %s", cfg.Feed.Path)
	runErr := disp.Run(ctx, feed.NewReader(rc))
	if runErr != nil && ctx.Err() == nil {
		logger.Error("Feed stopped: %v", runErr)
		if telegramClient != nil {
			telegramClient.NotifyError(runErr)
		}
	}

	stats := eng.Stats()
	credStats := eng.CredibilityStats()
	dispStats := disp.Stats()
	logger.Info("Run finished in %v: %d events, %d rejected, %d news, %d signals, %d clears",
		time.Since(startTime), dispStats.Dispatched, dispStats.Rejected, stats.News, stats.Signals, stats.Clears)
	logger.Info("Predictions: %d resolved, %d skipped, %d still pending; %d clears never fired",
		credStats.Resolved, credStats.Skipped, credStats.Pending, len(eng.PendingClears()))
	for _, ticker := range paper.Open() {
		logger.Info("Open position %s: %g", ticker, paper.Position(ticker))
	}

	credibility := eng.Credibility()
	if store != nil {
		if err := store.SaveCredibility(credibility); err != nil {
			logger.Error("Failed to save credibility snapshot: %v", err)
		}
	}
	if telegramClient != nil {
		telegramClient.NotifySummary(telegram.Summary{
			News:        stats.News,
			Signals:     stats.Signals,
			Clears:      stats.Clears,
			Rejected:    dispStats.Rejected,
			Credibility: credibility,
		})
	}
}
