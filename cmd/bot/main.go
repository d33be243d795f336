package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kris-hamade/project-b-r0/internal/bot"
	"github.com/kris-hamade/project-b-r0/internal/classifier"
	"github.com/kris-hamade/project-b-r0/internal/journal"
	"github.com/kris-hamade/project-b-r0/internal/llm"
	"github.com/kris-hamade/project-b-r0/internal/scheduler"
	"github.com/kris-hamade/project-b-r0/internal/storage"
	"github.com/kris-hamade/project-b-r0/internal/webhook"
	"github.com/kris-hamade/project-b-r0/pkg/config"
	"go.uber.org/zap"
)

func main() {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := zap.NewProduction()
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer logger.Sync()

	var store storage.Storage
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	} else {
		logger.Info("Using PostgreSQL storage",
			zap.String("host", cfg.Database.Host),
			zap.String("dbname", cfg.Database.DBName))
		store, err = storage.NewPostgresStorage(storage.DatabaseConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
	}
	defer store.Close()

	cls := classifier.New(
		cfg.Classifier.BaseURL,
		time.Duration(cfg.Classifier.TimeoutMS)*time.Millisecond,
		logger,
	)
	if !cls.Healthy(context.Background()) {
		logger.Warn("Classifier service is not healthy, fallback rule will apply",
			zap.String("base_url", cfg.Classifier.BaseURL))
	}

	generator := llm.NewGenerator(cfg.OpenAI.APIKey, llm.Options{
		RecheckModel:  cfg.OpenAI.RecheckModel,
		CheckInModel:  cfg.OpenAI.CheckInModel,
		SearchModel:   cfg.OpenAI.SearchModel,
		SearchTimeout: time.Duration(cfg.OpenAI.SearchTimeoutMS) * time.Millisecond,
		MaxTokens:     cfg.OpenAI.MaxTokens,
	}, logger)

	searcher := journal.NewSearcher(store, cfg.OpenAI.JournalCharLimit, logger)

	discord, err := bot.NewDiscord(cfg.Discord.Token, store, logger, cfg.OpenAI.AllowedModels, cfg.OpenAI.SearchModel)
	if err != nil {
		logger.Fatal("Failed to create Discord session", zap.Error(err))
	}

	pipeline := bot.NewPipeline(
		store,
		cls,
		generator,
		searcher,
		discord,
		bot.RegexWellbeing{},
		cfg.Classifier.MinConfidence,
		cfg.OpenAI.HistoryWindow,
		logger,
	)

	sched := scheduler.New(logger)
	events := scheduler.NewEventReminders(store, sched, discord, generator, logger)
	checkIns := scheduler.NewChannelCheckIns(store, sched, discord, generator, logger)
	wellbeing := scheduler.NewWellbeingCheckIns(store, sched, discord, generator, logger)

	discord.Attach(pipeline, events)
	if err := discord.Open(); err != nil {
		logger.Fatal("Failed to open Discord session", zap.Error(err))
	}

	if err := events.Reconcile(context.Background()); err != nil {
		logger.Error("Failed to reconcile scheduled events", zap.Error(err))
	}
	if err := checkIns.Register(); err != nil {
		logger.Fatal("Failed to register channel check-ins", zap.Error(err))
	}
	if err := wellbeing.Register(); err != nil {
		logger.Fatal("Failed to register wellbeing check-ins", zap.Error(err))
	}
	sched.Start()

	hooks := webhook.NewServer(cfg.Webhook.Port, store, discord, generator, logger)
	go func() {
		if err := hooks.Start(); err != nil {
			logger.Error("Webhook server failed", zap.Error(err))
		}
	}()

	logger.Info("Bot is running, press Ctrl+C to exit")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sched.Stop()
	if err := hooks.Shutdown(shutdownCtx); err != nil {
		logger.Error("Webhook server shutdown failed", zap.Error(err))
	}
	pipeline.Flush()
	if err := discord.Close(); err != nil {
		logger.Error("Discord session close failed", zap.Error(err))
	}
}
