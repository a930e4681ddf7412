package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/xaenox/wa-bot/internal/assistant"
	"github.com/xaenox/wa-bot/internal/bot"
	"github.com/xaenox/wa-bot/internal/dispatcher"
	"github.com/xaenox/wa-bot/internal/metrics"
	"github.com/xaenox/wa-bot/internal/server"
	"github.com/xaenox/wa-bot/internal/session"
	"github.com/xaenox/wa-bot/internal/storage"
	"github.com/xaenox/wa-bot/pkg/config"
	"go.uber.org/zap"
)

const configPath = "config.yaml"

func main() {
	// Local development keeps secrets in .env
	envErr := godotenv.Load()

	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fallback, _ := zap.NewProduction()
		fallback.Fatal("Failed to load config", zap.Error(err), zap.String("path", configPath))
	}

	// Initialize logger
	logger, err := newLogger(cfg.Log.Level)
	if err != nil {
		fallback, _ := zap.NewProduction()
		fallback.Fatal("Failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync()

	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		logger.Warn("Failed to read .env file", zap.Error(envErr))
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	store, err := newStorage(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer store.Close()

	// Initialize assistant
	client, err := newAssistant(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize assistant", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	botMetrics := metrics.NewBotMetrics(reg)

	registry := session.NewRegistry(store, client, logger)
	d := dispatcher.New(registry, client, botMetrics, logger)

	// Initialize bot
	b, err := bot.New(bot.Config{
		Token:   cfg.Telegram.Token,
		Workers: cfg.Telegram.Workers,
		Debug:   cfg.Telegram.Debug,
	}, d, botMetrics, logger)
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}

	if cfg.Metrics.Addr != "" {
		srv := server.New(cfg.Metrics.Addr, reg, logger)
		go func() {
			if err := srv.Run(ctx); err != nil {
				logger.Error("Metrics server stopped", zap.Error(err))
			}
		}()
	}

	// Start the bot
	if err := b.Start(ctx); err != nil {
		logger.Fatal("Bot error", zap.Error(err))
	}
	logger.Info("Bot stopped")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = lvl
	return zapCfg.Build()
}

func newStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.SessionStorage, error) {
	switch cfg.Storage.Backend {
	case storage.BackendPostgres:
		logger.Info("Using PostgreSQL storage", zap.String("host", cfg.Database.Host), zap.String("db", cfg.Database.DBName))
		return storage.NewPostgresStorage(ctx, storage.DatabaseConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		})
	case storage.BackendRedis:
		logger.Info("Using Redis storage")
		return storage.NewRedisStorage(ctx, cfg.Redis.URL)
	default:
		logger.Info("Using in-memory storage")
		return storage.NewMemoryStorage(), nil
	}
}

func newAssistant(ctx context.Context, cfg *config.Config, logger *zap.Logger) (assistant.Client, error) {
	switch cfg.Assistant.Provider {
	case assistant.ProviderOpenAI:
		logger.Info("Using OpenAI assistant", zap.String("model", cfg.OpenAI.Model))
		return assistant.NewOpenAIClient(assistant.OpenAIConfig{
			APIKey:       cfg.OpenAI.APIKey,
			BaseURL:      cfg.OpenAI.BaseURL,
			Model:        cfg.OpenAI.Model,
			MaxTokens:    cfg.OpenAI.MaxTokens,
			Temperature:  cfg.OpenAI.Temperature,
			SystemPrompt: cfg.OpenAI.SystemPrompt,
			SessionTTL:   cfg.OpenAI.SessionTTL,
			Logger:       logger,
		})
	default:
		logger.Info("Using Watson Assistant", zap.String("url", cfg.Watson.URL))
		// Token refreshes must outlive the shutdown signal while queued replies drain.
		return assistant.NewWatsonClient(context.WithoutCancel(ctx), assistant.WatsonConfig{
			URL:         cfg.Watson.URL,
			AssistantID: cfg.Watson.AssistantID,
			APIKey:      cfg.Watson.APIKey,
			Version:     cfg.Watson.Version,
			IAMURL:      cfg.Watson.IAMURL,
			Timeout:     cfg.Watson.Timeout,
			Logger:      logger,
		})
	}
}
