package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/fatih/color"
	"github.com/iamvkosarev/websearch-chat/config"
	"github.com/iamvkosarev/websearch-chat/internal/model"
	"github.com/iamvkosarev/websearch-chat/internal/storage/file"
	in_memory "github.com/iamvkosarev/websearch-chat/internal/storage/in-memory"
	key_value "github.com/iamvkosarev/websearch-chat/internal/storage/key-value"
	"github.com/iamvkosarev/websearch-chat/internal/store"
	"github.com/iamvkosarev/websearch-chat/internal/usecase"
	"github.com/iamvkosarev/websearch-chat/pkg/logger"
	"github.com/iamvkosarev/websearch-chat/pkg/tavily"
	"github.com/redis/go-redis/v9"
)

const (
	StorageRedis  = "redis"
	StorageFile   = "file"
	StorageMemory = "memory"
)

var (
	ErrNoFrontEnd          = errors.New("neither the console nor telegram is enabled")
	ErrUnknownStorage      = errors.New("unknown storage backend")
	ErrMissingTelegramAuth = errors.New("telegram is enabled but TELEGRAM_APITOKEN is empty")
)

func Run(ctx context.Context, cfg *config.Config) error {
	if !cfg.Console.Enabled && !cfg.Telegram.Enabled {
		return ErrNoFrontEnd
	}

	blobs, closeBlobs, err := NewBlobStorage(ctx, cfg.Storage, cfg.Redis)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeBlobs(); err != nil {
			slog.Warn("Failed to close storage", "backend", cfg.Storage.Backend, logger.Err(err))
		}
	}()

	openAIUsecase := usecase.NewOpenAIUsecase(cfg.OpenAI)
	pool := usecase.NewSessionPool(
		usecase.SessionPoolDeps{
			Blobs:      blobs,
			Completion: openAIUsecase,
			Searcher:   tavily.NewClient(cfg.Search.TavilyBaseURL, cfg.Search.RequestTimeout),
			Tokens:     openAIUsecase,
		},
		cfg.Storage.BlobName,
		DefaultSettings(cfg),
		usecase.AiChatConfig{
			ContextTokenLimit:   cfg.OpenAI.ContextTokenLimit,
			PromptEnhancerModel: cfg.OpenAI.PromptEnhancerModel,
		},
	)
	defer pool.Close()

	var group Group
	if cfg.Telegram.Enabled {
		telegramUsecase, err := newTelegramUsecase(cfg, pool)
		if err != nil {
			return err
		}
		group = append(group, NewService("telegram", telegramUsecase.Run))
	}
	if cfg.Console.Enabled {
		consoleUsecase := usecase.NewConsoleUsecase(cfg.Console, pool, color.Output)
		group = append(group, NewService("console", consoleUsecase.Run))
	}

	slog.Info("Starting", "services", len(group), "storage", cfg.Storage.Backend)
	return group.Run(ctx)
}

func newTelegramUsecase(cfg *config.Config, pool *usecase.SessionPool) (*usecase.TelegramUsecase, error) {
	if cfg.Telegram.TelegramAPIToken == "" {
		return nil, ErrMissingTelegramAuth
	}
	bot, err := api.NewBotAPI(cfg.Telegram.TelegramAPIToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create new bot: %w", err)
	}
	slog.Info("Authorized on account", "username", bot.Self.UserName)

	telegramUsecase, err := usecase.NewTelegramUsecase(
		cfg.Telegram, cfg.AIChat.Models, usecase.TelegramUsecaseDeps{
			Bot:      bot,
			Sessions: pool,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram usecase: %w", err)
	}
	return telegramUsecase, nil
}

// NewBlobStorage opens the configured backend. The returned func releases it.
func NewBlobStorage(ctx context.Context, cfg config.Storage, redisCfg config.Redis) (
	store.BlobStorage,
	func() error,
	error,
) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case StorageRedis:
		rdb := redis.NewClient(
			&redis.Options{
				Addr:     redisCfg.Endpoint,
				Password: redisCfg.Password,
				DB:       redisCfg.DB,
			},
		)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", redisCfg.Endpoint, err)
		}
		return key_value.NewBlobStorage(rdb, redisCfg.KeyPrefix), rdb.Close, nil
	case StorageFile:
		blobs, err := file.NewBlobStorage(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		return blobs, noop, nil
	case StorageMemory:
		return in_memory.NewBlobStorage(), noop, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownStorage, cfg.Backend)
	}
}

// DefaultSettings are the settings every new store starts from.
func DefaultSettings(cfg *config.Config) model.Settings {
	return model.Settings{
		APIKey:       cfg.OpenAI.APIKey,
		BaseURL:      cfg.OpenAI.BaseURL,
		TavilyAPIKey: cfg.Search.TavilyAPIKey,
		SystemPrompt: orDefault(cfg.AIChat.SystemPrompt, model.DefaultSystemPrompt),
		SearchPrompt: orDefault(cfg.AIChat.SearchPrompt, model.DefaultSearchPrompt),
		PinnedModel:  cfg.AIChat.PinnedModel,
	}
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
