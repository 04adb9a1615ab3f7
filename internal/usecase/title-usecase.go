package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/iamvkosarev/websearch-chat/internal/model"
	"github.com/iamvkosarev/websearch-chat/internal/store"
	"github.com/iamvkosarev/websearch-chat/pkg/logger"
)

const titleMaxTokens = 50

type TitleUsecase struct {
	store      *store.Store
	completion CompletionClient
}

func NewTitleUsecase(s *store.Store, completion CompletionClient) *TitleUsecase {
	return &TitleUsecase{
		store:      s,
		completion: completion,
	}
}

// Generate names the chat after its first exchange. Failures never reach the user:
// an unauthorized key raises the configuration request, anything else is logged.
func (t *TitleUsecase) Generate(ctx context.Context, chatID string) {
	if err := t.generate(ctx, chatID); err != nil {
		if errors.Is(err, model.ErrUnauthorized) {
			t.store.RequestConfiguration(MessageInvalidAPIKey)
		}
		slog.WarnContext(ctx, "Failed to generate chat title", "chat_id", chatID, logger.Err(err))
	}
}

func (t *TitleUsecase) generate(ctx context.Context, chatID string) error {
	chat, err := t.store.Chat(chatID)
	if err != nil {
		return err
	}
	if len(chat.Messages) < 2 {
		return fmt.Errorf("chat has %d messages", len(chat.Messages))
	}
	settings := t.store.Settings()
	if settings.APIKey == "" {
		return model.ErrMissingAPIKey
	}

	messages := make([]model.Message, 0, 3)
	messages = append(messages, model.Message{Role: model.MessageRoleSystem, Content: model.TitlePrompt})
	for _, msg := range chat.Messages[:2] {
		messages = append(messages, msg.Outbound())
	}

	reply, err := t.completion.Complete(
		ctx, model.CompletionRequest{
			APIKey:      settings.APIKey,
			BaseURL:     settings.BaseURL,
			Model:       settings.EffectiveModel(chat),
			Messages:    messages,
			Temperature: turnTemperature,
			MaxTokens:   titleMaxTokens,
		},
	)
	if err != nil {
		return err
	}

	title := strings.Trim(strings.TrimSpace(reply.Content), `"`)
	if title == "" {
		return model.ErrEmptyCompletion
	}
	return t.store.UpdateChat(chatID, store.ChatUpdate{Title: &title})
}
