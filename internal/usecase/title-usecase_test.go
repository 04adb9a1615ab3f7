package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/iamvkosarev/websearch-chat/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addExchange(t *testing.T, f turnFixture) {
	t.Helper()
	_, err := f.store.AddMessage(f.chat.ChatID, model.Message{Role: model.MessageRoleUser, Content: "How do goroutines work?"}, false)
	require.NoError(t, err)
	_, err = f.store.AddMessage(f.chat.ChatID, model.Message{Role: model.MessageRoleAssistant, Content: "They are green threads."}, false)
	require.NoError(t, err)
}

func TestTitle_Generate(t *testing.T) {
	completion := newFakeCompletion()
	completion.completions = []model.Message{{Role: model.MessageRoleAssistant, Content: ` "Goroutines Explained" `}}
	f := newTurnFixture(t, completion)
	addExchange(t, f)

	NewTitleUsecase(f.store, completion).Generate(context.Background(), f.chat.ChatID)

	chat, err := f.store.Chat(f.chat.ChatID)
	require.NoError(t, err)
	assert.Equal(t, "Goroutines Explained", chat.Title)

	reqs := completion.completeRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, 50, reqs[0].MaxTokens)
	require.Len(t, reqs[0].Messages, 3)
	assert.Equal(t, model.TitlePrompt, reqs[0].Messages[0].Content)
	assert.Equal(t, "How do goroutines work?", reqs[0].Messages[1].Content)
}

func TestTitle_Failures(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantConfigReq bool
	}{
		{name: "unauthorized", err: fmt.Errorf("%w: 401", model.ErrUnauthorized), wantConfigReq: true},
		{name: "transport", err: errors.New("timeout")},
	}
	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				completion := newFakeCompletion()
				completion.completeErr = tt.err
				f := newTurnFixture(t, completion)
				addExchange(t, f)

				NewTitleUsecase(f.store, completion).Generate(context.Background(), f.chat.ChatID)

				chat, err := f.store.Chat(f.chat.ChatID)
				require.NoError(t, err)
				assert.Equal(t, model.DefaultChatTitle, chat.Title)
				_, ok := f.store.ConfigurationRequest()
				assert.Equal(t, tt.wantConfigReq, ok)
				assert.Len(t, chat.Messages, 2, "failures are never shown in the chat")
			},
		)
	}
}
