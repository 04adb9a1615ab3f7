package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/iamvkosarev/websearch-chat/internal/model"
)

type functionCallInternal struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type toolCallInternal struct {
	ID       string               `json:"id"`
	Type     string               `json:"type"`
	Function functionCallInternal `json:"function"`
}

type messageInternal struct {
	Role       model.MessageRole  `json:"role"`
	Content    string             `json:"content"`
	ToolCalls  []toolCallInternal `json:"tool_calls,omitempty"`
	ToolCallID string             `json:"tool_call_id,omitempty"`
}

type chatInternal struct {
	ID             string            `json:"id"`
	Title          string            `json:"title"`
	Messages       []messageInternal `json:"messages"`
	Model          string            `json:"model"`
	CreatedAt      time.Time         `json:"createdAt"`
	TitleRequested bool              `json:"titleRequested,omitempty"`
}

// stateInternal is the persisted blob layout.
type stateInternal struct {
	Chats        []chatInternal `json:"chats"`
	CurrentChat  *string        `json:"currentChat"`
	SystemPrompt string         `json:"systemPrompt"`
	SearchPrompt string         `json:"searchPrompt"`
	PinnedModel  *string        `json:"pinnedModel"`
	APIKey       string         `json:"apiKey"`
	BaseURL      string         `json:"baseUrl"`
	TavilyAPIKey string         `json:"tavilyApiKey"`
}

func encodeState(s state) ([]byte, error) {
	stateInt := stateInternal{
		Chats:        make([]chatInternal, 0, len(s.chats)),
		SystemPrompt: s.settings.SystemPrompt,
		SearchPrompt: s.settings.SearchPrompt,
		APIKey:       s.settings.APIKey,
		BaseURL:      s.settings.BaseURL,
		TavilyAPIKey: s.settings.TavilyAPIKey,
	}
	if s.currentChat != "" {
		current := s.currentChat
		stateInt.CurrentChat = &current
	}
	if s.settings.PinnedModel != "" {
		pinned := s.settings.PinnedModel
		stateInt.PinnedModel = &pinned
	}
	for _, chat := range s.chats {
		chatInt := chatInternal{
			ID:             chat.ChatID,
			Title:          chat.Title,
			Messages:       make([]messageInternal, 0, len(chat.Messages)),
			Model:          chat.Model,
			CreatedAt:      chat.CreatedAt,
			TitleRequested: chat.TitleRequested,
		}
		for _, msg := range chat.Messages {
			chatInt.Messages = append(chatInt.Messages, toMessageInternal(msg))
		}
		stateInt.Chats = append(stateInt.Chats, chatInt)
	}

	data, err := json.Marshal(stateInt)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state: %w", err)
	}
	return data, nil
}

// decodeState fills s from data; fields missing in the blob keep their defaults.
func decodeState(data []byte, s *state) error {
	var stateInt stateInternal
	if err := json.Unmarshal(data, &stateInt); err != nil {
		return fmt.Errorf("failed to unmarshal state: %w", err)
	}

	s.chats = make([]model.AIChat, 0, len(stateInt.Chats))
	for _, chatInt := range stateInt.Chats {
		chat := model.AIChat{
			ChatID:         chatInt.ID,
			Title:          chatInt.Title,
			Messages:       make([]model.Message, 0, len(chatInt.Messages)),
			Model:          chatInt.Model,
			CreatedAt:      chatInt.CreatedAt,
			TitleRequested: chatInt.TitleRequested,
		}
		for _, msgInt := range chatInt.Messages {
			chat.Messages = append(chat.Messages, fromMessageInternal(msgInt))
		}
		s.chats = append(s.chats, chat)
	}

	s.currentChat = ""
	if stateInt.CurrentChat != nil {
		s.currentChat = *stateInt.CurrentChat
	}
	s.settings.PinnedModel = ""
	if stateInt.PinnedModel != nil {
		s.settings.PinnedModel = *stateInt.PinnedModel
	}
	if stateInt.SystemPrompt != "" {
		s.settings.SystemPrompt = stateInt.SystemPrompt
	}
	if stateInt.SearchPrompt != "" {
		s.settings.SearchPrompt = stateInt.SearchPrompt
	}
	if stateInt.APIKey != "" {
		s.settings.APIKey = stateInt.APIKey
	}
	if stateInt.BaseURL != "" {
		s.settings.BaseURL = stateInt.BaseURL
	}
	if stateInt.TavilyAPIKey != "" {
		s.settings.TavilyAPIKey = stateInt.TavilyAPIKey
	}
	return nil
}

func toMessageInternal(msg model.Message) messageInternal {
	msgInt := messageInternal{
		Role:       msg.Role,
		Content:    msg.Content,
		ToolCallID: msg.ToolCallID,
	}
	for _, call := range msg.ToolCalls {
		msgInt.ToolCalls = append(
			msgInt.ToolCalls, toolCallInternal{
				ID:   call.ID,
				Type: "function",
				Function: functionCallInternal{
					Name:      call.Function.Name,
					Arguments: call.Function.Arguments,
				},
			},
		)
	}
	return msgInt
}

func fromMessageInternal(msgInt messageInternal) model.Message {
	msg := model.Message{
		Role:       msgInt.Role,
		Content:    msgInt.Content,
		ToolCallID: msgInt.ToolCallID,
	}
	for _, call := range msgInt.ToolCalls {
		msg.ToolCalls = append(
			msg.ToolCalls, model.ToolCall{
				ID: call.ID,
				Function: model.FunctionCall{
					Name:      call.Function.Name,
					Arguments: call.Function.Arguments,
				},
			},
		)
	}
	return msg
}
