package model

import (
	"time"

	"github.com/google/uuid"
)

const DefaultChatTitle = "New Chat"

type FunctionCall struct {
	Name      string
	Arguments string
}

type ToolCall struct {
	ID       string
	Function FunctionCall
}

type Message struct {
	Role       MessageRole
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// Outbound reduces the message to the role and content pair sent back to the provider.
func (m Message) Outbound() Message {
	return Message{Role: m.Role, Content: m.Content}
}

func (m Message) Clone() Message {
	if m.ToolCalls != nil {
		m.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
	}
	return m
}

type AIChat struct {
	ChatID         string
	Title          string
	Messages       []Message
	Model          string
	CreatedAt      time.Time
	TitleRequested bool
}

func NewAIChat(chatModel string) (AIChat, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return AIChat{}, err
	}
	return AIChat{
		ChatID:    id.String(),
		Title:     DefaultChatTitle,
		Messages:  make([]Message, 0),
		Model:     chatModel,
		CreatedAt: time.Now().Round(0),
	}, nil
}

func (c AIChat) Clone() AIChat {
	messages := make([]Message, len(c.Messages))
	for i, msg := range c.Messages {
		messages[i] = msg.Clone()
	}
	c.Messages = messages
	return c
}
