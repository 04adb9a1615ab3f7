package model

const FallbackModel = "gpt-4o"

type Settings struct {
	APIKey       string
	BaseURL      string
	TavilyAPIKey string
	SystemPrompt string
	SearchPrompt string
	PinnedModel  string
}

// EffectiveModel picks the chat model, then the pinned model, then FallbackModel.
func (s Settings) EffectiveModel(chat AIChat) string {
	if chat.Model != "" {
		return chat.Model
	}
	if s.PinnedModel != "" {
		return s.PinnedModel
	}
	return FallbackModel
}

type APISettings struct {
	APIKey       string
	BaseURL      string
	TavilyAPIKey string
}
