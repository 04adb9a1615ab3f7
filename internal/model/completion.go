package model

type ToolDescriptor struct {
	Name        string
	Description string
	Parameters  any
}

type CompletionRequest struct {
	APIKey      string
	BaseURL     string
	Model       string
	Messages    []Message
	Temperature float32
	TopP        float32
	MaxTokens   int
	Tools       []ToolDescriptor
}

type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// Chunk is one streamed fragment of an assistant response.
type Chunk struct {
	Content   string
	ToolCalls []ToolCallDelta
}
