package openai_tools

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	"github.com/sashabaranov/go-openai"
)

const fallbackEncoding = "cl100k_base"

// CountToken estimates the prompt size of messages for chatModel. Models unknown to
// tiktoken are counted with the cl100k_base encoding.
func CountToken(messages []openai.ChatCompletionMessage, chatModel string) (int, error) {
	tkm, err := encodingFor(chatModel)
	if err != nil {
		return 0, err
	}

	tokensPerMessage, tokensPerName := messageOverhead(chatModel)
	numTokens := 0
	for _, message := range messages {
		numTokens += tokensPerMessage
		numTokens += len(tkm.Encode(message.Content, nil, nil))
		numTokens += len(tkm.Encode(message.Role, nil, nil))
		if message.Name != "" {
			numTokens += len(tkm.Encode(message.Name, nil, nil))
			numTokens += tokensPerName
		}
	}
	// every reply is primed with <|start|>assistant<|message|>
	numTokens += 3
	return numTokens, nil
}

func encodingFor(chatModel string) (*tiktoken.Tiktoken, error) {
	tkm, err := tiktoken.EncodingForModel(chatModel)
	if err == nil {
		return tkm, nil
	}
	tkm, err = tiktoken.GetEncoding(fallbackEncoding)
	if err != nil {
		return nil, fmt.Errorf("failed to get encoding for model %s: %w", chatModel, err)
	}
	return tkm, nil
}

func messageOverhead(chatModel string) (int, int) {
	if strings.HasPrefix(chatModel, "gpt-3.5-turbo-0301") {
		return 4, -1
	}
	return 3, 1
}
