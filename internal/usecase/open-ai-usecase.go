package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/iamvkosarev/websearch-chat/config"
	"github.com/iamvkosarev/websearch-chat/internal/model"
	openai_tools "github.com/iamvkosarev/websearch-chat/pkg/openai-tools"
	"github.com/sashabaranov/go-openai"
)

// CompletionStream yields chunks until io.EOF.
type CompletionStream interface {
	Recv() (model.Chunk, error)
	Close()
}

type OpenAIUsecase struct {
	cfg        config.OpenAI
	httpClient *http.Client
}

func NewOpenAIUsecase(cfg config.OpenAI) *OpenAIUsecase {
	return &OpenAIUsecase{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

// Stream starts a streaming completion. Cancelling ctx aborts the underlying transport.
func (o *OpenAIUsecase) Stream(ctx context.Context, req model.CompletionRequest) (CompletionStream, error) {
	chatReq := o.buildRequest(req)
	chatReq.Stream = true

	stream, err := o.newClient(req).CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, mapOpenAIError(err)
	}
	return &openAIStream{stream: stream}, nil
}

// Complete runs a non-streaming completion and returns the first choice's message.
func (o *OpenAIUsecase) Complete(ctx context.Context, req model.CompletionRequest) (model.Message, error) {
	resp, err := o.newClient(req).CreateChatCompletion(ctx, o.buildRequest(req))
	if err != nil {
		return model.Message{}, mapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return model.Message{}, model.ErrEmptyCompletion
	}
	return fromOpenAIMessage(resp.Choices[0].Message), nil
}

// CountTokens estimates the prompt size of messages for chatModel.
func (o *OpenAIUsecase) CountTokens(messages []model.Message, chatModel string) (int, error) {
	return openai_tools.CountToken(toOpenAIMessages(messages), chatModel)
}

func (o *OpenAIUsecase) newClient(req model.CompletionRequest) *openai.Client {
	clientConfig := openai.DefaultConfig(req.APIKey)
	if req.BaseURL != "" {
		clientConfig.BaseURL = req.BaseURL
	}
	clientConfig.HTTPClient = o.httpClient
	return openai.NewClientWithConfig(clientConfig)
}

func (o *OpenAIUsecase) buildRequest(req model.CompletionRequest) openai.ChatCompletionRequest {
	chatReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    toOpenAIMessages(req.Messages),
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = make([]openai.Tool, 0, len(req.Tools))
		for _, tool := range req.Tools {
			chatReq.Tools = append(
				chatReq.Tools, openai.Tool{
					Type: openai.ToolTypeFunction,
					Function: &openai.FunctionDefinition{
						Name:        tool.Name,
						Description: tool.Description,
						Parameters:  tool.Parameters,
					},
				},
			)
		}
	}
	return chatReq
}

type openAIStream struct {
	stream *openai.ChatCompletionStream
}

func (s *openAIStream) Recv() (model.Chunk, error) {
	resp, err := s.stream.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return model.Chunk{}, io.EOF
		}
		return model.Chunk{}, mapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return model.Chunk{}, nil
	}

	delta := resp.Choices[0].Delta
	chunk := model.Chunk{Content: delta.Content}
	for i, call := range delta.ToolCalls {
		index := i
		if call.Index != nil {
			index = *call.Index
		}
		chunk.ToolCalls = append(
			chunk.ToolCalls, model.ToolCallDelta{
				Index:     index,
				ID:        call.ID,
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			},
		)
	}
	return chunk, nil
}

func (s *openAIStream) Close() {
	s.stream.Close()
}

func toOpenAIMessages(messages []model.Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		chatMsg := openai.ChatCompletionMessage{
			Role:       string(msg.Role),
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, call := range msg.ToolCalls {
			chatMsg.ToolCalls = append(
				chatMsg.ToolCalls, openai.ToolCall{
					ID:   call.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.Function.Name,
						Arguments: call.Function.Arguments,
					},
				},
			)
		}
		result = append(result, chatMsg)
	}
	return result
}

func fromOpenAIMessage(msg openai.ChatCompletionMessage) model.Message {
	role, ok := model.ParseMessageRole(msg.Role)
	if !ok {
		role = model.MessageRoleAssistant
	}
	result := model.Message{
		Role:       role,
		Content:    msg.Content,
		ToolCallID: msg.ToolCallID,
	}
	for _, call := range msg.ToolCalls {
		result.ToolCalls = append(
			result.ToolCalls, model.ToolCall{
				ID: call.ID,
				Function: model.FunctionCall{
					Name:      call.Function.Name,
					Arguments: call.Function.Arguments,
				},
			},
		)
	}
	return result
}

func mapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %v", model.ErrUnauthorized, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %v", model.ErrUnauthorized, err)
	}
	return err
}
