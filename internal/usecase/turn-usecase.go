package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/iamvkosarev/websearch-chat/internal/model"
	"github.com/iamvkosarev/websearch-chat/internal/store"
	"github.com/iamvkosarev/websearch-chat/internal/tools"
	"github.com/iamvkosarev/websearch-chat/pkg/logger"
)

const (
	ImageReplyPrefix = "Generating image:"

	MessageInvalidAPIKey  = "Error: Invalid API key. Please check your settings and ensure you have entered a valid OpenAI API key."
	MessageTurnFailed     = "Sorry, there was an error processing your request. Please check your API settings and try again."
	messageToolArgsFormat = "Error: could not run %s: %v"

	turnTemperature = 0.7
	turnTopP        = 1.0
	turnMaxTokens   = 2000
)

type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeCancelled
	OutcomeUnauthorized
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeUnauthorized:
		return "unauthorized"
	default:
		return "failed"
	}
}

type CompletionClient interface {
	Stream(ctx context.Context, req model.CompletionRequest) (CompletionStream, error)
	Complete(ctx context.Context, req model.CompletionRequest) (model.Message, error)
}

type TokenCounter interface {
	CountTokens(messages []model.Message, chatModel string) (int, error)
}

type ToolDispatcher interface {
	Descriptors() []model.ToolDescriptor
	Invoke(ctx context.Context, name, args string) (string, error)
}

type TurnUsecaseDeps struct {
	Store      *store.Store
	Completion CompletionClient
	Tools      ToolDispatcher
	// Tokens is only needed when ContextTokenLimit is set.
	Tokens TokenCounter
}

type TurnUsecase struct {
	TurnUsecaseDeps
	contextTokenLimit int

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewTurnUsecase(deps TurnUsecaseDeps, contextTokenLimit int) *TurnUsecase {
	return &TurnUsecase{
		TurnUsecaseDeps:   deps,
		contextTokenLimit: contextTokenLimit,
	}
}

// Run executes one turn in the current chat. Provider failures are turned into
// chat messages and reported through the Outcome; the error is only set when the
// turn could not start at all.
func (t *TurnUsecase) Run(ctx context.Context, content string) (Outcome, error) {
	chat, err := t.Store.CurrentChat()
	if err != nil {
		return OutcomeFailed, err
	}
	settings := t.Store.Settings()
	if settings.APIKey == "" {
		t.Store.RequestConfiguration(model.ErrMissingAPIKey.Error())
		return OutcomeFailed, model.ErrMissingAPIKey
	}
	if !t.Store.BeginTurn() {
		return OutcomeFailed, model.ErrTurnInProgress
	}
	defer t.Store.EndTurn()

	if strings.HasPrefix(content, ImageReplyPrefix) {
		if _, err = t.Store.AddMessage(chat.ChatID, assistantMessage(content), false); err != nil {
			return OutcomeFailed, err
		}
		return OutcomeCompleted, nil
	}

	userMsg := model.Message{Role: model.MessageRoleUser, Content: content}
	if _, err = t.Store.AddMessage(chat.ChatID, userMsg, false); err != nil {
		return OutcomeFailed, err
	}

	chatModel := settings.EffectiveModel(chat)
	req := model.CompletionRequest{
		APIKey:      settings.APIKey,
		BaseURL:     settings.BaseURL,
		Model:       chatModel,
		Messages:    t.buildOutbound(ctx, settings.SystemPrompt, chat.Messages, userMsg, chatModel),
		Temperature: turnTemperature,
		TopP:        turnTopP,
		MaxTokens:   turnMaxTokens,
		Tools:       t.Tools.Descriptors(),
	}

	assembler := NewStreamAssembler()
	if err = t.stream(ctx, chat.ChatID, req, assembler); err != nil {
		if errors.Is(err, context.Canceled) {
			slog.InfoContext(ctx, "Turn stopped", "chat_id", chat.ChatID)
			return OutcomeCancelled, nil
		}
		return t.fail(ctx, chat.ChatID, err), nil
	}

	calls := assembler.Finish()
	if len(calls) == 0 {
		return OutcomeCompleted, nil
	}
	defer assembler.Done()

	toolRound := make([]model.Message, 0, len(req.Messages)+1)
	toolRound = append(toolRound, req.Messages...)
	toolRound = append(toolRound, assembler.Message())
	for _, call := range calls {
		if err = t.dispatch(ctx, chat.ChatID, req, toolRound, call); err != nil {
			return t.fail(ctx, chat.ChatID, err), nil
		}
	}
	return OutcomeCompleted, nil
}

// Stop aborts the stream of the running turn. Tool follow-ups already under way finish.
func (t *TurnUsecase) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel == nil {
		return false
	}
	t.cancel()
	t.cancel = nil
	return true
}

func (t *TurnUsecase) stream(
	ctx context.Context, chatID string, req model.CompletionRequest, assembler *StreamAssembler,
) error {
	streamCtx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.cancel = nil
		t.mu.Unlock()
		cancel()
	}()

	stream, err := t.Completion.Stream(streamCtx, req)
	if err != nil {
		return cancelAware(streamCtx, err)
	}
	defer stream.Close()

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return cancelAware(streamCtx, err)
		}

		msg, first := assembler.Apply(chunk)
		if _, err = t.Store.AddMessage(chatID, msg, !first); err != nil {
			return err
		}
	}

	if assembler.State() == AssemblerNotStarted {
		return model.ErrEmptyCompletion
	}
	return nil
}

func (t *TurnUsecase) dispatch(
	ctx context.Context, chatID string, req model.CompletionRequest, toolRound []model.Message, call model.ToolCall,
) error {
	result, err := t.Tools.Invoke(ctx, call.Function.Name, call.Function.Arguments)
	if err != nil {
		slog.WarnContext(ctx, "Tool call skipped", "chat_id", chatID, "tool", call.Function.Name, logger.Err(err))
		if errors.Is(err, tools.ErrMalformedArguments) || errors.Is(err, tools.ErrInvalidArguments) ||
			errors.Is(err, tools.ErrToolNotFound) {
			_, err = t.Store.AddMessage(
				chatID, assistantMessage(fmt.Sprintf(messageToolArgsFormat, call.Function.Name, err)), false,
			)
			return err
		}
		return err
	}

	toolMsg := model.Message{Role: model.MessageRoleTool, Content: result, ToolCallID: call.ID}
	if _, err = t.Store.AddMessage(chatID, toolMsg, false); err != nil {
		return err
	}

	followUp := req
	followUp.Messages = make([]model.Message, 0, len(toolRound)+1)
	followUp.Messages = append(followUp.Messages, toolRound...)
	followUp.Messages = append(followUp.Messages, toolMsg)

	final, err := t.Completion.Complete(ctx, followUp)
	if err != nil {
		return err
	}
	if final.Role == "" {
		final.Role = model.MessageRoleAssistant
	}
	_, err = t.Store.AddMessage(chatID, final, false)
	return err
}

func (t *TurnUsecase) fail(ctx context.Context, chatID string, err error) Outcome {
	if errors.Is(err, model.ErrUnauthorized) {
		slog.WarnContext(ctx, "Completion unauthorized", "chat_id", chatID, logger.Err(err))
		t.Store.RequestConfiguration(MessageInvalidAPIKey)
		t.appendOrLog(ctx, chatID, MessageInvalidAPIKey)
		return OutcomeUnauthorized
	}
	slog.ErrorContext(ctx, "Turn failed", "chat_id", chatID, logger.Err(err))
	t.appendOrLog(ctx, chatID, MessageTurnFailed)
	return OutcomeFailed
}

func (t *TurnUsecase) appendOrLog(ctx context.Context, chatID, content string) {
	if _, err := t.Store.AddMessage(chatID, assistantMessage(content), false); err != nil {
		slog.ErrorContext(ctx, "Failed to add failure message", "chat_id", chatID, logger.Err(err))
	}
}

// buildOutbound reduces history to role and content pairs and, with a token limit
// set, drops the oldest history until the prompt fits. The system prompt and the
// new user message always stay.
func (t *TurnUsecase) buildOutbound(
	ctx context.Context, systemPrompt string, history []model.Message, userMsg model.Message, chatModel string,
) []model.Message {
	trimmed := make([]model.Message, 0, len(history))
	for _, msg := range history {
		trimmed = append(trimmed, msg.Outbound())
	}

	build := func() []model.Message {
		outbound := make([]model.Message, 0, len(trimmed)+2)
		outbound = append(outbound, model.Message{Role: model.MessageRoleSystem, Content: systemPrompt})
		outbound = append(outbound, trimmed...)
		return append(outbound, userMsg.Outbound())
	}

	if t.contextTokenLimit <= 0 || t.Tokens == nil {
		return build()
	}
	for len(trimmed) > 0 {
		tokenCount, err := t.Tokens.CountTokens(build(), chatModel)
		if err != nil {
			slog.WarnContext(ctx, "Failed to count tokens, sending full history", logger.Err(err))
			break
		}
		if tokenCount <= t.contextTokenLimit {
			break
		}
		trimmed = trimmed[1:]
		slog.DebugContext(ctx, "History trimmed due to token limit", "tokens", tokenCount)
	}
	return build()
}

func cancelAware(ctx context.Context, err error) error {
	if ctx.Err() != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", context.Canceled, err)
	}
	return err
}

func assistantMessage(content string) model.Message {
	return model.Message{Role: model.MessageRoleAssistant, Content: content}
}
