package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/iamvkosarev/websearch-chat/internal/model"
	"github.com/iamvkosarev/websearch-chat/internal/store"
	"github.com/iamvkosarev/websearch-chat/internal/tools"
	"github.com/iamvkosarev/websearch-chat/pkg/logger"
	"github.com/sourcegraph/conc"
)

const (
	backgroundTimeout = 2 * time.Minute
	idlePollInterval  = 100 * time.Millisecond
)

type AiChatUsecaseDeps struct {
	Store      *store.Store
	Completion CompletionClient
	Searcher   tools.Searcher
	Tokens     TokenCounter
}

type AiChatConfig struct {
	ContextTokenLimit   int
	PromptEnhancerModel string
}

// AiChatUsecase is the per-store entry point used by the front-ends.
type AiChatUsecase struct {
	store    *store.Store
	turn     *TurnUsecase
	commands *CommandUsecase
	title    *TitleUsecase

	background    conc.WaitGroup
	titlesMu      sync.Mutex
	pendingTitles map[string]struct{}
	unsubscribe   func()
}

func NewAiChatUsecase(deps AiChatUsecaseDeps, cfg AiChatConfig) (*AiChatUsecase, error) {
	s := deps.Store
	registry, err := tools.NewRegistry(
		tools.NewWebSearch(deps.Searcher, func() string { return s.Settings().TavilyAPIKey }),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build tool registry: %w", err)
	}
	commands, err := NewCommandUsecase(
		CommandUsecaseDeps{
			Store:      s,
			Completion: deps.Completion,
			Searcher:   deps.Searcher,
		}, cfg.PromptEnhancerModel,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build commands: %w", err)
	}

	a := &AiChatUsecase{
		store: s,
		turn: NewTurnUsecase(
			TurnUsecaseDeps{
				Store:      s,
				Completion: deps.Completion,
				Tools:      registry,
				Tokens:     deps.Tokens,
			}, cfg.ContextTokenLimit,
		),
		commands:      commands,
		title:         NewTitleUsecase(s, deps.Completion),
		pendingTitles: make(map[string]struct{}),
	}
	a.unsubscribe = s.Subscribe(a.watchForTitle)
	return a, nil
}

// Bootstrap makes sure a chat is selected, creating one when none is.
func (a *AiChatUsecase) Bootstrap() (model.AIChat, error) {
	if chat, err := a.store.CurrentChat(); err == nil {
		return chat, nil
	}
	return a.NewChat()
}

func (a *AiChatUsecase) NewChat() (model.AIChat, error) {
	chat, err := model.NewAIChat("")
	if err != nil {
		return model.AIChat{}, fmt.Errorf("failed to create chat: %w", err)
	}
	return a.store.AddChat(chat), nil
}

func (a *AiChatUsecase) SelectChat(chatID string) error {
	return a.store.SetCurrentChat(chatID)
}

// DeleteChat removes the chat; deleting the current one selects a fresh chat.
func (a *AiChatUsecase) DeleteChat(chatID string) error {
	if err := a.store.DeleteChat(chatID); err != nil {
		return err
	}
	_, err := a.Bootstrap()
	return err
}

func (a *AiChatUsecase) SetChatModel(chatModel string) error {
	chatID := a.store.CurrentChatID()
	if chatID == "" {
		return model.ErrNoChatSelected
	}
	return a.store.UpdateChat(chatID, store.ChatUpdate{Model: &chatModel})
}

func (a *AiChatUsecase) ListChats() []model.AIChat {
	return a.store.Chats()
}

func (a *AiChatUsecase) CurrentChat() (model.AIChat, error) {
	return a.store.CurrentChat()
}

// Send routes input to the command processor or straight into a turn.
func (a *AiChatUsecase) Send(ctx context.Context, input string) (Outcome, error) {
	if strings.TrimSpace(input) == "" {
		return OutcomeFailed, model.ErrEmptyMessage
	}
	defer a.startPendingTitles(ctx)

	if IsCommand(input) {
		result := a.commands.Execute(ctx, input)
		if result.Direct {
			return a.reply(ctx, input, result)
		}
		input = result.Reply
	}
	return a.turn.Run(ctx, input)
}

func (a *AiChatUsecase) Stop() bool {
	return a.turn.Stop()
}

func (a *AiChatUsecase) Suggestions(input string) []CommandSuggestion {
	return a.commands.Suggestions(input)
}

func (a *AiChatUsecase) Commands() []Command {
	return a.commands.Commands()
}

func (a *AiChatUsecase) Settings() model.Settings {
	return a.store.Settings()
}

func (a *AiChatUsecase) UpdateSystemPrompt(prompt string) {
	a.store.UpdateSystemPrompt(prompt)
}

func (a *AiChatUsecase) UpdateSearchPrompt(prompt string) {
	a.store.UpdateSearchPrompt(prompt)
}

func (a *AiChatUsecase) ResetSearchPrompt() {
	a.store.ResetSearchPrompt()
}

func (a *AiChatUsecase) SetPinnedModel(chatModel string) {
	a.store.SetPinnedModel(chatModel)
}

func (a *AiChatUsecase) UpdateAPISettings(api model.APISettings) {
	a.store.UpdateAPISettings(api)
}

func (a *AiChatUsecase) ConfigurationRequest() (string, bool) {
	return a.store.ConfigurationRequest()
}

func (a *AiChatUsecase) Loading() bool {
	return a.store.Loading()
}

func (a *AiChatUsecase) Subscribe(l store.Listener) func() {
	return a.store.Subscribe(l)
}

// Wait blocks until title generation and search follow-ups have finished.
func (a *AiChatUsecase) Wait() {
	a.background.Wait()
}

func (a *AiChatUsecase) Close() {
	a.unsubscribe()
	a.Wait()
}

// reply stores a command's direct answer next to the raw input and schedules its
// follow-up, if any.
func (a *AiChatUsecase) reply(ctx context.Context, input string, result CommandResult) (Outcome, error) {
	chat, err := a.store.CurrentChat()
	if err != nil {
		return OutcomeFailed, err
	}
	if !a.store.BeginTurn() {
		return OutcomeFailed, model.ErrTurnInProgress
	}
	defer a.store.EndTurn()

	if _, err = a.store.AddMessage(chat.ChatID, model.Message{Role: model.MessageRoleUser, Content: input}, false); err != nil {
		return OutcomeFailed, err
	}
	if _, err = a.store.AddMessage(chat.ChatID, assistantMessage(result.Reply), false); err != nil {
		return OutcomeFailed, err
	}

	if result.FollowUp != nil {
		bgCtx := context.WithoutCancel(ctx)
		a.background.Go(
			func() {
				ctx, cancel := context.WithTimeout(bgCtx, backgroundTimeout)
				defer cancel()
				content := result.FollowUp(ctx)
				if err := a.appendWhenIdle(ctx, chat.ChatID, assistantMessage(content)); err != nil {
					if !errors.Is(err, model.ErrChatDoesNotExist) {
						slog.ErrorContext(ctx, "Failed to add follow-up message", "chat_id", chat.ChatID, logger.Err(err))
					}
				}
			},
		)
	}
	return OutcomeCompleted, nil
}

// appendWhenIdle waits for the running turn to finish so a streamed reply never
// replaces msg in place.
func (a *AiChatUsecase) appendWhenIdle(ctx context.Context, chatID string, msg model.Message) error {
	ticker := time.NewTicker(idlePollInterval)
	defer ticker.Stop()
	for !a.store.BeginTurn() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	defer a.store.EndTurn()

	_, err := a.store.AddMessage(chatID, msg, false)
	return err
}

// watchForTitle claims title generation the moment a chat reaches two messages.
// The request itself starts once the current send is over so it sees the full reply.
func (a *AiChatUsecase) watchForTitle(ev store.Event) {
	if ev.Kind != store.EventMessageAdded || ev.Index != 1 {
		return
	}
	if _, ok := a.store.ClaimTitleGeneration(ev.ChatID); !ok {
		return
	}
	a.titlesMu.Lock()
	a.pendingTitles[ev.ChatID] = struct{}{}
	a.titlesMu.Unlock()
}

func (a *AiChatUsecase) startPendingTitles(ctx context.Context) {
	a.titlesMu.Lock()
	chatIDs := make([]string, 0, len(a.pendingTitles))
	for chatID := range a.pendingTitles {
		chatIDs = append(chatIDs, chatID)
	}
	clear(a.pendingTitles)
	a.titlesMu.Unlock()

	bgCtx := context.WithoutCancel(ctx)
	for _, chatID := range chatIDs {
		a.background.Go(
			func() {
				ctx, cancel := context.WithTimeout(bgCtx, backgroundTimeout)
				defer cancel()
				a.title.Generate(ctx, chatID)
			},
		)
	}
}
