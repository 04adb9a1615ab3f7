package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/iamvkosarev/websearch-chat/config"
	"github.com/iamvkosarev/websearch-chat/internal/model"
	"github.com/iamvkosarev/websearch-chat/pkg/local"
	"github.com/iamvkosarev/websearch-chat/pkg/logger"
	"github.com/sourcegraph/conc"
)

const (
	CommandStart        = "start"
	CommandHelp         = "help"
	CommandNew          = "new"
	CommandChats        = "chats"
	CommandOpen         = "open"
	CommandDelete       = "delete"
	CommandStop         = "stop"
	CommandModels       = "models"
	CommandModel        = "model"
	CommandPin          = "pin"
	CommandSettings     = "settings"
	CommandSetKey       = "setkey"
	CommandSetBaseURL   = "setbaseurl"
	CommandSetTavily    = "settavily"
	CommandSystem       = "system"
	CommandSearchPrompt = "searchprompt"

	modelCallbackPrefix = "model:"
	unpinArgument       = "off"
	resetArgument       = "reset"
	defaultEditThrottle = 2500 * time.Millisecond
	defaultUpdateTimout = 60
)

// TelegramBot is the part of *api.BotAPI the front-end uses.
type TelegramBot interface {
	Send(c api.Chattable) (api.Message, error)
	Request(c api.Chattable) (*api.APIResponse, error)
	GetUpdatesChan(updateConfig api.UpdateConfig) api.UpdatesChannel
	StopReceivingUpdates()
}

type TelegramUsecaseDeps struct {
	Bot      TelegramBot
	Sessions *SessionPool
}

type telegramCommand func(ctx context.Context, u telegramUser, args string)

// telegramUser is everything a handler needs about the sender of one update.
type telegramUser struct {
	tgChatID int64
	msgID    int
	lang     local.Language
	session  *AiChatUsecase
}

type TelegramUsecase struct {
	TelegramUsecaseDeps
	cfg          config.Telegram
	models       []string
	language     local.Language
	allowedUsers map[int64]struct{}
	commands     map[string]telegramCommand

	mu        sync.Mutex
	renderers map[int64]*telegramRenderer
	rendering conc.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
}

func NewTelegramUsecase(cfg config.Telegram, models []string, deps TelegramUsecaseDeps) (*TelegramUsecase, error) {
	allowedUsers := make(map[int64]struct{}, len(cfg.AllowedTelegramID))
	for _, userID := range cfg.AllowedTelegramID {
		allowedUsers[userID] = struct{}{}
	}
	if cfg.EditThrottle <= 0 {
		cfg.EditThrottle = defaultEditThrottle
	}
	if cfg.UpdateTimeoutSecond <= 0 {
		cfg.UpdateTimeoutSecond = defaultUpdateTimout
	}

	_, err := deps.Bot.Request(
		api.NewSetMyCommands(
			[]api.BotCommand{
				{Command: CommandHelp, Description: "Get help"},
				{Command: CommandNew, Description: "Start a new chat"},
				{Command: CommandChats, Description: "Show chats"},
				{Command: CommandStop, Description: "Stop the current answer"},
				{Command: CommandModels, Description: "Choose a model for this chat"},
				{Command: CommandSettings, Description: "Show settings"},
				{Command: CommandGen, Description: "Generate an image"},
				{Command: CommandSearch, Description: "Search the web and summarize"},
			}...,
		),
	)
	if err != nil {
		return nil, err
	}

	t := &TelegramUsecase{
		TelegramUsecaseDeps: deps,
		cfg:                 cfg,
		models:              models,
		language:            local.ParseLanguage(cfg.Language),
		allowedUsers:        allowedUsers,
		renderers:           make(map[int64]*telegramRenderer),
		done:                make(chan struct{}),
	}
	t.commands = map[string]telegramCommand{
		CommandStart:        t.start,
		CommandHelp:         t.help,
		CommandNew:          t.newChat,
		CommandChats:        t.listChats,
		CommandOpen:         t.openChat,
		CommandDelete:       t.deleteChat,
		CommandStop:         t.stop,
		CommandModels:       t.listModels,
		CommandModel:        t.selectModel,
		CommandPin:          t.pinModel,
		CommandSettings:     t.showSettings,
		CommandSetKey:       t.setKey,
		CommandSetBaseURL:   t.setBaseURL,
		CommandSetTavily:    t.setTavilyKey,
		CommandSystem:       t.systemPrompt,
		CommandSearchPrompt: t.searchPrompt,
	}
	return t, nil
}

// Run polls updates until ctx is done. Every update is handled in its own
// goroutine so /stop reaches a user while their answer is still streaming.
func (t *TelegramUsecase) Run(ctx context.Context) error {
	u := api.NewUpdate(0)
	u.Timeout = t.cfg.UpdateTimeoutSecond

	updates := t.Bot.GetUpdatesChan(u)

	var handlers conc.WaitGroup
	defer func() {
		handlers.Wait()
		t.close()
	}()

	for {
		select {
		case <-ctx.Done():
			t.Bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			updateCtx := logger.ContextWithRequestID(ctx, int64(update.UpdateID))
			handlers.Go(func() { t.handleUpdate(updateCtx, update) })
		}
	}
}

func (t *TelegramUsecase) handleUpdate(ctx context.Context, update api.Update) {
	if update.Message != nil {
		if err := t.handleMessage(ctx, update.Message); err != nil {
			slog.ErrorContext(ctx, "Failed to handle message", logger.Err(err))
		}
	}
	if update.CallbackQuery != nil {
		if err := t.handleCallbackQuery(ctx, update.CallbackQuery); err != nil {
			slog.ErrorContext(ctx, "Failed to handle callback query", logger.Err(err))
		}
	}
}

// close stops every renderer after flushing what they still hold.
func (t *TelegramUsecase) close() {
	t.closeOnce.Do(func() { close(t.done) })
	t.rendering.Wait()
}

func (t *TelegramUsecase) handleMessage(ctx context.Context, msg *api.Message) error {
	if msg.From == nil {
		return nil
	}
	tgChatID := msg.Chat.ID
	lang := t.userLanguage(msg.From.LanguageCode)

	if !t.allowed(msg.From.ID) {
		t.sendText(tgChatID, textNoAccess.Text(lang))
		return nil
	}

	session, err := t.session(ctx, msg.From.ID, tgChatID)
	if err != nil {
		t.sendText(tgChatID, textServerError.Text(lang))
		return fmt.Errorf("failed to open session: %w", err)
	}
	user := telegramUser{tgChatID: tgChatID, msgID: msg.MessageID, lang: lang, session: session}

	text := msg.Text
	if msg.IsCommand() {
		if command, ok := t.commands[msg.Command()]; ok {
			command(ctx, user, strings.TrimSpace(msg.CommandArguments()))
			return nil
		}
		// Strips a "@botname" suffix before the session parses the command.
		text = strings.TrimSpace(CommandPrefix + msg.Command() + " " + msg.CommandArguments())
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return t.send(ctx, user, text)
}

func (t *TelegramUsecase) send(ctx context.Context, u telegramUser, text string) error {
	if _, err := t.Bot.Request(api.NewChatAction(u.tgChatID, api.ChatTyping)); err != nil {
		slog.WarnContext(ctx, "Failed to send chat action", logger.Err(err))
	}

	_, err := u.session.Send(ctx, text)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, model.ErrTurnInProgress):
		t.sendText(u.tgChatID, textBusy.Text(u.lang))
		return nil
	case errors.Is(err, model.ErrMissingAPIKey):
		t.askForConfiguration(u)
		return nil
	default:
		t.sendText(u.tgChatID, textServerError.Text(u.lang))
		return fmt.Errorf("failed to send message: %w", err)
	}
}

func (t *TelegramUsecase) handleCallbackQuery(ctx context.Context, query *api.CallbackQuery) error {
	if _, err := t.Bot.Request(api.NewCallback(query.ID, "")); err != nil {
		return fmt.Errorf("failed to request callback: %w", err)
	}
	if query.From == nil || query.Message == nil {
		return nil
	}
	chatModel, ok := strings.CutPrefix(query.Data, modelCallbackPrefix)
	if !ok {
		return nil
	}
	tgChatID := query.Message.Chat.ID
	lang := t.userLanguage(query.From.LanguageCode)
	if !t.allowed(query.From.ID) {
		t.sendText(tgChatID, textNoAccess.Text(lang))
		return nil
	}

	session, err := t.session(ctx, query.From.ID, tgChatID)
	if err != nil {
		t.sendText(tgChatID, textServerError.Text(lang))
		return fmt.Errorf("failed to open session: %w", err)
	}
	t.applyModel(telegramUser{tgChatID: tgChatID, lang: lang, session: session}, chatModel)
	return nil
}

func (t *TelegramUsecase) allowed(userID int64) bool {
	if !t.cfg.IsNotPublic {
		return true
	}
	_, ok := t.allowedUsers[userID]
	return ok
}

func (t *TelegramUsecase) userLanguage(code string) local.Language {
	if code == "" {
		return t.language
	}
	return local.ParseLanguage(code)
}

// session returns the user's session and makes sure a renderer forwards its events.
func (t *TelegramUsecase) session(ctx context.Context, userID, tgChatID int64) (*AiChatUsecase, error) {
	session, _, err := t.Sessions.Get(ctx, strconv.FormatInt(userID, 10))
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.renderers[userID]; !ok {
		r := newTelegramRenderer(t.Bot, tgChatID, t.cfg.EditThrottle, t.done)
		unsubscribe := session.Subscribe(r.listen)
		t.renderers[userID] = r
		t.rendering.Go(
			func() {
				defer unsubscribe()
				r.run()
			},
		)
	}
	return session, nil
}

func (t *TelegramUsecase) start(_ context.Context, u telegramUser, _ string) {
	t.sendText(u.tgChatID, textStart.Text(u.lang))
}

func (t *TelegramUsecase) help(_ context.Context, u telegramUser, _ string) {
	t.sendText(u.tgChatID, textHelp.Text(u.lang))
}

func (t *TelegramUsecase) newChat(ctx context.Context, u telegramUser, _ string) {
	if _, err := u.session.NewChat(); err != nil {
		slog.ErrorContext(ctx, "Failed to create chat", logger.Err(err))
		t.sendText(u.tgChatID, textServerError.Text(u.lang))
		return
	}
	t.sendText(u.tgChatID, textNewChat.Text(u.lang))
}

func (t *TelegramUsecase) listChats(_ context.Context, u telegramUser, _ string) {
	t.sendText(u.tgChatID, formatChats(u, u.session.ListChats()))
}

func formatChats(u telegramUser, chats []model.AIChat) string {
	settings := u.session.Settings()
	currentID := ""
	if current, err := u.session.CurrentChat(); err == nil {
		currentID = current.ChatID
	}

	result := strings.Builder{}
	result.WriteString(textChatsHeader.Format(u.lang, len(chats)))
	for i, chat := range chats {
		marker := ""
		if chat.ChatID == currentID {
			marker = "▶ "
		}
		result.WriteString("\n")
		result.WriteString(
			textChatLine.Format(u.lang, marker, i+1, chat.Title, len(chat.Messages), settings.EffectiveModel(chat)),
		)
	}
	return result.String()
}

// chatByNumber resolves the 1-based position shown by /chats.
func chatByNumber(session *AiChatUsecase, args string) (model.AIChat, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil {
		return model.AIChat{}, false
	}
	chats := session.ListChats()
	if n < 1 || n > len(chats) {
		return model.AIChat{}, false
	}
	return chats[n-1], true
}

func (t *TelegramUsecase) openChat(ctx context.Context, u telegramUser, args string) {
	chat, ok := chatByNumber(u.session, args)
	if !ok {
		t.sendText(u.tgChatID, textChatNumberExpected.Text(u.lang))
		return
	}
	if err := u.session.SelectChat(chat.ChatID); err != nil {
		slog.ErrorContext(ctx, "Failed to select chat", "chat_id", chat.ChatID, logger.Err(err))
		t.sendText(u.tgChatID, textServerError.Text(u.lang))
		return
	}
	t.sendText(u.tgChatID, textChatOpened.Format(u.lang, chat.Title))
}

func (t *TelegramUsecase) deleteChat(ctx context.Context, u telegramUser, args string) {
	var chat model.AIChat
	if args == "" {
		current, err := u.session.CurrentChat()
		if err != nil {
			t.sendText(u.tgChatID, textChatNumberExpected.Text(u.lang))
			return
		}
		chat = current
	} else {
		var ok bool
		if chat, ok = chatByNumber(u.session, args); !ok {
			t.sendText(u.tgChatID, textChatNumberExpected.Text(u.lang))
			return
		}
	}
	if err := u.session.DeleteChat(chat.ChatID); err != nil {
		slog.ErrorContext(ctx, "Failed to delete chat", "chat_id", chat.ChatID, logger.Err(err))
		t.sendText(u.tgChatID, textServerError.Text(u.lang))
		return
	}
	t.sendText(u.tgChatID, textChatDeleted.Format(u.lang, chat.Title))
}

func (t *TelegramUsecase) stop(_ context.Context, u telegramUser, _ string) {
	if u.session.Stop() {
		t.sendText(u.tgChatID, textStopped.Text(u.lang))
		return
	}
	t.sendText(u.tgChatID, textNothingToStop.Text(u.lang))
}

// listModels offers the configured models as an inline keyboard.
func (t *TelegramUsecase) listModels(_ context.Context, u telegramUser, _ string) {
	current := model.FallbackModel
	if chat, err := u.session.CurrentChat(); err == nil {
		current = u.session.Settings().EffectiveModel(chat)
	}

	msg := api.NewMessage(u.tgChatID, textModelsHeader.Format(u.lang, current))
	if len(t.models) > 0 {
		const maxButtonsInRow = 3
		inlineRows := make([][]api.InlineKeyboardButton, 0)
		inlineButtons := make([]api.InlineKeyboardButton, 0)
		for _, aiModel := range t.models {
			if len(inlineButtons) == maxButtonsInRow {
				inlineRows = append(inlineRows, inlineButtons)
				inlineButtons = make([]api.InlineKeyboardButton, 0)
			}
			inlineButtons = append(inlineButtons, api.NewInlineKeyboardButtonData(aiModel, modelCallbackPrefix+aiModel))
		}
		inlineRows = append(inlineRows, inlineButtons)
		msg.ReplyMarkup = api.NewInlineKeyboardMarkup(inlineRows...)
	}
	if _, err := t.Bot.Send(msg); err != nil {
		slog.Error("Failed to send models keyboard", logger.Err(err))
	}
}

func (t *TelegramUsecase) selectModel(_ context.Context, u telegramUser, args string) {
	if args == "" {
		t.sendText(u.tgChatID, textModelExpected.Text(u.lang))
		return
	}
	t.applyModel(u, args)
}

func (t *TelegramUsecase) applyModel(u telegramUser, chatModel string) {
	if err := u.session.SetChatModel(chatModel); err != nil {
		slog.Error("Failed to set chat model", "model", chatModel, logger.Err(err))
		t.sendText(u.tgChatID, textServerError.Text(u.lang))
		return
	}
	t.sendText(u.tgChatID, textModelSelected.Format(u.lang, chatModel))
}

func (t *TelegramUsecase) pinModel(_ context.Context, u telegramUser, args string) {
	switch args {
	case "":
		t.sendText(u.tgChatID, textModelExpected.Text(u.lang))
	case unpinArgument:
		u.session.SetPinnedModel("")
		t.sendText(u.tgChatID, textModelUnpinned.Text(u.lang))
	default:
		u.session.SetPinnedModel(args)
		t.sendText(u.tgChatID, textModelPinned.Format(u.lang, args))
	}
}

func (t *TelegramUsecase) showSettings(_ context.Context, u telegramUser, _ string) {
	settings := u.session.Settings()
	current := model.FallbackModel
	if chat, err := u.session.CurrentChat(); err == nil {
		current = settings.EffectiveModel(chat)
	}
	notSet := textNotSet.Text(u.lang)
	t.sendText(
		u.tgChatID, textSettings.Format(
			u.lang,
			current,
			orText(settings.PinnedModel, notSet),
			orText(settings.BaseURL, notSet),
			orText(maskSecret(settings.APIKey), notSet),
			orText(maskSecret(settings.TavilyAPIKey), notSet),
			settings.SystemPrompt,
		),
	)
}

func (t *TelegramUsecase) setKey(ctx context.Context, u telegramUser, args string) {
	t.updateAPISettings(ctx, u, CommandSetKey, args, func(s *model.APISettings) { s.APIKey = args })
}

func (t *TelegramUsecase) setBaseURL(ctx context.Context, u telegramUser, args string) {
	t.updateAPISettings(ctx, u, CommandSetBaseURL, args, func(s *model.APISettings) { s.BaseURL = args })
}

func (t *TelegramUsecase) setTavilyKey(ctx context.Context, u telegramUser, args string) {
	t.updateAPISettings(ctx, u, CommandSetTavily, args, func(s *model.APISettings) { s.TavilyAPIKey = args })
}

func (t *TelegramUsecase) updateAPISettings(
	ctx context.Context,
	u telegramUser,
	command, args string,
	apply func(s *model.APISettings),
) {
	if args == "" {
		t.sendText(u.tgChatID, textValueExpected.Format(u.lang, command))
		return
	}
	settings := u.session.Settings()
	apiSettings := model.APISettings{
		APIKey:       settings.APIKey,
		BaseURL:      settings.BaseURL,
		TavilyAPIKey: settings.TavilyAPIKey,
	}
	apply(&apiSettings)
	u.session.UpdateAPISettings(apiSettings)

	// The command text carries a secret; it should not stay in the chat history.
	if command != CommandSetBaseURL && u.msgID != 0 {
		if _, err := t.Bot.Request(api.NewDeleteMessage(u.tgChatID, u.msgID)); err != nil {
			slog.WarnContext(ctx, "Failed to delete message with a secret", logger.Err(err))
		}
	}
	t.sendText(u.tgChatID, textSettingsSaved.Text(u.lang))
}

func (t *TelegramUsecase) systemPrompt(_ context.Context, u telegramUser, args string) {
	if args == "" {
		t.sendText(u.tgChatID, textSystemPrompt.Format(u.lang, u.session.Settings().SystemPrompt))
		return
	}
	u.session.UpdateSystemPrompt(args)
	t.sendText(u.tgChatID, textSettingsSaved.Text(u.lang))
}

func (t *TelegramUsecase) searchPrompt(_ context.Context, u telegramUser, args string) {
	switch args {
	case "":
		t.sendText(u.tgChatID, textSearchPrompt.Format(u.lang, u.session.Settings().SearchPrompt))
		return
	case resetArgument:
		u.session.ResetSearchPrompt()
	default:
		u.session.UpdateSearchPrompt(args)
	}
	t.sendText(u.tgChatID, textSettingsSaved.Text(u.lang))
}

func (t *TelegramUsecase) askForConfiguration(u telegramUser) {
	reason, ok := u.session.ConfigurationRequest()
	if !ok {
		reason = model.ErrMissingAPIKey.Error()
	}
	t.sendText(u.tgChatID, textConfigure.Format(u.lang, reason))
}

func (t *TelegramUsecase) sendText(tgChatID int64, text string) api.Message {
	msg, err := t.Bot.Send(api.NewMessage(tgChatID, text))
	if err != nil {
		slog.Error("Failed to send new message to bot", logger.Err(err))
	}
	return msg
}

// maskSecret keeps the last four characters so users can tell keys apart.
func maskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	const visible = 4
	if len(secret) <= visible {
		return strings.Repeat("*", len(secret))
	}
	return strings.Repeat("*", 8) + secret[len(secret)-visible:]
}

func orText(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
