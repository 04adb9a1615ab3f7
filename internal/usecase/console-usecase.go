package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/iamvkosarev/websearch-chat/config"
	"github.com/iamvkosarev/websearch-chat/internal/model"
	"github.com/iamvkosarev/websearch-chat/internal/store"
	"github.com/iamvkosarev/websearch-chat/pkg/logger"
	"github.com/peterh/liner"
)

const (
	consolePrefix = ":"
	consolePrompt = "you> "
	consoleKey    = ""

	ConsoleQuit     = "quit"
	ConsoleNew      = "new"
	ConsoleChats    = "chats"
	ConsoleOpen     = "open"
	ConsoleDelete   = "delete"
	ConsoleModel    = "model"
	ConsoleSettings = "settings"
	ConsoleHelp     = "help"
)

const consoleHelp = `:new              start a new chat
:chats            list chats
:open N           switch to chat N
:delete [N]       delete chat N or the current one
:model [NAME]     show or set the model of this chat
:settings         show settings
:quit             exit
/gen DESCRIPTION  generate an image
/search QUERY     search the web and summarize`

var (
	assistantColor = color.New(color.FgCyan)
	noticeColor    = color.New(color.FgYellow)
	errorColor     = color.New(color.FgRed)
)

// ConsoleUsecase is a line-oriented front-end over the single unkeyed session.
type ConsoleUsecase struct {
	cfg      config.Console
	sessions *SessionPool
	out      io.Writer

	mu      sync.Mutex
	printed map[string]string
}

func NewConsoleUsecase(cfg config.Console, sessions *SessionPool, out io.Writer) *ConsoleUsecase {
	return &ConsoleUsecase{
		cfg:      cfg,
		sessions: sessions,
		out:      out,
		printed:  make(map[string]string),
	}
}

func (c *ConsoleUsecase) Run(ctx context.Context) error {
	session, _, err := c.sessions.Get(ctx, consoleKey)
	if err != nil {
		return fmt.Errorf("failed to open console session: %w", err)
	}
	unsubscribe := session.Subscribe(c.print)
	defer unsubscribe()

	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	line.SetCompleter(func(input string) []string { return completions(session, input) })
	c.loadHistory(line)
	defer func() {
		c.saveHistory(line)
		line.Close()
	}()

	fmt.Fprintln(c.out, "Type a message, or :help for commands.")
	for ctx.Err() == nil {
		input, err := line.Prompt(consolePrompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)
		if quit := c.Execute(ctx, session, input); quit {
			return nil
		}
	}
	return nil
}

// Execute handles one line of input and reports whether the console should exit.
func (c *ConsoleUsecase) Execute(ctx context.Context, session *AiChatUsecase, input string) (quit bool) {
	name, args, ok := parseConsoleCommand(input)
	if !ok {
		c.send(ctx, session, input)
		return false
	}

	switch name {
	case ConsoleQuit:
		return true
	case ConsoleHelp:
		fmt.Fprintln(c.out, consoleHelp)
	case ConsoleNew:
		if _, err := session.NewChat(); err != nil {
			c.fail(err)
			return false
		}
		noticeColor.Fprintln(c.out, "Started a new chat.")
	case ConsoleChats:
		c.listChats(session)
	case ConsoleOpen:
		chat, ok := chatByNumber(session, args)
		if !ok {
			noticeColor.Fprintln(c.out, "Usage: :open N, see :chats.")
			return false
		}
		if err := session.SelectChat(chat.ChatID); err != nil {
			c.fail(err)
			return false
		}
		c.showHistory(chat)
	case ConsoleDelete:
		c.deleteChat(session, args)
	case ConsoleModel:
		if args == "" {
			chat, err := session.CurrentChat()
			if err != nil {
				c.fail(err)
				return false
			}
			noticeColor.Fprintf(c.out, "Model: %s\n", session.Settings().EffectiveModel(chat))
			return false
		}
		if err := session.SetChatModel(args); err != nil {
			c.fail(err)
			return false
		}
		noticeColor.Fprintf(c.out, "This chat now uses %s.\n", args)
	case ConsoleSettings:
		settings := session.Settings()
		fmt.Fprintf(
			c.out, "Base URL: %s\nAPI key: %s\nTavily key: %s\nPinned model: %s\n",
			settings.BaseURL, orText(maskSecret(settings.APIKey), "not set"),
			orText(maskSecret(settings.TavilyAPIKey), "not set"), orText(settings.PinnedModel, "not set"),
		)
	default:
		noticeColor.Fprintf(c.out, "Unknown command %s%s, see :help.\n", consolePrefix, name)
	}
	return false
}

func (c *ConsoleUsecase) send(ctx context.Context, session *AiChatUsecase, input string) {
	_, err := session.Send(ctx, input)
	fmt.Fprintln(c.out)
	switch {
	case err == nil:
	case errors.Is(err, model.ErrMissingAPIKey):
		noticeColor.Fprintln(c.out, "Set OPENAI_API_KEY (and TAVILY_API_KEY for web search) and restart.")
	default:
		c.fail(err)
	}
}

func (c *ConsoleUsecase) listChats(session *AiChatUsecase) {
	currentID := ""
	if current, err := session.CurrentChat(); err == nil {
		currentID = current.ChatID
	}
	settings := session.Settings()
	for i, chat := range session.ListChats() {
		marker := " "
		if chat.ChatID == currentID {
			marker = "*"
		}
		fmt.Fprintf(
			c.out, "%s %d) %s - messages: %d, model: %s\n",
			marker, i+1, chat.Title, len(chat.Messages), settings.EffectiveModel(chat),
		)
	}
}

func (c *ConsoleUsecase) deleteChat(session *AiChatUsecase, args string) {
	chat, err := session.CurrentChat()
	if args != "" {
		var ok bool
		if chat, ok = chatByNumber(session, args); !ok {
			noticeColor.Fprintln(c.out, "Usage: :delete [N], see :chats.")
			return
		}
		err = nil
	}
	if err != nil {
		c.fail(err)
		return
	}
	if err = session.DeleteChat(chat.ChatID); err != nil {
		c.fail(err)
		return
	}
	noticeColor.Fprintf(c.out, "Deleted %q.\n", chat.Title)
}

func (c *ConsoleUsecase) showHistory(chat model.AIChat) {
	noticeColor.Fprintf(c.out, "== %s ==\n", chat.Title)
	for _, msg := range chat.Messages {
		switch {
		case msg.Role == model.MessageRoleUser:
			fmt.Fprintf(c.out, "%s%s\n", consolePrompt, msg.Content)
		case msg.Role == model.MessageRoleAssistant && msg.Content != "":
			assistantColor.Fprintln(c.out, msg.Content)
		}
	}
}

// print is the store listener; it writes assistant text as it streams in.
func (c *ConsoleUsecase) print(ev store.Event) {
	if ev.Message.Role != model.MessageRoleAssistant {
		return
	}
	if ev.Kind != store.EventMessageAdded && ev.Kind != store.EventMessageReplaced {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	key := ev.ChatID + ":" + strconv.Itoa(ev.Index)
	if ev.Kind == store.EventMessageAdded {
		delete(c.printed, key)
		for _, call := range ev.Message.ToolCalls {
			noticeColor.Fprintf(c.out, "[%s]\n", call.Function.Name)
		}
	}

	content := ev.Message.Content
	before := c.printed[key]
	if rest, ok := strings.CutPrefix(content, before); ok {
		assistantColor.Fprint(c.out, rest)
	} else {
		assistantColor.Fprint(c.out, "\n"+content)
	}
	c.printed[key] = content
}

func (c *ConsoleUsecase) fail(err error) {
	errorColor.Fprintf(c.out, "Error: %v\n", err)
}

func (c *ConsoleUsecase) loadHistory(line *liner.State) {
	if c.cfg.HistoryFile == "" {
		return
	}
	f, err := os.Open(c.cfg.HistoryFile)
	if err != nil {
		return
	}
	defer f.Close()
	if _, err = line.ReadHistory(f); err != nil {
		slog.Warn("Failed to read console history", logger.Err(err))
	}
}

func (c *ConsoleUsecase) saveHistory(line *liner.State) {
	if c.cfg.HistoryFile == "" {
		return
	}
	f, err := os.OpenFile(c.cfg.HistoryFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		slog.Warn("Failed to open console history", logger.Err(err))
		return
	}
	defer f.Close()
	if _, err = line.WriteHistory(f); err != nil {
		slog.Warn("Failed to write console history", logger.Err(err))
	}
}

// parseConsoleCommand splits ":name args" into its parts.
func parseConsoleCommand(input string) (name, args string, ok bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(input), consolePrefix)
	if !ok || rest == "" {
		return "", "", false
	}
	name, args, _ = strings.Cut(rest, " ")
	return strings.ToLower(name), strings.TrimSpace(args), true
}

// completions offers console commands and the session's slash commands.
func completions(session *AiChatUsecase, input string) []string {
	if strings.HasPrefix(input, CommandPrefix) {
		var result []string
		for _, s := range session.Suggestions(input) {
			result = append(result, s.Command+" ")
		}
		return result
	}
	var result []string
	for _, name := range []string{
		ConsoleNew, ConsoleChats, ConsoleOpen, ConsoleDelete, ConsoleModel, ConsoleSettings, ConsoleHelp, ConsoleQuit,
	} {
		if strings.HasPrefix(consolePrefix+name, input) {
			result = append(result, consolePrefix+name)
		}
	}
	return result
}
