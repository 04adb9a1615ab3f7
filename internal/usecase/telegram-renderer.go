package usecase

import (
	"log/slog"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/iamvkosarev/websearch-chat/internal/model"
	"github.com/iamvkosarev/websearch-chat/internal/store"
	"github.com/iamvkosarev/websearch-chat/pkg/logger"
)

const (
	telegramMessageLimit = 4096
	rendererBuffer       = 64
)

// renderedMessage is the Telegram message mirroring one stored assistant message.
type renderedMessage struct {
	chatID   string
	index    int
	msgID    int
	content  string
	sent     string
	lastEdit time.Time
}

func (m renderedMessage) dirty() bool {
	return m.msgID != 0 && displayText(m.content) != m.sent
}

// telegramRenderer turns one user's store events into Telegram messages. Streamed
// replacements are throttled into edits to stay under Telegram rate limits.
type telegramRenderer struct {
	bot      TelegramBot
	tgChatID int64
	throttle time.Duration
	now      func() time.Time

	events chan store.Event
	done   <-chan struct{}
	cur    renderedMessage
}

func newTelegramRenderer(bot TelegramBot, tgChatID int64, throttle time.Duration, done <-chan struct{}) *telegramRenderer {
	return &telegramRenderer{
		bot:      bot,
		tgChatID: tgChatID,
		throttle: throttle,
		now:      time.Now,
		events:   make(chan store.Event, rendererBuffer),
		done:     done,
		cur:      renderedMessage{index: -1},
	}
}

// listen is the store listener. It never blocks once the renderer is stopped.
func (r *telegramRenderer) listen(ev store.Event) {
	select {
	case r.events <- ev:
	case <-r.done:
	}
}

func (r *telegramRenderer) run() {
	ticker := time.NewTicker(r.throttle)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			r.drain()
			r.flush()
			return
		case ev := <-r.events:
			r.handle(ev)
		case <-ticker.C:
			if r.cur.dirty() && r.now().Sub(r.cur.lastEdit) >= r.throttle {
				r.edit()
			}
		}
	}
}

func (r *telegramRenderer) drain() {
	for {
		select {
		case ev := <-r.events:
			r.handle(ev)
		default:
			return
		}
	}
}

func (r *telegramRenderer) handle(ev store.Event) {
	if ev.Message.Role != model.MessageRoleAssistant {
		return
	}
	switch ev.Kind {
	case store.EventMessageAdded:
		r.flush()
		r.cur = renderedMessage{chatID: ev.ChatID, index: ev.Index, content: ev.Message.Content}
		r.send()
		if strings.HasPrefix(ev.Message.Content, ImageReplyPrefix) {
			r.sendImage(ev.Message.Content)
		}
	case store.EventMessageReplaced:
		if ev.ChatID != r.cur.chatID || ev.Index != r.cur.index {
			r.flush()
			r.cur = renderedMessage{chatID: ev.ChatID, index: ev.Index}
		}
		r.cur.content = ev.Message.Content
		if r.cur.msgID == 0 {
			r.send()
			return
		}
		if r.now().Sub(r.cur.lastEdit) >= r.throttle {
			r.edit()
		}
	}
}

// flush brings the Telegram copy of the current message up to date.
func (r *telegramRenderer) flush() {
	if r.cur.dirty() {
		r.edit()
	}
}

func (r *telegramRenderer) send() {
	text := displayText(r.cur.content)
	if text == "" {
		return
	}
	msg, err := r.bot.Send(api.NewMessage(r.tgChatID, text))
	if err != nil {
		slog.Error("Failed to send message", "telegram_chat_id", r.tgChatID, logger.Err(err))
		return
	}
	r.cur.msgID = msg.MessageID
	r.cur.sent = text
	r.cur.lastEdit = r.now()
}

func (r *telegramRenderer) edit() {
	text := displayText(r.cur.content)
	if _, err := r.bot.Send(api.NewEditMessageText(r.tgChatID, r.cur.msgID, text)); err != nil {
		slog.Error("Failed to edit message", "telegram_chat_id", r.tgChatID, logger.Err(err))
	}
	r.cur.sent = text
	r.cur.lastEdit = r.now()
}

func (r *telegramRenderer) sendImage(content string) {
	url, ok := imageURL(content)
	if !ok {
		return
	}
	if _, err := r.bot.Send(api.NewPhoto(r.tgChatID, api.FileURL(url))); err != nil {
		slog.Warn("Failed to send image", "telegram_chat_id", r.tgChatID, logger.Err(err))
	}
}

// imageURL extracts the generated image link from an image reply.
func imageURL(content string) (string, bool) {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, PollinationsURL) {
			return line, true
		}
	}
	return "", false
}

func displayText(content string) string {
	content = strings.TrimSpace(content)
	runes := []rune(content)
	if len(runes) <= telegramMessageLimit {
		return content
	}
	return string(runes[:telegramMessageLimit-1]) + "…"
}
