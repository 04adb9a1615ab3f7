package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/iamvkosarev/websearch-chat/config"
	"github.com/iamvkosarev/websearch-chat/internal/model"
	in_memory "github.com/iamvkosarev/websearch-chat/internal/storage/in-memory"
	"github.com/iamvkosarev/websearch-chat/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const allowedUserID = 42

type fakeBot struct {
	mu       sync.Mutex
	sent     []api.Chattable
	requests []api.Chattable
	nextID   int
	updates  chan api.Update
}

func (b *fakeBot) Send(c api.Chattable) (api.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, c)
	b.nextID++
	return api.Message{MessageID: b.nextID}, nil
}

func (b *fakeBot) Request(c api.Chattable) (*api.APIResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, c)
	return &api.APIResponse{Ok: true}, nil
}

func (b *fakeBot) GetUpdatesChan(api.UpdateConfig) api.UpdatesChannel {
	return b.updates
}

func (b *fakeBot) StopReceivingUpdates() {}

// texts lists the text of every sent message and edit, in order.
func (b *fakeBot) texts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var texts []string
	for _, c := range b.sent {
		switch msg := c.(type) {
		case api.MessageConfig:
			texts = append(texts, msg.Text)
		case api.EditMessageTextConfig:
			texts = append(texts, msg.Text)
		}
	}
	return texts
}

func (b *fakeBot) count(match func(c api.Chattable) bool, fromRequests bool) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.sent
	if fromRequests {
		list = b.requests
	}
	n := 0
	for _, c := range list {
		if match(c) {
			n++
		}
	}
	return n
}

func newTelegram(t *testing.T, completion *fakeCompletion) (*TelegramUsecase, *fakeBot, *SessionPool) {
	t.Helper()
	return newTelegramWithDefaults(t, completion, testSettings)
}

func newTelegramWithDefaults(
	t *testing.T,
	completion *fakeCompletion,
	defaults model.Settings,
) (*TelegramUsecase, *fakeBot, *SessionPool) {
	t.Helper()
	bot := &fakeBot{updates: make(chan api.Update)}
	pool := NewSessionPool(
		SessionPoolDeps{Blobs: in_memory.NewBlobStorage(), Completion: completion, Searcher: &fakeSearcher{}},
		store.DefaultName, defaults, AiChatConfig{},
	)
	t.Cleanup(pool.Close)

	tg, err := NewTelegramUsecase(
		config.Telegram{
			IsNotPublic:       true,
			AllowedTelegramID: []int64{allowedUserID},
			EditThrottle:      time.Hour,
			Language:          "en",
		},
		[]string{"gpt-4o", "Phi-4"},
		TelegramUsecaseDeps{Bot: bot, Sessions: pool},
	)
	require.NoError(t, err)
	return tg, bot, pool
}

// incoming decodes a private text message the way the Bot API delivers it.
func incoming(t *testing.T, userID int64, msgID int, text string) *api.Message {
	t.Helper()
	entities := ""
	if strings.HasPrefix(text, "/") {
		command, _, _ := strings.Cut(text, " ")
		entities = fmt.Sprintf(`,"entities":[{"type":"bot_command","offset":0,"length":%d}]`, len(command))
	}
	raw := fmt.Sprintf(
		`{"message_id":%d,"from":{"id":%d,"is_bot":false,"first_name":"Test","language_code":"en"},`+
			`"chat":{"id":%d,"type":"private"},"date":0,"text":%q%s}`,
		msgID, userID, userID, text, entities,
	)
	var msg api.Message
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	return &msg
}

func TestTelegram_RegistersCommands(t *testing.T) {
	_, bot, _ := newTelegram(t, newFakeCompletion())
	assert.Equal(
		t, 1, bot.count(
			func(c api.Chattable) bool {
				_, ok := c.(api.SetMyCommandsConfig)
				return ok
			}, true,
		),
	)
}

func TestTelegram_RejectsUnknownUsers(t *testing.T) {
	tg, bot, _ := newTelegram(t, newFakeCompletion())

	require.NoError(t, tg.handleMessage(context.Background(), incoming(t, 7, 1, "hello")))
	tg.close()

	assert.Equal(t, []string{textNoAccess.Default}, bot.texts())
}

func TestTelegram_StreamsReplyIntoOneMessage(t *testing.T) {
	tg, bot, pool := newTelegram(t, newFakeCompletion(textChunks("Hello ", "there")))

	require.NoError(t, tg.handleMessage(context.Background(), incoming(t, allowedUserID, 1, "hi")))
	tg.close()

	assert.Equal(t, []string{"Hello", "Hello there"}, bot.texts())
	assert.Equal(
		t, 1, bot.count(
			func(c api.Chattable) bool {
				_, ok := c.(api.EditMessageTextConfig)
				return ok
			}, false,
		),
	)

	session, created, err := pool.Get(context.Background(), "42")
	require.NoError(t, err)
	assert.False(t, created)
	chat, err := session.CurrentChat()
	require.NoError(t, err)
	require.Len(t, chat.Messages, 2)
	assert.Equal(t, "Hello there", chat.Messages[1].Content)
}

func TestTelegram_LocalCommands(t *testing.T) {
	tg, bot, pool := newTelegram(t, newFakeCompletion())
	ctx := context.Background()

	require.NoError(t, tg.handleMessage(ctx, incoming(t, allowedUserID, 1, "/new")))
	require.NoError(t, tg.handleMessage(ctx, incoming(t, allowedUserID, 2, "/chats")))
	require.NoError(t, tg.handleMessage(ctx, incoming(t, allowedUserID, 3, "/pin Phi-4")))
	require.NoError(t, tg.handleMessage(ctx, incoming(t, allowedUserID, 4, "/setkey sk-new")))
	require.NoError(t, tg.handleMessage(ctx, incoming(t, allowedUserID, 5, "/open 9")))
	tg.close()

	texts := bot.texts()
	require.Len(t, texts, 5)
	assert.Equal(t, textNewChat.Default, texts[0])
	assert.True(t, strings.HasPrefix(texts[1], "You have 2 chats:"), texts[1])
	assert.Contains(t, texts[1], "▶ ")
	assert.Equal(t, "New chats will use Phi-4.", texts[2])
	assert.Equal(t, textSettingsSaved.Default, texts[3])
	assert.Equal(t, textChatNumberExpected.Default, texts[4])

	session, _, err := pool.Get(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "sk-new", session.Settings().APIKey)
	assert.Equal(t, "Phi-4", session.Settings().PinnedModel)
	assert.Equal(
		t, 1, bot.count(
			func(c api.Chattable) bool {
				_, ok := c.(api.DeleteMessageConfig)
				return ok
			}, true,
		),
		"the message carrying the key is deleted",
	)
}

func TestTelegram_MissingKeyAsksForConfiguration(t *testing.T) {
	noKey := testSettings
	noKey.APIKey = ""
	tg, bot, _ := newTelegramWithDefaults(t, newFakeCompletion(), noKey)
	ctx := context.Background()

	require.NoError(t, tg.handleMessage(ctx, incoming(t, allowedUserID, 1, "hi")))
	tg.close()

	texts := bot.texts()
	require.Len(t, texts, 1)
	assert.True(t, strings.HasPrefix(texts[0], "Please configure your credentials:"), texts[0])
}

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func TestTelegramRenderer_ThrottlesEdits(t *testing.T) {
	bot := &fakeBot{}
	clock := &testClock{now: time.Unix(0, 0)}
	r := newTelegramRenderer(bot, 1, time.Second, make(chan struct{}))
	r.now = clock.Now

	assistant := func(content string) model.Message {
		return model.Message{Role: model.MessageRoleAssistant, Content: content}
	}
	r.handle(store.Event{Kind: store.EventMessageAdded, Message: model.Message{Role: model.MessageRoleUser, Content: "q"}})
	r.handle(store.Event{Kind: store.EventMessageAdded, ChatID: "c", Index: 1, Message: assistant("a")})
	r.handle(store.Event{Kind: store.EventMessageReplaced, ChatID: "c", Index: 1, Message: assistant("ab")})
	clock.now = clock.now.Add(time.Second)
	r.handle(store.Event{Kind: store.EventMessageReplaced, ChatID: "c", Index: 1, Message: assistant("abc")})
	r.handle(store.Event{Kind: store.EventMessageReplaced, ChatID: "c", Index: 1, Message: assistant("abcd")})
	r.flush()

	assert.Equal(t, []string{"a", "abc", "abcd"}, bot.texts())
}

func TestTelegramRenderer_SkipsEmptyAndSendsImages(t *testing.T) {
	bot := &fakeBot{}
	r := newTelegramRenderer(bot, 1, time.Second, make(chan struct{}))

	r.handle(
		store.Event{
			Kind: store.EventMessageAdded, Index: 1,
			Message: model.Message{Role: model.MessageRoleAssistant, ToolCalls: []model.ToolCall{{ID: "call"}}},
		},
	)
	r.handle(
		store.Event{
			Kind: store.EventMessageAdded, Index: 2,
			Message: model.Message{Role: model.MessageRoleTool, Content: "raw results", ToolCallID: "call"},
		},
	)
	image := ImageReplyPrefix + " a fox\n" + PollinationsURL + "a%20fox"
	r.handle(
		store.Event{Kind: store.EventMessageAdded, Index: 3, Message: model.Message{Role: model.MessageRoleAssistant, Content: image}},
	)

	assert.Equal(t, []string{image}, bot.texts())
	assert.Equal(
		t, 1, bot.count(
			func(c api.Chattable) bool {
				_, ok := c.(api.PhotoConfig)
				return ok
			}, false,
		),
	)
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", maskSecret(""))
	assert.Equal(t, "***", maskSecret("abc"))
	assert.Equal(t, "********7890", maskSecret("sk-1234567890"))
}

func TestDisplayText(t *testing.T) {
	long := strings.Repeat("я", telegramMessageLimit+10)
	shown := []rune(displayText(long))
	assert.Len(t, shown, telegramMessageLimit)
	assert.Equal(t, "hi", displayText("  hi \n"))
}
