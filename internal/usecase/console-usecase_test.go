package usecase

import (
	"bytes"
	"context"
	"testing"

	"github.com/fatih/color"
	"github.com/iamvkosarev/websearch-chat/config"
	in_memory "github.com/iamvkosarev/websearch-chat/internal/storage/in-memory"
	"github.com/iamvkosarev/websearch-chat/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConsole(t *testing.T, completion *fakeCompletion) (*ConsoleUsecase, *AiChatUsecase, *bytes.Buffer) {
	t.Helper()
	color.NoColor = true
	pool := NewSessionPool(
		SessionPoolDeps{Blobs: in_memory.NewBlobStorage(), Completion: completion, Searcher: &fakeSearcher{}},
		store.DefaultName, testSettings, AiChatConfig{},
	)
	t.Cleanup(pool.Close)
	session, _, err := pool.Get(context.Background(), consoleKey)
	require.NoError(t, err)

	out := &bytes.Buffer{}
	console := NewConsoleUsecase(config.Console{}, pool, out)
	t.Cleanup(session.Subscribe(console.print))
	return console, session, out
}

func TestParseConsoleCommand(t *testing.T) {
	tests := []struct {
		input string
		name  string
		args  string
		ok    bool
	}{
		{input: ":open 2", name: "open", args: "2", ok: true},
		{input: "  :QUIT ", name: "quit", ok: true},
		{input: ":model  gpt-4o ", name: "model", args: "gpt-4o", ok: true},
		{input: ":"},
		{input: "/gen fox"},
		{input: "hello :open"},
	}
	for _, tt := range tests {
		t.Run(
			tt.input, func(t *testing.T) {
				name, args, ok := parseConsoleCommand(tt.input)
				assert.Equal(t, tt.ok, ok)
				assert.Equal(t, tt.name, name)
				assert.Equal(t, tt.args, args)
			},
		)
	}
}

func TestConsole_PrintsStreamedReplyOnce(t *testing.T) {
	console, session, out := newConsole(t, newFakeCompletion(textChunks("Hello ", "world")))

	quit := console.Execute(context.Background(), session, "hi")
	assert.False(t, quit)
	assert.Equal(t, "Hello world\n", out.String())
}

func TestConsole_ChatCommands(t *testing.T) {
	console, session, out := newConsole(t, newFakeCompletion())
	ctx := context.Background()

	assert.False(t, console.Execute(ctx, session, ":new"))
	assert.False(t, console.Execute(ctx, session, ":chats"))
	assert.Len(t, session.ListChats(), 2)
	assert.Contains(t, out.String(), "* 2) New Chat - messages: 0, model: gpt-4o")

	out.Reset()
	assert.False(t, console.Execute(ctx, session, ":open 1"))
	assert.Contains(t, out.String(), "== New Chat ==")
	current, err := session.CurrentChat()
	require.NoError(t, err)
	assert.Equal(t, session.ListChats()[0].ChatID, current.ChatID)

	out.Reset()
	assert.False(t, console.Execute(ctx, session, ":model Phi-4"))
	assert.Equal(t, "This chat now uses Phi-4.\n", out.String())

	out.Reset()
	assert.False(t, console.Execute(ctx, session, ":bogus"))
	assert.Equal(t, "Unknown command :bogus, see :help.\n", out.String())

	assert.True(t, console.Execute(ctx, session, ":quit"))
}

func TestCompletions(t *testing.T) {
	_, session, _ := newConsole(t, newFakeCompletion())

	assert.Equal(t, []string{":chats"}, completions(session, ":ch"))
	assert.Equal(t, []string{"/search "}, completions(session, "/se"))
}
