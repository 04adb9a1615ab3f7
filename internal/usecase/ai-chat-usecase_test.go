package usecase

import (
	"context"
	"strings"
	"testing"

	"github.com/iamvkosarev/websearch-chat/internal/model"
	"github.com/iamvkosarev/websearch-chat/internal/store"
	"github.com/iamvkosarev/websearch-chat/pkg/tavily"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func titleAwareResponder(title, answer string) func(req model.CompletionRequest) (model.Message, error) {
	return func(req model.CompletionRequest) (model.Message, error) {
		if len(req.Messages) > 0 && req.Messages[0].Content == model.TitlePrompt {
			return model.Message{Role: model.MessageRoleAssistant, Content: title}, nil
		}
		return model.Message{Role: model.MessageRoleAssistant, Content: answer}, nil
	}
}

func newSession(t *testing.T, completion *fakeCompletion, searcher *fakeSearcher) (*AiChatUsecase, *store.Store) {
	t.Helper()
	s := openStore(t, testSettings)
	session, err := NewAiChatUsecase(
		AiChatUsecaseDeps{
			Store:      s,
			Completion: completion,
			Searcher:   searcher,
		}, AiChatConfig{PromptEnhancerModel: "enhancer"},
	)
	require.NoError(t, err)
	t.Cleanup(session.Close)
	return session, s
}

func countTitleRequests(reqs []model.CompletionRequest) int {
	n := 0
	for _, req := range reqs {
		if len(req.Messages) > 0 && req.Messages[0].Content == model.TitlePrompt {
			n++
		}
	}
	return n
}

func TestSession_Bootstrap(t *testing.T) {
	session, _ := newSession(t, newFakeCompletion(), &fakeSearcher{})

	chat, err := session.Bootstrap()
	require.NoError(t, err)
	again, err := session.Bootstrap()
	require.NoError(t, err)
	assert.Equal(t, chat.ChatID, again.ChatID)
	assert.Equal(t, model.DefaultChatTitle, chat.Title)
	assert.Len(t, session.ListChats(), 1)
}

func TestSession_SendGeneratesTitleOnce(t *testing.T) {
	completion := newFakeCompletion(textChunks("Goroutines are ", "cheap."), textChunks("Yes."))
	completion.respond = titleAwareResponder("Goroutine Basics", "")
	session, _ := newSession(t, completion, &fakeSearcher{})
	chat, err := session.Bootstrap()
	require.NoError(t, err)

	outcome, err := session.Send(context.Background(), "Tell me about goroutines")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)
	session.Wait()

	current, err := session.CurrentChat()
	require.NoError(t, err)
	assert.Equal(t, chat.ChatID, current.ChatID)
	assert.Equal(t, "Goroutine Basics", current.Title)

	reqs := completion.completeRequests()
	require.Equal(t, 1, countTitleRequests(reqs))
	title := reqs[0]
	require.Len(t, title.Messages, 3)
	assert.Equal(t, "Goroutines are cheap.", title.Messages[2].Content, "title sees the complete reply")

	_, err = session.Send(context.Background(), "Are they really?")
	require.NoError(t, err)
	session.Wait()
	assert.Equal(t, 1, countTitleRequests(completion.completeRequests()))
}

func TestSession_GenIsStoredAsDirectReply(t *testing.T) {
	completion := newFakeCompletion()
	completion.respond = titleAwareResponder("Fox Image", "a red fox in snow")
	session, s := newSession(t, completion, &fakeSearcher{})
	chat, err := session.Bootstrap()
	require.NoError(t, err)

	outcome, err := session.Send(context.Background(), "/gen a red fox")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)
	session.Wait()

	messages := chatMessages(t, s, chat.ChatID)
	require.Len(t, messages, 2)
	assert.Equal(t, model.Message{Role: model.MessageRoleUser, Content: "/gen a red fox"}, messages[0])
	assert.Equal(t, model.MessageRoleAssistant, messages[1].Role)
	assert.True(t, strings.HasPrefix(messages[1].Content, "Generating image: a red fox\nhttps://pollinations.ai/prompt/"))
	assert.Empty(t, completion.streamReqs, "no turn is run for a direct reply")
}

func TestSession_SearchDeliversFollowUp(t *testing.T) {
	completion := newFakeCompletion()
	completion.respond = titleAwareResponder("Go News", "Go 1.24 is the latest release.")
	searcher := &fakeSearcher{
		resp: tavily.Response{Results: []tavily.Result{{Title: "Go 1.24", Content: "Released", URL: "https://go.dev"}}},
	}
	session, s := newSession(t, completion, searcher)
	chat, err := session.Bootstrap()
	require.NoError(t, err)

	_, err = session.Send(context.Background(), "/search go release")
	require.NoError(t, err)
	session.Wait()

	messages := chatMessages(t, s, chat.ChatID)
	require.Len(t, messages, 3)
	assert.Equal(t, "/search go release", messages[0].Content)
	assert.Contains(t, messages[1].Content, "Searching the web for")
	assert.Equal(t, "Go 1.24 is the latest release.", messages[2].Content)
	assert.False(t, session.Loading())
}

func TestSession_UnknownCommandIsSentAsMessage(t *testing.T) {
	completion := newFakeCompletion(textChunks("I only know /gen and /search."))
	completion.respond = titleAwareResponder("Commands", "")
	session, s := newSession(t, completion, &fakeSearcher{})
	chat, err := session.Bootstrap()
	require.NoError(t, err)

	_, err = session.Send(context.Background(), "/foo bar")
	require.NoError(t, err)
	session.Wait()

	messages := chatMessages(t, s, chat.ChatID)
	require.Len(t, messages, 2)
	assert.Equal(t, "Unknown command: /foo. Available commands: /gen, /search", messages[0].Content)
}

func TestSession_EmptyInput(t *testing.T) {
	session, _ := newSession(t, newFakeCompletion(), &fakeSearcher{})
	_, err := session.Bootstrap()
	require.NoError(t, err)

	_, err = session.Send(context.Background(), "  ")
	assert.ErrorIs(t, err, model.ErrEmptyMessage)
}

func TestSession_DeleteCurrentChatSelectsNewOne(t *testing.T) {
	session, _ := newSession(t, newFakeCompletion(), &fakeSearcher{})
	chat, err := session.Bootstrap()
	require.NoError(t, err)

	require.NoError(t, session.DeleteChat(chat.ChatID))
	current, err := session.CurrentChat()
	require.NoError(t, err)
	assert.NotEqual(t, chat.ChatID, current.ChatID)
	assert.Len(t, session.ListChats(), 1)

	assert.ErrorIs(t, session.SelectChat(chat.ChatID), model.ErrChatDoesNotExist)
}

func TestSession_SetChatModel(t *testing.T) {
	completion := newFakeCompletion(textChunks("ok"))
	completion.respond = titleAwareResponder("t", "")
	session, _ := newSession(t, completion, &fakeSearcher{})
	_, err := session.Bootstrap()
	require.NoError(t, err)

	require.NoError(t, session.SetChatModel("Phi-4"))
	_, err = session.Send(context.Background(), "hi")
	require.NoError(t, err)
	session.Wait()

	require.Len(t, completion.streamReqs, 1)
	assert.Equal(t, "Phi-4", completion.streamReqs[0].Model)
}
