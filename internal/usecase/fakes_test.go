package usecase

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/iamvkosarev/websearch-chat/internal/model"
	in_memory "github.com/iamvkosarev/websearch-chat/internal/storage/in-memory"
	"github.com/iamvkosarev/websearch-chat/internal/store"
	"github.com/iamvkosarev/websearch-chat/internal/tools"
	"github.com/iamvkosarev/websearch-chat/pkg/tavily"
	"github.com/stretchr/testify/require"
)

var testSettings = model.Settings{
	APIKey:       "sk-test",
	BaseURL:      "https://models.example.com",
	TavilyAPIKey: "tv-test",
	SystemPrompt: "You are a test assistant.",
	SearchPrompt: "Summarize the results.",
}

type fakeCompletion struct {
	mu sync.Mutex

	streams      [][]model.Chunk
	streamErr    error
	recvErr      error
	blockAfter   int
	blocked      chan struct{}
	completions  []model.Message
	completeErr  error
	respond      func(req model.CompletionRequest) (model.Message, error)
	streamReqs   []model.CompletionRequest
	completeReqs []model.CompletionRequest
}

func newFakeCompletion(streams ...[]model.Chunk) *fakeCompletion {
	return &fakeCompletion{
		streams:    streams,
		blockAfter: -1,
		blocked:    make(chan struct{}),
	}
}

func (f *fakeCompletion) Stream(ctx context.Context, req model.CompletionRequest) (CompletionStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.streamReqs = append(f.streamReqs, req)
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	var chunks []model.Chunk
	if len(f.streams) > 0 {
		chunks = f.streams[0]
		f.streams = f.streams[1:]
	}
	return &fakeStream{
		ctx:        ctx,
		chunks:     chunks,
		recvErr:    f.recvErr,
		blockAfter: f.blockAfter,
		blocked:    f.blocked,
	}, nil
}

func (f *fakeCompletion) Complete(_ context.Context, req model.CompletionRequest) (model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.completeReqs = append(f.completeReqs, req)
	if f.respond != nil {
		return f.respond(req)
	}
	if f.completeErr != nil {
		return model.Message{}, f.completeErr
	}
	if len(f.completions) == 0 {
		return model.Message{}, model.ErrEmptyCompletion
	}
	msg := f.completions[0]
	f.completions = f.completions[1:]
	return msg, nil
}

func (f *fakeCompletion) completeRequests() []model.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.CompletionRequest(nil), f.completeReqs...)
}

type fakeStream struct {
	ctx        context.Context
	chunks     []model.Chunk
	recvErr    error
	blockAfter int
	blocked    chan struct{}
	i          int
}

func (s *fakeStream) Recv() (model.Chunk, error) {
	if s.i == s.blockAfter {
		close(s.blocked)
		<-s.ctx.Done()
		return model.Chunk{}, s.ctx.Err()
	}
	if s.i >= len(s.chunks) {
		if s.recvErr != nil {
			return model.Chunk{}, s.recvErr
		}
		return model.Chunk{}, io.EOF
	}
	chunk := s.chunks[s.i]
	s.i++
	return chunk, nil
}

func (s *fakeStream) Close() {}

type fakeSearcher struct {
	mu      sync.Mutex
	resp    tavily.Response
	err     error
	queries []string
}

func (f *fakeSearcher) Search(_ context.Context, _ string, query string) (tavily.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	return f.resp, f.err
}

func openStore(t *testing.T, settings model.Settings) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), in_memory.NewBlobStorage(), store.DefaultName, settings)
	require.NoError(t, err)
	return s
}

func selectNewChat(t *testing.T, s *store.Store) model.AIChat {
	t.Helper()
	chat, err := model.NewAIChat("")
	require.NoError(t, err)
	return s.AddChat(chat)
}

func newRegistry(t *testing.T, s *store.Store, searcher *fakeSearcher) *tools.Registry {
	t.Helper()
	r, err := tools.NewRegistry(
		tools.NewWebSearch(searcher, func() string { return s.Settings().TavilyAPIKey }),
	)
	require.NoError(t, err)
	return r
}

func textChunks(parts ...string) []model.Chunk {
	chunks := make([]model.Chunk, 0, len(parts))
	for _, p := range parts {
		chunks = append(chunks, model.Chunk{Content: p})
	}
	return chunks
}

func toolCallChunks(id, args string) []model.Chunk {
	half := len(args) / 2
	return []model.Chunk{
		{ToolCalls: []model.ToolCallDelta{{Index: 0, ID: id, Name: tools.WebSearchName, Arguments: args[:half]}}},
		{ToolCalls: []model.ToolCallDelta{{Index: 0, Arguments: args[half:]}}},
	}
}

func chatMessages(t *testing.T, s *store.Store, chatID string) []model.Message {
	t.Helper()
	chat, err := s.Chat(chatID)
	require.NoError(t, err)
	return chat.Messages
}
