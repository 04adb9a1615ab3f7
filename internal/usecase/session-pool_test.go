package usecase

import (
	"context"
	"testing"

	in_memory "github.com/iamvkosarev/websearch-chat/internal/storage/in-memory"
	"github.com/iamvkosarev/websearch-chat/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionPool_OneStorePerKey(t *testing.T) {
	blobs := in_memory.NewBlobStorage()
	pool := NewSessionPool(
		SessionPoolDeps{Blobs: blobs, Completion: newFakeCompletion(), Searcher: &fakeSearcher{}},
		store.DefaultName, testSettings, AiChatConfig{},
	)
	t.Cleanup(pool.Close)

	first, created, err := pool.Get(context.Background(), "42")
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := pool.Get(context.Background(), "42")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, first, again)

	other, _, err := pool.Get(context.Background(), "7")
	require.NoError(t, err)
	assert.NotSame(t, first, other)

	first.UpdateSystemPrompt("only for 42")
	assert.Equal(t, testSettings.SystemPrompt, other.Settings().SystemPrompt)

	_, err = blobs.Load(context.Background(), "chat-storage:42")
	assert.NoError(t, err, "bootstrap persisted the user's blob")
	assert.Len(t, first.ListChats(), 1)
}
