package key_value

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/iamvkosarev/websearch-chat/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) (*BlobStorage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewBlobStorage(rdb, "test_"), mr
}

func TestBlobStorage_LoadMissing(t *testing.T) {
	storage, _ := newTestStorage(t)

	_, err := storage.Load(context.Background(), "chat-storage")
	require.ErrorIs(t, err, model.ErrBlobDoesNotExist)
}

func TestBlobStorage_SaveLoadDelete(t *testing.T) {
	storage, mr := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.Save(ctx, "chat-storage", []byte(`{"chats":[]}`)))
	require.True(t, mr.Exists("test_blob_chat-storage"))

	data, err := storage.Load(ctx, "chat-storage")
	require.NoError(t, err)
	require.JSONEq(t, `{"chats":[]}`, string(data))

	require.NoError(t, storage.Save(ctx, "chat-storage", []byte(`{"chats":null}`)))
	data, err = storage.Load(ctx, "chat-storage")
	require.NoError(t, err)
	require.JSONEq(t, `{"chats":null}`, string(data))

	require.NoError(t, storage.Delete(ctx, "chat-storage"))
	_, err = storage.Load(ctx, "chat-storage")
	require.ErrorIs(t, err, model.ErrBlobDoesNotExist)
}
