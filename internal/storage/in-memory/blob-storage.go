package in_memory

import (
	"context"
	"sync"

	"github.com/iamvkosarev/websearch-chat/internal/model"
)

type BlobStorage struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewBlobStorage() *BlobStorage {
	return &BlobStorage{
		blobs: make(map[string][]byte),
	}
}

func (b *BlobStorage) Load(_ context.Context, name string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, ok := b.blobs[name]
	if !ok {
		return nil, model.ErrBlobDoesNotExist
	}
	return append([]byte(nil), data...), nil
}

func (b *BlobStorage) Save(_ context.Context, name string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.blobs[name] = append([]byte(nil), data...)
	return nil
}

func (b *BlobStorage) Delete(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.blobs, name)
	return nil
}
