package key_value

import (
	"context"
	"errors"
	"fmt"

	"github.com/iamvkosarev/websearch-chat/internal/model"
	"github.com/redis/go-redis/v9"
)

type BlobStorage struct {
	rdb       redis.Cmdable
	keyPrefix string
}

func NewBlobStorage(rdb redis.Cmdable, keyPrefix string) *BlobStorage {
	return &BlobStorage{
		rdb:       rdb,
		keyPrefix: keyPrefix,
	}
}

func (b *BlobStorage) Load(ctx context.Context, name string) ([]byte, error) {
	raw, err := b.rdb.Get(ctx, b.getBlobKey(name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrBlobDoesNotExist
		}
		return nil, fmt.Errorf("failed to get blob %s: %w", name, err)
	}
	return raw, nil
}

func (b *BlobStorage) Save(ctx context.Context, name string, data []byte) error {
	if err := b.rdb.Set(ctx, b.getBlobKey(name), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save blob %s: %w", name, err)
	}
	return nil
}

func (b *BlobStorage) Delete(ctx context.Context, name string) error {
	if err := b.rdb.Del(ctx, b.getBlobKey(name)).Err(); err != nil {
		return fmt.Errorf("failed to delete blob %s: %w", name, err)
	}
	return nil
}

func (b *BlobStorage) getBlobKey(name string) string {
	return fmt.Sprintf("%sblob_%s", b.keyPrefix, name)
}
