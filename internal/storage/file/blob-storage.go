package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/iamvkosarev/websearch-chat/internal/model"
)

// BlobStorage keeps every blob as a JSON file inside dir.
type BlobStorage struct {
	dir string
}

func NewBlobStorage(dir string) (*BlobStorage, error) {
	// 0700: blobs hold api keys and conversation history
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &BlobStorage{dir: dir}, nil
}

func (b *BlobStorage) Load(_ context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(b.blobPath(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, model.ErrBlobDoesNotExist
		}
		return nil, fmt.Errorf("failed to read blob %s: %w", name, err)
	}
	return data, nil
}

// Save writes to a temp file first so a crash never leaves a truncated blob behind.
func (b *BlobStorage) Save(_ context.Context, name string, data []byte) error {
	path := b.blobPath(name)
	tmp, err := os.CreateTemp(b.dir, ".blob-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for blob %s: %w", name, err)
	}
	tmpName := tmp.Name()
	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write blob %s: %w", name, err)
	}
	if err = tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close blob %s: %w", name, err)
	}
	if err = os.Chmod(tmpName, 0600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to chmod blob %s: %w", name, err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move blob %s: %w", name, err)
	}
	return nil
}

func (b *BlobStorage) Delete(_ context.Context, name string) error {
	if err := os.Remove(b.blobPath(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete blob %s: %w", name, err)
	}
	return nil
}

func (b *BlobStorage) blobPath(name string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "..", "_").Replace(name)
	return filepath.Join(b.dir, safe+".json")
}
