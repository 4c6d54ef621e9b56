package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"fileflow/internal/model"
)

// ArchiveKey is the content-addressed object key of a processed file.
func ArchiveKey(hash, ext string) string {
	return "files/" + hash + strings.ToLower(ext)
}

// Archiver copies analyzed files into object storage.
type Archiver struct {
	store Storage
}

func NewArchiver(store Storage) *Archiver {
	return &Archiver{store: store}
}

// Archive uploads the file at path under its content key and returns the key.
// An object already present under the key is not uploaded again, so redelivered
// jobs and identical uploads share one copy.
func (a *Archiver) Archive(ctx context.Context, path string, data *model.ExtractedData) (string, error) {
	key := ArchiveKey(data.Hash, data.Extension)

	if _, err := a.store.Stat(ctx, key); err == nil {
		return key, nil
	} else if !errors.Is(err, ErrObjectNotFound) {
		return "", fmt.Errorf("stat %s: %w", key, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open for archive: %w", err)
	}
	defer f.Close()

	_, err = a.store.Put(ctx, key, f, PutObjectOptions{
		Size:        data.Size,
		ContentType: data.MimeType,
		Metadata:    map[string]string{"sha256": data.Hash},
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return key, nil
}

// PresignGet returns a download URL for an archived key.
func (a *Archiver) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return a.store.PresignGet(ctx, key, expiry)
}
