package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrNotParquet     = errors.New("object is not a parquet file")
)

// ParquetContentType is stored with every dataset object.
const ParquetContentType = "application/vnd.apache.parquet"

// Object metadata keys written with dataset objects.
const (
	MetadataUserID   = "user-id"
	MetadataTargetID = "target-id"
)

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	Metadata     map[string]string
	LastModified time.Time
}

type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// ObjectStore holds uploaded datasets as parquet objects.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
}

// Fetch copies an object to a local file and returns the number of bytes
// written. A missing object yields ErrObjectNotFound.
func Fetch(ctx context.Context, store ObjectStore, key, localPath string) (int64, error) {
	reader, err := store.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	defer func() { _ = reader.Close() }()

	file, err := os.Create(localPath)
	if err != nil {
		return 0, fmt.Errorf("create local file %q: %w", localPath, err)
	}
	written, copyErr := io.Copy(file, reader)
	closeErr := file.Close()
	if copyErr != nil {
		return written, fmt.Errorf("copy object %q: %w", key, copyErr)
	}
	if closeErr != nil {
		return written, fmt.Errorf("close local file %q: %w", localPath, closeErr)
	}
	return written, nil
}
