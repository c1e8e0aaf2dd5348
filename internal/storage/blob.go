package storage

import (
	"context"
	"io"
	"time"
)

// BlobStore keeps opaque files: cached class reports and raw import uploads.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader) (string, error) // returns canonical key
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (Info, error)
	Delete(ctx context.Context, key string) error
}

type Info struct {
	Key     string
	Size    int64
	ModTime time.Time
}
