package blob

import (
	"context"
	"io"
)

// Metadata accompanies an upload into the store.
type Metadata struct {
	FileName    string
	ContentType string
	StudentID   string
}

// Store is opaque content storage for uploaded documents. Refs are handles
// with no meaning outside the store. A job must never be created for a blob
// that failed to persist.
type Store interface {
	Put(ctx context.Context, data []byte, meta Metadata) (string, error)
	Get(ctx context.Context, ref string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, ref string) error
}
