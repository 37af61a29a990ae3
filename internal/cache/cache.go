package cache

import (
	"context"
	"io"
)

// Cache is the store contract consumed by the asset registry.
// *Store implements it.
type Cache interface {
	Has(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string, v any) (bool, error)
	Set(ctx context.Context, key string, v any) error

	GetBlob(ctx context.Context, key string) ([]byte, error)
	SetBlob(ctx context.Context, key string, data []byte) error
	GetBuffer(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error

	GetStream(ctx context.Context, key string) (io.ReadCloser, error)
	SetStream(ctx context.Context, key string, r io.Reader) error

	HasLargeBlob(ctx context.Context, key string) (bool, error)
	GetLargeBlob(ctx context.Context, key string) ([]byte, error)
	SetLargeBlob(ctx context.Context, key string, data []byte) error
	DeleteLargeBlob(ctx context.Context, key string) error

	Refresh()
}

var _ Cache = (*Store)(nil)
