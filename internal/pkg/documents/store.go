// Package documents persists rendered reports so they can be re-sent and
// downloaded after delivery.
package documents

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("document not found")
	ErrInvalidRef = errors.New("invalid document reference")
)

// Store keeps rendered documents. Put returns an opaque reference that Get accepts.
type Store interface {
	Put(ctx context.Context, key string, content []byte, contentType string) (string, error)
	Get(ctx context.Context, ref string) (content []byte, contentType string, err error)
}

// NewStore builds the store selected by cfg.Backend.
func NewStore(ctx context.Context, cfg *Config) (Store, error) {
	switch cfg.Backend {
	case BackendS3:
		return NewS3Store(ctx, cfg)
	case BackendLocal:
		return NewLocalStore(cfg.LocalPath)
	default:
		return nil, fmt.Errorf("unknown documents backend %q", cfg.Backend)
	}
}
