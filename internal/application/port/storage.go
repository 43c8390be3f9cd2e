package port

import (
	"context"
	"errors"
)

// ErrFileTooLarge is returned by uploaders when a file exceeds the configured limit
var ErrFileTooLarge = errors.New("file too large")

// FileStorage defines blob storage operations keyed by a relative path
type FileStorage interface {
	Save(ctx context.Context, path string, content []byte, contentType string) error
	Read(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) bool
	Delete(ctx context.Context, path string) error
	// URL returns the public reference for a stored path
	URL(path string) string
}
