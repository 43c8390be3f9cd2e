package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/field-service/internal/application/port"
)

// ErrPathEscapes is returned for a relative path that resolves outside the storage root
var ErrPathEscapes = errors.New("path escapes base directory")

// LocalFileStorage keeps evidence files and reports under one directory.
// Files are served back under publicURL; the HTTP layer mounts the directory there.
type LocalFileStorage struct {
	root      string
	publicURL string
	logger    *zap.Logger
}

// NewLocalFileStorage creates a new LocalFileStorage rooted at baseDir
func NewLocalFileStorage(baseDir, publicURL string, logger *zap.Logger) *LocalFileStorage {
	root, err := filepath.Abs(baseDir)
	if err != nil {
		root = filepath.Clean(baseDir)
	}
	return &LocalFileStorage{
		root:      root,
		publicURL: strings.TrimSuffix(publicURL, "/"),
		logger:    logger,
	}
}

// Save writes content atomically: readers see either the old file or the new one
func (s *LocalFileStorage) Save(ctx context.Context, path string, content []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.resolve(path)
	if err != nil {
		return err
	}

	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		s.logger.Error("Failed to store file", zap.String("path", full), zap.Error(err))
		return fmt.Errorf("failed to store file: %w", err)
	}

	s.logger.Debug("File stored",
		zap.String("path", path),
		zap.String("content_type", contentType),
		zap.Int("size", len(content)))
	return nil
}

// Read returns the stored content; a missing file is port.ErrNotFound
func (s *LocalFileStorage) Read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: file %s", port.ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return content, nil
}

// Exists reports whether a regular file is stored at path
func (s *LocalFileStorage) Exists(ctx context.Context, path string) bool {
	full, err := s.resolve(path)
	if err != nil {
		return false
	}
	info, err := os.Stat(full)
	return err == nil && info.Mode().IsRegular()
}

// Delete removes the file at path. Missing files are not an error.
func (s *LocalFileStorage) Delete(ctx context.Context, path string) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Error("Failed to delete file", zap.String("path", full), zap.Error(err))
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// URL returns the public address of a stored file
func (s *LocalFileStorage) URL(path string) string {
	return s.publicURL + "/" + strings.TrimPrefix(filepath.ToSlash(path), "/")
}

// BaseDir returns the storage root
func (s *LocalFileStorage) BaseDir() string {
	return s.root
}

// resolve maps a relative storage path to an absolute file path inside the root
func (s *LocalFileStorage) resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty storage path")
	}
	full := filepath.Join(s.root, filepath.FromSlash(path))
	if full == s.root || !strings.HasPrefix(full, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscapes, path)
	}
	return full, nil
}

var _ port.FileStorage = (*LocalFileStorage)(nil)
