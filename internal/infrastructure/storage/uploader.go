package storage

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/field-service/internal/application/port"
	"github.com/garyjia/field-service/internal/domain/entity"
)

var (
	// ErrUnknownCategory is returned for categories outside the upload allow-list
	ErrUnknownCategory = errors.New("unknown upload category")
	ErrFileTooLarge = port.ErrFileTooLarge
)

var uploadCategories = map[string]bool{
	entity.CategoryAttachment:          true,
	entity.CategoryTechnicianSignature: true,
	entity.CategoryClientSignature:     true,
}

// Uploader implements port.FileUploader on top of any port.FileStorage.
// Files land under "<category>/<yyyy>/<mm>/<uuid><ext>" so names never collide.
type Uploader struct {
	storage port.FileStorage
	maxSize int64
	now     func() time.Time
	logger  *zap.Logger
}

// NewUploader creates an uploader; maxSize <= 0 disables the size check
func NewUploader(storage port.FileStorage, maxSize int64, logger *zap.Logger) *Uploader {
	return &Uploader{
		storage: storage,
		maxSize: maxSize,
		now:     time.Now,
		logger:  logger,
	}
}

// Upload stores the file and returns its public URL
func (u *Uploader) Upload(ctx context.Context, file entity.UploadFile, category string) (string, error) {
	if !uploadCategories[category] {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	if file.Size() == 0 {
		return "", fmt.Errorf("file %q is empty", file.FileName)
	}
	if u.maxSize > 0 && file.Size() > u.maxSize {
		return "", fmt.Errorf("%w: %q is %d bytes, limit %d", ErrFileTooLarge, file.FileName, file.Size(), u.maxSize)
	}

	now := u.now()
	key := path.Join(category, now.Format("2006"), now.Format("01"), uuid.NewString()+extension(file))

	if err := u.storage.Save(ctx, key, file.Content, file.MimeType); err != nil {
		u.logger.Error("Upload failed",
			zap.String("file_name", file.FileName),
			zap.String("category", category),
			zap.Error(err))
		return "", fmt.Errorf("upload %q: %w", file.FileName, err)
	}

	u.logger.Info("File uploaded",
		zap.String("file_name", file.FileName),
		zap.String("category", category),
		zap.String("key", key),
		zap.Int64("size", file.Size()))

	return u.storage.URL(key), nil
}

// extension prefers the original file name's extension, then the MIME type's
func extension(file entity.UploadFile) string {
	if ext := strings.ToLower(path.Ext(file.FileName)); ext != "" && len(ext) <= 8 {
		return ext
	}
	if file.MimeType == "" {
		return ""
	}
	exts, err := mime.ExtensionsByType(file.MimeType)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}

var _ port.FileUploader = (*Uploader)(nil)
