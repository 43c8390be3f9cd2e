package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/garyjia/field-service/internal/application/port"
)

// S3Config holds the bucket settings for S3FileStorage
type S3Config struct {
	Bucket string
	Region string
	Prefix string
	// Endpoint overrides the AWS endpoint (MinIO, localstack)
	Endpoint string
	// PublicURL is the base of returned file URLs; defaults to the virtual-hosted bucket URL
	PublicURL string
}

// s3API is the subset of *s3.Client used by S3FileStorage
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3FileStorage implements port.FileStorage on an S3 bucket
type S3FileStorage struct {
	client s3API
	cfg    S3Config
	logger *zap.Logger
}

// NewS3FileStorage loads the default AWS credential chain and creates the bucket client
func NewS3FileStorage(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3FileStorage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithRetryer(func() aws.Retryer {
			return retry.NewStandard(func(o *retry.StandardOptions) {
				o.MaxAttempts = 3
			})
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	logger.Info("S3 storage initialized",
		zap.String("bucket", cfg.Bucket),
		zap.String("region", cfg.Region))

	return newS3FileStorage(client, cfg, logger), nil
}

func newS3FileStorage(client s3API, cfg S3Config, logger *zap.Logger) *S3FileStorage {
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")
	if cfg.PublicURL == "" {
		cfg.PublicURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}
	cfg.PublicURL = strings.TrimSuffix(cfg.PublicURL, "/")
	return &S3FileStorage{client: client, cfg: cfg, logger: logger}
}

// Save uploads content under the configured prefix
func (s *S3FileStorage) Save(ctx context.Context, path string, content []byte, contentType string) error {
	key := s.key(path)

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(content),
		ContentLength: aws.Int64(int64(len(content))),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		s.logger.Error("Failed to upload object to S3",
			zap.String("bucket", s.cfg.Bucket),
			zap.String("key", key),
			zap.Error(err))
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	s.logger.Debug("Object uploaded to S3", zap.String("key", key), zap.Int("size", len(content)))
	return nil
}

// Read downloads an object
func (s *S3FileStorage) Read(ctx context.Context, path string) ([]byte, error) {
	key := s.key(path)

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("%w: object %s", port.ErrNotFound, key)
		}
		s.logger.Error("Failed to download object from S3", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	defer result.Body.Close()

	content, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read S3 object body: %w", err)
	}
	return content, nil
}

// Exists reports whether the object is present
func (s *S3FileStorage) Exists(ctx context.Context, path string) bool {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(path)),
	})
	if err != nil {
		var notFound *types.NotFound
		if !errors.As(err, &notFound) {
			s.logger.Warn("S3 head object failed", zap.String("key", s.key(path)), zap.Error(err))
		}
		return false
	}
	return true
}

// Delete removes an object; S3 treats missing keys as success
func (s *S3FileStorage) Delete(ctx context.Context, path string) error {
	key := s.key(path)

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}); err != nil {
		s.logger.Error("Failed to delete object from S3", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to delete from S3: %w", err)
	}
	return nil
}

// URL returns the public address of an object
func (s *S3FileStorage) URL(path string) string {
	return s.cfg.PublicURL + "/" + s.key(path)
}

func (s *S3FileStorage) key(path string) string {
	path = strings.TrimPrefix(path, "/")
	if s.cfg.Prefix == "" {
		return path
	}
	return s.cfg.Prefix + "/" + path
}

var _ port.FileStorage = (*S3FileStorage)(nil)
