// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package s3

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/netSkope/vco-log-export/internal/config"
	"github.com/netSkope/vco-log-export/internal/util"
	"go.uber.org/zap"
)

const (
	// Part size of multipart uploads; files below it are sent in a single PUT.
	partSize = 10 * 1024 * 1024
	// Max retries for S3 operations
	maxS3Retries = 5
	// Initial retry delay
	initialRetryDelay = 1 * time.Second
)

// putter is the part of manager.Uploader used here.
type putter interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Uploader uploads finished export files to S3.
type Uploader struct {
	uploader   putter
	bucket     string
	prefix     string
	logger     *zap.Logger
	retryDelay time.Duration
}

// NewUploader creates an uploader for cfg.S3Bucket.
// Credentials come from the configured static keys or the SDK default chain.
func NewUploader(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Uploader, error) {
	awsCfg, err := util.LoadAWSConfig(ctx, cfg.AWSRegion, cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, cfg.AWSSessionToken)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// Custom endpoint for LocalStack or MinIO
		if endpoint := os.Getenv("AWS_ENDPOINT_URL"); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
			logger.Info("Using custom S3 endpoint", zap.String("endpoint", endpoint))
		}
	})

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = partSize
		u.Concurrency = 3
	})

	return &Uploader{
		uploader:   uploader,
		bucket:     cfg.S3Bucket,
		prefix:     cfg.S3Prefix,
		logger:     logger.With(zap.String("component", "s3")),
		retryDelay: initialRetryDelay,
	}, nil
}

// Key returns the object key of an export file: <prefix>/<endpoint>/<file name>.
func Key(prefix, endpoint, file string) string {
	prefix = strings.Trim(prefix, "/")
	name := filepath.Base(file)
	if prefix == "" {
		return path.Join(endpoint, name)
	}
	return path.Join(prefix, endpoint, name)
}

// Key returns the object key of file under this uploader's prefix.
func (u *Uploader) Key(endpoint, file string) string {
	return Key(u.prefix, endpoint, file)
}

// Location returns the s3:// URL of key.
func (u *Uploader) Location(key string) string {
	return "s3://" + u.bucket + "/" + key
}

// UploadFile uploads a file to S3; the manager switches to multipart above partSize.
func (u *Uploader) UploadFile(ctx context.Context, file, key string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to get file info: %w", err)
	}

	u.logger.Info("Uploading file to S3",
		zap.String("file", file),
		zap.String("s3_key", key),
		zap.Int64("size", info.Size()))

	_, err = u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload file: %w", err)
	}

	u.logger.Info("File uploaded successfully",
		zap.String("s3_key", key),
		zap.Int64("size", info.Size()))
	return nil
}

// UploadFileWithRetry uploads a file with exponential backoff between attempts.
func (u *Uploader) UploadFileWithRetry(ctx context.Context, file, key string) error {
	var lastErr error
	delay := u.retryDelay

	for attempt := 1; attempt <= maxS3Retries; attempt++ {
		err := u.UploadFile(ctx, file, key)
		if err == nil {
			return nil
		}

		lastErr = err
		if attempt < maxS3Retries {
			u.logger.Warn("Upload failed, retrying",
				zap.String("file", file),
				zap.Int("attempt", attempt),
				zap.Int("max_retries", maxS3Retries),
				zap.Error(err))

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("upload cancelled after %d attempts: %w", attempt, ctx.Err())
			}
			delay *= 2
		}
	}

	return fmt.Errorf("upload failed after %d attempts: %w", maxS3Retries, lastErr)
}
