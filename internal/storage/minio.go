package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/pixelforge/media-worker/internal/logger"
	"github.com/pixelforge/media-worker/internal/metrics"
)

var _ ObjectStore = (*MinIOStore)(nil)

type MinIOStore struct {
	client *minio.Client
	bucket string
	config *Config
}

func NewMinIOStore(cfg *Config) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinIOStore{
		client: client,
		bucket: cfg.Bucket,
		config: cfg,
	}, nil
}

func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	log := logger.FromContext(ctx)

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		log.Info("creating bucket", "bucket", s.bucket, "region", s.config.Region)
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.config.Region}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	return nil
}

// FetchToFile tries the streaming transfer first, then falls back to a
// buffered read for the configured number of retries. Not-found errors are
// terminal either way.
func (s *MinIOStore) FetchToFile(ctx context.Context, key, destPath string) (int64, error) {
	log := logger.FromContext(ctx)
	start := time.Now()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.client.FGetObject(ctx, s.bucket, key, destPath, minio.GetObjectOptions{})
	if err == nil {
		metrics.RecordStorageOp("fetch", nil)
		return fileSize(destPath)
	}
	if isNotFoundError(err) {
		metrics.RecordStorageOp("fetch", err)
		return 0, ErrNotFound
	}

	log.Warn("streaming fetch failed, falling back to buffered transfer",
		"key", key, "error", err)

	for attempt := 1; attempt <= max(s.config.TransferRetries, 1); attempt++ {
		var n int64
		n, err = s.fetchBuffered(ctx, key, destPath)
		if err == nil {
			metrics.RecordStorageOp("fetch", nil)
			log.Debug("buffered fetch succeeded",
				"key", key, "attempt", attempt, "duration_ms", time.Since(start).Milliseconds())
			return n, nil
		}
		if isNotFoundError(err) {
			metrics.RecordStorageOp("fetch", err)
			return 0, ErrNotFound
		}
		log.Warn("buffered fetch failed", "key", key, "attempt", attempt, "error", err)
	}

	metrics.RecordStorageOp("fetch", err)
	return 0, fmt.Errorf("fetch %s: %w", key, err)
}

func (s *MinIOStore) fetchBuffered(ctx context.Context, key, destPath string) (int64, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return 0, err
	}
	defer obj.Close()

	if _, err := obj.Stat(); err != nil {
		return 0, err
	}

	f, err := os.Create(destPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n, err := io.Copy(f, obj)
	if err != nil {
		os.Remove(destPath)
		return 0, err
	}
	return n, nil
}

func (s *MinIOStore) StoreFromFile(ctx context.Context, localPath, key, contentType string) (int64, error) {
	log := logger.FromContext(ctx)
	start := time.Now()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	info, err := s.client.FPutObject(ctx, s.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	metrics.RecordStorageOp("store", err)
	if err != nil {
		log.Error("storage upload failed", "key", key, "error", err)
		return 0, fmt.Errorf("store %s: %w", key, err)
	}

	log.Debug("storage upload completed",
		"key", key, "size", info.Size, "content_type", contentType,
		"duration_ms", time.Since(start).Milliseconds())
	return info.Size, nil
}

func (s *MinIOStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	metrics.RecordStorageOp("delete", err)
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *MinIOStore) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := s.client.BucketExists(ctx, s.bucket); err != nil {
		return fmt.Errorf("storage health check: %w", err)
	}
	return nil
}

func (s *MinIOStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.TransferTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.config.TransferTimeout)
}

func fileSize(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	errResp := minio.ToErrorResponse(err)
	return errResp.Code == "NoSuchKey"
}
