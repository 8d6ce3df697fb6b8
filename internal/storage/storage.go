package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("storage: object not found")
	ErrInvalidKey   = errors.New("storage: invalid key")
	ErrAccessDenied = errors.New("storage: access denied")
)

// ObjectStore moves bytes between durable blob storage and local working
// files. Implementations bound each call with Config.TransferTimeout.
type ObjectStore interface {
	// FetchToFile downloads an object into destPath and returns its size.
	FetchToFile(ctx context.Context, key, destPath string) (int64, error)
	// StoreFromFile uploads a local file under key and returns its size.
	StoreFromFile(ctx context.Context, localPath, key, contentType string) (int64, error)
	Delete(ctx context.Context, key string) error
	HealthCheck(ctx context.Context) error
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string

	TransferTimeout time.Duration
	TransferRetries int
}
