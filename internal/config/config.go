package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Environment string
	LogLevel    string
	HTTPPort    int

	AMQPURL        string
	ExchangeName   string
	UpdatesQueue   string
	QueuePrefix    string
	PrefetchCount  int
	ConnectRetries int
	ConnectBackoff time.Duration

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool
	MinIORegion    string

	WorkDir          string
	TempRetention    time.Duration
	SweepInterval    time.Duration
	TransferTimeout  time.Duration
	TransferRetries  int

	MaxConcurrentImageJobs   int
	MaxConcurrentVideoJobs   int
	MaxConcurrentArchiveJobs int

	MaxImageBytes   int64
	MaxVideoBytes   int64
	MaxArchiveBytes int64

	AllowedImageTypes []string
	AllowedVideoTypes []string

	FFmpegPath  string
	FFprobePath string
}

func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	cfg.Environment = getEnvString("ENVIRONMENT", "development")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.HTTPPort = getEnvInt("HTTP_PORT", 8081)

	cfg.AMQPURL = os.Getenv("AMQP_URL")
	if cfg.AMQPURL == "" {
		return nil, fmt.Errorf("AMQP_URL is required")
	}
	cfg.ExchangeName = getEnvString("AMQP_EXCHANGE", "media.processing")
	cfg.UpdatesQueue = getEnvString("AMQP_UPDATES_QUEUE", "media.updates")
	cfg.QueuePrefix = getEnvString("AMQP_QUEUE_PREFIX", "media.requests")
	cfg.PrefetchCount = getEnvInt("AMQP_PREFETCH", 1)
	cfg.ConnectRetries = getEnvInt("AMQP_CONNECT_RETRIES", 5)
	cfg.ConnectBackoff, err = getEnvDuration("AMQP_CONNECT_BACKOFF", "3s")
	if err != nil {
		return nil, fmt.Errorf("invalid AMQP_CONNECT_BACKOFF: %w", err)
	}

	cfg.MinIOEndpoint = os.Getenv("MINIO_ENDPOINT")
	if cfg.MinIOEndpoint == "" {
		return nil, fmt.Errorf("MINIO_ENDPOINT is required")
	}
	cfg.MinIOAccessKey = os.Getenv("MINIO_ACCESS_KEY")
	if cfg.MinIOAccessKey == "" {
		return nil, fmt.Errorf("MINIO_ACCESS_KEY is required")
	}
	cfg.MinIOSecretKey = os.Getenv("MINIO_SECRET_KEY")
	if cfg.MinIOSecretKey == "" {
		return nil, fmt.Errorf("MINIO_SECRET_KEY is required")
	}
	cfg.MinIOBucket = getEnvString("MINIO_BUCKET", "media")
	cfg.MinIOUseSSL = getEnvBool("MINIO_USE_SSL", false)
	cfg.MinIORegion = getEnvString("MINIO_REGION", "us-east-1")

	cfg.WorkDir = getEnvString("WORK_DIR", os.TempDir()+"/media-worker")
	cfg.TempRetention, err = getEnvDuration("TEMP_RETENTION", "2h")
	if err != nil {
		return nil, fmt.Errorf("invalid TEMP_RETENTION: %w", err)
	}
	cfg.SweepInterval, err = getEnvDuration("SWEEP_INTERVAL", "15m")
	if err != nil {
		return nil, fmt.Errorf("invalid SWEEP_INTERVAL: %w", err)
	}
	cfg.TransferTimeout, err = getEnvDuration("TRANSFER_TIMEOUT", "5m")
	if err != nil {
		return nil, fmt.Errorf("invalid TRANSFER_TIMEOUT: %w", err)
	}
	cfg.TransferRetries = getEnvInt("TRANSFER_RETRIES", 2)

	cfg.MaxConcurrentImageJobs = getEnvInt("MAX_CONCURRENT_IMAGE_JOBS", 8)
	cfg.MaxConcurrentVideoJobs = getEnvInt("MAX_CONCURRENT_VIDEO_JOBS", 2)
	cfg.MaxConcurrentArchiveJobs = getEnvInt("MAX_CONCURRENT_ARCHIVE_JOBS", 2)

	cfg.MaxImageBytes = getEnvInt64("MAX_IMAGE_BYTES", 100*1024*1024)
	cfg.MaxVideoBytes = getEnvInt64("MAX_VIDEO_BYTES", 2*1024*1024*1024)
	cfg.MaxArchiveBytes = getEnvInt64("MAX_ARCHIVE_BYTES", 1024*1024*1024)

	cfg.AllowedImageTypes = getEnvList("ALLOWED_IMAGE_TYPES",
		"image/jpeg,image/png,image/gif,image/webp,image/bmp")
	cfg.AllowedVideoTypes = getEnvList("ALLOWED_VIDEO_TYPES",
		"video/mp4,video/webm,video/quicktime,video/x-msvideo,video/x-matroska,video/mpeg")

	cfg.FFmpegPath = getEnvString("FFMPEG_PATH", "ffmpeg")
	cfg.FFprobePath = getEnvString("FFPROBE_PATH", "ffprobe")

	return cfg, nil
}

// RequestQueue returns the request queue name for a media class,
// e.g. "media.requests.image".
func (c *Config) RequestQueue(class string) string {
	return c.QueuePrefix + "." + strings.ToLower(class)
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key, defaultValue string) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		value = defaultValue
	}
	return time.ParseDuration(value)
}

func getEnvList(key, defaultValue string) []string {
	value := os.Getenv(key)
	if value == "" {
		value = defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
