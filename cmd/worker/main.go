package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pixelforge/media-worker/internal/archive"
	"github.com/pixelforge/media-worker/internal/config"
	"github.com/pixelforge/media-worker/internal/health"
	"github.com/pixelforge/media-worker/internal/logger"
	"github.com/pixelforge/media-worker/internal/pipeline"
	"github.com/pixelforge/media-worker/internal/queue"
	"github.com/pixelforge/media-worker/internal/storage"
	"github.com/pixelforge/media-worker/internal/tempfile"
	"github.com/pixelforge/media-worker/internal/transform"
	"github.com/pixelforge/media-worker/internal/validate"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(cfg.LogLevel, cfg.Environment)
	log := logger.Default()
	log.Info("configuration loaded", "environment", cfg.Environment)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("connecting to object storage", "endpoint", cfg.MinIOEndpoint)
	store, err := storage.NewMinIOStore(&storage.Config{
		Endpoint:        cfg.MinIOEndpoint,
		AccessKey:       cfg.MinIOAccessKey,
		SecretKey:       cfg.MinIOSecretKey,
		Bucket:          cfg.MinIOBucket,
		UseSSL:          cfg.MinIOUseSSL,
		Region:          cfg.MinIORegion,
		TransferTimeout: cfg.TransferTimeout,
		TransferRetries: cfg.TransferRetries,
	})
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("failed to ensure bucket: %w", err)
	}
	log.Info("object storage connected", "bucket", cfg.MinIOBucket)

	queues := make([]string, 0, len(pipeline.Classes)+1)
	for _, class := range pipeline.Classes {
		queues = append(queues, cfg.RequestQueue(string(class)))
	}
	queues = append(queues, cfg.UpdatesQueue)

	log.Info("connecting to message broker")
	broker, err := queue.NewRabbitMQ(&queue.Config{
		URL:           cfg.AMQPURL,
		Exchange:      cfg.ExchangeName,
		Queues:        queues,
		PrefetchCount: cfg.PrefetchCount,
		RetryAttempts: cfg.ConnectRetries,
		RetryInterval: cfg.ConnectBackoff,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	defer func() { _ = broker.Close() }()
	log.Info("message broker connected", "exchange", cfg.ExchangeName)

	tracker, err := tempfile.NewTracker(cfg.WorkDir)
	if err != nil {
		return fmt.Errorf("failed to prepare work dir: %w", err)
	}

	videos, err := transform.NewVideoTransformer(&transform.VideoConfig{
		FFmpegPath:  cfg.FFmpegPath,
		FFprobePath: cfg.FFprobePath,
	})
	if err != nil {
		return fmt.Errorf("video tooling unavailable: %w", err)
	}

	coordinator, err := pipeline.NewCoordinator(pipeline.Options{
		Queue:     broker,
		Store:     store,
		Tracker:   tracker,
		Validator: validate.New(cfg.AllowedImageTypes, cfg.AllowedVideoTypes),
		Images:    transform.NewImageTransformer(transform.DefaultImageConfig()),
		Videos:    videos,
		Extractor: archive.NewExtractor(cfg.MaxArchiveBytes),
		Events:    pipeline.NewEvents(broker, cfg.UpdatesQueue),
		Logger:    log,

		QueuePrefix: cfg.QueuePrefix,
		Ceilings: map[pipeline.MediaClass]int{
			pipeline.ClassImage:   cfg.MaxConcurrentImageJobs,
			pipeline.ClassVideo:   cfg.MaxConcurrentVideoJobs,
			pipeline.ClassArchive: cfg.MaxConcurrentArchiveJobs,
		},
		MaxBytes: map[pipeline.MediaClass]int64{
			pipeline.ClassImage:   cfg.MaxImageBytes,
			pipeline.ClassVideo:   cfg.MaxVideoBytes,
			pipeline.ClassArchive: cfg.MaxArchiveBytes,
		},
		AllowedImageTypes: cfg.AllowedImageTypes,
		AllowedVideoTypes: cfg.AllowedVideoTypes,

		SweepInterval: cfg.SweepInterval,
		TempRetention: cfg.TempRetention,
	})
	if err != nil {
		return fmt.Errorf("failed to build coordinator: %w", err)
	}

	checker := health.NewChecker(store, broker).WithActiveJobs(func() map[string]int {
		active := coordinator.Admission().ActiveJobs()
		out := make(map[string]int, len(active))
		for class, n := range active {
			out[string(class)] = n
		}
		return out
	})

	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)
	router.Get("/health", health.HealthHandler(checker))
	router.Get("/health/live", health.LivenessHandler())
	router.Get("/health/ready", health.ReadinessHandler(checker))
	router.Get("/info", health.InfoHandler(health.Info{
		Environment:   cfg.Environment,
		RequestQueues: queues[:len(queues)-1],
		UpdatesQueue:  cfg.UpdatesQueue,
		Ceilings: map[string]int{
			string(pipeline.ClassImage):   cfg.MaxConcurrentImageJobs,
			string(pipeline.ClassVideo):   cfg.MaxConcurrentVideoJobs,
			string(pipeline.ClassArchive): cfg.MaxConcurrentArchiveJobs,
		},
		WorkDir: cfg.WorkDir,
	}))
	router.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: router,
	}
	go func() {
		log.Info("http server starting", "port", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "error", err)
		}
	}()

	if err := coordinator.Start(ctx); err != nil {
		return fmt.Errorf("failed to start coordinator: %w", err)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	sig := <-shutdown
	log.Info("shutdown signal received", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := coordinator.Stop(shutdownCtx); err != nil {
		log.Warn("coordinator drain incomplete", "error", err)
		stats := tracker.EmergencyCleanup(shutdownCtx)
		log.Info("emergency cleanup",
			"files_removed", stats.FilesRemoved, "bytes_freed", stats.BytesFreed)
	}

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http server shutdown error", "error", err)
	}

	log.Info("worker stopped")
	return nil
}
