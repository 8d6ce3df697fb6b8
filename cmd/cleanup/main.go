package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/pixelforge/media-worker/internal/config"
	"github.com/pixelforge/media-worker/internal/logger"
	"github.com/pixelforge/media-worker/internal/tempfile"
)

// Operator tool for reclaiming worker disk. The default mode mirrors the
// in-process sweep; --all wipes the working directory outright and must only
// run while no worker is processing jobs.
func main() {
	if err := run(); err != nil {
		slog.Error("cleanup failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	all := flag.Bool("all", false, "remove everything in the work dir, not just aged files")
	maxAge := flag.Duration("max-age", 0, "override the retention window for the sweep")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(cfg.LogLevel, cfg.Environment)
	log := logger.Default()

	retention := cfg.TempRetention
	if *maxAge > 0 {
		retention = *maxAge
	}

	tracker, err := tempfile.NewTracker(cfg.WorkDir)
	if err != nil {
		return fmt.Errorf("failed to open work dir: %w", err)
	}

	log.Info("starting cleanup", "work_dir", cfg.WorkDir, "all", *all)
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	ctx = logger.WithLogger(ctx, log)

	var stats tempfile.CleanupStats
	if *all {
		stats = tracker.EmergencyCleanup(ctx)
	} else {
		stats = tracker.SweepOlderThan(ctx, retention)
	}

	log.Info("cleanup completed",
		"duration_ms", time.Since(start).Milliseconds(),
		"files_removed", stats.FilesRemoved,
		"bytes_freed", stats.BytesFreed)
	return nil
}
