package tempfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pixelforge/media-worker/internal/logger"
	"github.com/pixelforge/media-worker/internal/metrics"
)

// Role describes why a job wrote a file to local disk.
type Role string

const (
	RoleInput        Role = "input"
	RoleOutput       Role = "output"
	RoleIntermediate Role = "intermediate"
)

// Record is one tracked local file. Every path the pipeline writes has
// exactly one Record until it is deleted; the age-based sweep repairs
// violations left behind by crashed processes.
type Record struct {
	Path      string
	JobID     string
	Stage     string
	Role      Role
	CreatedAt time.Time
	ByteSize  int64
}

// CleanupStats reports what a cleanup pass removed.
type CleanupStats struct {
	FilesRemoved int
	BytesFreed   int64
}

// Tracker registers every local file a job creates and deletes them when the
// job reaches a terminal state. The registry map takes a single mutex for
// insert/delete; records themselves are only touched by their owning job.
type Tracker struct {
	workDir string

	mu      sync.Mutex
	records map[string][]*Record // keyed by job id
}

func NewTracker(workDir string) (*Tracker, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	return &Tracker{
		workDir: workDir,
		records: make(map[string][]*Record),
	}, nil
}

func (t *Tracker) WorkDir() string {
	return t.workDir
}

// JobDir returns (and creates) the working directory for one job.
func (t *Tracker) JobDir(jobID string) (string, error) {
	dir := filepath.Join(t.workDir, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create job dir: %w", err)
	}
	return dir, nil
}

// Track registers a file the given job just wrote.
func (t *Tracker) Track(jobID, path, stage string, role Role) {
	var size int64
	if fi, err := os.Stat(path); err == nil {
		size = fi.Size()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.records[jobID] = append(t.records[jobID], &Record{
		Path:      path,
		JobID:     jobID,
		Stage:     stage,
		Role:      role,
		CreatedAt: time.Now(),
		ByteSize:  size,
	})
}

// Untrack drops the record for a path without deleting the file. Used when
// a stage takes over ownership, e.g. delete-on-upload-success.
func (t *Tracker) Untrack(jobID, path string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	recs := t.records[jobID]
	for i, r := range recs {
		if r.Path == path {
			t.records[jobID] = append(recs[:i], recs[i+1:]...)
			return
		}
	}
}

// Records returns a copy of the records held for a job.
func (t *Tracker) Records(jobID string) []Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Record, 0, len(t.records[jobID]))
	for _, r := range t.records[jobID] {
		out = append(out, *r)
	}
	return out
}

// CleanupJob removes every file tracked for a job, best-effort. Individual
// delete failures are logged and skipped, never returned. Invoked on success
// and failure paths alike.
func (t *Tracker) CleanupJob(ctx context.Context, jobID string) CleanupStats {
	log := logger.FromContext(ctx)

	t.mu.Lock()
	recs := t.records[jobID]
	delete(t.records, jobID)
	t.mu.Unlock()

	var stats CleanupStats
	for _, r := range recs {
		removed, freed := removeFile(r.Path)
		if removed {
			stats.FilesRemoved++
			stats.BytesFreed += freed
		} else if freed < 0 {
			log.Warn("failed to remove temp file", "path", r.Path, "job_id", jobID)
		}
	}

	// the job owns its directory outright; whatever is left in it
	// (empty stage subdirs, untracked strays) goes with it
	if err := os.RemoveAll(filepath.Join(t.workDir, jobID)); err != nil {
		log.Warn("failed to remove job dir", "job_id", jobID, "error", err)
	}

	metrics.RecordCleanup("job", stats.FilesRemoved, stats.BytesFreed)
	log.Debug("job temp files cleaned",
		"job_id", jobID, "files_removed", stats.FilesRemoved, "bytes_freed", stats.BytesFreed)
	return stats
}

// SweepOlderThan removes any file under the working directory older than
// maxAge, tracked or not. This is the crash-recovery path for orphaned files.
func (t *Tracker) SweepOlderThan(ctx context.Context, maxAge time.Duration) CleanupStats {
	log := logger.FromContext(ctx)
	cutoff := time.Now().Add(-maxAge)

	var stats CleanupStats
	_ = filepath.Walk(t.workDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil {
			return nil
		}
		if info.IsDir() || path == t.workDir {
			return nil
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if removed, freed := removeFile(path); removed {
			stats.FilesRemoved++
			stats.BytesFreed += freed
			t.untrackPath(path)
		}
		return nil
	})

	t.removeEmptyJobDirs()

	metrics.RecordCleanup("sweep", stats.FilesRemoved, stats.BytesFreed)
	if stats.FilesRemoved > 0 {
		log.Info("swept orphaned temp files",
			"files_removed", stats.FilesRemoved, "bytes_freed", stats.BytesFreed)
	}
	return stats
}

// EmergencyCleanup unconditionally removes everything in the working
// directory. Operator-invoked only.
func (t *Tracker) EmergencyCleanup(ctx context.Context) CleanupStats {
	log := logger.FromContext(ctx)

	t.mu.Lock()
	t.records = make(map[string][]*Record)
	t.mu.Unlock()

	var stats CleanupStats
	entries, err := os.ReadDir(t.workDir)
	if err != nil {
		log.Warn("emergency cleanup could not read work dir", "error", err)
		return stats
	}

	for _, e := range entries {
		path := filepath.Join(t.workDir, e.Name())
		_ = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
			if err == nil && info != nil && !info.IsDir() {
				stats.FilesRemoved++
				stats.BytesFreed += info.Size()
			}
			return nil
		})
		if err := os.RemoveAll(path); err != nil {
			log.Warn("emergency cleanup failed to remove", "path", path, "error", err)
		}
	}

	metrics.RecordCleanup("emergency", stats.FilesRemoved, stats.BytesFreed)
	log.Warn("emergency cleanup completed",
		"files_removed", stats.FilesRemoved, "bytes_freed", stats.BytesFreed)
	return stats
}

// RunSweeper periodically sweeps orphaned files until the context ends.
func (t *Tracker) RunSweeper(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.SweepOlderThan(ctx, maxAge)
		}
	}
}

func (t *Tracker) untrackPath(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for jobID, recs := range t.records {
		for i, r := range recs {
			if r.Path == path {
				t.records[jobID] = append(recs[:i], recs[i+1:]...)
				return
			}
		}
	}
}

func (t *Tracker) removeEmptyJobDirs() {
	entries, err := os.ReadDir(t.workDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			dir := filepath.Join(t.workDir, e.Name())
			if dirIsEmpty(dir) {
				_ = os.Remove(dir)
			}
		}
	}
}

// removeFile deletes path if it still exists. Returns (removed, bytesFreed);
// bytesFreed is -1 when the delete itself failed.
func removeFile(path string) (bool, int64) {
	fi, err := os.Stat(path)
	if err != nil {
		return false, 0 // already gone
	}
	if err := os.Remove(path); err != nil {
		return false, -1
	}
	return true, fi.Size()
}

func dirIsEmpty(dir string) bool {
	entries, err := os.ReadDir(dir)
	return err == nil && len(entries) == 0
}
