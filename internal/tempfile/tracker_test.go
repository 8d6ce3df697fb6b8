package tempfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestTracker_CleanupJob(t *testing.T) {
	tracker, err := NewTracker(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	dir, err := tracker.JobDir("job-1")
	if err != nil {
		t.Fatal(err)
	}

	input := filepath.Join(dir, "source.jpg")
	output := filepath.Join(dir, "outputs", "thumb.jpg")
	writeFile(t, input, "input bytes")
	writeFile(t, output, "output bytes")

	tracker.Track("job-1", input, "download", RoleInput)
	tracker.Track("job-1", output, "transform", RoleOutput)

	if got := len(tracker.Records("job-1")); got != 2 {
		t.Fatalf("Records() = %d, want 2", got)
	}

	stats := tracker.CleanupJob(context.Background(), "job-1")
	if stats.FilesRemoved != 2 {
		t.Errorf("FilesRemoved = %d, want 2", stats.FilesRemoved)
	}
	if stats.BytesFreed != int64(len("input bytes")+len("output bytes")) {
		t.Errorf("BytesFreed = %d", stats.BytesFreed)
	}

	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("job dir still exists after cleanup")
	}
	if got := len(tracker.Records("job-1")); got != 0 {
		t.Errorf("records remain after cleanup: %d", got)
	}
}

func TestTracker_CleanupJob_RemovesUntrackedStrays(t *testing.T) {
	tracker, err := NewTracker(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	dir, err := tracker.JobDir("job-2")
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "extracted", "stray.bin"), "never tracked")

	tracker.CleanupJob(context.Background(), "job-2")

	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("job dir with untracked file survived cleanup")
	}
}

func TestTracker_Untrack(t *testing.T) {
	tracker, err := NewTracker(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	dir, _ := tracker.JobDir("job-3")
	path := filepath.Join(dir, "uploaded.jpg")
	writeFile(t, path, "x")

	tracker.Track("job-3", path, "transform", RoleOutput)
	tracker.Untrack("job-3", path)

	stats := tracker.CleanupJob(context.Background(), "job-3")
	if stats.FilesRemoved != 0 {
		t.Errorf("FilesRemoved = %d, want 0 after untrack", stats.FilesRemoved)
	}
}

func TestTracker_SweepOlderThan(t *testing.T) {
	tracker, err := NewTracker(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	oldDir, _ := tracker.JobDir("orphan-job")
	oldFile := filepath.Join(oldDir, "stale.jpg")
	writeFile(t, oldFile, "stale bytes")
	past := time.Now().Add(-3 * time.Hour)
	if err := os.Chtimes(oldFile, past, past); err != nil {
		t.Fatal(err)
	}

	freshDir, _ := tracker.JobDir("live-job")
	freshFile := filepath.Join(freshDir, "fresh.jpg")
	writeFile(t, freshFile, "fresh bytes")

	stats := tracker.SweepOlderThan(context.Background(), 2*time.Hour)
	if stats.FilesRemoved != 1 {
		t.Fatalf("FilesRemoved = %d, want 1", stats.FilesRemoved)
	}

	if _, err := os.Stat(oldFile); !os.IsNotExist(err) {
		t.Error("stale file survived the sweep")
	}
	if _, err := os.Stat(freshFile); err != nil {
		t.Error("fresh file was swept")
	}
}

func TestTracker_EmergencyCleanup(t *testing.T) {
	tracker, err := NewTracker(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	for _, jobID := range []string{"a", "b"} {
		dir, _ := tracker.JobDir(jobID)
		path := filepath.Join(dir, "file.bin")
		writeFile(t, path, "zz")
		tracker.Track(jobID, path, "download", RoleInput)
	}

	stats := tracker.EmergencyCleanup(context.Background())
	if stats.FilesRemoved != 2 {
		t.Errorf("FilesRemoved = %d, want 2", stats.FilesRemoved)
	}

	entries, err := os.ReadDir(tracker.WorkDir())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("work dir not empty after emergency cleanup: %d entries", len(entries))
	}
}
