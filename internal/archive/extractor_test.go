package archive

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// writeTestZip builds a zip on disk from name->content pairs.
func writeTestZip(t *testing.T, dir string, files map[string]string) string {
	t.Helper()

	path := filepath.Join(dir, "bundle.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create zip: %v", err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	for name, content := range files {
		entry, err := w.Create(name)
		if err != nil {
			t.Fatalf("create zip entry %s: %v", name, err)
		}
		if _, err := entry.Write([]byte(content)); err != nil {
			t.Fatalf("write zip entry %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return path
}

func TestExtract(t *testing.T) {
	dir := t.TempDir()
	zipPath := writeTestZip(t, dir, map[string]string{
		"photo.jpg":         "jpeg bytes",
		"nested/clip.mp4":   "mp4 bytes",
		".DS_Store":         "junk",
		"__MACOSX/resource": "junk",
		"Thumbs.db":         "junk",
	})

	entries, err := NewExtractor(0).Extract(context.Background(), zipPath, filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Extract() returned %d entries, want 2", len(entries))
	}

	byOriginal := make(map[string]Entry, len(entries))
	for _, e := range entries {
		byOriginal[e.OriginalPath] = e
		if _, err := os.Stat(e.LocalPath); err != nil {
			t.Errorf("entry %s missing from disk: %v", e.OriginalPath, err)
		}
	}
	if _, ok := byOriginal["photo.jpg"]; !ok {
		t.Error("photo.jpg not extracted")
	}

	nested, ok := byOriginal["nested/clip.mp4"]
	if !ok {
		t.Fatal("nested/clip.mp4 not extracted")
	}
	if filepath.Base(nested.LocalPath) != "nested__clip.mp4" {
		t.Errorf("nested entry local name = %s, want nested__clip.mp4", filepath.Base(nested.LocalPath))
	}
}

func TestExtract_RejectsTraversal(t *testing.T) {
	tests := []struct {
		name  string
		entry string
	}{
		{name: "dot dot slash", entry: "../../etc/passwd"},
		{name: "nested dot dot", entry: "media/../../escape.jpg"},
		{name: "absolute path", entry: "/etc/passwd"},
		{name: "percent encoded", entry: "%2e%2e/escape.jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			zipPath := writeTestZip(t, dir, map[string]string{
				tt.entry:    "evil",
				"legit.jpg": "fine",
			})

			out := filepath.Join(dir, "out")
			entries, err := NewExtractor(0).Extract(context.Background(), zipPath, out)
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if len(entries) != 1 || entries[0].OriginalPath != "legit.jpg" {
				t.Fatalf("Extract() = %+v, want only legit.jpg", entries)
			}

			// nothing may exist outside the extraction root
			if _, err := os.Stat(filepath.Join(dir, "escape.jpg")); err == nil {
				t.Error("traversal entry escaped the extraction root")
			}
		})
	}
}

func TestExtract_EmptyArchive(t *testing.T) {
	dir := t.TempDir()
	zipPath := writeTestZip(t, dir, map[string]string{
		".DS_Store": "junk only",
	})

	_, err := NewExtractor(0).Extract(context.Background(), zipPath, filepath.Join(dir, "out"))
	if !errors.Is(err, ErrNoValidFiles) {
		t.Errorf("Extract() error = %v, want ErrNoValidFiles", err)
	}
}

func TestExtract_SizeLimit(t *testing.T) {
	dir := t.TempDir()
	zipPath := writeTestZip(t, dir, map[string]string{
		"photo.jpg": "some content that pushes the file over a tiny limit",
	})

	_, err := NewExtractor(16).Extract(context.Background(), zipPath, filepath.Join(dir, "out"))
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("Extract() error = %v, want ErrTooLarge", err)
	}
}

func TestExtract_NotAnArchive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fake.zip")
	if err := os.WriteFile(path, []byte("this is not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := NewExtractor(0).Extract(context.Background(), path, filepath.Join(dir, "out"))
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("Extract() error = %v, want ErrInvalid", err)
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "photo.jpg", want: "photo.jpg"},
		{in: "a/b/c.mp4", want: "a__b__c.mp4"},
		{in: "weird name (1).jpg", want: "weird_name__1_.jpg"},
		{in: "mixed\\slash.png", want: "mixed_slash.png"},
	}
	for _, tt := range tests {
		if got := sanitizeName(tt.in); got != tt.want {
			t.Errorf("sanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
