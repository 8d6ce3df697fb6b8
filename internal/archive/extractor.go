package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pixelforge/media-worker/internal/logger"
)

var (
	ErrTooLarge     = errors.New("archive: file exceeds size limit")
	ErrInvalid      = errors.New("archive: not a valid archive")
	ErrNoValidFiles = errors.New("archive: no valid files found")
)

// Entry is one file successfully extracted from an archive.
type Entry struct {
	// OriginalPath is the entry's path inside the archive.
	OriginalPath string
	LocalPath    string
	Size         int64
}

// Extractor unpacks archive bundles into a designated extraction root,
// streaming one entry at a time. Directory entries, OS junk and anything
// attempting to escape the root are skipped.
type Extractor struct {
	maxArchiveBytes int64
}

func NewExtractor(maxArchiveBytes int64) *Extractor {
	return &Extractor{maxArchiveBytes: maxArchiveBytes}
}

// Extract validates and unpacks the archive at archivePath into destRoot.
// Returns the extracted entries in archive order. A result with zero valid
// entries is an error.
func (e *Extractor) Extract(ctx context.Context, archivePath, destRoot string) ([]Entry, error) {
	log := logger.FromContext(ctx)

	fi, err := os.Stat(archivePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if e.maxArchiveBytes > 0 && fi.Size() > e.maxArchiveBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, fi.Size(), e.maxArchiveBytes)
	}

	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	defer reader.Close()

	if err := os.MkdirAll(destRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create extraction root: %w", err)
	}

	var entries []Entry
	for _, f := range reader.File {
		select {
		case <-ctx.Done():
			return entries, ctx.Err()
		default:
		}

		if f.FileInfo().IsDir() {
			continue
		}
		if isJunk(f.Name) {
			log.Debug("skipping junk archive entry", "entry", f.Name)
			continue
		}
		if !isSafePath(f.Name) {
			log.Warn("rejecting archive entry with unsafe path", "entry", f.Name)
			continue
		}

		localPath := filepath.Join(destRoot, sanitizeName(f.Name))
		size, err := e.writeEntry(f, destRoot, localPath)
		if err != nil {
			log.Warn("failed to extract archive entry", "entry", f.Name, "error", err)
			continue
		}

		entries = append(entries, Entry{
			OriginalPath: f.Name,
			LocalPath:    localPath,
			Size:         size,
		})
	}

	if len(entries) == 0 {
		return nil, ErrNoValidFiles
	}
	return entries, nil
}

func (e *Extractor) writeEntry(f *zip.File, destRoot, localPath string) (int64, error) {
	// belt and braces: the joined path must still be inside the root
	if rel, err := filepath.Rel(destRoot, localPath); err != nil || strings.HasPrefix(rel, "..") {
		return 0, fmt.Errorf("entry escapes extraction root")
	}

	src, err := f.Open()
	if err != nil {
		return 0, err
	}
	defer src.Close()

	dst, err := os.Create(localPath)
	if err != nil {
		return 0, err
	}
	defer dst.Close()

	n, err := io.Copy(dst, src)
	if err != nil {
		os.Remove(localPath)
		return 0, err
	}
	return n, nil
}

// isSafePath rejects absolute paths and any traversal sequence, including
// the percent-encoded variants some packers emit.
func isSafePath(name string) bool {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") || strings.HasPrefix(name, "\\") {
		return false
	}
	lower := strings.ToLower(name)
	if strings.Contains(lower, "%2e%2e") || strings.Contains(lower, "..%2f") || strings.Contains(lower, "%2e.") {
		return false
	}
	for _, part := range strings.FieldsFunc(name, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return false
		}
	}
	return true
}

// isJunk matches OS metadata files that have no business in a media bundle.
func isJunk(name string) bool {
	base := filepath.Base(filepath.ToSlash(name))
	if strings.HasPrefix(base, ".") {
		return true
	}
	switch base {
	case "Thumbs.db", "desktop.ini", "ehthumbs.db":
		return true
	}
	return strings.Contains(filepath.ToSlash(name), "__MACOSX/")
}

// sanitizeName flattens an archive path into a single safe file name,
// preserving enough of the original path to stay collision-free and
// deterministic for idempotent re-processing.
func sanitizeName(name string) string {
	name = filepath.ToSlash(name)
	name = strings.ReplaceAll(name, "/", "__")
	name = strings.ReplaceAll(name, "..", "_")
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
