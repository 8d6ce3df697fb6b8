package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pixelforge/media-worker/internal/logger"
	"github.com/pixelforge/media-worker/internal/tempfile"
	"github.com/pixelforge/media-worker/internal/transform"
	"github.com/pixelforge/media-worker/internal/validate"
)

// transformArchive unpacks the bundle and runs each entry through the image
// or video transformer. One entry's failure never aborts the batch; the job
// only fails when the archive yields nothing processable at all.
func (c *Coordinator) transformArchive(ctx context.Context, env *Envelope, outDir string) ([]transform.Output, error) {
	log := logger.FromContext(ctx)
	job := env.Job

	extractRoot := filepath.Join(filepath.Dir(env.LocalPath), "extracted")
	entries, err := c.extractor.Extract(ctx, env.LocalPath, extractRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	for _, entry := range entries {
		c.tracker.Track(job.JobID, entry.LocalPath, "transform", tempfile.RoleIntermediate)
	}

	var outputs []transform.Output
	processed := 0

	for i, entry := range entries {
		class, contentType, err := c.validator.Classify(entry.LocalPath)
		if err != nil {
			log.Warn("skipping unreadable archive entry",
				"entry", entry.OriginalPath, "error", err)
			continue
		}
		if class == validate.ClassOther {
			log.Debug("skipping non-media archive entry",
				"entry", entry.OriginalPath, "content_type", contentType)
			continue
		}

		entryOutDir := filepath.Join(outDir, fmt.Sprintf("entry_%03d", i))
		if err := os.MkdirAll(entryOutDir, 0o755); err != nil {
			log.Warn("failed to create entry output dir", "entry", entry.OriginalPath, "error", err)
			continue
		}

		entryOutputs, err := c.transformEntry(ctx, entry.LocalPath, entryOutDir, class)
		if err != nil {
			log.Warn("archive entry transform failed",
				"entry", entry.OriginalPath, "content_type", contentType, "error", err)
			continue
		}

		// keys derive from the archive's own storage key plus the entry's
		// sanitized path, so re-processing the same archive is idempotent
		assignKeys(entryOutputs, entryKeyBase(job.SourceKey, entry.OriginalPath))
		outputs = append(outputs, entryOutputs...)
		processed++
	}

	if processed == 0 {
		return nil, fmt.Errorf("%w: archive contained no processable media", ErrValidation)
	}

	log.Info("archive fan-out complete",
		"entries", len(entries), "processed", processed, "outputs", len(outputs))
	return outputs, nil
}

func (c *Coordinator) transformEntry(ctx context.Context, localPath, outDir string, class validate.Class) ([]transform.Output, error) {
	switch class {
	case validate.ClassImage:
		outputs, _, err := c.images.Transform(ctx, localPath, outDir)
		return outputs, err

	case validate.ClassVideo:
		meta, err := c.videos.Probe(ctx, localPath)
		if err != nil {
			return nil, err
		}
		return c.videos.Transform(ctx, localPath, outDir, meta)
	}
	return nil, fmt.Errorf("unsupported entry class %s", class)
}

// entryKeyBase builds the deterministic key prefix for one archive entry's
// outputs: the archive key without its extension, then the entry path with
// separators and unsafe runes flattened.
func entryKeyBase(archiveKey, entryPath string) string {
	base := strings.TrimSuffix(archiveKey, filepath.Ext(archiveKey))
	return "derived/" + base + "/" + sanitizeKeyPart(entryPath)
}

func sanitizeKeyPart(s string) string {
	s = strings.TrimSuffix(s, filepath.Ext(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
