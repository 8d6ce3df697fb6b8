package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pixelforge/media-worker/internal/logger"
	"github.com/pixelforge/media-worker/internal/metrics"
	"github.com/pixelforge/media-worker/internal/tempfile"
	"github.com/pixelforge/media-worker/internal/transform"
)

// download fetches the uploaded original into the job's working directory,
// validates it and probes minimal metadata. Failures here are terminal for
// the job; the storage layer already did its transient retries.
func (c *Coordinator) download(ctx context.Context, job *ProcessingJob) (*Envelope, error) {
	log := logger.FromContext(ctx)

	dir, err := c.tracker.JobDir(job.JobID)
	if err != nil {
		return nil, err
	}

	localPath := filepath.Join(dir, "source"+strings.ToLower(filepath.Ext(job.OriginalFilename)))

	size, err := c.store.FetchToFile(ctx, job.SourceKey, localPath)
	if err != nil {
		// remove any partial file the failed transfer left behind
		if _, statErr := os.Stat(localPath); statErr == nil {
			_ = os.Remove(localPath)
		}
		return nil, fmt.Errorf("download %s: %w", job.SourceKey, err)
	}
	c.tracker.Track(job.JobID, localPath, "download", tempfile.RoleInput)
	log.Debug("source downloaded", "source_key", job.SourceKey, "bytes", size)

	env := &Envelope{Job: job, Stage: StageReceived, LocalPath: localPath}

	switch job.MediaClass {
	case ClassImage:
		if _, err := c.validator.Check(localPath, c.maxBytes[ClassImage], c.allowedImageTypes); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		meta, err := c.images.Probe(localPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		env.Metadata.Image = meta

	case ClassVideo:
		if err := c.validator.CheckSize(localPath, c.maxBytes[ClassVideo]); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		meta, err := c.videos.Probe(ctx, localPath)
		if err != nil {
			if errors.Is(err, transform.ErrNoVideoStream) {
				return nil, fmt.Errorf("%w: %v", ErrValidation, err)
			}
			return nil, err
		}
		env.Metadata.Video = meta

	case ClassArchive:
		if err := c.validator.CheckSize(localPath, c.maxBytes[ClassArchive]); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownClass, job.MediaClass)
	}

	env.advance(StageDownloaded)
	c.events.Progress(ctx, job, 20, "downloaded")
	return env, nil
}

// transformMedia runs the class-appropriate transformer and assigns every
// output its destination key before the upload stage sees it.
func (c *Coordinator) transformMedia(ctx context.Context, env *Envelope) (*Envelope, error) {
	job := env.Job

	outDir := filepath.Join(filepath.Dir(env.LocalPath), "outputs")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	var outputs []transform.Output
	var err error

	switch job.MediaClass {
	case ClassImage:
		outputs, _, err = c.images.Transform(ctx, env.LocalPath, outDir)
		if err != nil {
			return nil, err
		}
		assignKeys(outputs, derivedKeyBase(job.MediaID))

	case ClassVideo:
		outputs, err = c.videos.Transform(ctx, env.LocalPath, outDir, env.Metadata.Video)
		if err != nil {
			return nil, err
		}
		if len(outputs) == 0 {
			return nil, transform.ErrNoOutputs
		}
		assignKeys(outputs, derivedKeyBase(job.MediaID))

	case ClassArchive:
		outputs, err = c.transformArchive(ctx, env, outDir)
		if err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownClass, job.MediaClass)
	}

	for _, o := range outputs {
		c.tracker.Track(job.JobID, o.LocalPath, "transform", tempfile.RoleOutput)
		metrics.OutputsGenerated.WithLabelValues(string(job.MediaClass), string(o.Kind)).Inc()
	}

	env.Outputs = outputs
	env.advance(StageProcessed)
	c.events.Progress(ctx, job, 60, "transformed")
	return env, nil
}

// upload stores every output and deletes its local file as soon as the
// transfer succeeds, bounding peak disk usage. Individual failures are
// logged and skipped; only a total absence of uploads fails the job.
func (c *Coordinator) upload(ctx context.Context, env *Envelope) (*Envelope, error) {
	log := logger.FromContext(ctx)
	job := env.Job

	env.advance(StageUploading)

	uploaded := make([]transform.Output, 0, len(env.Outputs))
	for _, out := range env.Outputs {
		if _, err := c.store.StoreFromFile(ctx, out.LocalPath, out.DestinationKey, out.MimeType); err != nil {
			log.Warn("output upload failed",
				"destination_key", out.DestinationKey, "quality", out.Quality, "error", err)
			continue
		}
		if err := os.Remove(out.LocalPath); err != nil {
			log.Warn("failed to remove uploaded output", "path", out.LocalPath, "error", err)
		}
		c.tracker.Untrack(job.JobID, out.LocalPath)
		uploaded = append(uploaded, out)
	}

	if len(uploaded) == 0 {
		return nil, ErrNoOutputsUploaded
	}

	env.Outputs = uploaded
	env.advance(StageCompleted)
	return env, nil
}

// derivedKeyBase is the object-store prefix for one media item's outputs.
func derivedKeyBase(mediaID string) string {
	return "derived/" + mediaID
}

func assignKeys(outputs []transform.Output, keyBase string) {
	for i := range outputs {
		outputs[i].DestinationKey = keyBase + "/" + filepath.Base(outputs[i].LocalPath)
	}
}
