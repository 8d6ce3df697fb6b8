package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pixelforge/media-worker/internal/logger"
	"github.com/pixelforge/media-worker/internal/queue"
	"github.com/pixelforge/media-worker/internal/transform"
)

// Events publishes progress and result messages to the shared updates
// queue. Publish failures are logged, never propagated: a lost status
// update must not fail an otherwise healthy job.
type Events struct {
	publisher    queue.Publisher
	updatesQueue string
}

func NewEvents(publisher queue.Publisher, updatesQueue string) *Events {
	return &Events{publisher: publisher, updatesQueue: updatesQueue}
}

// Progress emits a PROCESSING update with a 0-100 progress figure.
func (e *Events) Progress(ctx context.Context, job *ProcessingJob, progress int, step string) {
	e.publish(ctx, queue.ProgressUpdate{
		JobID:     job.JobID,
		MediaID:   job.MediaID,
		Status:    queue.StatusProcessing,
		Progress:  progress,
		Step:      step,
		Timestamp: time.Now(),
	})
}

// Completed emits the terminal COMPLETED result listing the uploaded
// outputs.
func (e *Events) Completed(ctx context.Context, job *ProcessingJob, outputs []transform.Output) {
	records := make([]queue.OutputRecord, 0, len(outputs))
	for _, o := range outputs {
		records = append(records, queue.OutputRecord{
			Kind:           string(o.Kind),
			Quality:        o.Quality,
			Width:          o.Width,
			Height:         o.Height,
			DestinationKey: o.DestinationKey,
			ByteSize:       o.ByteSize,
			MimeType:       o.MimeType,
		})
	}
	e.publish(ctx, queue.Result{
		JobID:     job.JobID,
		MediaID:   job.MediaID,
		Status:    queue.StatusCompleted,
		Outputs:   records,
		Timestamp: time.Now(),
	})
}

// Failed emits the terminal FAILED result with the error message.
func (e *Events) Failed(ctx context.Context, job *ProcessingJob, errMsg string) {
	e.publish(ctx, queue.Result{
		JobID:     job.JobID,
		MediaID:   job.MediaID,
		Status:    queue.StatusFailed,
		Error:     errMsg,
		Timestamp: time.Now(),
	})
}

func (e *Events) publish(ctx context.Context, msg any) {
	body, err := json.Marshal(msg)
	if err != nil {
		logger.FromContext(ctx).Error("failed to marshal update", "error", err)
		return
	}
	if err := e.publisher.Publish(ctx, e.updatesQueue, body); err != nil {
		logger.FromContext(ctx).Error("failed to publish update", "error", err)
	}
}
