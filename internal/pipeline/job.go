package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pixelforge/media-worker/internal/queue"
	"github.com/pixelforge/media-worker/internal/transform"
)

// MediaClass determines which transformer and concurrency ceiling apply.
type MediaClass string

const (
	ClassImage   MediaClass = "IMAGE"
	ClassVideo   MediaClass = "VIDEO"
	ClassArchive MediaClass = "ARCHIVE"
)

// Classes lists every media class the worker consumes, in a fixed order.
var Classes = []MediaClass{ClassImage, ClassVideo, ClassArchive}

func ParseMediaClass(s string) (MediaClass, error) {
	switch MediaClass(s) {
	case ClassImage, ClassVideo, ClassArchive:
		return MediaClass(s), nil
	}
	return "", fmt.Errorf("unknown media class %q", s)
}

// Stage is one phase of a job's lifecycle; it advances strictly in order.
type Stage string

const (
	StageReceived   Stage = "RECEIVED"
	StageDownloaded Stage = "DOWNLOADED"
	StageProcessed  Stage = "PROCESSED"
	StageUploading  Stage = "UPLOADING"
	StageCompleted  Stage = "COMPLETED"
	StageFailed     Stage = "FAILED"
)

// ProcessingJob is one unit of work. Immutable once created; owned by
// whichever stage currently holds it.
type ProcessingJob struct {
	JobID            string     `json:"job_id"`
	MediaID          string     `json:"media_id"`
	UserID           string     `json:"user_id"`
	MediaClass       MediaClass `json:"media_class"`
	SourceKey        string     `json:"source_key"`
	OriginalFilename string     `json:"original_filename"`
	DeclaredMimeType string     `json:"declared_mime_type"`
	CreatedAt        time.Time  `json:"created_at"`
}

// NewJob mints a ProcessingJob from a decoded request message.
func NewJob(req *queue.ProcessRequest, class MediaClass) *ProcessingJob {
	return &ProcessingJob{
		JobID:            uuid.NewString(),
		MediaID:          req.MediaID,
		UserID:           req.UserID,
		MediaClass:       class,
		SourceKey:        req.SourceKey,
		OriginalFilename: req.OriginalFilename,
		DeclaredMimeType: req.MimeType,
		CreatedAt:        time.Now(),
	}
}

// Metadata is the probe result attached to a stage envelope; exactly one
// branch is set, depending on the job's media class.
type Metadata struct {
	Image *transform.ImageMetadata `json:"image,omitempty"`
	Video *transform.VideoMetadata `json:"video,omitempty"`
}

// Envelope is the message handed between stages. Exactly one envelope per
// job is in flight at any time; LocalPath is only valid inside the worker
// process that wrote it.
type Envelope struct {
	Job           *ProcessingJob     `json:"job"`
	Stage         Stage              `json:"stage"`
	PreviousStage Stage              `json:"previous_stage"`
	LocalPath     string             `json:"local_path,omitempty"`
	Metadata      Metadata           `json:"metadata"`
	Outputs       []transform.Output `json:"outputs,omitempty"`
}

// advance moves the envelope to the next stage, recording where it came
// from. Stage order is enforced here, not by callers.
func (e *Envelope) advance(next Stage) {
	e.PreviousStage = e.Stage
	e.Stage = next
}
