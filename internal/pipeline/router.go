package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pixelforge/media-worker/internal/queue"
)

// Router owns the queue topology: which queue a media class's requests
// arrive on, and which per-stage queue an envelope goes to next. A staged
// deployment publishes envelopes between stages; the single-process
// deployment calls the next handler directly and only uses the router for
// queue names and stage ordering.
type Router struct {
	publisher   queue.Publisher
	queuePrefix string
}

func NewRouter(publisher queue.Publisher, queuePrefix string) *Router {
	return &Router{publisher: publisher, queuePrefix: queuePrefix}
}

// RequestQueue is the request queue for a media class,
// e.g. "media.requests.image".
func (r *Router) RequestQueue(class MediaClass) string {
	return r.queuePrefix + "." + strings.ToLower(string(class))
}

// StageQueue is the per-stage queue an envelope at the given stage is
// consumed from in a staged deployment.
func (r *Router) StageQueue(stage Stage) string {
	return "media.stages." + strings.ToLower(string(stage))
}

// NextStage enforces the strict download -> transform -> upload order.
func (r *Router) NextStage(current Stage) (Stage, error) {
	switch current {
	case StageReceived:
		return StageDownloaded, nil
	case StageDownloaded:
		return StageProcessed, nil
	case StageProcessed:
		return StageUploading, nil
	case StageUploading:
		return StageCompleted, nil
	}
	return "", fmt.Errorf("no stage follows %s", current)
}

// PublishNext hands an envelope to the next stage's queue. Only used by
// staged deployments.
func (r *Router) PublishNext(ctx context.Context, env *Envelope) error {
	next, err := r.NextStage(env.Stage)
	if err != nil {
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return r.publisher.Publish(ctx, r.StageQueue(next), body)
}
