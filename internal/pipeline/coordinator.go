package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pixelforge/media-worker/internal/archive"
	"github.com/pixelforge/media-worker/internal/logger"
	"github.com/pixelforge/media-worker/internal/metrics"
	"github.com/pixelforge/media-worker/internal/queue"
	"github.com/pixelforge/media-worker/internal/storage"
	"github.com/pixelforge/media-worker/internal/tempfile"
	"github.com/pixelforge/media-worker/internal/transform"
	"github.com/pixelforge/media-worker/internal/validate"
)

// Options wires the Coordinator's collaborators and limits.
type Options struct {
	Queue     queue.Client
	Store     storage.ObjectStore
	Tracker   *tempfile.Tracker
	Validator *validate.Validator
	Images    *transform.ImageTransformer
	Videos    *transform.VideoTransformer
	Extractor *archive.Extractor
	Events    *Events
	Logger    *slog.Logger

	QueuePrefix string

	// Ceilings caps concurrently running jobs per class; MaxBytes caps the
	// accepted source size per class.
	Ceilings map[MediaClass]int
	MaxBytes map[MediaClass]int64

	AllowedImageTypes []string
	AllowedVideoTypes []string

	SweepInterval time.Duration
	TempRetention time.Duration
}

// Coordinator owns the worker's job lifecycle: it consumes request queues,
// admits jobs under per-class concurrency ceilings, drives each job through
// download, transform and upload, and guarantees the job's working directory
// is removed on every exit path.
//
// Messages are acknowledged before processing starts. A crash mid-job loses
// that job's message; the retention sweep reclaims its disk. The alternative
// (ack-after) would redeliver poison messages forever, which is worse for a
// pipeline whose failures are overwhelmingly deterministic.
type Coordinator struct {
	queue     queue.Client
	store     storage.ObjectStore
	tracker   *tempfile.Tracker
	validator *validate.Validator
	images    *transform.ImageTransformer
	videos    *transform.VideoTransformer
	extractor *archive.Extractor
	events    *Events
	admission *Admission
	router    *Router
	logger    *slog.Logger

	queuePrefix       string
	maxBytes          map[MediaClass]int64
	allowedImageTypes []string
	allowedVideoTypes []string
	sweepInterval     time.Duration
	tempRetention     time.Duration

	runCtx     context.Context
	stop       context.CancelFunc
	jobCtx     context.Context
	cancelJobs context.CancelFunc
	wg         sync.WaitGroup
	started    bool
	stopping   bool
	mu         sync.Mutex
}

func NewCoordinator(opts Options) (*Coordinator, error) {
	if opts.Queue == nil || opts.Store == nil || opts.Tracker == nil {
		return nil, fmt.Errorf("pipeline: queue, store and tracker are required")
	}
	log := opts.Logger
	if log == nil {
		log = logger.Default()
	}

	c := &Coordinator{
		queue:             opts.Queue,
		store:             opts.Store,
		tracker:           opts.Tracker,
		validator:         opts.Validator,
		images:            opts.Images,
		videos:            opts.Videos,
		extractor:         opts.Extractor,
		events:            opts.Events,
		router:            NewRouter(opts.Queue, opts.QueuePrefix),
		logger:            log,
		queuePrefix:       opts.QueuePrefix,
		maxBytes:          opts.MaxBytes,
		allowedImageTypes: opts.AllowedImageTypes,
		allowedVideoTypes: opts.AllowedVideoTypes,
		sweepInterval:     opts.SweepInterval,
		tempRetention:     opts.TempRetention,
	}
	c.admission = NewAdmission(subscriptionGate{c}, opts.Ceilings, log)
	return c, nil
}

// Admission exposes the admission controller for health reporting.
func (c *Coordinator) Admission() *Admission {
	return c.admission
}

// Start opens consumption on every class request queue and launches the
// retention sweeper. It returns once consumption is running.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("pipeline: coordinator already started")
	}
	c.runCtx, c.stop = context.WithCancel(ctx)
	// admitted jobs run to completion even when consumption stops; their
	// context is cut loose from the consumer's and cancelled only when the
	// drain deadline expires
	c.jobCtx, c.cancelJobs = context.WithCancel(context.Background())
	c.started = true
	c.mu.Unlock()

	if err := c.admission.Start(); err != nil {
		return fmt.Errorf("open request queues: %w", err)
	}

	if c.sweepInterval > 0 {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.tracker.RunSweeper(c.runCtx, c.sweepInterval, c.tempRetention)
		}()
	}

	c.logger.Info("coordinator started",
		"queue_prefix", c.queuePrefix, "classes", len(Classes))
	return nil
}

// Stop pauses all queue consumption and waits for in-flight jobs to drain.
// If ctx expires first, remaining jobs are cancelled and abandoned, their
// temp files left for the sweep.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	c.stopping = true
	c.mu.Unlock()
	c.admission.Close()

	for _, class := range Classes {
		if !c.admission.Subscribed(class) {
			continue
		}
		if err := c.queue.Unsubscribe(c.router.RequestQueue(class)); err != nil &&
			!errors.Is(err, queue.ErrNotSubscribed) {
			c.logger.Warn("unsubscribe on shutdown failed",
				"class", string(class), "error", err)
		}
	}
	c.stop()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.cancelJobs()
		c.logger.Info("coordinator drained")
		return nil
	case <-ctx.Done():
		c.cancelJobs()
		active := c.admission.ActiveJobs()
		c.logger.Error("shutdown deadline reached with jobs in flight",
			"active_image", active[ClassImage],
			"active_video", active[ClassVideo],
			"active_archive", active[ClassArchive])
		return fmt.Errorf("pipeline: drain timed out: %w", ctx.Err())
	}
}

// subscriptionGate adapts the Coordinator's queue client to the admission
// controller. Pause cancels the class consumer; the broker keeps buffering.
type subscriptionGate struct {
	c *Coordinator
}

func (g subscriptionGate) Pause(class MediaClass) error {
	return g.c.queue.Unsubscribe(g.c.router.RequestQueue(class))
}

func (g subscriptionGate) Resume(class MediaClass) error {
	g.c.mu.Lock()
	stopping := g.c.stopping
	g.c.mu.Unlock()
	if stopping {
		// a job finishing mid-drain must not reopen consumption
		return fmt.Errorf("pipeline: shutting down")
	}

	deliveries, err := g.c.queue.Subscribe(g.c.runCtx, g.c.router.RequestQueue(class))
	if err != nil {
		return err
	}
	g.c.wg.Add(1)
	go g.c.consume(class, deliveries)
	return nil
}

// consume drains one subscription's delivery channel. The channel closes
// when the class is paused or the connection drops; a later Resume spawns
// a fresh loop.
func (c *Coordinator) consume(class MediaClass, deliveries <-chan queue.Delivery) {
	defer c.wg.Done()
	for d := range deliveries {
		c.handleDelivery(class, d)
	}
}

func (c *Coordinator) handleDelivery(class MediaClass, d queue.Delivery) {
	req, err := queue.DecodeProcessRequest(d.Body)
	if err != nil {
		// already acked; a malformed message is dropped, not redelivered
		c.logger.Error("dropping malformed request",
			"queue", d.Queue, "error", err)
		return
	}
	if parsed, err := ParseMediaClass(req.MediaClass); err != nil || parsed != class {
		c.logger.Warn("request class does not match its queue",
			"queue", d.Queue, "declared_class", req.MediaClass)
	}

	job := NewJob(req, class)
	// the broker can hand over prefetched deliveries after a pause; Admit
	// blocks here until the class has a free slot
	if !c.admission.Admit(job.JobID, class) {
		c.logger.Warn("delivery rejected during shutdown",
			"queue", d.Queue, "media_id", job.MediaID)
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.admission.OnJobFinish(job.JobID, class)
		c.runJob(job)
	}()
}

// runJob drives one job through its stages. Every exit path, including a
// panic in a transformer or codec, reports a terminal status and removes
// the job's working directory.
func (c *Coordinator) runJob(job *ProcessingJob) {
	ctx := logger.WithLogger(c.jobCtx, c.logger)
	ctx = logger.WithJob(ctx, job.JobID, job.MediaID)
	log := logger.FromContext(ctx)

	start := time.Now()
	defer c.tracker.CleanupJob(ctx, job.JobID)
	defer func() {
		if r := recover(); r != nil {
			log.Error("job panicked", "panic", fmt.Sprint(r))
			c.events.Failed(ctx, job, fmt.Sprintf("internal error: %v", r))
			metrics.RecordJob(string(job.MediaClass), "failed", time.Since(start).Seconds())
		}
	}()

	log.Info("job started",
		"class", string(job.MediaClass), "source_key", job.SourceKey)
	c.events.Progress(ctx, job, 5, "received")

	env, err := c.timedStage(job, "download", func() (*Envelope, error) {
		return c.download(ctx, job)
	})
	if err == nil {
		env, err = c.timedStage(job, "transform", func() (*Envelope, error) {
			return c.transformMedia(ctx, env)
		})
	}
	if err == nil {
		env, err = c.timedStage(job, "upload", func() (*Envelope, error) {
			return c.upload(ctx, env)
		})
	}

	elapsed := time.Since(start)
	if err != nil {
		log.Error("job failed", "error", err, "duration", elapsed)
		c.events.Failed(ctx, job, err.Error())
		metrics.RecordJob(string(job.MediaClass), "failed", elapsed.Seconds())
		return
	}

	c.events.Completed(ctx, job, env.Outputs)
	metrics.RecordJob(string(job.MediaClass), "completed", elapsed.Seconds())
	log.Info("job completed",
		"outputs", len(env.Outputs), "duration", elapsed)
}

func (c *Coordinator) timedStage(job *ProcessingJob, name string, fn func() (*Envelope, error)) (*Envelope, error) {
	start := time.Now()
	env, err := fn()
	metrics.StageDuration.WithLabelValues(string(job.MediaClass), name).
		Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return env, nil
}
