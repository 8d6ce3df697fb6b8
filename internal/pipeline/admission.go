package pipeline

import (
	"log/slog"
	"sync"

	"github.com/pixelforge/media-worker/internal/metrics"
)

// SubscriptionGate pauses and resumes queue consumption for one media
// class. The Coordinator implements it against the real broker; tests
// substitute a recording fake.
type SubscriptionGate interface {
	Pause(class MediaClass) error
	Resume(class MediaClass) error
}

type classState struct {
	active        map[string]struct{}
	maxConcurrent int
	subscribed    bool
}

// Admission tracks active job counts per media class and gates queue
// consumption so that at most maxConcurrent jobs of a class run at once.
// Each class is gated independently: video saturating its ceiling never
// blocks image admission.
//
// Invariant, re-established after every start/finish event:
//
//	subscribed == (len(active) < maxConcurrent)
type Admission struct {
	gate   SubscriptionGate
	logger *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	classes map[MediaClass]*classState
	closed  bool
}

func NewAdmission(gate SubscriptionGate, ceilings map[MediaClass]int, logger *slog.Logger) *Admission {
	a := &Admission{
		gate:    gate,
		logger:  logger,
		classes: make(map[MediaClass]*classState, len(ceilings)),
	}
	a.cond = sync.NewCond(&a.mu)
	for class, ceiling := range ceilings {
		if ceiling < 1 {
			ceiling = 1
		}
		a.classes[class] = &classState{
			active:        make(map[string]struct{}),
			maxConcurrent: ceiling,
		}
	}
	return a
}

// Start subscribes every class's request queue. Initial state has zero
// active jobs, so every class begins subscribed.
func (a *Admission) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for class, st := range a.classes {
		if err := a.gate.Resume(class); err != nil {
			return err
		}
		st.subscribed = true
		metrics.QueueSubscribed.WithLabelValues(string(class)).Set(1)
	}
	return nil
}

// Admit records a newly admitted job, pausing the class's queue if the
// ceiling is now reached. Pausing a consumer is not instant: the broker may
// already have handed over prefetched, acknowledged messages, so Admit
// blocks when the class is at its ceiling and returns once a slot frees.
// It returns false if the controller is closed while waiting, or for an
// unknown class.
func (a *Admission) Admit(jobID string, class MediaClass) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	st, ok := a.classes[class]
	if !ok {
		return false
	}
	for len(st.active) >= st.maxConcurrent && !a.closed {
		a.cond.Wait()
	}
	if a.closed {
		return false
	}
	st.active[jobID] = struct{}{}
	metrics.ActiveJobs.WithLabelValues(string(class)).Set(float64(len(st.active)))
	a.reevaluate(class, st)
	return true
}

// OnJobFinish removes a finished job and resumes the class's queue if a
// slot freed up.
func (a *Admission) OnJobFinish(jobID string, class MediaClass) {
	a.mu.Lock()
	defer a.mu.Unlock()

	st, ok := a.classes[class]
	if !ok {
		return
	}
	delete(st.active, jobID)
	metrics.ActiveJobs.WithLabelValues(string(class)).Set(float64(len(st.active)))
	a.reevaluate(class, st)
	a.cond.Broadcast()
}

// Close wakes any Admit calls blocked on a full class and makes them
// return false. Used during shutdown so drained jobs cannot be displaced
// by prefetched deliveries.
func (a *Admission) Close() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	a.cond.Broadcast()
}

// reevaluate restores the subscription invariant for one class. Caller
// holds the mutex.
func (a *Admission) reevaluate(class MediaClass, st *classState) {
	switch {
	case len(st.active) >= st.maxConcurrent && st.subscribed:
		if err := a.gate.Pause(class); err != nil {
			a.logger.Error("failed to pause queue consumption",
				slog.String("class", string(class)), slog.Any("error", err))
			return
		}
		st.subscribed = false
		metrics.QueueSubscribed.WithLabelValues(string(class)).Set(0)
		a.logger.Info("paused queue consumption",
			slog.String("class", string(class)),
			slog.Int("active", len(st.active)),
			slog.Int("ceiling", st.maxConcurrent))

	case len(st.active) < st.maxConcurrent && !st.subscribed:
		if err := a.gate.Resume(class); err != nil {
			a.logger.Error("failed to resume queue consumption",
				slog.String("class", string(class)), slog.Any("error", err))
			return
		}
		st.subscribed = true
		metrics.QueueSubscribed.WithLabelValues(string(class)).Set(1)
		a.logger.Info("resumed queue consumption",
			slog.String("class", string(class)),
			slog.Int("active", len(st.active)),
			slog.Int("ceiling", st.maxConcurrent))
	}
}

// ActiveJobs reports the current active count per class.
func (a *Admission) ActiveJobs() map[MediaClass]int {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[MediaClass]int, len(a.classes))
	for class, st := range a.classes {
		out[class] = len(st.active)
	}
	return out
}

// Subscribed reports whether a class's queue is currently being consumed.
func (a *Admission) Subscribed(class MediaClass) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if st, ok := a.classes[class]; ok {
		return st.subscribed
	}
	return false
}
