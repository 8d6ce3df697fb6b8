package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

type StorageHealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type QueueHealthChecker interface {
	Connected() bool
}

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

type ComponentHealth struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Latency int64  `json:"latency_ms"`
	Error   string `json:"error,omitempty"`
}

type HealthResponse struct {
	Status     Status            `json:"status"`
	Components []ComponentHealth `json:"components,omitempty"`
	ActiveJobs map[string]int    `json:"active_jobs,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// ActiveJobsFunc reports running job counts keyed by media class.
type ActiveJobsFunc func() map[string]int

type Checker struct {
	storage    StorageHealthChecker
	queue      QueueHealthChecker
	activeJobs ActiveJobsFunc
}

func NewChecker(storage StorageHealthChecker, queue QueueHealthChecker) *Checker {
	return &Checker{storage: storage, queue: queue}
}

func (c *Checker) WithActiveJobs(fn ActiveJobsFunc) *Checker {
	c.activeJobs = fn
	return c
}

func (c *Checker) CheckAll(ctx context.Context) HealthResponse {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	components := make([]ComponentHealth, 0, 2)
	mu := sync.Mutex{}

	if c.storage != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			comp := c.checkStorage(ctx)
			mu.Lock()
			components = append(components, comp)
			mu.Unlock()
		}()
	}

	if c.queue != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			comp := c.checkQueue()
			mu.Lock()
			components = append(components, comp)
			mu.Unlock()
		}()
	}

	wg.Wait()

	status := StatusHealthy
	for _, comp := range components {
		if comp.Status == StatusUnhealthy {
			status = StatusUnhealthy
			break
		}
	}

	resp := HealthResponse{
		Status:     status,
		Components: components,
		Timestamp:  time.Now(),
	}
	if c.activeJobs != nil {
		resp.ActiveJobs = c.activeJobs()
	}
	return resp
}

func (c *Checker) checkStorage(ctx context.Context) ComponentHealth {
	start := time.Now()
	err := c.storage.HealthCheck(ctx)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return ComponentHealth{
			Name:    "storage",
			Status:  StatusUnhealthy,
			Latency: latency,
			Error:   err.Error(),
		}
	}
	return ComponentHealth{
		Name:    "storage",
		Status:  StatusHealthy,
		Latency: latency,
	}
}

func (c *Checker) checkQueue() ComponentHealth {
	start := time.Now()
	connected := c.queue.Connected()
	latency := time.Since(start).Milliseconds()

	if !connected {
		return ComponentHealth{
			Name:    "queue",
			Status:  StatusUnhealthy,
			Latency: latency,
			Error:   "not connected",
		}
	}
	return ComponentHealth{
		Name:    "queue",
		Status:  StatusHealthy,
		Latency: latency,
	}
}

func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	}
}

func ReadinessHandler(checker *Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := checker.CheckAll(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if resp.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func HealthHandler(checker *Checker) http.HandlerFunc {
	return ReadinessHandler(checker)
}
