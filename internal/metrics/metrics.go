package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_jobs_total",
			Help: "Total number of processing jobs by media class and terminal status",
		},
		[]string{"class", "status"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_job_duration_seconds",
			Help:    "End-to-end job duration in seconds",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"class"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_stage_duration_seconds",
			Help:    "Per-stage duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300},
		},
		[]string{"class", "stage"},
	)

	ActiveJobs = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_active_jobs",
			Help: "Number of jobs currently being processed per media class",
		},
		[]string{"class"},
	)

	QueueSubscribed = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_queue_subscribed",
			Help: "Whether the worker is consuming a media class request queue (1) or paused (0)",
		},
		[]string{"class"},
	)

	OutputsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_outputs_generated_total",
			Help: "Derived artifacts generated, by media class and output kind",
		},
		[]string{"class", "kind"},
	)

	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_storage_operations_total",
			Help: "Object store operations by type and status",
		},
		[]string{"operation", "status"},
	)

	TempFilesRemoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_temp_files_removed_total",
			Help: "Local working files removed, by cleanup trigger",
		},
		[]string{"trigger"},
	)

	TempBytesFreed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_temp_bytes_freed_total",
			Help: "Local disk bytes freed by cleanup, by trigger",
		},
		[]string{"trigger"},
	)
)

func RecordJob(class, status string, seconds float64) {
	JobsTotal.WithLabelValues(class, status).Inc()
	JobDuration.WithLabelValues(class).Observe(seconds)
}

func RecordStorageOp(operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	StorageOperationsTotal.WithLabelValues(operation, status).Inc()
}

func RecordCleanup(trigger string, filesRemoved int, bytesFreed int64) {
	TempFilesRemoved.WithLabelValues(trigger).Add(float64(filesRemoved))
	TempBytesFreed.WithLabelValues(trigger).Add(float64(bytesFreed))
}
