package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesCapturedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nextframe_frames_captured_total",
		Help: "Total number of frames captured, by kind (single, boundary, interval)",
	}, []string{"kind"})

	BatchCaptureDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nextframe_batch_capture_duration_seconds",
		Help:    "Duration of boundary captures, twin creation to teardown",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	SeekLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nextframe_seek_latency_seconds",
		Help:    "Time from a seek request to the frame being presented",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nextframe_active_sessions",
		Help: "Number of open editor sessions",
	})

	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nextframe_jobs_processed_total",
		Help: "Total number of capture jobs processed, by status",
	}, []string{"status"})

	JobProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nextframe_job_processing_duration_seconds",
		Help:    "Duration of capture job stages",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nextframe_active_workers",
		Help: "Number of currently active workers processing jobs",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nextframe_retry_total",
		Help: "Total number of retries",
	}, []string{"attempt"})
)
