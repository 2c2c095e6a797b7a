// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueueJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_completed_total",
			Help: "Total number of jobs completed per queue",
		},
		[]string{"queue"},
	)

	QueueJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_failed_total",
			Help: "Total number of jobs failed per queue",
		},
		[]string{"queue", "error_code"},
	)

	QueueJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "queue_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"queue"},
	)

	QueueJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_jobs_active",
			Help: "Number of active jobs per queue",
		},
		[]string{"queue"},
	)

	QueueJobsRetried = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_retried_total",
			Help: "Total number of job retries per queue",
		},
		[]string{"queue"},
	)

	LookupCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vehicle_lookup_cache_total",
			Help: "Vehicle lookup cache hits and misses",
		},
		[]string{"result"},
	)

	SnapshotCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_snapshot_cache_total",
			Help: "Price snapshot cache hits and misses",
		},
		[]string{"result"},
	)

	SearchStageResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_search_stage_total",
			Help: "Cascade stage outcomes by stage and result",
		},
		[]string{"stage", "result"},
	)

	SearchStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "price_search_stage_duration_seconds",
			Help: "Duration of each cascade stage in seconds",
		},
		[]string{"stage"},
	)

	SuggestionsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_suggestions_created_total",
			Help: "Total suggestions created by template kind",
		},
		[]string{"template"},
	)

	SuggestionsSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ai_suggestions_suppressed_total",
			Help: "Suggestions dropped by duplicate suppression",
		},
	)
)
