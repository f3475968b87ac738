// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "builds_total",
			Help: "Total number of finished builds by round and outcome",
		},
		[]string{"round", "outcome"},
	)

	BuildStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "build_stage_duration_seconds",
			Help:    "Duration of each pipeline stage in seconds",
			Buckets: []float64{0.05, 0.25, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)

	BuildsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "builds_active",
			Help: "Number of builds currently running",
		},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Evaluation callbacks by final status",
		},
		[]string{"status"},
	)

	GenerationFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_fallbacks_total",
			Help: "Generated files that came from templates instead of the model",
		},
		[]string{"reason"},
	)

	PublishWarnings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publish_warnings_total",
			Help: "Non-fatal publish step failures",
		},
		[]string{"kind"},
	)

	QueueRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "build_queue_rejections_total",
			Help: "Build requests rejected because the work queue was full",
		},
	)
)
