package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		tasksFinishedTotal,
		runDurationMs,
		pageImageRetriesTotal,
		pagesDegradedTotal,
	)
}

var (
	tasksFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storybook_tasks_finished_total",
			Help: "Generation runs finished, labeled by terminal status.",
		},
		[]string{"status"}, // 'completed', 'failed'
	)

	runDurationMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storybook_run_duration_ms",
			Help:    "Wall-clock duration of a full generation run in milliseconds.",
			Buckets: []float64{500, 1000, 2500, 5000, 10000, 30000, 60000, 120000, 300000, 600000},
		},
		[]string{"status"},
	)

	pageImageRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "storybook_page_image_retries_total",
			Help: "Page-image generation attempts beyond the first.",
		},
	)

	pagesDegradedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "storybook_pages_degraded_total",
			Help: "Pages persisted without an image after exhausting attempts.",
		},
	)
)

// ObserveRunFinished records the single per-run completion metric.
func ObserveRunFinished(status string, durationMs int64) {
	tasksFinishedTotal.WithLabelValues(norm(status)).Inc()
	runDurationMs.WithLabelValues(norm(status)).Observe(float64(durationMs))
}

func IncPageImageRetry() { pageImageRetriesTotal.Inc() }

func AddPagesDegraded(n int) {
	if n > 0 {
		pagesDegradedTotal.Add(float64(n))
	}
}
