package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		jobsFinishedTotal,
		jobTransitionsTotal,
		jobRunSeconds,
		postsDiscoveredTotal,
		postsAnalyzedTotal,
		workersBusy,
	)
}

var (
	workersBusy = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "job_workers_busy",
		Help: "Workers currently running a job.",
	})

	jobsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_finished_total",
			Help: "Jobs that reached a terminal status, labeled by status.",
		},
		[]string{"status"}, // 'completed', 'failed'
	)

	jobTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "job_transitions_total",
			Help: "Status transitions applied to jobs.",
		},
		[]string{"from", "to"},
	)

	jobRunSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "job_run_seconds",
			Help:    "Wall time of one run loop invocation until it completes, pauses or fails.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		},
		[]string{"outcome"},
	)

	postsDiscoveredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "posts_discovered_total",
			Help: "Unique posts persisted after deduplication.",
		},
	)

	postsAnalyzedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "posts_analyzed_total",
			Help: "Posts that finished analysis, labeled by resulting state.",
		},
		[]string{"state"}, // 'analyzed', 'degraded', 'failed'
	)
)

func IncJobFinished(status string) {
	jobsFinishedTotal.WithLabelValues(norm(status)).Inc()
}

func IncJobTransition(from, to string) {
	jobTransitionsTotal.WithLabelValues(norm(from), norm(to)).Inc()
}

func ObserveJobRun(outcome string, seconds float64) {
	jobRunSeconds.WithLabelValues(norm(outcome)).Observe(seconds)
}

func AddPostsDiscovered(n int) {
	postsDiscoveredTotal.Add(float64(n))
}

func IncPostAnalyzed(state string) {
	postsAnalyzedTotal.WithLabelValues(norm(state)).Inc()
}

func SetWorkersBusy(n int) { workersBusy.Set(float64(n)) }
