package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Job metrics
	JobsSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docpipe_jobs_submitted_total",
			Help: "Total number of jobs submitted by kind",
		},
		[]string{"kind"},
	)

	JobsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docpipe_jobs_completed_total",
			Help: "Total number of jobs completed by kind",
		},
		[]string{"kind"},
	)

	JobsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docpipe_jobs_failed_total",
			Help: "Total number of jobs failed by kind and error kind",
		},
		[]string{"kind", "error_kind"},
	)

	JobsDispatchFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docpipe_jobs_dispatch_failed_total",
			Help: "Total number of jobs that could not be started after admission (lost the pending race, already cancelled)",
		},
	)

	JobsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "docpipe_jobs_in_flight",
			Help: "Number of jobs currently being processed",
		},
	)

	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docpipe_job_duration_seconds",
			Help:    "Job processing duration in seconds by kind and terminal outcome",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"kind", "outcome"},
	)

	// Admission / quota metrics
	QuotaRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docpipe_quota_rejections_total",
			Help: "Total number of admission requests rejected by the quota gate, by reason",
		},
		[]string{"reason"},
	)

	// Storage metrics
	StorageBytesUsed = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "docpipe_storage_bytes_used",
			Help: "Bytes currently stored under the filestore root, by subtree (uploads, downloads, temp)",
		},
		[]string{"subtree"},
	)

	CleanupFilesDeletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docpipe_cleanup_files_deleted_total",
			Help: "Total number of files removed by the cleanup service, by sweep type",
		},
		[]string{"sweep"},
	)

	CleanupJobsDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docpipe_cleanup_jobs_deleted_total",
			Help: "Total number of terminal job records removed by the cleanup service's job age sweep",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docpipe_api_requests_total",
			Help: "Total number of API requests by route and status",
		},
		[]string{"route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docpipe_api_request_duration_seconds",
			Help:    "API request duration in seconds by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// Auth metrics
	AuthAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docpipe_auth_attempts_total",
			Help: "Total number of authentication attempts by method and outcome",
		},
		[]string{"method", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(JobsSubmittedTotal)
	prometheus.MustRegister(JobsCompleted)
	prometheus.MustRegister(JobsFailed)
	prometheus.MustRegister(JobsDispatchFailed)
	prometheus.MustRegister(JobsInFlight)
	prometheus.MustRegister(JobDuration)
	prometheus.MustRegister(QuotaRejectionsTotal)
	prometheus.MustRegister(StorageBytesUsed)
	prometheus.MustRegister(CleanupFilesDeletedTotal)
	prometheus.MustRegister(CleanupJobsDeletedTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(AuthAttemptsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
