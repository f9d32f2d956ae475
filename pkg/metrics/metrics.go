package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Export metrics
	ExportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cleandoc_exports_total",
			Help: "Total number of export runs by final status",
		},
		[]string{"status"},
	)

	ExportDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cleandoc_export_duration_seconds",
			Help:    "Duration of export runs in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	ExportStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cleandoc_export_stage_duration_seconds",
			Help:    "Time spent in each stage of a successful export run (generate, upload, deliver)",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	ExportsInProgressRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cleandoc_exports_in_progress_rejected_total",
			Help: "Export triggers rejected because the same tenant and date was already running",
		},
	)

	ArtifactBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cleandoc_artifact_bytes_total",
			Help: "Total bytes uploaded to object storage",
		},
	)

	// Delivery metrics
	DeliveryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cleandoc_delivery_attempts_total",
			Help: "Delivery attempts by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	// Scheduler metrics
	SchedulerRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cleandoc_scheduler_runs_total",
			Help: "Scheduler runs by job",
		},
		[]string{"job"},
	)

	SchedulerTenantsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cleandoc_scheduler_tenants_total",
			Help: "Tenants processed by the daily job by outcome",
		},
		[]string{"outcome"},
	)

	RetentionDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cleandoc_retention_deleted_objects_total",
			Help: "Objects deleted by retention cleanup",
		},
	)

	// Audit metrics
	AuditEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cleandoc_audit_events_total",
			Help: "Audit events by outcome (written, skipped, failed)",
		},
		[]string{"outcome"},
	)

	AuditIntegrityErrors = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cleandoc_audit_integrity_errors",
			Help: "Integrity errors found by the last audit chain verification",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cleandoc_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cleandoc_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(ExportsTotal)
	prometheus.MustRegister(ExportDuration)
	prometheus.MustRegister(ExportStageDuration)
	prometheus.MustRegister(ExportsInProgressRejected)
	prometheus.MustRegister(ArtifactBytesTotal)
	prometheus.MustRegister(DeliveryAttemptsTotal)
	prometheus.MustRegister(SchedulerRunsTotal)
	prometheus.MustRegister(SchedulerTenantsTotal)
	prometheus.MustRegister(RetentionDeletedTotal)
	prometheus.MustRegister(AuditEventsTotal)
	prometheus.MustRegister(AuditIntegrityErrors)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
