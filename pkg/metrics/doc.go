/*
Package metrics exposes Prometheus metrics and the component health
registry of the export service.

Both halves are process-wide: collectors are package variables and the
registry is a package singleton, so any package can count or report
without having a handle passed in.

# Prometheus

All collectors are package variables registered in init and served by
Handler on /metrics:

	cleandoc_exports_total{status}                 COMPLETED / FAILED
	cleandoc_export_duration_seconds               per run
	cleandoc_export_stage_duration_seconds{stage}  generate / upload / deliver
	cleandoc_exports_in_progress_rejected_total    single-flight rejections
	cleandoc_artifact_bytes_total                  bytes uploaded
	cleandoc_delivery_attempts_total{channel,outcome}
	cleandoc_scheduler_runs_total{job}             daily / retention
	cleandoc_scheduler_tenants_total{outcome}      exported / skipped / failed
	cleandoc_retention_deleted_objects_total
	cleandoc_audit_events_total{outcome}           written / skipped / failed
	cleandoc_audit_integrity_errors                last verification
	cleandoc_api_requests_total{method,status}
	cleandoc_api_request_duration_seconds{route}

Labels are bounded sets. Tenant ids, export ids and raw paths never
appear as label values; per-tenant detail belongs in logs and the audit
trail.

# Timers

Timer measures an operation and observes it on a histogram. Lap splits a
run into stages on a HistogramVec, each lap measuring from the previous
one:

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ExportDuration)

	render()
	timer.Lap(metrics.ExportStageDuration, "generate")
	upload()
	timer.Lap(metrics.ExportStageDuration, "upload")

# Health Registry

Components report their state with RegisterComponent or UpdateComponent;
pkg/health's Monitor does this for every checked dependency.

	GetHealth      healthy, or unhealthy when a critical component fails,
	               or degraded when only optional ones (SMTP) fail
	GetReadiness   ready only when every critical component is registered
	               and healthy; Message names the first blocker

The critical set defaults to store and objectstore and can be changed
with SetCriticalComponents; the service adds lock when locks live in
Redis. Reports carry the version set by SetVersion and the process
uptime.

	{
	  "status": "degraded",
	  "timestamp": "2026-03-02T08:15:00Z",
	  "components": {
	    "objectstore": "healthy",
	    "smtp": "unhealthy: dial smtp.example.com:587: i/o timeout",
	    "store": "healthy"
	  },
	  "version": "1.4.0",
	  "uptime": "36h12m5s"
	}
*/
package metrics
