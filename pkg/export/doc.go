/*
Package export orchestrates the daily export of one tenant and report date.

The orchestrator is the only component that writes export records. It
reads a tenant's settings and activity records from storage, renders the
export files, uploads them through the object store gateway, moves the
record through its lifecycle and hands the finished bundle to the
delivery dispatcher. Every other pipeline package is a dependency it
drives; none of them call back into it.

# Architecture

A run moves its ExportRecord through the lifecycle and drives the other
pipeline packages in order:

	┌──────────┐   ┌────────────┐   ┌──────────┐   ┌──────────┐   ┌──────────┐
	│ validate │──▶│  generate  │──▶│  upload  │──▶│ complete │──▶│ deliver  │
	│ settings │   │ csv / pdf  │   │ presign  │   │  record  │   │ email    │
	│ records  │   │ manifest   │   │          │   │          │   │ sftp     │
	│          │   │ zip        │   │          │   │          │   │ webhook  │
	└──────────┘   └────────────┘   └──────────┘   └──────────┘   └──────────┘
	 PENDING→PROCESSING                             COMPLETED

The dependencies are passed in explicitly through Deps:

	┌──────────────────────── Orchestrator ────────────────────────┐
	│                                                                │
	│   Store        export records, tenant settings, activities    │
	│   Objects      objectstore.Gateway (keys, uploads, links)     │
	│   Locker       lock.Locker (single flight per key)            │
	│   Audit        audit.Service (hash-chained audit events)      │
	│   Dispatcher   delivery.Dispatcher (optional)                 │
	│   Renderer     content.PDFRenderer (nil disables PDF)         │
	│   Events       events.Broker (nil drops events)               │
	│                                                                │
	└────────────────────────────────────────────────────────────────┘

# Run Lifecycle

GenerateDailyExport performs these steps:

 1. Validate the tenant id and the report date. Nothing is written when
    they are malformed; the caller gets a StageError wrapping a
    ValidationError.
 2. Take the single-flight lock for "<tenant>:<date>". A held key is
    rejected at once.
 3. Create a PENDING record with a fresh UUID and audit EXPORT_STARTED.
 4. Load the tenant settings and the day's activity records.
 5. Move the record to PROCESSING.
 6. Run the structural record checks: ids present and unique, tenant and
    date matching, known statuses, unique non-negative step indices and
    non-negative photo dimensions.
 7. Resolve the CSV and PDF flags from Options and the tenant settings.
 8. Render the CSV tables and the PDF report, then the manifest, the
    checksums file and the zip archive.
 9. Upload every artifact under <prefix>/<tenant>/<date>/<file>.
 10. Presign a download link per artifact.
 11. Write stats, artifact references and processing time, and move the
    record to COMPLETED.
 12. Deliver the bundle unless Options.SkipDelivery is set, then audit
    EXPORT_COMPLETED and publish export.completed.

Any failure before step 11 finishes marks the record FAILED and returns a
StageError naming the stage:

	validation    bad arguments, missing tenant settings, bad records,
	              contradictory output flags
	generation    CSV, PDF, manifest or archive rendering
	storage       record writes, activity reads, uploads, presigning

Delivery failures never fail a run. They are written to the record's
delivery fields through RecordDelivery after the record is already
COMPLETED.

# Single Flight

Runs are serialized per (tenant, report date) through a lock.Locker. A
second trigger while a run holds the key is rejected at once with an
InProgressError, matched by errors.Is(err, ErrExportInProgress), counted
in cleandoc_exports_in_progress_rejected_total and published as an
export.rejected event.

A record left behind by an earlier run does not block a new one. The new
run replaces it when it starts, so the key resolves to the newest run,
even if that run later fails. The earlier run's completion stays in the
audit log under its own export id.

Status reports whether a key is locked right now together with its stored
record. With lock.LocalLocker only runs of the same process are visible;
lock.RedisLocker shares the view across replicas.

# Output Flags

IncludeCSV and IncludePDF in Options override the tenant settings when
set. When no PDF renderer is configured:

	tenant include_pdf=true, no option     PDF skipped with a warning
	Options.IncludePDF=true                validation error
	neither CSV nor PDF left enabled       validation error

# Audit And Events

EXPORT_STARTED, EXPORT_COMPLETED and EXPORT_FAILED are recorded for every
run against resource type daily_export and the export id. Completion
carries the stats, the archive and manifest SHA-256 values and the
processing time; failure carries the stage and the error. IssueLinks adds
EXPORT_LINKS_ISSUED. Audit failures are logged and never abort the
export.

The broker receives export.started, export.completed, export.failed,
export.rejected and delivery.completed, which the API streams over
server-sent events.

# Usage

Wiring an orchestrator:

	orch := export.NewOrchestrator(export.Config{LinkTTL: 24 * time.Hour}, export.Deps{
		Store:      store,
		Objects:    gateway,
		Locker:     lock.NewLocalLocker(),
		Audit:      audit.NewService(store),
		Dispatcher: dispatcher,
		Renderer:   content.NewChromeRenderer("", 30*time.Second),
		Events:     broker,
	})

Running an export and telling the outcomes apart:

	res, err := orch.GenerateDailyExport(ctx, "tenant-a", "2026-03-01", export.Options{})
	var stageErr *export.StageError
	switch {
	case errors.Is(err, export.ErrExportInProgress):
		// another run holds the key
	case errors.As(err, &stageErr):
		log.Printf("failed in %s, record %s", stageErr.Stage, stageErr.ExportID)
	case err == nil:
		log.Printf("export %s: %d logs", res.ExportID, res.Stats.TotalLogs)
	}

Forcing a CSV-only run without delivery:

	off := false
	res, err := orch.GenerateDailyExport(ctx, "tenant-a", "2026-03-01", export.Options{
		IncludePDF:   &off,
		SkipDelivery: true,
	})

Re-issuing links for a completed export:

	links, err := orch.IssueLinks(ctx, exportID, 2*time.Hour)

# Integration Points

The scheduler calls GenerateDailyExport once per enabled tenant and treats
ErrExportInProgress as a skip. The API exposes the trigger under
POST /v1/tenants/:tenantID/exports, the lock view under
GET /v1/tenants/:tenantID/exports/:reportDate/status and link re-issue
under POST /v1/exports/:id/links. The CLI wraps the same calls in
"cleandoc export run", "cleandoc export status" and "cleandoc export
links".

# Troubleshooting

A 409 or "export already in progress" means a run holds the key. Check
"cleandoc export status"; with the Redis locker a crashed holder frees
the key when lock.ttl expires.

A FAILED record names its stage in the audit event and in error_message.
Validation failures list every problem found in one message, so fixing
the source data and re-running once is usually enough.

Links that expired can be re-issued with IssueLinks as long as retention
has not removed the objects; a missing object surfaces as a storage
error.

# See Also

  - pkg/content for CSV and PDF rendering
  - pkg/manifest and pkg/archive for the packaged files
  - pkg/objectstore for key layout and links
  - pkg/delivery for channel semantics
*/
package export
