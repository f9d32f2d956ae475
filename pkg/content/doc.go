/*
Package content renders the artifacts of a daily export: the three CSV
tables and the PDF report.

Rendering is pure apart from the PDF, which needs a headless browser. Both
take the tenant id, the report date and the day's ActivityRecords and
return bytes with their SHA-256, so the same inputs always produce the same
CSV files and the caller never re-hashes what it uploads.

# CSV Tables

GenerateCSV produces:

	cleandoc_logs_<date>_v1.csv        one row per activity
	cleandoc_log_steps_<date>_v1.csv   one row per step
	cleandoc_log_photos_<date>_v1.csv  one row per photo

Columns, in order:

	logs     tenant_id report_date log_id area_id area_name customer_name
	         status worker_id worker_name started_at completed_at
	         duration_minutes total_steps completed_steps photo_count
	         signature_count notes
	steps    tenant_id report_date log_id step_index step_name chemical
	         dwell_time_minutes completed completed_at photo_count notes
	photos   tenant_id report_date log_id step_index photo_id storage_path
	         content_type width height sha256 taken_at

The three tables join on (log_id) and (log_id, step_index). The _v1 suffix
is the column layout version; a layout change gets a new suffix so
downstream loaders can tell files apart.

Format: UTF-8 without BOM, ';' delimiter, '\n' row terminator, a fixed
header row first. A field containing ';', '"', '\r' or '\n' is quoted and
inner quotes are doubled. Free text (names, notes) has its line breaks
replaced by single spaces before escaping, so every record is one physical
line. Timestamps are RFC 3339 UTC; missing timestamps are empty.

	EscapeField(`say "hi"; bye`)   →   "say ""hi""; bye"
	FlattenText("line 1\r\nline 2") →   line 1 line 2

# Durations

duration_minutes is round((completed_at - started_at) / 60s), empty when
either timestamp is missing or the result would be negative:

	started 09:00:00  completed 09:44:30   45
	started 09:00:00  completed 09:00:29   0
	started 09:00:00  completed (none)     (empty)
	started 10:00:00  completed 09:00:00   (empty)

# PDF Report

BuildReport assembles a ReportData view model:

	summary     log, step and photo counts, distinct customers
	logs        per activity: area, customer, worker, times, duration,
	            steps with photo thumbnails, signatures
	checklist   QA checks: activities completed, steps completed,
	            photo evidence, sign-off, no failed activities

Times are printed in the configured location. RenderHTML executes the
html/template, escaping every field. ChromeRenderer prints the HTML to an
A4 PDF with headless Chromium through chromedp, bounded by its timeout.
GeneratePDF wraps any PDFRenderer, rejects an empty document and hashes
the result.

PDFRenderer is an interface so tests and deployments without Chromium can
substitute a renderer. When pdf.enabled is false no renderer is built and
the orchestrator produces CSV-only exports.

# Usage

	set, err := content.GenerateCSV("tenant-a", "2026-03-01", records)
	if err != nil {
		return err
	}
	for _, t := range set.Tables() {
		fmt.Println(t.FileName, t.RowCount(), t.SHA256)
	}

	report := content.BuildReport(tenant, "2026-03-01", records, time.Now(), loc)
	doc, err := content.GeneratePDF(ctx, content.NewChromeRenderer("", 30*time.Second), report)

# Troubleshooting

"chromedp run failed" with an exec error means Chromium was not found;
set pdf.chromium_path. A context deadline error means the report took
longer than pdf.timeout to print, usually because thumbnail URLs are slow
or unreachable from the renderer.
*/
package content
