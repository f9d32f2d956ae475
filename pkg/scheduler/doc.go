/*
Package scheduler fires the two recurring jobs of the export pipeline.

The daily job exports yesterday for every enabled tenant. The weekly job
removes artifacts that outlived their tenant's retention. Both are plain
methods as well, so the API and the CLI can run either job on demand and
get its summary back.

# Architecture

	┌──────────────────────────────────────────────────────────┐
	│                 cron (seconds field, one TZ)             │
	└───────────────┬───────────────────────────┬──────────────┘
	                │ daily 0 0 2 * * *         │ weekly 0 0 3 * * 0
	                ▼                           ▼
	┌──────────────────────────────┐  ┌──────────────────────────────┐
	│ RunDaily(yesterday)          │  │ RunRetention                 │
	│  for each enabled tenant:    │  │  for each tenant:            │
	│   • record exists, not       │  │   • CleanupExpired(tenant,   │
	│     FAILED → skip            │  │     retention days)          │
	│   • GenerateDailyExport      │  │   • audit RETENTION_CLEANUP  │
	│   • error → audit, continue  │  │                              │
	│   • sleep TenantDelay        │  │                              │
	└──────────────────────────────┘  └──────────────────────────────┘

The scheduler depends on three narrow interfaces, so tests drive it with
fakes and production wires the real services:

	Store      ListTenants, FindExport          storage.Store
	Exporter   GenerateDailyExport              export.Orchestrator
	Cleaner    CleanupExpired                   objectstore.Gateway

# Cron Expressions

Expressions have a leading seconds field and are evaluated in one
location, scheduler.timezone in the configuration:

	DefaultDaily    0 0 2 * * *    every day at 02:00
	DefaultWeekly   0 0 3 * * 0    Sundays at 03:00

NewScheduler rejects an invalid expression at startup, so a typo in the
configuration fails the process instead of silently never firing.
NextRuns reports the next fire time of both jobs once Start has been
called.

Overlapping ticks of the same job are dropped with cron.SkipIfStillRunning
and a panicking job is recovered with cron.Recover, both logged through
the scheduler's zerolog logger.

# Daily Run

RunDaily resolves the report date to yesterday in the scheduler's location
when none is given, then walks the tenants one at a time:

	tenant disabled                  not considered
	record exists, not FAILED        skipped, schedule.skipped event
	record FAILED or missing         GenerateDailyExport
	ErrExportInProgress              skipped
	any other error                  SCHEDULED_EXPORT_FAILED audited, next tenant

The skip check lives here and not in the orchestrator: a manual trigger
always regenerates, the scheduled run does not. The daily job never
retries within a run; a tenant whose export FAILED is picked up again by
the next run or by a manual trigger.

TenantDelay is slept between two tenants to spread load on the renderer
and the object store. A cancelled context ends the sleep and returns the
partial summary.

# Retention Run

RunRetention sweeps every tenant, disabled ones included, with the
tenant's retention in days or the default of two years when unset. Every
tenant gets a RETENTION_CLEANUP audit event carrying the scanned, deleted
and failed counts and the cutoff, or the error. A failing tenant does not
stop the sweep. The run ends with one retention.swept event.

# Summaries

	DailySummary       report_date, exported, skipped, failed (tenant -> error)
	RetentionSummary   per-tenant CleanupResult, deleted total, failed

Runs and per-tenant outcomes are counted in cleandoc_scheduler_runs_total
and cleandoc_scheduler_tenants_total.

# Lifecycle

	s, err := scheduler.NewScheduler(scheduler.Config{
		Daily:       cfg.Scheduler.Daily,
		Weekly:      cfg.Scheduler.Weekly,
		Location:    loc,
		TenantDelay: time.Second,
	}, scheduler.Deps{
		Store:    store,
		Exporter: orchestrator,
		Cleaner:  gateway,
		Audit:    auditService,
		Events:   broker,
	})
	if err != nil {
		return err
	}
	s.Start()
	defer s.Stop()

Stop cancels the context handed to running jobs and waits for them to
return. An export interrupted this way ends FAILED and is retried by the
next daily run.

Running a job by hand:

	sum, err := s.RunDaily(ctx, "2026-03-01")
	fmt.Printf("exported %d, skipped %d, failed %d\n",
		len(sum.Exported), len(sum.Skipped), len(sum.Failed))

# Integration Points

POST /v1/scheduler/daily (optional ?date=) and POST /v1/scheduler/retention
call RunDaily and RunRetention and return their summaries. The CLI offers
"cleandoc export daily" and "cleandoc retention sweep". "cleandoc serve"
starts the scheduler when scheduler.enabled is true.

# Troubleshooting

A tenant that never gets exported is usually disabled or already has a
PROCESSING record left by a crashed process; the scheduler skips any
non-FAILED record. Trigger a manual export for that date to replace it.
*/
package scheduler
