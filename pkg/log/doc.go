/*
Package log provides structured logging for the export pipeline using zerolog.

A single global Logger is configured once by Init, from the log section of
the service configuration. Components never create their own root loggers;
they derive child loggers carrying a component field and narrow them further
for the unit of work at hand:

	logger := log.WithComponent("orchestrator")
	logger = log.WithExport(logger, tenantID, reportDate)
	logger.Info().Str("export_id", id).Msg("Export completed")

# Configuration

	log:
	  level: info        # debug, info, warn, error
	  json: true         # one JSON object per line

The same settings come from CLEANDOC_LOG_LEVEL and CLEANDOC_LOG_JSON, and
the --log-level flag overrides both. ParseLevel maps an unknown level to
info rather than failing, so a typo never stops the service from starting.

Init sets the zerolog global level, stamps every line with service=cleandoc
and, when Config.Version is set, the build version. The CLI writes logs to
stderr so command output on stdout stays machine readable.

# Output

JSONOutput selects one JSON object per line (production); otherwise a
console writer with RFC 3339 timestamps is used. Output defaults to stdout.

	{"level":"info","service":"cleandoc","version":"1.4.0","component":"orchestrator",
	 "tenant_id":"tenant-a","report_date":"2026-03-01","export_id":"6f1c...",
	 "time":"2026-03-02T02:00:04Z","message":"Export completed"}

Until Init runs, Logger writes JSON to stdout, which is what package tests
see. Tests that assert on log lines build their own zerolog.New(&buf) and
hand it to the component; Nop returns a logger that discards everything.

# Levels

	debug  per-artifact detail, retry attempts
	info   run start and completion, scheduler ticks
	warn   swallowed failures (audit writes, single delivery channels)
	error  failed exports, failed scheduler runs

# Child Loggers

	WithComponent   component    one per package: api, audit, delivery,
	                             export, health, lock, objectstore,
	                             orchestrator, scheduler
	WithTenant      tenant_id    scheduler, per tenant of a daily run
	WithExport      tenant_id    orchestrator, per export run
	                report_date
	WithRequestID   request_id   API middleware, per HTTP request

Other field names used across the codebase: export_id, stage, channel,
attempt, key, job, action.

Tenant ids and export ids go into fields, never into messages, so log
queries can filter on them exactly.
*/
package log
