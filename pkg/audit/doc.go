/*
Package audit records significant actions as a tamper-evident hash chain.

Every export start, completion, failure and link re-issue, every failed
scheduled export, every retention sweep and every seeded tenant ends up
here as an append-only event. The package owns the hashing rule and the
integrity check; storage only has to keep events in append order and
serialize writers.

# Architecture

	┌──────────────── callers ─────────────────┐
	│ export.Orchestrator   scheduler jobs      │
	│ api handlers          cleandoc seed       │
	└────────────────────┬──────────────────────┘
	                     │ Entry + ctx (actor, client info)
	┌────────────────────▼──────────────────────┐
	│               audit.Service                │
	│  resolve actor → encode values → hash      │
	└────────────────────┬──────────────────────┘
	                     │ AppendAuditEvent(build)
	┌────────────────────▼──────────────────────┐
	│          storage.AuditStore                │
	│  read tail + insert in one transaction     │
	└────────────────────────────────────────────┘

# Hash Chain

Every event stores the current_hash of its predecessor and its own hash:

	current_hash = hex(SHA-256(JSON{actor, action, resource, timestamp, previous_hash}))

where resource is "<type>:<id>" and timestamp is RFC3339Nano in UTC. The
JSON document is encoded from a fixed struct so the field order never
changes. The first event of a chain has a null previous_hash.

	┌──────────┐   ┌──────────┐   ┌──────────┐
	│ event 1  │   │ event 2  │   │ event 3  │
	│ prev nil │◄──│ prev h1  │◄──│ prev h2  │
	│ hash h1  │   │ hash h2  │   │ hash h3  │
	└──────────┘   └──────────┘   └──────────┘

Only the five chained fields are hashed. Old and new values, the client
IP, the user agent and the status are stored next to the hash but do not
feed it, so they can be encoded as free-form JSON without affecting
verification.

Timestamps are truncated to microseconds before hashing. Postgres keeps
microsecond precision, and a nanosecond timestamp would hash differently
after a round trip.

# Writing Events

LogAction reads the tail and inserts through storage.AuditStore's
AppendAuditEvent, which holds one transaction for both steps so racing
writers cannot fork the chain. The service passes a build function; the
store calls it with the current tail and persists what it returns.

Audit logging observes the pipeline and never gates it:

	actor cannot be resolved   event skipped, warning logged, nil, nil
	append fails               LogAction returns the error
	Record                     calls LogAction, logs and swallows errors

Outcomes are counted in cleandoc_audit_events_total with the result label
written, skipped or failed.

# Actions

	EXPORT_STARTED            a run created its record
	EXPORT_COMPLETED          a run reached COMPLETED
	EXPORT_FAILED             a run reached FAILED, with stage and error
	EXPORT_LINKS_ISSUED       fresh links minted for an export
	SCHEDULED_EXPORT_FAILED   the daily job could not export a tenant
	RETENTION_CLEANUP         objects removed for a tenant
	TENANT_SEEDED             tenant settings loaded from a seed file

Resource types are daily_export and tenant.

# Verification

VerifyIntegrity walks the chain from the first event, recomputes each
hash from its recorded inputs and compares each previous_hash with the
actual predecessor:

	hash_mismatch            stored current_hash differs from the recomputed one
	previous_hash_mismatch   previous_hash does not name the predecessor

Rewriting one event's hash shows up as a hash_mismatch at that event and a
previous_hash_mismatch at the next. Deleting an event shows up as a
previous_hash_mismatch at its successor. The number of errors found by
the last check is exported as cleandoc_audit_integrity_errors.

# Context

The acting user and client metadata travel in the context. A context
without an actor records a system action with a null actor:

	ctx = audit.WithActor(ctx, "user-42")
	ctx = audit.WithClientInfo(ctx, c.ClientIP(), c.Request.UserAgent())

A custom ActorResolver can be installed with WithActorResolver, for
example to refuse events when an identity service is unreachable.

# Usage

Recording an action:

	svc := audit.NewService(store)
	svc.Record(ctx, audit.Entry{
		Action:       audit.ActionExportStarted,
		ResourceType: audit.ResourceDailyExport,
		ResourceID:   exportID,
		ResourceName: "tenant-a:2026-03-01",
	})

Checking the chain:

	report, err := svc.VerifyIntegrity(ctx, 0)
	if err != nil {
		return err
	}
	if !report.Valid {
		for _, e := range report.Errors {
			fmt.Printf("event %d: %s\n", e.EventID, e.Kind)
		}
	}

Querying the log:

	events, err := svc.GetAuditLog(ctx, types.AuditFilter{
		ResourceType: audit.ResourceDailyExport,
		ResourceID:   exportID,
	}, 100)

# Integration Points

The API serves GetAuditLog under GET /v1/audit with action, resource_type,
resource_id, actor_id, from, to and limit query parameters, and
VerifyIntegrity under GET /v1/audit/verify. A broken chain is a 200 with
valid=false. The CLI equivalents are "cleandoc audit log" and "cleandoc
audit verify"; the latter exits non-zero on a broken chain.

# Troubleshooting

A hash_mismatch on a single event with no neighbouring errors means one
of its chained fields was edited in place. A run of
previous_hash_mismatch errors after a gap in ids usually means events were
deleted. On Postgres both are blocked by a trigger, so either finding
points at direct database access.

Skipped events leave no trace in the chain. Watch the skipped label of
cleandoc_audit_events_total when using a custom ActorResolver.
*/
package audit
