/*
Package storage persists the pipeline's state: export records, the audit
chain, tenant export settings and the activity records exported each day.

The package defines one interface per concern and a Store that combines
them. Consumers ask for the narrowest interface they need: the
orchestrator takes ExportStore, TenantStore and ActivityStore, the audit
service takes only AuditStore, and the scheduler only lists tenants and
finds records.

# Architecture

	┌───────────────────────────── Store ─────────────────────────────┐
	│                                                                   │
	│  ExportStore     Create / Update / RecordDelivery / Get / Find    │
	│                  / List, keyed by (tenant, report date)           │
	│  AuditStore      AppendAuditEvent / ListAuditEvents /             │
	│                  ScanAuditEvents, append only                     │
	│  TenantStore     ListTenants / GetTenant / PutTenant              │
	│  ActivityStore   ListActivities / PutActivity                     │
	│  Ping, Close                                                      │
	│                                                                   │
	└────────┬──────────────────────┬──────────────────────┬──────────┘
	         │                      │                      │
	┌────────▼────────┐   ┌─────────▼────────┐   ┌─────────▼────────┐
	│   BoltStore     │   │  PostgresStore   │   │   MemoryStore    │
	│ <dataDir>/      │   │ pgx pool, schema │   │ maps + mutex     │
	│ cleandoc.db     │   │ cleandoc-migrate │   │ tests, dry runs  │
	└─────────────────┘   └──────────────────┘   └──────────────────┘

The driver is chosen by store.driver in the configuration: bolt, the
default for a single node, or postgres when several replicas share
state. MemoryStore is only constructed directly.

# BoltDB Layout

Every entity lives in its own bucket with JSON values:

	┌──────────────────── cleandoc.db ─────────────────────┐
	│  exports      <tenant>:<date>  -> ExportRecord        │
	│  export_ids   <export id>      -> <tenant>:<date>     │
	│  audit        uint64 BE seq    -> AuditEvent          │
	│  tenants      <tenant>         -> TenantExportSettings│
	│  activities   <tenant>/<date>/<id> -> ActivityRecord  │
	└───────────────────────────────────────────────────────┘

Keying exports by (tenant, date) makes the idempotency check a single
Get. Audit keys are big-endian bucket sequences so a cursor walks the
chain in append order. Activity keys share the "<tenant>/<date>/" prefix
so one day's records are a prefix scan.

The id index lets GetExport resolve an export id without a scan. When a
record is replaced its old id entry is removed in the same transaction.

# Postgres Schema

Migrations holds the ordered schema applied by cleandoc-migrate:

	tenant_export_settings   one row per tenant, JSON settings
	activity_records         PRIMARY KEY (tenant_id, report_date, id)
	daily_exports            PRIMARY KEY id, UNIQUE (tenant_id, report_date)
	audit_logs               BIGSERIAL id, indexed by resource and action

A trigger on audit_logs rejects UPDATE and DELETE, so the append-only rule
holds even for clients that bypass this package.

# Export Records

CreateExport replaces an existing record for the same key; the old id
stops resolving. UpdateExport refuses to touch a COMPLETED or FAILED
record and returns ErrImmutable. Delivery results arrive after the record
is terminal and go through RecordDelivery, which only writes the
delivery fields and merges per-channel errors into the existing map.

	CreateExport      any state   -> new record for the key
	UpdateExport      PENDING, PROCESSING -> any state
	UpdateExport      COMPLETED, FAILED   -> ErrImmutable
	RecordDelivery    any state   -> delivery fields only

ListExports returns a tenant's records with the newest report date first.
A non-positive limit returns everything.

# Audit Chain

AppendAuditEvent hands the current tail to a BuildFunc and inserts the
result in the same transaction, so two writers can never link to the same
predecessor:

	BoltStore      one db.Update transaction
	PostgresStore  pg_advisory_xact_lock inside the insert transaction
	MemoryStore    the store mutex

The store assigns the event id. ListAuditEvents filters and returns the
newest events first; ScanAuditEvents returns events in chain order from
the first, which is what integrity checks need. In both, a non-positive
limit means no limit.

No store exposes an update or delete for audit events.

# Tenants

PutTenant rejects a nil tenant and any tenant id that types.ValidateTenantID
refuses. Tenant ids become object key segments, so an id holding a path
separator or a dot segment could reach another tenant's objects.

# Errors

	ErrNotFound    the export, tenant or event does not exist
	ErrImmutable   an update was attempted on a terminal export record

Both are sentinels and are matched with errors.Is. Driver errors are
wrapped with the operation that failed.

# Usage

Opening a BoltDB store:

	store, err := storage.NewBoltStore("/var/lib/cleandoc")
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := store.FindExport(ctx, "tenant-a", "2026-03-01")
	if errors.Is(err, storage.ErrNotFound) {
		// no run yet
	}

Opening Postgres after running cleandoc-migrate:

	store, err := storage.NewPostgresStore(ctx, "postgres://cleandoc@db/cleandoc")
	if err != nil {
		return err
	}
	defer store.Close()

Appending to the audit chain directly:

	ev, err := store.AppendAuditEvent(ctx, func(prev *types.AuditEvent) (*types.AuditEvent, error) {
		next := &types.AuditEvent{Action: "EXAMPLE", ResourceType: "tenant"}
		if prev != nil {
			next.PreviousHash = &prev.CurrentHash
		}
		return next, nil
	})

# Troubleshooting

BoltDB takes an exclusive file lock. A second process opening the same
data directory blocks until the open timeout and fails; run one-shot CLI
commands against a stopped server or point them at the API instead.

On Postgres a "relation does not exist" error means the migrations have
not been applied. Run cleandoc-migrate with the same DSN.
*/
package storage
