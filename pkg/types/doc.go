/*
Package types defines the core data model of the CleaniDoc export pipeline.

The types here are shared by every other package: the storage layer persists
them, the content generators render them, and the API serializes them. The
package depends on nothing but the standard library.

# Inputs

TenantExportSettings and ActivityRecord are read-only inputs. Settings are
owned by tenant administration and describe where an export is delivered
(email recipients, SFTP drop, signed webhook) and how long artifacts are
retained. ActivityRecords are produced by the field app; each holds an
ordered list of StepRecords with their PhotoRecords plus the sign-off
SignatureRecords.

	TenantExportSettings
	  └── ActivityRecord (per report date)
	        ├── StepRecord ── PhotoRecord
	        └── SignatureRecord

Retention falls back to DefaultRetentionDays when a tenant has none set.

# Tenant IDs

A tenant id becomes one segment of every object key of that tenant
(exports/<tenant>/<date>/...), so ValidateTenantID constrains it:

	empty                          rejected
	longer than 128 bytes          rejected
	"." or ".."                    rejected
	contains '/', '\' or ':'       rejected
	contains spaces or controls    rejected

With these rules one tenant's prefix can never contain or resolve to
another's. Storage rejects an unsafe id when settings are written, and the
orchestrator and retention sweep reject it again before building a key.

# Export Lifecycle

ExportRecord tracks one export per (tenant, report date), addressed by
ExportKey:

	PENDING → PROCESSING → COMPLETED
	                     ↘ FAILED

Once a record is terminal only its delivery fields (EmailSentAt,
SFTPUploadedAt, WebhookSentAt, WebhookResponseCode, DeliveryErrors) may be
written, through DeliveryUpdate. Artifacts maps each ArtifactKind to the
stored object and its SHA-256. ExportStats carries the counts rendered into
the manifest.

# Audit Trail

AuditEvent is one link of the hash chain. CurrentHash covers the actor,
action, resource, timestamp and PreviousHash; PreviousHash always equals the
CurrentHash of the event before it. ActorID is nil for system actions.
AuditFilter narrows queries; its zero value matches every event.

Report dates use DateLayout (YYYY-MM-DD) throughout.
*/
package types
