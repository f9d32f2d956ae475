package storage

import (
	"context"
	"errors"
	"time"

	"github.com/cleanidoc/cleandoc/pkg/types"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("not found")

	// ErrImmutable is returned when a terminal export record is updated
	ErrImmutable = errors.New("export record is terminal")
)

// ExportStore persists ExportRecords keyed by (tenant, report date)
type ExportStore interface {
	// CreateExport inserts rec, replacing any record with the same key
	CreateExport(ctx context.Context, rec *types.ExportRecord) error

	// UpdateExport overwrites a non-terminal record
	UpdateExport(ctx context.Context, rec *types.ExportRecord) error

	// RecordDelivery writes delivery outcome fields only
	RecordDelivery(ctx context.Context, id string, upd types.DeliveryUpdate) error

	GetExport(ctx context.Context, id string) (*types.ExportRecord, error)
	FindExport(ctx context.Context, tenantID, reportDate string) (*types.ExportRecord, error)

	// ListExports returns a tenant's records, newest report date first
	ListExports(ctx context.Context, tenantID string, limit int) ([]*types.ExportRecord, error)
}

// BuildFunc produces the next audit event given the current tail of the
// chain (nil when the chain is empty)
type BuildFunc func(prev *types.AuditEvent) (*types.AuditEvent, error)

// AuditStore is the append-only audit log
type AuditStore interface {
	// AppendAuditEvent reads the tail and inserts the built event
	// atomically. The store assigns ID.
	AppendAuditEvent(ctx context.Context, build BuildFunc) (*types.AuditEvent, error)

	// ListAuditEvents returns matching events, newest first
	ListAuditEvents(ctx context.Context, filter types.AuditFilter, limit int) ([]*types.AuditEvent, error)

	// ScanAuditEvents returns events in chain order starting from the first
	ScanAuditEvents(ctx context.Context, limit int) ([]*types.AuditEvent, error)
}

// TenantStore holds tenant export settings
type TenantStore interface {
	ListTenants(ctx context.Context) ([]*types.TenantExportSettings, error)
	GetTenant(ctx context.Context, tenantID string) (*types.TenantExportSettings, error)
	PutTenant(ctx context.Context, tenant *types.TenantExportSettings) error
}

// ActivityStore holds the cleaning activity records exported each day
type ActivityStore interface {
	ListActivities(ctx context.Context, tenantID, reportDate string) ([]types.ActivityRecord, error)
	PutActivity(ctx context.Context, rec *types.ActivityRecord) error
}

// Store is the full persistence surface of the pipeline
type Store interface {
	ExportStore
	AuditStore
	TenantStore
	ActivityStore

	// Ping reports whether the store is reachable
	Ping(ctx context.Context) error
	Close() error
}

// applyDelivery merges a delivery update into rec
func applyDelivery(rec *types.ExportRecord, upd types.DeliveryUpdate, now time.Time) {
	if upd.EmailSentAt != nil {
		rec.EmailSentAt = upd.EmailSentAt
	}
	if upd.SFTPUploadedAt != nil {
		rec.SFTPUploadedAt = upd.SFTPUploadedAt
	}
	if upd.WebhookSentAt != nil {
		rec.WebhookSentAt = upd.WebhookSentAt
	}
	if upd.WebhookResponseCode != 0 {
		rec.WebhookResponseCode = upd.WebhookResponseCode
	}
	if len(upd.Errors) > 0 {
		if rec.DeliveryErrors == nil {
			rec.DeliveryErrors = make(map[string]string, len(upd.Errors))
		}
		for ch, msg := range upd.Errors {
			rec.DeliveryErrors[ch] = msg
		}
	}
	rec.UpdatedAt = now
}

func validateExport(rec *types.ExportRecord) error {
	if rec == nil || rec.ID == "" || rec.TenantID == "" || rec.ReportDate == "" {
		return errors.New("export record requires id, tenant id and report date")
	}
	return nil
}
