package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// DateLayout is the wire format of a report date
const DateLayout = "2006-01-02"

// DefaultRetentionDays is applied when a tenant does not set its own retention
const DefaultRetentionDays = 730

// TenantExportSettings holds the per-tenant export and delivery configuration
type TenantExportSettings struct {
	TenantID        string        `json:"tenant_id" yaml:"tenant_id"`
	Name            string        `json:"name" yaml:"name"`
	Enabled         bool          `json:"enabled" yaml:"enabled"`
	RetentionDays   int           `json:"retention_days" yaml:"retention_days"`
	EmailRecipients []string      `json:"email_recipients,omitempty" yaml:"email_recipients"`
	SFTP            *SFTPSettings `json:"sftp,omitempty" yaml:"sftp"`
	WebhookURL      string        `json:"webhook_url,omitempty" yaml:"webhook_url"`
	WebhookSecret   string        `json:"webhook_secret,omitempty" yaml:"webhook_secret"`
	IncludePDF      bool          `json:"include_pdf" yaml:"include_pdf"`
	IncludeCSV      bool          `json:"include_csv" yaml:"include_csv"`
	Timezone        string        `json:"timezone,omitempty" yaml:"timezone"`
}

// Retention returns the effective retention in days
func (t *TenantExportSettings) Retention() int {
	if t.RetentionDays <= 0 {
		return DefaultRetentionDays
	}
	return t.RetentionDays
}

// SFTPSettings describes a tenant's SFTP drop location
type SFTPSettings struct {
	Host       string `json:"host" yaml:"host"`
	Port       int    `json:"port,omitempty" yaml:"port"`
	Username   string `json:"username" yaml:"username"`
	Password   string `json:"password,omitempty" yaml:"password"`
	PrivateKey string `json:"private_key,omitempty" yaml:"private_key"` // PEM
	HostKey    string `json:"host_key,omitempty" yaml:"host_key"`       // authorized_keys format
	RemotePath string `json:"remote_path,omitempty" yaml:"remote_path"`
}

// ActivityStatus is the state of a single cleaning activity
type ActivityStatus string

const (
	ActivityStatusPending    ActivityStatus = "pending"
	ActivityStatusInProgress ActivityStatus = "in_progress"
	ActivityStatusCompleted  ActivityStatus = "completed"
	ActivityStatusFailed     ActivityStatus = "failed"
)

// Valid reports whether s is a known activity status
func (s ActivityStatus) Valid() bool {
	switch s {
	case ActivityStatusPending, ActivityStatusInProgress, ActivityStatusCompleted, ActivityStatusFailed:
		return true
	}
	return false
}

// ActivityRecord is one cleaning log entry as captured by the field app.
// The pipeline reads these and never mutates them.
type ActivityRecord struct {
	ID           string            `json:"id" yaml:"id"`
	TenantID     string            `json:"tenant_id" yaml:"tenant_id"`
	ReportDate   string            `json:"report_date" yaml:"report_date"`
	AreaID       string            `json:"area_id" yaml:"area_id"`
	AreaName     string            `json:"area_name" yaml:"area_name"`
	CustomerName string            `json:"customer_name" yaml:"customer_name"`
	Status       ActivityStatus    `json:"status" yaml:"status"`
	StartedAt    *time.Time        `json:"started_at,omitempty" yaml:"started_at"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty" yaml:"completed_at"`
	WorkerID     string            `json:"worker_id,omitempty" yaml:"worker_id"`
	WorkerName   string            `json:"worker_name,omitempty" yaml:"worker_name"`
	Notes        string            `json:"notes,omitempty" yaml:"notes"`
	Steps        []StepRecord      `json:"steps,omitempty" yaml:"steps"`
	Signatures   []SignatureRecord `json:"signatures,omitempty" yaml:"signatures"`
}

// PhotoCount returns the number of photos across all steps
func (a *ActivityRecord) PhotoCount() int {
	n := 0
	for _, s := range a.Steps {
		n += len(s.Photos)
	}
	return n
}

// CompletedSteps returns the number of steps marked completed
func (a *ActivityRecord) CompletedSteps() int {
	n := 0
	for _, s := range a.Steps {
		if s.Completed {
			n++
		}
	}
	return n
}

// StepRecord is a single step of a cleaning procedure
type StepRecord struct {
	Index            int           `json:"index" yaml:"index"`
	Name             string        `json:"name" yaml:"name"`
	Chemical         string        `json:"chemical,omitempty" yaml:"chemical"`
	DwellTimeMinutes int           `json:"dwell_time_minutes,omitempty" yaml:"dwell_time_minutes"`
	Completed        bool          `json:"completed" yaml:"completed"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty" yaml:"completed_at"`
	Notes            string        `json:"notes,omitempty" yaml:"notes"`
	Photos           []PhotoRecord `json:"photos,omitempty" yaml:"photos"`
}

// PhotoRecord is the metadata of a photo attached to a step
type PhotoRecord struct {
	ID           string     `json:"id" yaml:"id"`
	StoragePath  string     `json:"storage_path" yaml:"storage_path"`
	ThumbnailURL string     `json:"thumbnail_url,omitempty" yaml:"thumbnail_url"`
	ContentType  string     `json:"content_type" yaml:"content_type"`
	Width        int        `json:"width" yaml:"width"`
	Height       int        `json:"height" yaml:"height"`
	SHA256       string     `json:"sha256" yaml:"sha256"`
	TakenAt      *time.Time `json:"taken_at,omitempty" yaml:"taken_at"`
}

// SignatureRecord is a sign-off captured on the activity
type SignatureRecord struct {
	Role       string     `json:"role" yaml:"role"`
	SignerName string     `json:"signer_name" yaml:"signer_name"`
	SignedAt   *time.Time `json:"signed_at,omitempty" yaml:"signed_at"`
}

// ExportStatus is the lifecycle state of an export run
type ExportStatus string

const (
	ExportStatusPending    ExportStatus = "PENDING"
	ExportStatusProcessing ExportStatus = "PROCESSING"
	ExportStatusCompleted  ExportStatus = "COMPLETED"
	ExportStatusFailed     ExportStatus = "FAILED"
)

// Terminal reports whether no further state transition is allowed
func (s ExportStatus) Terminal() bool {
	return s == ExportStatusCompleted || s == ExportStatusFailed
}

// ArtifactKind identifies one file produced by an export
type ArtifactKind string

const (
	ArtifactLogsCSV   ArtifactKind = "logs_csv"
	ArtifactStepsCSV  ArtifactKind = "steps_csv"
	ArtifactPhotosCSV ArtifactKind = "photos_csv"
	ArtifactPDF       ArtifactKind = "pdf"
	ArtifactManifest  ArtifactKind = "manifest"
	ArtifactChecksums ArtifactKind = "checksums"
	ArtifactArchive   ArtifactKind = "archive"
)

// ArtifactRef points at a stored artifact
type ArtifactRef struct {
	Key         string `json:"key"`
	FileName    string `json:"file_name"`
	Size        int64  `json:"size"`
	SHA256      string `json:"sha256"`
	ContentType string `json:"content_type"`
}

// ExportRecord is the persisted state of one (tenant, report date) export
type ExportRecord struct {
	ID         string       `json:"id"`
	TenantID   string       `json:"tenant_id"`
	ReportDate string       `json:"report_date"`
	Status     ExportStatus `json:"status"`

	Artifacts map[ArtifactKind]ArtifactRef `json:"artifacts,omitempty"`

	TotalLogs        int   `json:"total_logs"`
	CompletedLogs    int   `json:"completed_logs"`
	FailedLogs       int   `json:"failed_logs"`
	TotalSteps       int   `json:"total_steps"`
	TotalPhotos      int   `json:"total_photos"`
	TotalSizeBytes   int64 `json:"total_size_bytes"`
	ProcessingTimeMs int64 `json:"processing_time_ms"`

	EmailSentAt         *time.Time        `json:"email_sent_at,omitempty"`
	SFTPUploadedAt      *time.Time        `json:"sftp_uploaded_at,omitempty"`
	WebhookSentAt       *time.Time        `json:"webhook_sent_at,omitempty"`
	WebhookResponseCode int               `json:"webhook_response_code,omitempty"`
	DeliveryErrors      map[string]string `json:"delivery_errors,omitempty"`

	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Key returns the idempotency key of the record
func (r *ExportRecord) Key() string {
	return ExportKey(r.TenantID, r.ReportDate)
}

// MaxTenantIDLength bounds tenant ids, which appear in object keys
const MaxTenantIDLength = 128

// ValidateTenantID checks that id can be used as one object key segment.
// Separators and dot segments are rejected so one tenant's prefix can never
// contain or resolve to another's.
func ValidateTenantID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("tenant id is required")
	case len(id) > MaxTenantIDLength:
		return fmt.Errorf("tenant id is longer than %d bytes", MaxTenantIDLength)
	case id == "." || id == "..":
		return fmt.Errorf("tenant id %q is not allowed", id)
	case strings.ContainsAny(id, `/\:`):
		return fmt.Errorf("tenant id %q must not contain '/', '\\' or ':'", id)
	}
	for _, r := range id {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return fmt.Errorf("tenant id %q must not contain spaces or control characters", id)
		}
	}
	return nil
}

// ExportKey builds the (tenant, date) idempotency key
func ExportKey(tenantID, reportDate string) string {
	return tenantID + ":" + reportDate
}

// DeliveryUpdate carries the delivery outcome written onto a terminal record
type DeliveryUpdate struct {
	EmailSentAt         *time.Time
	SFTPUploadedAt      *time.Time
	WebhookSentAt       *time.Time
	WebhookResponseCode int
	Errors              map[string]string
}

// ExportStats summarizes the content of an export
type ExportStats struct {
	TotalLogs      int   `json:"total_logs"`
	CompletedLogs  int   `json:"completed_logs"`
	FailedLogs     int   `json:"failed_logs"`
	TotalSteps     int   `json:"total_steps"`
	TotalPhotos    int   `json:"total_photos"`
	TotalSizeBytes int64 `json:"total_size_bytes"`
}

// AuditEvent is one entry of the hash-chained audit trail
type AuditEvent struct {
	ID           int64           `json:"id"`
	ActorID      *string         `json:"actor_id"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id"`
	ResourceName string          `json:"resource_name,omitempty"`
	OldValues    json.RawMessage `json:"old_values,omitempty"`
	NewValues    json.RawMessage `json:"new_values,omitempty"`
	PreviousHash *string         `json:"previous_hash"`
	CurrentHash  string          `json:"current_hash"`
	IPAddress    string          `json:"ip_address,omitempty"`
	UserAgent    string          `json:"user_agent,omitempty"`
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
}

// AuditFilter narrows an audit log query. Zero fields match everything.
type AuditFilter struct {
	Action       string
	ResourceType string
	ResourceID   string
	ActorID      string
	From         time.Time
	To           time.Time
}

// Match reports whether ev satisfies the filter
func (f AuditFilter) Match(ev *AuditEvent) bool {
	if f.Action != "" && ev.Action != f.Action {
		return false
	}
	if f.ResourceType != "" && ev.ResourceType != f.ResourceType {
		return false
	}
	if f.ResourceID != "" && ev.ResourceID != f.ResourceID {
		return false
	}
	if f.ActorID != "" && (ev.ActorID == nil || *ev.ActorID != f.ActorID) {
		return false
	}
	if !f.From.IsZero() && ev.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && ev.CreatedAt.After(f.To) {
		return false
	}
	return true
}
