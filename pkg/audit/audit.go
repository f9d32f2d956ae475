package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cleanidoc/cleandoc/pkg/log"
	"github.com/cleanidoc/cleandoc/pkg/metrics"
	"github.com/cleanidoc/cleandoc/pkg/storage"
	"github.com/cleanidoc/cleandoc/pkg/types"
	"github.com/rs/zerolog"
)

// Actions recorded by the pipeline
const (
	ActionExportStarted         = "EXPORT_STARTED"
	ActionExportCompleted       = "EXPORT_COMPLETED"
	ActionExportFailed          = "EXPORT_FAILED"
	ActionExportLinksIssued     = "EXPORT_LINKS_ISSUED"
	ActionScheduledExportFailed = "SCHEDULED_EXPORT_FAILED"
	ActionRetentionCleanup      = "RETENTION_CLEANUP"
	ActionTenantSeeded          = "TENANT_SEEDED"
)

// Resource types
const (
	ResourceDailyExport = "daily_export"
	ResourceTenant      = "tenant"
)

// Event statuses
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Mismatch kinds reported by VerifyIntegrity
const (
	KindHashMismatch         = "hash_mismatch"
	KindPreviousHashMismatch = "previous_hash_mismatch"
)

// Entry describes an action to record
type Entry struct {
	Action       string
	ResourceType string
	ResourceID   string
	ResourceName string
	OldValues    any
	NewValues    any
	Status       string
}

// Receipt is returned for a recorded action
type Receipt struct {
	ID          int64     `json:"id"`
	CurrentHash string    `json:"current_hash"`
	Timestamp   time.Time `json:"timestamp"`
}

// IntegrityError is one discrepancy found by VerifyIntegrity
type IntegrityError struct {
	EventID  int64  `json:"event_id"`
	Kind     string `json:"kind"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// Report is the result of VerifyIntegrity
type Report struct {
	Valid   bool             `json:"valid"`
	Checked int              `json:"checked"`
	Errors  []IntegrityError `json:"errors"`
}

// ActorResolver returns the acting user of ctx, nil for system actions
type ActorResolver func(ctx context.Context) (*string, error)

// Service records actions as a hash-linked append-only log
type Service struct {
	store        storage.AuditStore
	resolveActor ActorResolver
	now          func() time.Time
	logger       zerolog.Logger
}

// NewService creates an audit service on store. The actor is read from
// the context (see WithActor).
func NewService(store storage.AuditStore) *Service {
	return &Service{
		store:        store,
		resolveActor: actorFromContext,
		now:          time.Now,
		logger:       log.WithComponent("audit"),
	}
}

// WithClock replaces the time source
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithActorResolver replaces the actor lookup
func (s *Service) WithActorResolver(r ActorResolver) *Service {
	s.resolveActor = r
	return s
}

// hashInput is the fixed-order document hashed into current_hash
type hashInput struct {
	Actor        *string `json:"actor"`
	Action       string  `json:"action"`
	Resource     string  `json:"resource"`
	Timestamp    string  `json:"timestamp"`
	PreviousHash *string `json:"previous_hash"`
}

// ComputeHash returns the chain hash of an event's recorded inputs
func ComputeHash(actor *string, action, resourceType, resourceID string, ts time.Time, previousHash *string) string {
	data, _ := json.Marshal(hashInput{
		Actor:        actor,
		Action:       action,
		Resource:     resourceType + ":" + resourceID,
		Timestamp:    ts.UTC().Format(time.RFC3339Nano),
		PreviousHash: previousHash,
	})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func eventHash(ev *types.AuditEvent) string {
	return ComputeHash(ev.ActorID, ev.Action, ev.ResourceType, ev.ResourceID, ev.CreatedAt, ev.PreviousHash)
}

func marshalValues(v any) (json.RawMessage, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return val, nil
	case []byte:
		return json.RawMessage(val), nil
	}
	return json.Marshal(v)
}

// LogAction appends an event for e. When the actor cannot be resolved the
// action is skipped with a warning and LogAction returns nil, nil.
func (s *Service) LogAction(ctx context.Context, e Entry) (*Receipt, error) {
	if e.Action == "" || e.ResourceType == "" {
		return nil, fmt.Errorf("action and resource type are required")
	}

	actor, err := s.resolveActor(ctx)
	if err != nil {
		metrics.AuditEventsTotal.WithLabelValues("skipped").Inc()
		s.logger.Warn().Err(err).Str("action", e.Action).Msg("Could not resolve actor, audit event skipped")
		return nil, nil
	}

	oldValues, err := marshalValues(e.OldValues)
	if err != nil {
		return nil, fmt.Errorf("failed to encode old values: %w", err)
	}
	newValues, err := marshalValues(e.NewValues)
	if err != nil {
		return nil, fmt.Errorf("failed to encode new values: %w", err)
	}

	status := e.Status
	if status == "" {
		status = StatusSuccess
	}
	client := ClientInfoFrom(ctx)
	// postgres stores microseconds
	ts := s.now().UTC().Truncate(time.Microsecond)

	ev, err := s.store.AppendAuditEvent(ctx, func(prev *types.AuditEvent) (*types.AuditEvent, error) {
		ev := &types.AuditEvent{
			ActorID:      actor,
			Action:       e.Action,
			ResourceType: e.ResourceType,
			ResourceID:   e.ResourceID,
			ResourceName: e.ResourceName,
			OldValues:    oldValues,
			NewValues:    newValues,
			IPAddress:    client.IPAddress,
			UserAgent:    client.UserAgent,
			Status:       status,
			CreatedAt:    ts,
		}
		if prev != nil {
			h := prev.CurrentHash
			ev.PreviousHash = &h
		}
		ev.CurrentHash = eventHash(ev)
		return ev, nil
	})
	if err != nil {
		metrics.AuditEventsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("failed to append audit event: %w", err)
	}

	metrics.AuditEventsTotal.WithLabelValues("written").Inc()
	s.logger.Debug().
		Int64("id", ev.ID).
		Str("action", ev.Action).
		Str("resource", ev.ResourceType+":"+ev.ResourceID).
		Msg("Audit event recorded")

	return &Receipt{ID: ev.ID, CurrentHash: ev.CurrentHash, Timestamp: ev.CreatedAt}, nil
}

// Record calls LogAction and logs any failure instead of returning it
func (s *Service) Record(ctx context.Context, e Entry) *Receipt {
	if s == nil {
		return nil
	}
	receipt, err := s.LogAction(ctx, e)
	if err != nil {
		s.logger.Warn().Err(err).Str("action", e.Action).Str("resource_id", e.ResourceID).Msg("Audit logging failed")
		return nil
	}
	return receipt
}

// VerifyIntegrity replays up to limit events (all when limit <= 0) from
// the start of the chain and reports every discrepancy
func (s *Service) VerifyIntegrity(ctx context.Context, limit int) (*Report, error) {
	events, err := s.store.ScanAuditEvents(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}

	report := &Report{Checked: len(events), Errors: []IntegrityError{}}
	for i, ev := range events {
		if expected := eventHash(ev); expected != ev.CurrentHash {
			report.Errors = append(report.Errors, IntegrityError{
				EventID:  ev.ID,
				Kind:     KindHashMismatch,
				Expected: expected,
				Actual:   ev.CurrentHash,
			})
		}

		var expectedPrev string
		if i > 0 {
			expectedPrev = events[i-1].CurrentHash
		}
		actualPrev := ""
		if ev.PreviousHash != nil {
			actualPrev = *ev.PreviousHash
		}
		if (i == 0) != (ev.PreviousHash == nil) || actualPrev != expectedPrev {
			report.Errors = append(report.Errors, IntegrityError{
				EventID:  ev.ID,
				Kind:     KindPreviousHashMismatch,
				Expected: expectedPrev,
				Actual:   actualPrev,
			})
		}
	}
	report.Valid = len(report.Errors) == 0

	metrics.AuditIntegrityErrors.Set(float64(len(report.Errors)))
	if !report.Valid {
		s.logger.Error().
			Int("checked", report.Checked).
			Int("errors", len(report.Errors)).
			Int64("first_event_id", report.Errors[0].EventID).
			Msg("Audit chain integrity check failed")
	}
	return report, nil
}

// GetAuditLog returns events matching filter, newest first
func (s *Service) GetAuditLog(ctx context.Context, filter types.AuditFilter, limit int) ([]*types.AuditEvent, error) {
	return s.store.ListAuditEvents(ctx, filter, limit)
}
