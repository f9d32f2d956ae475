package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cleanidoc/cleandoc/pkg/types"
)

// MemoryStore is an in-process Store. Records are deep-copied on the way
// in and out so callers never share state with the store.
type MemoryStore struct {
	mu         sync.Mutex
	exports    map[string]*types.ExportRecord // by key
	exportIDs  map[string]string              // id -> key
	audit      []*types.AuditEvent
	tenants    map[string]*types.TenantExportSettings
	activities map[string][]types.ActivityRecord // by tenant/date
	now        func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		exports:    make(map[string]*types.ExportRecord),
		exportIDs:  make(map[string]string),
		tenants:    make(map[string]*types.TenantExportSettings),
		activities: make(map[string][]types.ActivityRecord),
		now:        time.Now,
	}
}

func clone[T any](v *T) *T {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("storage: clone: %v", err))
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("storage: clone: %v", err))
	}
	return &out
}

// Ping implements Store
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// Close implements Store
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) CreateExport(ctx context.Context, rec *types.ExportRecord) error {
	if err := validateExport(rec); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.exports[rec.Key()]; ok {
		delete(s.exportIDs, old.ID)
	}
	s.exports[rec.Key()] = clone(rec)
	s.exportIDs[rec.ID] = rec.Key()
	return nil
}

func (s *MemoryStore) UpdateExport(ctx context.Context, rec *types.ExportRecord) error {
	if err := validateExport(rec); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.exports[rec.Key()]
	if !ok || current.ID != rec.ID {
		return fmt.Errorf("export %s: %w", rec.ID, ErrNotFound)
	}
	if current.Status.Terminal() {
		return fmt.Errorf("export %s is %s: %w", rec.ID, current.Status, ErrImmutable)
	}
	s.exports[rec.Key()] = clone(rec)
	return nil
}

func (s *MemoryStore) RecordDelivery(ctx context.Context, id string, upd types.DeliveryUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.exportIDs[id]
	if !ok {
		return fmt.Errorf("export %s: %w", id, ErrNotFound)
	}
	applyDelivery(s.exports[key], upd, s.now().UTC())
	return nil
}

func (s *MemoryStore) GetExport(ctx context.Context, id string) (*types.ExportRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.exportIDs[id]
	if !ok {
		return nil, fmt.Errorf("export %s: %w", id, ErrNotFound)
	}
	return clone(s.exports[key]), nil
}

func (s *MemoryStore) FindExport(ctx context.Context, tenantID, reportDate string) (*types.ExportRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.exports[types.ExportKey(tenantID, reportDate)]
	if !ok {
		return nil, fmt.Errorf("export %s: %w", types.ExportKey(tenantID, reportDate), ErrNotFound)
	}
	return clone(rec), nil
}

func (s *MemoryStore) ListExports(ctx context.Context, tenantID string, limit int) ([]*types.ExportRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []*types.ExportRecord
	for _, rec := range s.exports {
		if rec.TenantID == tenantID {
			records = append(records, clone(rec))
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ReportDate > records[j].ReportDate })
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *MemoryStore) AppendAuditEvent(ctx context.Context, build BuildFunc) (*types.AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prev *types.AuditEvent
	if n := len(s.audit); n > 0 {
		prev = clone(s.audit[n-1])
	}
	ev, err := build(prev)
	if err != nil {
		return nil, err
	}
	ev.ID = int64(len(s.audit) + 1)
	s.audit = append(s.audit, clone(ev))
	return ev, nil
}

func (s *MemoryStore) ListAuditEvents(ctx context.Context, filter types.AuditFilter, limit int) ([]*types.AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var events []*types.AuditEvent
	for i := len(s.audit) - 1; i >= 0; i-- {
		if !filter.Match(s.audit[i]) {
			continue
		}
		events = append(events, clone(s.audit[i]))
		if limit > 0 && len(events) >= limit {
			break
		}
	}
	return events, nil
}

func (s *MemoryStore) ScanAuditEvents(ctx context.Context, limit int) ([]*types.AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.audit)
	if limit > 0 && limit < n {
		n = limit
	}
	events := make([]*types.AuditEvent, 0, n)
	for _, ev := range s.audit[:n] {
		events = append(events, clone(ev))
	}
	return events, nil
}

// TamperAuditEvent overwrites a stored event. Tests use it to corrupt
// the chain.
func (s *MemoryStore) TamperAuditEvent(id int64, mutate func(ev *types.AuditEvent)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id < 1 || int(id) > len(s.audit) {
		return fmt.Errorf("audit event %d: %w", id, ErrNotFound)
	}
	mutate(s.audit[id-1])
	return nil
}

func (s *MemoryStore) ListTenants(ctx context.Context) ([]*types.TenantExportSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenants := make([]*types.TenantExportSettings, 0, len(s.tenants))
	for _, t := range s.tenants {
		tenants = append(tenants, clone(t))
	}
	sort.Slice(tenants, func(i, j int) bool { return tenants[i].TenantID < tenants[j].TenantID })
	return tenants, nil
}

func (s *MemoryStore) GetTenant(ctx context.Context, tenantID string) (*types.TenantExportSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tenants[tenantID]
	if !ok {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, ErrNotFound)
	}
	return clone(t), nil
}

func (s *MemoryStore) PutTenant(ctx context.Context, tenant *types.TenantExportSettings) error {
	if tenant == nil {
		return fmt.Errorf("tenant is required")
	}
	if err := types.ValidateTenantID(tenant.TenantID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tenants[tenant.TenantID] = clone(tenant)
	return nil
}

func (s *MemoryStore) ListActivities(ctx context.Context, tenantID, reportDate string) ([]types.ActivityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src := s.activities[tenantID+"/"+reportDate]
	out := make([]types.ActivityRecord, 0, len(src))
	for i := range src {
		out = append(out, *clone(&src[i]))
	}
	return out, nil
}

func (s *MemoryStore) PutActivity(ctx context.Context, rec *types.ActivityRecord) error {
	if rec == nil || rec.ID == "" || rec.TenantID == "" || rec.ReportDate == "" {
		return fmt.Errorf("activity requires id, tenant id and report date")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rec.TenantID + "/" + rec.ReportDate
	list := s.activities[key]
	for i := range list {
		if list[i].ID == rec.ID {
			list[i] = *clone(rec)
			return nil
		}
	}
	list = append(list, *clone(rec))
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	s.activities[key] = list
	return nil
}
