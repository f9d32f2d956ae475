package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/cleanidoc/cleandoc/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExport(id, tenant, date string, status types.ExportStatus) *types.ExportRecord {
	now := time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC)
	return &types.ExportRecord{
		ID:         id,
		TenantID:   tenant,
		ReportDate: date,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// storeFactories returns every Store implementation available to the test run
func storeFactories(t *testing.T) map[string]func(t *testing.T) Store {
	factories := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"bolt": func(t *testing.T) Store {
			s, err := NewBoltStore(t.TempDir())
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
	if dsn := os.Getenv("CLEANDOC_TEST_POSTGRES_DSN"); dsn != "" {
		factories["postgres"] = func(t *testing.T) Store {
			ctx := context.Background()
			s, err := NewPostgresStore(ctx, dsn)
			require.NoError(t, err)
			_, err = Migrate(ctx, s.Pool(), false)
			require.NoError(t, err)
			_, err = s.Pool().Exec(ctx, `TRUNCATE daily_exports, audit_logs, tenant_export_settings, activity_records RESTART IDENTITY`)
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		}
	}
	return factories
}

// TestExportLifecycle tests create, update, terminal immutability and delivery updates
func TestExportLifecycle(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()

			rec := newExport("exp-1", "tenant-a", "2026-03-01", types.ExportStatusPending)
			require.NoError(t, s.CreateExport(ctx, rec))

			found, err := s.FindExport(ctx, "tenant-a", "2026-03-01")
			require.NoError(t, err)
			assert.Equal(t, "exp-1", found.ID)

			rec.Status = types.ExportStatusProcessing
			require.NoError(t, s.UpdateExport(ctx, rec))

			rec.Status = types.ExportStatusCompleted
			rec.TotalLogs = 3
			require.NoError(t, s.UpdateExport(ctx, rec))

			rec.TotalLogs = 99
			err = s.UpdateExport(ctx, rec)
			assert.ErrorIs(t, err, ErrImmutable)

			sent := time.Date(2026, 3, 2, 2, 1, 0, 0, time.UTC)
			require.NoError(t, s.RecordDelivery(ctx, "exp-1", types.DeliveryUpdate{
				EmailSentAt:         &sent,
				WebhookResponseCode: 202,
				Errors:              map[string]string{"sftp": "connection refused"},
			}))

			got, err := s.GetExport(ctx, "exp-1")
			require.NoError(t, err)
			assert.Equal(t, types.ExportStatusCompleted, got.Status)
			assert.Equal(t, 3, got.TotalLogs)
			require.NotNil(t, got.EmailSentAt)
			assert.True(t, sent.Equal(*got.EmailSentAt))
			assert.Nil(t, got.SFTPUploadedAt)
			assert.Equal(t, 202, got.WebhookResponseCode)
			assert.Equal(t, "connection refused", got.DeliveryErrors["sftp"])
		})
	}
}

func TestExportNotFound(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()

			_, err := s.GetExport(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = s.FindExport(ctx, "tenant-a", "2026-03-01")
			assert.ErrorIs(t, err, ErrNotFound)
			err = s.UpdateExport(ctx, newExport("missing", "tenant-a", "2026-03-01", types.ExportStatusProcessing))
			assert.ErrorIs(t, err, ErrNotFound)
			err = s.RecordDelivery(ctx, "missing", types.DeliveryUpdate{})
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

// TestCreateExportReplacesKey tests that a re-run replaces the record for its key
func TestCreateExportReplacesKey(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()

			require.NoError(t, s.CreateExport(ctx, newExport("exp-1", "tenant-a", "2026-03-01", types.ExportStatusCompleted)))
			require.NoError(t, s.CreateExport(ctx, newExport("exp-2", "tenant-a", "2026-03-01", types.ExportStatusPending)))

			found, err := s.FindExport(ctx, "tenant-a", "2026-03-01")
			require.NoError(t, err)
			assert.Equal(t, "exp-2", found.ID)

			_, err = s.GetExport(ctx, "exp-1")
			assert.ErrorIs(t, err, ErrNotFound)

			list, err := s.ListExports(ctx, "tenant-a", 0)
			require.NoError(t, err)
			assert.Len(t, list, 1)
		})
	}
}

func TestListExports(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()

			for i, date := range []string{"2026-03-01", "2026-03-03", "2026-03-02"} {
				require.NoError(t, s.CreateExport(ctx, newExport(fmt.Sprintf("a-%d", i), "tenant-a", date, types.ExportStatusCompleted)))
			}
			require.NoError(t, s.CreateExport(ctx, newExport("b-1", "tenant-b", "2026-03-01", types.ExportStatusCompleted)))

			list, err := s.ListExports(ctx, "tenant-a", 0)
			require.NoError(t, err)
			require.Len(t, list, 3)
			assert.Equal(t, "2026-03-03", list[0].ReportDate)
			assert.Equal(t, "2026-03-01", list[2].ReportDate)

			list, err = s.ListExports(ctx, "tenant-a", 2)
			require.NoError(t, err)
			assert.Len(t, list, 2)
		})
	}
}

func appendEvent(t *testing.T, s Store, action, resourceID string) *types.AuditEvent {
	t.Helper()
	ev, err := s.AppendAuditEvent(context.Background(), func(prev *types.AuditEvent) (*types.AuditEvent, error) {
		ev := &types.AuditEvent{
			Action:       action,
			ResourceType: "daily_export",
			ResourceID:   resourceID,
			NewValues:    json.RawMessage(`{"ok":true}`),
			CurrentHash:  action + "-" + resourceID,
			Status:       "success",
			CreatedAt:    time.Now().UTC(),
		}
		if prev != nil {
			h := prev.CurrentHash
			ev.PreviousHash = &h
		}
		return ev, nil
	})
	require.NoError(t, err)
	return ev
}

// TestAuditAppend tests sequence ids, tail linking and ordering
func TestAuditAppend(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()

			first := appendEvent(t, s, "EXPORT_STARTED", "exp-1")
			second := appendEvent(t, s, "EXPORT_COMPLETED", "exp-1")
			third := appendEvent(t, s, "EXPORT_STARTED", "exp-2")

			assert.Equal(t, int64(1), first.ID)
			assert.Nil(t, first.PreviousHash)
			require.NotNil(t, second.PreviousHash)
			assert.Equal(t, first.CurrentHash, *second.PreviousHash)
			assert.Equal(t, first.ID+2, third.ID)

			scanned, err := s.ScanAuditEvents(ctx, 0)
			require.NoError(t, err)
			require.Len(t, scanned, 3)
			assert.Equal(t, first.ID, scanned[0].ID)
			assert.Equal(t, third.ID, scanned[2].ID)

			limited, err := s.ScanAuditEvents(ctx, 2)
			require.NoError(t, err)
			assert.Len(t, limited, 2)

			newest, err := s.ListAuditEvents(ctx, types.AuditFilter{}, 0)
			require.NoError(t, err)
			require.Len(t, newest, 3)
			assert.Equal(t, third.ID, newest[0].ID)

			filtered, err := s.ListAuditEvents(ctx, types.AuditFilter{ResourceID: "exp-1"}, 0)
			require.NoError(t, err)
			assert.Len(t, filtered, 2)

			one, err := s.ListAuditEvents(ctx, types.AuditFilter{Action: "EXPORT_STARTED"}, 1)
			require.NoError(t, err)
			require.Len(t, one, 1)
			assert.Equal(t, "exp-2", one[0].ResourceID)
		})
	}
}

func TestAuditAppendBuildError(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			_, err := s.AppendAuditEvent(context.Background(), func(*types.AuditEvent) (*types.AuditEvent, error) {
				return nil, fmt.Errorf("boom")
			})
			assert.Error(t, err)

			events, err := s.ScanAuditEvents(context.Background(), 0)
			require.NoError(t, err)
			assert.Empty(t, events)
		})
	}
}

// TestAuditAppendConcurrent tests that concurrent appends never share a predecessor
func TestAuditAppendConcurrent(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)

			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					appendEvent(t, s, "EXPORT_STARTED", fmt.Sprintf("exp-%d", i))
				}(i)
			}
			wg.Wait()

			events, err := s.ScanAuditEvents(context.Background(), 0)
			require.NoError(t, err)
			require.Len(t, events, 20)
			for i := 1; i < len(events); i++ {
				require.NotNil(t, events[i].PreviousHash)
				assert.Equal(t, events[i-1].CurrentHash, *events[i].PreviousHash)
			}
		})
	}
}

func TestTenantsAndActivities(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()

			require.NoError(t, s.PutTenant(ctx, &types.TenantExportSettings{TenantID: "tenant-b", Enabled: true}))
			require.NoError(t, s.PutTenant(ctx, &types.TenantExportSettings{TenantID: "tenant-a", Name: "Acme", RetentionDays: 365}))

			tenants, err := s.ListTenants(ctx)
			require.NoError(t, err)
			require.Len(t, tenants, 2)
			assert.Equal(t, "tenant-a", tenants[0].TenantID)

			got, err := s.GetTenant(ctx, "tenant-a")
			require.NoError(t, err)
			assert.Equal(t, "Acme", got.Name)
			assert.Equal(t, 365, got.Retention())

			_, err = s.GetTenant(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			for _, id := range []string{"log-2", "log-1"} {
				require.NoError(t, s.PutActivity(ctx, &types.ActivityRecord{
					ID: id, TenantID: "tenant-a", ReportDate: "2026-03-01", Status: types.ActivityStatusCompleted,
				}))
			}
			require.NoError(t, s.PutActivity(ctx, &types.ActivityRecord{
				ID: "log-3", TenantID: "tenant-a", ReportDate: "2026-03-02", Status: types.ActivityStatusPending,
			}))

			acts, err := s.ListActivities(ctx, "tenant-a", "2026-03-01")
			require.NoError(t, err)
			require.Len(t, acts, 2)
			assert.Equal(t, "log-1", acts[0].ID)
			assert.Equal(t, "log-2", acts[1].ID)

			acts, err = s.ListActivities(ctx, "tenant-b", "2026-03-01")
			require.NoError(t, err)
			assert.Empty(t, acts)
		})
	}
}

// TestBoltStorePersists tests that records survive reopening the database
func TestBoltStorePersists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewBoltStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.CreateExport(ctx, newExport("exp-1", "tenant-a", "2026-03-01", types.ExportStatusCompleted)))
	appendEvent(t, s, "EXPORT_COMPLETED", "exp-1")
	require.NoError(t, s.Close())

	s, err = NewBoltStore(dir)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetExport(ctx, "exp-1")
	require.NoError(t, err)
	assert.Equal(t, types.ExportStatusCompleted, got.Status)

	ev := appendEvent(t, s, "EXPORT_STARTED", "exp-2")
	assert.Equal(t, int64(2), ev.ID)
	require.NotNil(t, ev.PreviousHash)
	assert.Equal(t, "EXPORT_COMPLETED-exp-1", *ev.PreviousHash)
}

func TestMemoryStoreIsolation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	rec := newExport("exp-1", "tenant-a", "2026-03-01", types.ExportStatusPending)
	require.NoError(t, s.CreateExport(ctx, rec))
	rec.Status = types.ExportStatusFailed

	got, err := s.GetExport(ctx, "exp-1")
	require.NoError(t, err)
	assert.Equal(t, types.ExportStatusPending, got.Status)
}

// TestPutTenantRejectsUnsafeID tests that ids able to escape their object
// key prefix are never stored
func TestPutTenantRejectsUnsafeID(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()

			for _, id := range []string{"", "tenant-a/sub", "../tenant-a", "..", "tenant:a"} {
				assert.Error(t, s.PutTenant(ctx, &types.TenantExportSettings{TenantID: id}), id)
			}
			assert.Error(t, s.PutTenant(ctx, nil))

			tenants, err := s.ListTenants(ctx)
			require.NoError(t, err)
			assert.Empty(t, tenants)
		})
	}
}
