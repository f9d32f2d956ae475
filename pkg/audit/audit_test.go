package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cleanidoc/cleandoc/pkg/storage"
	"github.com/cleanidoc/cleandoc/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(store storage.AuditStore) *Service {
	base := time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	n := 0
	return NewService(store).WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		return base.Add(time.Duration(n) * time.Second)
	})
}

func logN(t *testing.T, svc *Service, n int) []*Receipt {
	t.Helper()
	var receipts []*Receipt
	for i := 0; i < n; i++ {
		r, err := svc.LogAction(context.Background(), Entry{
			Action:       ActionExportStarted,
			ResourceType: ResourceDailyExport,
			ResourceID:   fmt.Sprintf("exp-%d", i),
			NewValues:    map[string]any{"status": "PENDING"},
		})
		require.NoError(t, err)
		require.NotNil(t, r)
		receipts = append(receipts, r)
	}
	return receipts
}

// TestLogActionChainsHashes tests previous_hash linking and the hash formula
func TestLogActionChainsHashes(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newService(store)

	ctx := WithClientInfo(WithActor(context.Background(), "user-42"), "10.0.0.1", "curl/8")
	first, err := svc.LogAction(ctx, Entry{
		Action:       ActionExportStarted,
		ResourceType: ResourceDailyExport,
		ResourceID:   "exp-1",
		ResourceName: "tenant-a 2026-03-01",
	})
	require.NoError(t, err)

	second, err := svc.LogAction(context.Background(), Entry{
		Action:       ActionExportCompleted,
		ResourceType: ResourceDailyExport,
		ResourceID:   "exp-1",
		OldValues:    json.RawMessage(`{"status":"PROCESSING"}`),
		NewValues:    map[string]string{"status": "COMPLETED"},
	})
	require.NoError(t, err)
	assert.Greater(t, second.ID, first.ID)

	events, err := store.ScanAuditEvents(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, events, 2)

	actor := "user-42"
	assert.Equal(t, &actor, events[0].ActorID)
	assert.Nil(t, events[0].PreviousHash)
	assert.Equal(t, "10.0.0.1", events[0].IPAddress)
	assert.Equal(t, "curl/8", events[0].UserAgent)
	assert.Equal(t, StatusSuccess, events[0].Status)
	assert.Equal(t,
		ComputeHash(&actor, ActionExportStarted, ResourceDailyExport, "exp-1", first.Timestamp, nil),
		first.CurrentHash)

	assert.Nil(t, events[1].ActorID, "system action")
	require.NotNil(t, events[1].PreviousHash)
	assert.Equal(t, first.CurrentHash, *events[1].PreviousHash)
	assert.JSONEq(t, `{"status":"COMPLETED"}`, string(events[1].NewValues))
	assert.JSONEq(t, `{"status":"PROCESSING"}`, string(events[1].OldValues))
}

func TestComputeHashDeterministic(t *testing.T) {
	ts := time.Date(2026, 3, 2, 2, 0, 0, 123456000, time.UTC)
	prev := "abc"
	a := ComputeHash(nil, "A", "daily_export", "1", ts, &prev)
	b := ComputeHash(nil, "A", "daily_export", "1", ts.In(time.FixedZone("X", 3600)), &prev)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	other := "abd"
	assert.NotEqual(t, a, ComputeHash(nil, "A", "daily_export", "1", ts, &other))
	assert.NotEqual(t, a, ComputeHash(nil, "A", "daily_export", "1", ts, nil))
}

// TestVerifyIntegrity tests a valid chain and the tamper report
func TestVerifyIntegrity(t *testing.T) {
	tests := []struct {
		name       string
		count      int
		tamper     func(store *storage.MemoryStore)
		wantValid  bool
		wantErrors []IntegrityError
	}{
		{
			name:      "empty chain",
			count:     0,
			wantValid: true,
		},
		{
			name:      "valid chain",
			count:     10,
			wantValid: true,
		},
		{
			name:  "rewritten current hash",
			count: 10,
			tamper: func(store *storage.MemoryStore) {
				_ = store.TamperAuditEvent(4, func(ev *types.AuditEvent) { ev.CurrentHash = "forged" })
			},
			wantErrors: []IntegrityError{
				{EventID: 4, Kind: KindHashMismatch, Actual: "forged"},
				{EventID: 5, Kind: KindPreviousHashMismatch, Expected: "forged"},
			},
		},
		{
			name:  "rewritten action",
			count: 5,
			tamper: func(store *storage.MemoryStore) {
				_ = store.TamperAuditEvent(2, func(ev *types.AuditEvent) { ev.Action = "EXPORT_DELETED" })
			},
			wantErrors: []IntegrityError{
				{EventID: 2, Kind: KindHashMismatch},
			},
		},
		{
			name:  "broken link on last event",
			count: 3,
			tamper: func(store *storage.MemoryStore) {
				_ = store.TamperAuditEvent(3, func(ev *types.AuditEvent) { ev.PreviousHash = nil })
			},
			wantErrors: []IntegrityError{
				{EventID: 3, Kind: KindHashMismatch},
				{EventID: 3, Kind: KindPreviousHashMismatch},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryStore()
			svc := newService(store)
			logN(t, svc, tt.count)
			if tt.tamper != nil {
				tt.tamper(store)
			}

			report, err := svc.VerifyIntegrity(context.Background(), 0)
			require.NoError(t, err)
			assert.Equal(t, tt.count, report.Checked)
			assert.Equal(t, tt.wantValid, report.Valid)
			require.Len(t, report.Errors, len(tt.wantErrors))
			for i, want := range tt.wantErrors {
				got := report.Errors[i]
				assert.Equal(t, want.EventID, got.EventID)
				assert.Equal(t, want.Kind, got.Kind)
				if want.Actual != "" {
					assert.Equal(t, want.Actual, got.Actual)
				}
				if want.Expected != "" {
					assert.Equal(t, want.Expected, got.Expected)
				}
			}
		})
	}
}

func TestVerifyIntegrityLimit(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newService(store)
	logN(t, svc, 6)
	_ = store.TamperAuditEvent(5, func(ev *types.AuditEvent) { ev.CurrentHash = "forged" })

	report, err := svc.VerifyIntegrity(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Checked)
	assert.True(t, report.Valid, "tampering outside the window is not seen")
}

// TestVerifyIntegrityBoltStore tests the chain over a real BoltDB file
func TestVerifyIntegrityBoltStore(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	svc := newService(store)
	logN(t, svc, 5)

	report, err := svc.VerifyIntegrity(context.Background(), 0)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, 5, report.Checked)
}

func TestLogActionActorFailureSkips(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newService(store).WithActorResolver(func(context.Context) (*string, error) {
		return nil, errors.New("session expired")
	})

	receipt, err := svc.LogAction(context.Background(), Entry{
		Action:       ActionExportStarted,
		ResourceType: ResourceDailyExport,
		ResourceID:   "exp-1",
	})
	assert.NoError(t, err)
	assert.Nil(t, receipt)

	events, _ := store.ScanAuditEvents(context.Background(), 0)
	assert.Empty(t, events)
}

type failingStore struct{ storage.AuditStore }

func (failingStore) AppendAuditEvent(context.Context, storage.BuildFunc) (*types.AuditEvent, error) {
	return nil, errors.New("disk full")
}

func TestRecordSwallowsErrors(t *testing.T) {
	svc := NewService(failingStore{})
	entry := Entry{Action: ActionExportFailed, ResourceType: ResourceDailyExport, ResourceID: "exp-1"}

	_, err := svc.LogAction(context.Background(), entry)
	assert.Error(t, err)
	assert.Nil(t, svc.Record(context.Background(), entry))

	var nilSvc *Service
	assert.Nil(t, nilSvc.Record(context.Background(), entry))
}

func TestLogActionValidation(t *testing.T) {
	svc := NewService(storage.NewMemoryStore())
	_, err := svc.LogAction(context.Background(), Entry{ResourceType: ResourceDailyExport})
	assert.Error(t, err)
}

func TestGetAuditLog(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newService(store)
	logN(t, svc, 3)
	_, err := svc.LogAction(WithActor(context.Background(), "user-1"), Entry{
		Action:       ActionRetentionCleanup,
		ResourceType: ResourceTenant,
		ResourceID:   "tenant-a",
	})
	require.NoError(t, err)

	all, err := svc.GetAuditLog(context.Background(), types.AuditFilter{}, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, ActionRetentionCleanup, all[0].Action)

	byActor, err := svc.GetAuditLog(context.Background(), types.AuditFilter{ActorID: "user-1"}, 0)
	require.NoError(t, err)
	require.Len(t, byActor, 1)

	limited, err := svc.GetAuditLog(context.Background(), types.AuditFilter{Action: ActionExportStarted}, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "exp-2", limited[0].ResourceID)
}

// TestConcurrentLogActionKeepsChain tests that racing writers never fork the chain
func TestConcurrentLogActionKeepsChain(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := NewService(store)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			svc.Record(context.Background(), Entry{
				Action:       ActionExportStarted,
				ResourceType: ResourceDailyExport,
				ResourceID:   fmt.Sprintf("exp-%d", i),
			})
		}(i)
	}
	wg.Wait()

	report, err := svc.VerifyIntegrity(context.Background(), 0)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, 25, report.Checked)
}
