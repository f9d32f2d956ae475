package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cleanidoc/cleandoc/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketExports    = []byte("exports")
	bucketExportIDs  = []byte("export_ids")
	bucketAudit      = []byte("audit")
	bucketTenants    = []byte("tenants")
	bucketActivities = []byte("activities")
)

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db  *bolt.DB
	now func() time.Time
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "cleandoc.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketExports,
			bucketExportIDs,
			bucketAudit,
			bucketTenants,
			bucketActivities,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, now: time.Now}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Ping implements Store
func (s *BoltStore) Ping(ctx context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketExports) == nil {
			return fmt.Errorf("exports bucket missing")
		}
		return nil
	})
}

// Export operations

func getExportByKey(b *bolt.Bucket, key string) (*types.ExportRecord, error) {
	data := b.Get([]byte(key))
	if data == nil {
		return nil, fmt.Errorf("export %s: %w", key, ErrNotFound)
	}
	var rec types.ExportRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func putExport(b *bolt.Bucket, rec *types.ExportRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return b.Put([]byte(rec.Key()), data)
}

func (s *BoltStore) CreateExport(ctx context.Context, rec *types.ExportRecord) error {
	if err := validateExport(rec); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		exports := tx.Bucket(bucketExports)
		ids := tx.Bucket(bucketExportIDs)

		// a new run for the same key replaces the previous record
		if old, err := getExportByKey(exports, rec.Key()); err == nil && old.ID != rec.ID {
			if err := ids.Delete([]byte(old.ID)); err != nil {
				return err
			}
		}

		if err := putExport(exports, rec); err != nil {
			return err
		}
		return ids.Put([]byte(rec.ID), []byte(rec.Key()))
	})
}

func (s *BoltStore) UpdateExport(ctx context.Context, rec *types.ExportRecord) error {
	if err := validateExport(rec); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		exports := tx.Bucket(bucketExports)
		current, err := getExportByKey(exports, rec.Key())
		if err != nil {
			return err
		}
		if current.ID != rec.ID {
			return fmt.Errorf("export %s was replaced: %w", rec.ID, ErrNotFound)
		}
		if current.Status.Terminal() {
			return fmt.Errorf("export %s is %s: %w", rec.ID, current.Status, ErrImmutable)
		}
		return putExport(exports, rec)
	})
}

func (s *BoltStore) RecordDelivery(ctx context.Context, id string, upd types.DeliveryUpdate) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		key := tx.Bucket(bucketExportIDs).Get([]byte(id))
		if key == nil {
			return fmt.Errorf("export %s: %w", id, ErrNotFound)
		}
		exports := tx.Bucket(bucketExports)
		rec, err := getExportByKey(exports, string(key))
		if err != nil {
			return err
		}
		applyDelivery(rec, upd, s.now().UTC())
		return putExport(exports, rec)
	})
}

func (s *BoltStore) GetExport(ctx context.Context, id string) (*types.ExportRecord, error) {
	var rec *types.ExportRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		key := tx.Bucket(bucketExportIDs).Get([]byte(id))
		if key == nil {
			return fmt.Errorf("export %s: %w", id, ErrNotFound)
		}
		var err error
		rec, err = getExportByKey(tx.Bucket(bucketExports), string(key))
		return err
	})
	return rec, err
}

func (s *BoltStore) FindExport(ctx context.Context, tenantID, reportDate string) (*types.ExportRecord, error) {
	var rec *types.ExportRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		rec, err = getExportByKey(tx.Bucket(bucketExports), types.ExportKey(tenantID, reportDate))
		return err
	})
	return rec, err
}

func (s *BoltStore) ListExports(ctx context.Context, tenantID string, limit int) ([]*types.ExportRecord, error) {
	var records []*types.ExportRecord
	prefix := []byte(tenantID + ":")
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketExports).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var rec types.ExportRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if rec.TenantID != tenantID {
				continue
			}
			records = append(records, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// keys sort by date ascending
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Audit operations

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func (s *BoltStore) AppendAuditEvent(ctx context.Context, build BuildFunc) (*types.AuditEvent, error) {
	var ev *types.AuditEvent
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAudit)

		var prev *types.AuditEvent
		if _, v := b.Cursor().Last(); v != nil {
			prev = &types.AuditEvent{}
			if err := json.Unmarshal(v, prev); err != nil {
				return fmt.Errorf("failed to decode chain tail: %w", err)
			}
		}

		var err error
		ev, err = build(prev)
		if err != nil {
			return err
		}

		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		ev.ID = int64(seq)

		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		return b.Put(itob(seq), data)
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func (s *BoltStore) ListAuditEvents(ctx context.Context, filter types.AuditFilter, limit int) ([]*types.AuditEvent, error) {
	var events []*types.AuditEvent
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketAudit).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var ev types.AuditEvent
			if err := json.Unmarshal(v, &ev); err != nil {
				return err
			}
			if !filter.Match(&ev) {
				continue
			}
			events = append(events, &ev)
			if limit > 0 && len(events) >= limit {
				return nil
			}
		}
		return nil
	})
	return events, err
}

func (s *BoltStore) ScanAuditEvents(ctx context.Context, limit int) ([]*types.AuditEvent, error) {
	var events []*types.AuditEvent
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketAudit).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var ev types.AuditEvent
			if err := json.Unmarshal(v, &ev); err != nil {
				return err
			}
			events = append(events, &ev)
			if limit > 0 && len(events) >= limit {
				return nil
			}
		}
		return nil
	})
	return events, err
}

// Tenant operations

func (s *BoltStore) ListTenants(ctx context.Context) ([]*types.TenantExportSettings, error) {
	var tenants []*types.TenantExportSettings
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTenants)
		return b.ForEach(func(k, v []byte) error {
			var t types.TenantExportSettings
			if err := json.Unmarshal(v, &t); err != nil {
				return err
			}
			tenants = append(tenants, &t)
			return nil
		})
	})
	return tenants, err
}

func (s *BoltStore) GetTenant(ctx context.Context, tenantID string) (*types.TenantExportSettings, error) {
	var t types.TenantExportSettings
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketTenants).Get([]byte(tenantID))
		if data == nil {
			return fmt.Errorf("tenant %s: %w", tenantID, ErrNotFound)
		}
		return json.Unmarshal(data, &t)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *BoltStore) PutTenant(ctx context.Context, tenant *types.TenantExportSettings) error {
	if tenant == nil {
		return fmt.Errorf("tenant is required")
	}
	if err := types.ValidateTenantID(tenant.TenantID); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(tenant)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketTenants).Put([]byte(tenant.TenantID), data)
	})
}

// Activity operations

func activityPrefix(tenantID, reportDate string) []byte {
	return []byte(tenantID + "/" + reportDate + "/")
}

func (s *BoltStore) ListActivities(ctx context.Context, tenantID, reportDate string) ([]types.ActivityRecord, error) {
	var records []types.ActivityRecord
	prefix := activityPrefix(tenantID, reportDate)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketActivities).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var rec types.ActivityRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	return records, err
}

func (s *BoltStore) PutActivity(ctx context.Context, rec *types.ActivityRecord) error {
	if rec == nil || rec.ID == "" || rec.TenantID == "" || rec.ReportDate == "" {
		return fmt.Errorf("activity requires id, tenant id and report date")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		key := append(activityPrefix(rec.TenantID, rec.ReportDate), rec.ID...)
		return tx.Bucket(bucketActivities).Put(key, data)
	})
}
