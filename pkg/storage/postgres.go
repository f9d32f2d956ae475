package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cleanidoc/cleandoc/pkg/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// auditLockID is the transaction-scoped advisory lock serializing audit
// appends across processes
const auditLockID = 0x636c65616e646f63

// PostgresStore implements Store on a pgx connection pool. The schema is
// created by cleandoc-migrate.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresStore connects to dsn and pings the database
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping failed: %w", err)
	}

	return &PostgresStore{pool: pool, now: time.Now}, nil
}

// Pool returns the underlying pool
func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

// Ping implements Store
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements Store
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// withTx runs fn in a transaction, rolling back unless it commits
func (s *PostgresStore) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func scanExport(row pgx.Row) (*types.ExportRecord, error) {
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var rec types.ExportRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode export record: %w", err)
	}
	return &rec, nil
}

func (s *PostgresStore) CreateExport(ctx context.Context, rec *types.ExportRecord) error {
	if err := validateExport(rec); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM daily_exports WHERE tenant_id = $1 AND report_date = $2`,
			rec.TenantID, rec.ReportDate); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
            INSERT INTO daily_exports (id, tenant_id, report_date, status, record, created_at, updated_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			rec.ID, rec.TenantID, rec.ReportDate, string(rec.Status), data, rec.CreatedAt, rec.UpdatedAt)
		return err
	})
}

func (s *PostgresStore) UpdateExport(ctx context.Context, rec *types.ExportRecord) error {
	if err := validateExport(rec); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx pgx.Tx) error {
		var status string
		err := tx.QueryRow(ctx,
			`SELECT status FROM daily_exports WHERE id = $1 FOR UPDATE`, rec.ID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("export %s: %w", rec.ID, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if types.ExportStatus(status).Terminal() {
			return fmt.Errorf("export %s is %s: %w", rec.ID, status, ErrImmutable)
		}
		_, err = tx.Exec(ctx,
			`UPDATE daily_exports SET status = $2, record = $3, updated_at = $4 WHERE id = $1`,
			rec.ID, string(rec.Status), data, rec.UpdatedAt)
		return err
	})
}

func (s *PostgresStore) RecordDelivery(ctx context.Context, id string, upd types.DeliveryUpdate) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		rec, err := scanExport(tx.QueryRow(ctx,
			`SELECT record FROM daily_exports WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return fmt.Errorf("export %s: %w", id, err)
		}
		applyDelivery(rec, upd, s.now().UTC())
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`UPDATE daily_exports SET record = $2, updated_at = $3 WHERE id = $1`,
			id, data, rec.UpdatedAt)
		return err
	})
}

func (s *PostgresStore) GetExport(ctx context.Context, id string) (*types.ExportRecord, error) {
	rec, err := scanExport(s.pool.QueryRow(ctx, `SELECT record FROM daily_exports WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", id, err)
	}
	return rec, nil
}

func (s *PostgresStore) FindExport(ctx context.Context, tenantID, reportDate string) (*types.ExportRecord, error) {
	rec, err := scanExport(s.pool.QueryRow(ctx,
		`SELECT record FROM daily_exports WHERE tenant_id = $1 AND report_date = $2`, tenantID, reportDate))
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", types.ExportKey(tenantID, reportDate), err)
	}
	return rec, nil
}

func (s *PostgresStore) ListExports(ctx context.Context, tenantID string, limit int) ([]*types.ExportRecord, error) {
	query := `SELECT record FROM daily_exports WHERE tenant_id = $1 ORDER BY report_date DESC`
	args := []any{tenantID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*types.ExportRecord
	for rows.Next() {
		rec, err := scanExport(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

const auditColumns = `id, actor_id, action, resource_type, resource_id, resource_name,
    old_values, new_values, previous_hash, current_hash, ip_address, user_agent, status, created_at`

func scanAudit(row pgx.Row) (*types.AuditEvent, error) {
	var ev types.AuditEvent
	var oldValues, newValues []byte
	if err := row.Scan(&ev.ID, &ev.ActorID, &ev.Action, &ev.ResourceType, &ev.ResourceID,
		&ev.ResourceName, &oldValues, &newValues, &ev.PreviousHash, &ev.CurrentHash,
		&ev.IPAddress, &ev.UserAgent, &ev.Status, &ev.CreatedAt); err != nil {
		return nil, err
	}
	ev.OldValues = oldValues
	ev.NewValues = newValues
	ev.CreatedAt = ev.CreatedAt.UTC()
	return &ev, nil
}

func nullJSON(v json.RawMessage) any {
	if len(v) == 0 {
		return nil
	}
	return []byte(v)
}

func (s *PostgresStore) AppendAuditEvent(ctx context.Context, build BuildFunc) (*types.AuditEvent, error) {
	var ev *types.AuditEvent
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(auditLockID)); err != nil {
			return fmt.Errorf("failed to lock audit chain: %w", err)
		}

		prev, err := scanAudit(tx.QueryRow(ctx,
			`SELECT `+auditColumns+` FROM audit_logs ORDER BY id DESC LIMIT 1`))
		if errors.Is(err, pgx.ErrNoRows) {
			prev = nil
		} else if err != nil {
			return fmt.Errorf("failed to read chain tail: %w", err)
		}

		ev, err = build(prev)
		if err != nil {
			return err
		}

		return tx.QueryRow(ctx, `
            INSERT INTO audit_logs (actor_id, action, resource_type, resource_id, resource_name,
                old_values, new_values, previous_hash, current_hash, ip_address, user_agent, status, created_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
            RETURNING id`,
			ev.ActorID, ev.Action, ev.ResourceType, ev.ResourceID, ev.ResourceName,
			nullJSON(ev.OldValues), nullJSON(ev.NewValues), ev.PreviousHash, ev.CurrentHash,
			ev.IPAddress, ev.UserAgent, ev.Status, ev.CreatedAt,
		).Scan(&ev.ID)
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func (s *PostgresStore) queryAudit(ctx context.Context, query string, args ...any) ([]*types.AuditEvent, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*types.AuditEvent
	for rows.Next() {
		ev, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *PostgresStore) ListAuditEvents(ctx context.Context, filter types.AuditFilter, limit int) ([]*types.AuditEvent, error) {
	var where []string
	var args []any
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.Action != "" {
		add("action = $%d", filter.Action)
	}
	if filter.ResourceType != "" {
		add("resource_type = $%d", filter.ResourceType)
	}
	if filter.ResourceID != "" {
		add("resource_id = $%d", filter.ResourceID)
	}
	if filter.ActorID != "" {
		add("actor_id = $%d", filter.ActorID)
	}
	if !filter.From.IsZero() {
		add("created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at <= $%d", filter.To)
	}

	query := `SELECT ` + auditColumns + ` FROM audit_logs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	return s.queryAudit(ctx, query, args...)
}

func (s *PostgresStore) ScanAuditEvents(ctx context.Context, limit int) ([]*types.AuditEvent, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_logs ORDER BY id ASC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	return s.queryAudit(ctx, query)
}

func (s *PostgresStore) ListTenants(ctx context.Context) ([]*types.TenantExportSettings, error) {
	rows, err := s.pool.Query(ctx, `SELECT settings FROM tenant_export_settings ORDER BY tenant_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []*types.TenantExportSettings
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var t types.TenantExportSettings
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, fmt.Errorf("decode tenant settings: %w", err)
		}
		tenants = append(tenants, &t)
	}
	return tenants, rows.Err()
}

func (s *PostgresStore) GetTenant(ctx context.Context, tenantID string) (*types.TenantExportSettings, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT settings FROM tenant_export_settings WHERE tenant_id = $1`, tenantID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var t types.TenantExportSettings
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decode tenant settings: %w", err)
	}
	return &t, nil
}

func (s *PostgresStore) PutTenant(ctx context.Context, tenant *types.TenantExportSettings) error {
	if tenant == nil {
		return fmt.Errorf("tenant is required")
	}
	if err := types.ValidateTenantID(tenant.TenantID); err != nil {
		return err
	}
	data, err := json.Marshal(tenant)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
        INSERT INTO tenant_export_settings (tenant_id, enabled, settings, updated_at)
        VALUES ($1, $2, $3, now())
        ON CONFLICT (tenant_id) DO UPDATE
        SET enabled = EXCLUDED.enabled, settings = EXCLUDED.settings, updated_at = now()`,
		tenant.TenantID, tenant.Enabled, data)
	return err
}

func (s *PostgresStore) ListActivities(ctx context.Context, tenantID, reportDate string) ([]types.ActivityRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT record FROM activity_records WHERE tenant_id = $1 AND report_date = $2 ORDER BY id`,
		tenantID, reportDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []types.ActivityRecord
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var rec types.ActivityRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode activity record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *PostgresStore) PutActivity(ctx context.Context, rec *types.ActivityRecord) error {
	if rec == nil || rec.ID == "" || rec.TenantID == "" || rec.ReportDate == "" {
		return fmt.Errorf("activity requires id, tenant id and report date")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
        INSERT INTO activity_records (tenant_id, report_date, id, record)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (tenant_id, report_date, id) DO UPDATE SET record = EXCLUDED.record`,
		rec.TenantID, rec.ReportDate, rec.ID, data)
	return err
}

// Migrate applies pending Migrations inside one transaction and returns
// the versions applied. With dryRun the transaction is rolled back.
func Migrate(ctx context.Context, pool *pgxpool.Pool, dryRun bool) ([]int, error) {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS schema_migrations (
            version    INT PRIMARY KEY,
            name       TEXT NOT NULL,
            applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`); err != nil {
		return nil, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := tx.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return nil, err
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var versions []int
	for _, m := range Migrations {
		if applied[m.Version] {
			continue
		}
		if _, err := tx.Exec(ctx, m.SQL); err != nil {
			return nil, fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name); err != nil {
			return nil, err
		}
		versions = append(versions, m.Version)
	}

	if dryRun {
		return versions, nil
	}
	return versions, tx.Commit(ctx)
}
