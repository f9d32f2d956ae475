package storage

// Migration is one step of the Postgres schema
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrations is the ordered Postgres schema applied by cleandoc-migrate
var Migrations = []Migration{
	{
		Version: 1,
		Name:    "tenants_and_activities",
		SQL: `
CREATE TABLE IF NOT EXISTS tenant_export_settings (
    tenant_id   TEXT PRIMARY KEY,
    enabled     BOOLEAN NOT NULL DEFAULT FALSE,
    settings    JSONB NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS activity_records (
    tenant_id   TEXT NOT NULL,
    report_date TEXT NOT NULL,
    id          TEXT NOT NULL,
    record      JSONB NOT NULL,
    PRIMARY KEY (tenant_id, report_date, id)
);`,
	},
	{
		Version: 2,
		Name:    "daily_exports",
		SQL: `
CREATE TABLE IF NOT EXISTS daily_exports (
    id          TEXT PRIMARY KEY,
    tenant_id   TEXT NOT NULL,
    report_date TEXT NOT NULL,
    status      TEXT NOT NULL,
    record      JSONB NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL,
    UNIQUE (tenant_id, report_date)
);`,
	},
	{
		Version: 3,
		Name:    "audit_logs",
		SQL: `
CREATE TABLE IF NOT EXISTS audit_logs (
    id            BIGSERIAL PRIMARY KEY,
    actor_id      TEXT,
    action        TEXT NOT NULL,
    resource_type TEXT NOT NULL,
    resource_id   TEXT NOT NULL,
    resource_name TEXT NOT NULL DEFAULT '',
    old_values    JSONB,
    new_values    JSONB,
    previous_hash TEXT,
    current_hash  TEXT NOT NULL,
    ip_address    TEXT NOT NULL DEFAULT '',
    user_agent    TEXT NOT NULL DEFAULT '',
    status        TEXT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS audit_logs_resource_idx ON audit_logs (resource_type, resource_id);
CREATE INDEX IF NOT EXISTS audit_logs_action_idx ON audit_logs (action);

CREATE OR REPLACE FUNCTION audit_logs_append_only() RETURNS trigger AS $$
BEGIN
    RAISE EXCEPTION 'audit_logs is append-only';
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS audit_logs_no_update ON audit_logs;
CREATE TRIGGER audit_logs_no_update BEFORE UPDATE OR DELETE ON audit_logs
    FOR EACH ROW EXECUTE FUNCTION audit_logs_append_only();`,
	},
}
