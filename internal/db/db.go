// Package db opens the pgxpool connection pool shared by the Job Store,
// the template repository, and the target-table repositories.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Open creates a pool for dsn and verifies connectivity with a short timeout.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("db: open: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db: ping: %w", err)
	}
	return pool, nil
}

// Schema is the DDL the process expects to already exist; migrations
// are an external collaborator, and this is documentation, not a
// runner.
const Schema = `
CREATE TABLE IF NOT EXISTS import_templates (
	id            UUID PRIMARY KEY,
	name          TEXT NOT NULL,
	target_table  TEXT NOT NULL,
	create_table  BOOLEAN NOT NULL DEFAULT FALSE,
	mapping_config JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS import_jobs (
	id             UUID PRIMARY KEY,
	filename       TEXT NOT NULL,
	status         TEXT NOT NULL CHECK (status IN ('PENDING','PROCESSING','COMPLETED','FAILED')),
	template_id    UUID REFERENCES import_templates(id),
	total_rows     INTEGER,
	processed_rows INTEGER NOT NULL DEFAULT 0,
	error_rows     INTEGER NOT NULL DEFAULT 0,
	started_at     TIMESTAMPTZ,
	finished_at    TIMESTAMPTZ,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS ix_import_jobs_status ON import_jobs(status);
CREATE INDEX IF NOT EXISTS ix_import_jobs_created_at ON import_jobs(created_at);

CREATE TABLE IF NOT EXISTS import_job_logs (
	id         BIGSERIAL PRIMARY KEY,
	job_id     UUID NOT NULL REFERENCES import_jobs(id),
	level      TEXT NOT NULL CHECK (level IN ('INFO','WARNING','ERROR')),
	message    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS ix_import_job_logs_job_id ON import_job_logs(job_id);

CREATE TABLE IF NOT EXISTS dynamic_entities (
	id                 UUID PRIMARY KEY,
	table_name         TEXT NOT NULL UNIQUE,
	display_name       TEXT NOT NULL,
	description        TEXT,
	is_visible         BOOLEAN NOT NULL DEFAULT TRUE,
	icon               TEXT,
	created_by_job_id  UUID REFERENCES import_jobs(id) ON DELETE SET NULL,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS imported_vehicles (
	id          UUID PRIMARY KEY,
	job_id      UUID NOT NULL REFERENCES import_jobs(id),
	modelo      TEXT NOT NULL,
	placa       TEXT NOT NULL,
	ano         INTEGER NOT NULL,
	valor_fipe  NUMERIC(14,2) NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (placa)
);
`
