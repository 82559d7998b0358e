// Package db bootstraps the Postgres schema. Statements are idempotent so
// every binary can run EnsureSchema at startup without coordination.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the slice of the pgx pool the schema bootstrap needs.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

var schemaStatements = []string{
	`create table if not exists generation_records (
    id                 uuid primary key,
    job_id             text not null,
    user_id            text not null,
    content_type       text not null,
    generated_with     text,
    status             text not null,
    priority           text not null,
    params             jsonb not null default '{}'::jsonb,
    file_url           text,
    file_size          bigint,
    mime_type          text,
    duration_seconds   double precision,
    quality_score      double precision,
    processing_time_ms bigint,
    error_message      text,
    error_details      jsonb,
    retry_count        int not null default 0,
    next_retry_at      timestamptz,
    deadline           timestamptz,
    is_permanent       boolean not null default false,
    expires_at         timestamptz,
    version            bigint not null default 1,
    created_at         timestamptz not null,
    updated_at         timestamptz not null
)`,

	`create index if not exists idx_generation_records_job
    on generation_records (job_id, created_at desc)`,

	`create index if not exists idx_generation_records_user
    on generation_records (user_id, created_at desc)`,

	// Dispatcher refresh: PENDING records in creation order.
	`create index if not exists idx_generation_records_pending
    on generation_records (created_at)
    where status = 'PENDING'`,

	// Watchdog reaper: GENERATING records by deadline.
	`create index if not exists idx_generation_records_deadline
    on generation_records (deadline)
    where status = 'GENERATING'`,

	// Expiration sweep: non-permanent records still open.
	`create index if not exists idx_generation_records_expiry
    on generation_records (expires_at)
    where is_permanent = false and status in ('PENDING', 'GENERATING', 'FAILED')`,

	// Retention cleanup: FAILED records by last write.
	`create index if not exists idx_generation_records_failed
    on generation_records (updated_at)
    where status = 'FAILED'`,

	`create table if not exists provider_tokens (
    id         uuid primary key default gen_random_uuid(),
    provider   text not null unique,
    token      text not null,
    properties jsonb not null default '{}'::jsonb,
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
)`,
}

// EnsureSchema creates the tables and indexes the engine relies on.
func EnsureSchema(ctx context.Context, db DBTX) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
