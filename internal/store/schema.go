package store

import (
	"context"
	"fmt"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
    run_id            uuid PRIMARY KEY,
    content_hash      text NOT NULL,
    identity_hash     text NOT NULL,
    source_hash       text NOT NULL,
    schema_version    int  NOT NULL,
    pipeline_hash     text NOT NULL,
    requested_modules text[] NOT NULL,
    execution_order   text[] NOT NULL,
    run_dir           text NOT NULL,
    status            text NOT NULL DEFAULT 'in_progress',
    started_at        timestamptz NOT NULL DEFAULT now(),
    finished_at       timestamptz
);

CREATE INDEX IF NOT EXISTS idx_pipeline_runs_content
    ON pipeline_runs (content_hash, pipeline_hash, started_at DESC);

CREATE TABLE IF NOT EXISTS module_runs (
    id               bigserial PRIMARY KEY,
    run_id           uuid NOT NULL REFERENCES pipeline_runs(run_id),
    module_name      text NOT NULL,
    status           text NOT NULL,
    duration_seconds double precision NOT NULL DEFAULT 0,
    reason           text,
    error_type       text,
    error_message    text,
    created_at       timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_module_runs_run ON module_runs (run_id);

CREATE TABLE IF NOT EXISTS cache_entries (
    cache_key     text PRIMARY KEY,
    content_hash  text NOT NULL,
    module_name   text NOT NULL,
    tier          text NOT NULL,
    run_id        uuid NOT NULL,
    artifacts     jsonb NOT NULL DEFAULT '[]',
    created_at    timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_cache_entries_content ON cache_entries (content_hash);

CREATE TABLE IF NOT EXISTS speaker_identities (
    canonical_id bigserial PRIMARY KEY,
    evidence_key text NOT NULL UNIQUE,
    display_name text NOT NULL,
    created_at   timestamptz NOT NULL DEFAULT now()
);
`

// InitSchema applies the full schema on a fresh database. It checks whether
// the pipeline_runs table exists as a proxy for whether the schema has been
// loaded, then applies the ordered idempotent migrations.
func (s *Store) InitSchema(ctx context.Context) error {
	var exists bool
	err := s.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT FROM pg_tables WHERE schemaname = 'public' AND tablename = 'pipeline_runs')`,
	).Scan(&exists)
	if err != nil {
		return err
	}

	if !exists {
		s.log.Info().Msg("fresh database detected — applying schema")
		if _, err := s.Pool.Exec(ctx, schemaSQL); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	} else {
		s.log.Debug().Msg("schema already initialized")
	}

	return s.runMigrations(ctx)
}

// migration defines a single idempotent schema migration.
type migration struct {
	name  string
	sql   string
	check string // query that returns true if the migration is already applied
}

// migrations is the ordered list of schema migrations to apply.
// Each must be idempotent (IF NOT EXISTS, IF EXISTS, etc.).
var migrations = []migration{
	{
		name:  "add pipeline_runs.identity_hash index",
		sql:   `CREATE INDEX IF NOT EXISTS idx_pipeline_runs_identity ON pipeline_runs (identity_hash)`,
		check: `SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_pipeline_runs_identity')`,
	},
	{
		name:  "add cache_entries.source_version",
		sql:   `ALTER TABLE cache_entries ADD COLUMN IF NOT EXISTS source_version text NOT NULL DEFAULT ''`,
		check: `SELECT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name = 'cache_entries' AND column_name = 'source_version')`,
	},
}

func (s *Store) runMigrations(ctx context.Context) error {
	for _, m := range migrations {
		var applied bool
		if err := s.Pool.QueryRow(ctx, m.check).Scan(&applied); err != nil {
			return fmt.Errorf("migration check %q: %w", m.name, err)
		}
		if applied {
			continue
		}
		s.log.Info().Str("migration", m.name).Msg("applying migration")
		if _, err := s.Pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %q: %w", m.name, err)
		}
	}
	return nil
}
