package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// PipelineRunRow is one pipeline run record.
type PipelineRunRow struct {
	RunID            string
	ContentHash      string
	IdentityHash     string
	SourceHash       string
	SchemaVersion    int
	PipelineHash     string
	RequestedModules []string
	ExecutionOrder   []string
	RunDir           string
	Status           string
	StartedAt        time.Time
	FinishedAt       *time.Time
}

// InsertPipelineRun records a newly opened run in in_progress status.
func (s *Store) InsertPipelineRun(ctx context.Context, r *PipelineRunRow) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO pipeline_runs
			(run_id, content_hash, identity_hash, source_hash, schema_version,
			 pipeline_hash, requested_modules, execution_order, run_dir, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'in_progress', $10)`,
		r.RunID, r.ContentHash, r.IdentityHash, r.SourceHash, r.SchemaVersion,
		r.PipelineHash, r.RequestedModules, r.ExecutionOrder, r.RunDir, r.StartedAt)
	if err != nil {
		return fmt.Errorf("insert pipeline run: %w", err)
	}
	return nil
}

// FindReusableRun returns the most recent non-failed run for the same
// transcript content and pipeline config, or nil when none exists.
func (s *Store) FindReusableRun(ctx context.Context, contentHash, pipelineHash string) (*PipelineRunRow, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT run_id, content_hash, identity_hash, source_hash, schema_version,
		       pipeline_hash, requested_modules, execution_order, run_dir, status,
		       started_at, finished_at
		FROM pipeline_runs
		WHERE content_hash = $1 AND pipeline_hash = $2 AND status != 'failed'
		ORDER BY started_at DESC
		LIMIT 1`,
		contentHash, pipelineHash)

	r, err := scanPipelineRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// GetPipelineRun fetches one run by id, or nil if absent.
func (s *Store) GetPipelineRun(ctx context.Context, runID string) (*PipelineRunRow, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT run_id, content_hash, identity_hash, source_hash, schema_version,
		       pipeline_hash, requested_modules, execution_order, run_dir, status,
		       started_at, finished_at
		FROM pipeline_runs WHERE run_id = $1`, runID)

	r, err := scanPipelineRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// ListPipelineRuns returns the most recent runs, newest first.
func (s *Store) ListPipelineRuns(ctx context.Context, limit int) ([]*PipelineRunRow, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT run_id, content_hash, identity_hash, source_hash, schema_version,
		       pipeline_hash, requested_modules, execution_order, run_dir, status,
		       started_at, finished_at
		FROM pipeline_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pipeline runs: %w", err)
	}
	defer rows.Close()

	var out []*PipelineRunRow
	for rows.Next() {
		r, err := scanPipelineRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// FinishPipelineRun marks a run terminal. This is the only mutation of the
// status field after insert.
func (s *Store) FinishPipelineRun(ctx context.Context, runID, status string, finishedAt time.Time) error {
	_, err := s.Pool.Exec(ctx,
		`UPDATE pipeline_runs SET status = $2, finished_at = $3 WHERE run_id = $1`,
		runID, status, finishedAt)
	if err != nil {
		return fmt.Errorf("finish pipeline run: %w", err)
	}
	return nil
}

func scanPipelineRun(row pgx.Row) (*PipelineRunRow, error) {
	r := &PipelineRunRow{}
	err := row.Scan(&r.RunID, &r.ContentHash, &r.IdentityHash, &r.SourceHash,
		&r.SchemaVersion, &r.PipelineHash, &r.RequestedModules, &r.ExecutionOrder,
		&r.RunDir, &r.Status, &r.StartedAt, &r.FinishedAt)
	if err != nil {
		return nil, err
	}
	return r, nil
}
