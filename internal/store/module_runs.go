package store

import (
	"context"
	"fmt"
	"time"
)

// ModuleRunRow is one module execution attempt inside a pipeline run.
type ModuleRunRow struct {
	ID              int64
	RunID           string
	ModuleName      string
	Status          string
	DurationSeconds float64
	Reason          *string
	ErrorType       *string
	ErrorMessage    *string
	CreatedAt       time.Time
}

// InsertModuleRun records one finalized module run.
func (s *Store) InsertModuleRun(ctx context.Context, m *ModuleRunRow) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO module_runs
			(run_id, module_name, status, duration_seconds, reason, error_type, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.RunID, m.ModuleName, m.Status, m.DurationSeconds, m.Reason, m.ErrorType, m.ErrorMessage)
	if err != nil {
		return fmt.Errorf("insert module run: %w", err)
	}
	return nil
}

// ListModuleRuns returns every module run for a pipeline run, oldest first.
func (s *Store) ListModuleRuns(ctx context.Context, runID string) ([]*ModuleRunRow, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, run_id, module_name, status, duration_seconds, reason, error_type, error_message, created_at
		FROM module_runs WHERE run_id = $1 ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list module runs: %w", err)
	}
	defer rows.Close()

	var out []*ModuleRunRow
	for rows.Next() {
		m := &ModuleRunRow{}
		if err := rows.Scan(&m.ID, &m.RunID, &m.ModuleName, &m.Status, &m.DurationSeconds,
			&m.Reason, &m.ErrorType, &m.ErrorMessage, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CountModuleRuns counts rows for one module within one run. Idempotence
// tests use this to assert cached re-runs add no fresh execution rows.
func (s *Store) CountModuleRuns(ctx context.Context, runID, module, status string) (int, error) {
	var n int
	err := s.Pool.QueryRow(ctx,
		`SELECT count(*) FROM module_runs WHERE run_id = $1 AND module_name = $2 AND status = $3`,
		runID, module, status).Scan(&n)
	return n, err
}
