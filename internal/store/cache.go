package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// CacheEntryRow maps one cache key to the run that produced it and the
// artifacts it unlocks.
type CacheEntryRow struct {
	CacheKey      string
	ContentHash   string
	ModuleName    string
	Tier          string
	SourceVersion string
	RunID         string
	Artifacts     json.RawMessage
	CreatedAt     time.Time
}

// UpsertCacheEntry records a fresh execution under its cache key. Re-running
// the same key overwrites the prior entry (newest result wins).
func (s *Store) UpsertCacheEntry(ctx context.Context, e *CacheEntryRow) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO cache_entries
			(cache_key, content_hash, module_name, tier, source_version, run_id, artifacts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (cache_key) DO UPDATE
		SET run_id = EXCLUDED.run_id,
		    artifacts = EXCLUDED.artifacts,
		    created_at = now()`,
		e.CacheKey, e.ContentHash, e.ModuleName, e.Tier, e.SourceVersion, e.RunID, e.Artifacts)
	if err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}

// LookupCacheEntry fetches a cache entry by key, or nil on a miss.
func (s *Store) LookupCacheEntry(ctx context.Context, cacheKey string) (*CacheEntryRow, error) {
	e := &CacheEntryRow{}
	err := s.Pool.QueryRow(ctx, `
		SELECT cache_key, content_hash, module_name, tier, source_version, run_id, artifacts, created_at
		FROM cache_entries WHERE cache_key = $1`, cacheKey).
		Scan(&e.CacheKey, &e.ContentHash, &e.ModuleName, &e.Tier, &e.SourceVersion,
			&e.RunID, &e.Artifacts, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup cache entry: %w", err)
	}
	return e, nil
}
