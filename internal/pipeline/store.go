package pipeline

import (
	"context"
	"time"

	"github.com/snarg/ta-engine/internal/store"
)

// RunStore is the slice of the durable store the coordinator needs. It is
// satisfied by *store.Store; tests substitute an in-memory implementation.
// A nil RunStore means no durable store: cache lookups always miss and
// store-requiring modules skip.
type RunStore interface {
	InsertPipelineRun(ctx context.Context, r *store.PipelineRunRow) error
	FindReusableRun(ctx context.Context, contentHash, pipelineHash string) (*store.PipelineRunRow, error)
	FinishPipelineRun(ctx context.Context, runID, status string, finishedAt time.Time) error
	InsertModuleRun(ctx context.Context, m *store.ModuleRunRow) error
	UpsertCacheEntry(ctx context.Context, e *store.CacheEntryRow) error
	LookupCacheEntry(ctx context.Context, cacheKey string) (*store.CacheEntryRow, error)
}

// EventPublisher receives run lifecycle events. Optional; nil disables.
type EventPublisher interface {
	Publish(event string, payload map[string]any)
}
