// Package storage mirrors finished run artifacts to an S3-compatible object
// store and prunes aged-out local run directories. The local filesystem
// remains the source of truth for manifests; the mirror is for durability.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/ta-engine/internal/config"
)

// ArtifactStore abstracts the artifact mirror backend.
type ArtifactStore interface {
	// Save stores artifact data. key format: {run_id}/{rel_path}
	Save(ctx context.Context, key string, data []byte, contentType string) error

	// Exists checks whether an artifact is already mirrored.
	Exists(ctx context.Context, key string) bool

	// Type returns "s3".
	Type() string
}

// New creates an ArtifactStore from config. Returns (nil, nil) when no
// mirror is configured. Fails at startup if S3 is configured but unreachable.
func New(cfg config.S3Config, log zerolog.Logger) (ArtifactStore, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	s3store, err := NewS3Store(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("S3 init failed: %w", err)
	}

	// Startup validation: verify credentials and bucket access.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s3store.HeadBucket(ctx); err != nil {
		return nil, fmt.Errorf("S3 startup check failed (bucket=%q endpoint=%q): %w",
			cfg.Bucket, cfg.Endpoint, err)
	}
	log.Info().Str("bucket", cfg.Bucket).Str("endpoint", cfg.Endpoint).Msg("S3 connection verified")

	return s3store, nil
}
