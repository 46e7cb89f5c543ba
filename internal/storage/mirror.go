package storage

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
)

// MirrorRun uploads every file in a finished run directory under the run id.
// Already-mirrored artifacts are skipped, so mirroring a reused run is cheap.
func MirrorRun(ctx context.Context, store ArtifactStore, runDir, runID string, log zerolog.Logger) error {
	if store == nil {
		return nil
	}

	var uploaded, skipped int
	err := filepath.WalkDir(runDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(runDir, path)
		if err != nil {
			return err
		}
		key := runID + "/" + filepath.ToSlash(rel)
		if store.Exists(ctx, key) {
			skipped++
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		contentType := "application/octet-stream"
		if mt := mimetype.Detect(data); mt != nil {
			contentType = mt.String()
		}
		if err := store.Save(ctx, key, data, contentType); err != nil {
			return err
		}
		uploaded++
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("run_id", runID).
		Int("uploaded", uploaded).
		Int("skipped", skipped).
		Msg("run artifacts mirrored")
	return nil
}
