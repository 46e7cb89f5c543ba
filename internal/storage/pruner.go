package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RunPruner evicts aged-out run directories from local disk. When a mirror
// is configured, a run dir is only removed after its manifest is confirmed
// mirrored — the mirror retains everything permanently.
type RunPruner struct {
	outputDir string
	retention time.Duration
	interval  time.Duration
	mirror    ArtifactStore // nil: prune by age alone
	log       zerolog.Logger
	stop      chan struct{}
	stopOnce  sync.Once
}

// NewRunPruner creates a pruner that removes run directories older than the
// retention window.
func NewRunPruner(outputDir string, retention time.Duration, mirror ArtifactStore, log zerolog.Logger) *RunPruner {
	return &RunPruner{
		outputDir: outputDir,
		retention: retention,
		interval:  1 * time.Hour,
		mirror:    mirror,
		log:       log.With().Str("component", "run-pruner").Logger(),
		stop:      make(chan struct{}),
	}
}

func (p *RunPruner) Start() {
	go p.loop()
}

func (p *RunPruner) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

func (p *RunPruner) loop() {
	// Run once on startup to clear any backlog from downtime.
	p.prune()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.prune()
		case <-p.stop:
			return
		}
	}
}

func (p *RunPruner) prune() {
	entries, err := os.ReadDir(p.outputDir)
	if err != nil {
		p.log.Warn().Err(err).Msg("prune scan failed")
		return
	}

	cutoff := time.Now().Add(-p.retention)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || e.Name() == "groups" {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		runID := e.Name()
		if p.mirror != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			mirrored := p.mirror.Exists(ctx, runID+"/manifest.json")
			cancel()
			if !mirrored {
				p.log.Warn().Str("run_id", runID).Msg("skipping prune: run not mirrored")
				continue
			}
		}

		if err := os.RemoveAll(filepath.Join(p.outputDir, runID)); err != nil {
			p.log.Warn().Err(err).Str("run_id", runID).Msg("prune failed")
			continue
		}
		removed++
	}
	if removed > 0 {
		p.log.Info().Int("removed", removed).Msg("pruned aged-out run directories")
	}
}
