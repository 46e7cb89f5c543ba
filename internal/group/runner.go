// Package group runs a set of transcripts together: per-member pipelines,
// one speaker-normalization pass, then group-level aggregations over the
// frozen canonical speaker map.
package group

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/snarg/ta-engine/internal/config"
	"github.com/snarg/ta-engine/internal/pipeline"
	"github.com/snarg/ta-engine/internal/registry"
	"github.com/snarg/ta-engine/internal/speakers"
	"github.com/snarg/ta-engine/internal/transcript"
)

// MetadataSchemaVersion versions group_metadata.json.
const MetadataSchemaVersion = 1

// Metadata is the group run metadata record.
type Metadata struct {
	SchemaVersion      int       `json:"schema_version"`
	GroupUUID          string    `json:"group_uuid"`
	GroupNameAtRun     string    `json:"group_name_at_run"`
	GroupKey           string    `json:"group_key"`
	MemberTranscriptID []string  `json:"member_transcript_ids"`
	MemberDisplayNames []string  `json:"member_display_names"`
	MemberCount        int       `json:"member_count"`
	SelectedModules    []string  `json:"selected_modules"`
	CreatedAt          time.Time `json:"created_at"`
	RunID              string    `json:"run_id"`
	ToolVersion        string    `json:"tool_version"`
}

// MemberRun records the outcome of one member's pipeline.
type MemberRun struct {
	Path    string            `json:"path"`
	RunID   string            `json:"run_id"`
	Summary *pipeline.Summary `json:"summary"`
}

// Summary is the result of one group run.
type Summary struct {
	GroupUUID    string      `json:"group_uuid"`
	GroupDir     string      `json:"group_dir"`
	MemberRuns   []MemberRun `json:"member_runs"`
	Aggregations []string    `json:"aggregations"`
	Warnings     []string    `json:"warnings"`
}

// RunnerOptions configures a group runner.
type RunnerOptions struct {
	Registry  *registry.Registry
	Config    *config.Config
	Store     pipeline.RunStore
	Identity  speakers.IdentityService // nil: fallback ids
	Events    pipeline.EventPublisher
	OutputDir string
	Version   string
	Log       zerolog.Logger
}

type Runner struct {
	opts RunnerOptions
	log  zerolog.Logger
}

func NewRunner(opts RunnerOptions) *Runner {
	return &Runner{opts: opts, log: opts.Log}
}

// Run analyzes every member transcript, normalizes speakers once, and runs
// each aggregation against the frozen map. A validation failure in one
// aggregation blocks only that aggregation's files and is reported as a
// warning, not an error.
func (r *Runner) Run(ctx context.Context, in *Input, modules []string) (*Summary, error) {
	if !in.IsGroup() {
		return nil, fmt.Errorf("group runner needs at least two members")
	}

	groupUUID := uuid.NewString()
	groupDir := filepath.Join(r.opts.OutputDir, "groups", groupUUID)
	if err := os.MkdirAll(groupDir, 0o755); err != nil {
		return nil, fmt.Errorf("create group dir: %w", err)
	}

	sum := &Summary{
		GroupUUID:    groupUUID,
		GroupDir:     groupDir,
		Aggregations: []string{},
		Warnings:     []string{},
	}

	// 1. Per-member pipelines.
	memberKeys := make([]string, 0, len(in.Members))
	for _, m := range in.Members {
		coord := pipeline.New(pipeline.Options{
			Registry:  r.opts.Registry,
			Config:    r.opts.Config,
			Store:     r.opts.Store,
			Events:    r.opts.Events,
			OutputDir: r.opts.OutputDir,
			Log:       r.log.With().Str("transcript", m.Transcript.BaseName).Logger(),
		})
		ms, err := coord.Run(ctx, m.Transcript, modules)
		if err != nil {
			return nil, fmt.Errorf("member %s: %w", m.Path, err)
		}
		sum.MemberRuns = append(sum.MemberRuns, MemberRun{Path: m.Path, RunID: coord.RunID(), Summary: ms})
		memberKeys = append(memberKeys, memberKey(m.Transcript))
	}

	// 2. Normalize speakers exactly once; the map is frozen from here on.
	norm := speakers.NewNormalizer(r.opts.Identity, r.log.With().Str("component", "speakers").Logger())
	spkMap, err := norm.Normalize(ctx, in.Members)
	if err != nil {
		return nil, fmt.Errorf("speaker normalization: %w", err)
	}
	if err := writeJSON(filepath.Join(groupDir, "speaker_map.json"), spkMap); err != nil {
		return nil, fmt.Errorf("write speaker map: %w", err)
	}

	// 3. Aggregations over the frozen map.
	grun := &GroupRun{Input: in, MemberKeys: memberKeys, Speakers: spkMap}
	for _, agg := range Aggregators() {
		rs, err := agg.Run(ctx, grun)
		if err != nil {
			sum.Warnings = append(sum.Warnings, fmt.Sprintf("%s: %v", agg.Name, err))
			continue
		}
		dir := filepath.Join(groupDir, "aggregations", agg.Name)
		if err := WriteRowSet(dir, rs); err != nil {
			if errors.Is(err, ErrValidation) {
				r.log.Warn().Err(err).Str("aggregation", agg.Name).Msg("rows rejected, nothing written")
				sum.Warnings = append(sum.Warnings, fmt.Sprintf("%s: %v", agg.Name, err))
				continue
			}
			return nil, fmt.Errorf("write %s rows: %w", agg.Name, err)
		}
		sum.Aggregations = append(sum.Aggregations, agg.Name)
	}

	// 4. Group metadata.
	meta := r.buildMetadata(in, groupUUID, modules)
	if err := writeJSON(filepath.Join(groupDir, "group_metadata.json"), meta); err != nil {
		return nil, fmt.Errorf("write group metadata: %w", err)
	}

	r.log.Info().
		Str("group_uuid", groupUUID).
		Int("members", len(in.Members)).
		Strs("aggregations", sum.Aggregations).
		Msg("group run complete")
	return sum, nil
}

func (r *Runner) buildMetadata(in *Input, groupUUID string, modules []string) *Metadata {
	ids := make([]string, 0, len(in.Members))
	names := make([]string, 0, len(in.Members))
	for _, m := range in.Members {
		ids = append(ids, transcript.IdentityHash(m.Transcript.Segments))
		names = append(names, m.Transcript.BaseName)
	}
	return &Metadata{
		SchemaVersion:      MetadataSchemaVersion,
		GroupUUID:          groupUUID,
		GroupNameAtRun:     in.Group.Name,
		GroupKey:           in.Group.Key,
		MemberTranscriptID: ids,
		MemberDisplayNames: names,
		MemberCount:        len(in.Members),
		SelectedModules:    modules,
		CreatedAt:          time.Now().UTC(),
		RunID:              groupUUID,
		ToolVersion:        r.opts.Version,
	}
}
