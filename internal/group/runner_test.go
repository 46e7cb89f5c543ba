package group

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/ta-engine/internal/config"
	"github.com/snarg/ta-engine/internal/modules"
)

func groupConfig() *config.Config {
	return &config.Config{
		RerunMode:      "reuse",
		Language:       "en",
		LightTimeout:   5 * time.Second,
		MediumTimeout:  5 * time.Second,
		HeavyTimeout:   5 * time.Second,
		InteractionGap: 1.5,
	}
}

func TestRunnerRejectsSingleMember(t *testing.T) {
	dir := t.TempDir()
	path := writeTranscript(t, dir, "solo.json", "S0", "S1")
	in, err := ResolveInput([]string{path}, "")
	if err != nil {
		t.Fatal(err)
	}

	r := NewRunner(RunnerOptions{
		Registry:  modules.Builtin(groupConfig()),
		Config:    groupConfig(),
		OutputDir: t.TempDir(),
		Log:       zerolog.Nop(),
	})
	if _, err := r.Run(context.Background(), in, []string{"stats"}); err == nil {
		t.Fatal("single transcript must not run in group mode")
	}
}

func TestRunnerEndToEnd(t *testing.T) {
	srcDir := t.TempDir()
	a := writeTranscript(t, srcDir, "a.json", "Alice", "Bob")
	b := writeTranscript(t, srcDir, "b.json", "Bob", "Carol")

	in, err := ResolveInput([]string{a, b}, "retro")
	if err != nil {
		t.Fatal(err)
	}

	outDir := t.TempDir()
	r := NewRunner(RunnerOptions{
		Registry:  modules.Builtin(groupConfig()),
		Config:    groupConfig(),
		OutputDir: outDir,
		Version:   "test",
		Log:       zerolog.Nop(),
	})

	sum, err := r.Run(context.Background(), in, []string{"stats", "interaction"})
	if err != nil {
		t.Fatalf("group run: %v", err)
	}

	if len(sum.MemberRuns) != 2 {
		t.Fatalf("member runs = %v", sum.MemberRuns)
	}
	for _, mr := range sum.MemberRuns {
		if len(mr.Summary.ModulesRun) != 2 {
			t.Errorf("member %s modules run = %v", mr.Path, mr.Summary.ModulesRun)
		}
		if _, err := os.Stat(filepath.Join(outDir, mr.RunID, "manifest.json")); err != nil {
			t.Errorf("member run %s missing manifest: %v", mr.RunID, err)
		}
	}
	if len(sum.Aggregations) != 2 {
		t.Errorf("aggregations = %v (warnings %v)", sum.Aggregations, sum.Warnings)
	}

	for _, rel := range []string{
		"speaker_map.json",
		"group_metadata.json",
		"aggregations/group_stats/bundle.json",
		"aggregations/group_interaction/session_rows.csv",
	} {
		if _, err := os.Stat(filepath.Join(sum.GroupDir, rel)); err != nil {
			t.Errorf("expected %s in group dir: %v", rel, err)
		}
	}

	raw, err := os.ReadFile(filepath.Join(sum.GroupDir, "group_metadata.json"))
	if err != nil {
		t.Fatal(err)
	}
	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		t.Fatalf("parse metadata: %v", err)
	}
	if meta.GroupNameAtRun != "retro" || meta.MemberCount != 2 {
		t.Errorf("metadata = %+v", meta)
	}
	if meta.GroupKey != in.Group.Key {
		t.Error("metadata must carry the stable group key")
	}
	if len(meta.MemberTranscriptID) != 2 {
		t.Errorf("member ids = %v", meta.MemberTranscriptID)
	}
}
