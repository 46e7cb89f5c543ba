package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func sampleRunDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "run_results.json", `{"run_id":"r1"}`)
	writeFile(t, dir, "results/stats.json", `{"module_name":"stats"}`)
	writeFile(t, dir, "modules/stats/stats.json", `{"segments":3}`)
	writeFile(t, dir, "modules/stats/volume.csv", "a,b\n1,2\n")
	writeFile(t, dir, "modules/emotion/chart.svg", "<svg></svg>")
	writeFile(t, dir, "speakers/Alice/profile.json", `{}`)
	writeFile(t, dir, "notes.txt", "observations")
	writeFile(t, dir, "blob.bin", "\x00\x01")
	return dir
}

func TestBuildDeterministic(t *testing.T) {
	dir := sampleRunDir(t)

	m1, err := Build(dir, "r1", "call-abc", []string{"stats"}, "cfg")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := Write(dir, m1); err != nil {
		t.Fatalf("write: %v", err)
	}

	// Rebuild over the unchanged tree: the manifest file itself is excluded,
	// so the artifact list must come back byte-identical.
	m2, err := Build(dir, "r1", "call-abc", []string{"stats"}, "cfg")
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	a, _ := json.Marshal(m1.Artifacts)
	b, _ := json.Marshal(m2.Artifacts)
	if string(a) != string(b) {
		t.Errorf("rebuild differs:\n%s\n%s", a, b)
	}
}

func TestBuildSortedByRelPath(t *testing.T) {
	dir := sampleRunDir(t)
	m, err := Build(dir, "r1", "k", nil, "cfg")
	if err != nil {
		t.Fatal(err)
	}
	paths := make([]string, len(m.Artifacts))
	for i, e := range m.Artifacts {
		paths[i] = e.RelPath
	}
	if !sort.StringsAreSorted(paths) {
		t.Errorf("artifacts not sorted: %v", paths)
	}
}

func TestClassification(t *testing.T) {
	dir := sampleRunDir(t)
	m, err := Build(dir, "r1", "k", nil, "cfg")
	if err != nil {
		t.Fatal(err)
	}

	byPath := make(map[string]Entry)
	for _, e := range m.Artifacts {
		byPath[e.RelPath] = e
	}

	cases := []struct {
		rel, kind, module, scope, speaker string
	}{
		{"results/stats.json", "envelope", "stats", "global", ""},
		{"modules/stats/stats.json", "data", "stats", "global", ""},
		{"modules/stats/volume.csv", "table", "stats", "global", ""},
		{"modules/emotion/chart.svg", "chart", "emotion", "global", ""},
		{"speakers/Alice/profile.json", "data", "", "speaker", "Alice"},
		{"notes.txt", "summary", "", "global", ""},
		{"blob.bin", "other", "", "global", ""},
		{"run_results.json", "data", "", "global", ""},
	}
	for _, c := range cases {
		e, ok := byPath[c.rel]
		if !ok {
			t.Errorf("missing entry for %s", c.rel)
			continue
		}
		if e.Kind != c.kind || e.Module != c.module || e.Scope != c.scope || e.Speaker != c.speaker {
			t.Errorf("%s classified as %+v, want kind=%s module=%s scope=%s speaker=%s",
				c.rel, e, c.kind, c.module, c.scope, c.speaker)
		}
		if e.ID == "" || e.Bytes <= 0 || e.MIME == "" {
			t.Errorf("%s entry incomplete: %+v", c.rel, e)
		}
	}

	if _, ok := byPath[FileName]; ok {
		t.Error("manifest must exclude itself")
	}
}

func TestWriteRead(t *testing.T) {
	dir := sampleRunDir(t)
	m, err := Build(dir, "r1", "call-abc", []string{"stats", "ner"}, "cfg")
	if err != nil {
		t.Fatal(err)
	}
	if err := Write(dir, m); err != nil {
		t.Fatal(err)
	}

	got, err := Read(dir)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.SchemaVersion != SchemaVersion || got.RunID != "r1" {
		t.Errorf("roundtrip header = %+v", got)
	}
	if len(got.Artifacts) != len(m.Artifacts) {
		t.Errorf("artifact counts differ: %d vs %d", len(got.Artifacts), len(m.Artifacts))
	}
	if len(got.RunMetadata.ModulesEnabled) != 2 {
		t.Errorf("metadata = %+v", got.RunMetadata)
	}
}

func TestEntryIDStable(t *testing.T) {
	if entryID("modules/stats/stats.json") != entryID("modules/stats/stats.json") {
		t.Error("entry id must be deterministic")
	}
	if entryID("a") == entryID("b") {
		t.Error("distinct paths must get distinct ids")
	}
}
