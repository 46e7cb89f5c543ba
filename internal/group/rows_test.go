package group

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validRowSet() *RowSet {
	return &RowSet{
		Name: "group_stats",
		SessionRows: []SessionRow{
			{TranscriptKey: "a-123", MemberIndex: 0, Segments: 4, Words: 20, Speakers: 2, DurationSeconds: 12.5},
		},
		SpeakerRows: []SpeakerRow{
			{CanonicalID: 7, DisplayName: "Alice", Transcripts: 1, Segments: 2, Words: 10, SpeakingSeconds: 6.2},
		},
		MetricsSpec: &MetricsSpec{Metrics: []MetricSpecEntry{{Name: "words", Label: "Words"}}},
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	rs := &RowSet{
		SessionRows: []SessionRow{{TranscriptKey: "", Segments: -1}},
		SpeakerRows: []SpeakerRow{{CanonicalID: 0, DisplayName: ""}},
	}
	err := rs.Validate()
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	msg := err.Error()
	for _, want := range []string{"no name", "transcript_key", "negative", "canonical_id", "display_name"} {
		if !strings.Contains(msg, want) {
			t.Errorf("validation error should mention %q: %s", want, msg)
		}
	}
}

func TestWriteRowSetRejectsInvalidWithoutPartialFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "group_stats")
	rs := validRowSet()
	rs.SpeakerRows[0].CanonicalID = 0

	err := WriteRowSet(dir, rs)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if _, statErr := os.Stat(dir); !os.IsNotExist(statErr) {
		t.Error("invalid row set must leave no files behind")
	}
}

func TestWriteRowSetFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "group_stats")
	rs := validRowSet()
	rs.ContentRows = map[string][]map[string]any{
		"handoff_rows": {{"from": "Alice", "to": "Bob", "count": 3}},
	}

	if err := WriteRowSet(dir, rs); err != nil {
		t.Fatalf("write: %v", err)
	}

	for _, name := range []string{
		"session_rows.json", "session_rows.csv",
		"speaker_rows.json", "speaker_rows.csv",
		"metrics_spec.json", "handoff_rows.json", "bundle.json",
	} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s: %v", name, err)
		}
	}

	f, err := os.Open(filepath.Join(dir, "speaker_rows.csv"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %v", records)
	}
	if records[0][0] != "canonical_id" || records[1][1] != "Alice" {
		t.Errorf("csv content = %v", records)
	}
}
