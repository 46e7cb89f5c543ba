package group

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// ErrValidation marks aggregation output that failed row validation. The
// aggregation's files are not written at all — no partial files.
var ErrValidation = errors.New("aggregation row validation failed")

// SessionRow is one per-transcript row in an aggregation output.
type SessionRow struct {
	TranscriptKey   string  `json:"transcript_key"`
	MemberIndex     int     `json:"member_index"`
	Segments        int     `json:"segments"`
	Words           int     `json:"words"`
	Speakers        int     `json:"speakers"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// SpeakerRow is one per-canonical-speaker row in an aggregation output.
type SpeakerRow struct {
	CanonicalID     int64   `json:"canonical_id"`
	DisplayName     string  `json:"display_name"`
	Transcripts     int     `json:"transcripts"`
	Segments        int     `json:"segments"`
	Words           int     `json:"words"`
	SpeakingSeconds float64 `json:"speaking_seconds"`
}

// MetricsSpec describes the metrics columns an aggregation emitted, for
// downstream chart rendering.
type MetricsSpec struct {
	Metrics []MetricSpecEntry `json:"metrics"`
}

type MetricSpecEntry struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Unit  string `json:"unit,omitempty"`
}

// RowSet is everything one aggregation produced.
type RowSet struct {
	Name        string                      `json:"name"`
	SessionRows []SessionRow                `json:"session_rows"`
	SpeakerRows []SpeakerRow                `json:"speaker_rows"`
	MetricsSpec *MetricsSpec                `json:"metrics_spec,omitempty"`
	ContentRows map[string][]map[string]any `json:"content_rows,omitempty"`
}

// Validate checks every row before anything is written. All problems are
// reported, not just the first.
func (rs *RowSet) Validate() error {
	var problems []string
	if rs.Name == "" {
		problems = append(problems, "row set has no name")
	}
	for i, r := range rs.SessionRows {
		if r.TranscriptKey == "" {
			problems = append(problems, fmt.Sprintf("session_rows[%d]: empty transcript_key", i))
		}
		if r.Segments < 0 || r.Words < 0 {
			problems = append(problems, fmt.Sprintf("session_rows[%d]: negative counts", i))
		}
	}
	for i, r := range rs.SpeakerRows {
		if r.CanonicalID == 0 {
			problems = append(problems, fmt.Sprintf("speaker_rows[%d]: zero canonical_id", i))
		}
		if r.DisplayName == "" {
			problems = append(problems, fmt.Sprintf("speaker_rows[%d]: empty display_name", i))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %v", ErrValidation, problems)
	}
	return nil
}

// WriteRowSet writes the paired JSON + CSV files for one aggregation plus a
// bundle combining all of them. Validation failure rejects the entire write.
func WriteRowSet(dir string, rs *RowSet) error {
	if err := rs.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create aggregation dir: %w", err)
	}

	if err := writeJSON(filepath.Join(dir, "session_rows.json"), rs.SessionRows); err != nil {
		return err
	}
	if err := writeSessionCSV(filepath.Join(dir, "session_rows.csv"), rs.SessionRows); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, "speaker_rows.json"), rs.SpeakerRows); err != nil {
		return err
	}
	if err := writeSpeakerCSV(filepath.Join(dir, "speaker_rows.csv"), rs.SpeakerRows); err != nil {
		return err
	}
	if rs.MetricsSpec != nil {
		if err := writeJSON(filepath.Join(dir, "metrics_spec.json"), rs.MetricsSpec); err != nil {
			return err
		}
	}
	for name, rows := range rs.ContentRows {
		if err := writeJSON(filepath.Join(dir, name+".json"), rows); err != nil {
			return err
		}
	}
	return writeJSON(filepath.Join(dir, "bundle.json"), rs)
}

func writeSessionCSV(path string, rows []SessionRow) error {
	records := [][]string{{"transcript_key", "member_index", "segments", "words", "speakers", "duration_seconds"}}
	for _, r := range rows {
		records = append(records, []string{
			r.TranscriptKey,
			strconv.Itoa(r.MemberIndex),
			strconv.Itoa(r.Segments),
			strconv.Itoa(r.Words),
			strconv.Itoa(r.Speakers),
			strconv.FormatFloat(r.DurationSeconds, 'f', 3, 64),
		})
	}
	return writeCSV(path, records)
}

func writeSpeakerCSV(path string, rows []SpeakerRow) error {
	records := [][]string{{"canonical_id", "display_name", "transcripts", "segments", "words", "speaking_seconds"}}
	for _, r := range rows {
		records = append(records, []string{
			strconv.FormatInt(r.CanonicalID, 10),
			r.DisplayName,
			strconv.Itoa(r.Transcripts),
			strconv.Itoa(r.Segments),
			strconv.Itoa(r.Words),
			strconv.FormatFloat(r.SpeakingSeconds, 'f', 3, 64),
		})
	}
	return writeCSV(path, records)
}

func writeCSV(path string, records [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(records); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
