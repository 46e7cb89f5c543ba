// Package manifest builds the deterministic artifact index of one run.
// Rebuilding over an unchanged output tree yields byte-identical output,
// independent of filesystem iteration order.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// SchemaVersion versions the manifest.json shape.
const SchemaVersion = 1

// FileName is the manifest's filename inside a run directory.
const FileName = "manifest.json"

// Entry describes one artifact on disk. Generated, never hand-edited;
// recomputed wholesale from the directory's current contents.
type Entry struct {
	ID      string    `json:"id"`
	Kind    string    `json:"kind"`
	RelPath string    `json:"rel_path"`
	Bytes   int64     `json:"bytes"`
	MTime   time.Time `json:"mtime"`
	MIME    string    `json:"mime"`
	Tags    []string  `json:"tags,omitempty"`
	Module  string    `json:"module,omitempty"`
	Scope   string    `json:"scope,omitempty"`
	Speaker string    `json:"speaker,omitempty"`
}

// RunMetadata captures what produced the artifacts.
type RunMetadata struct {
	Timestamp      time.Time `json:"timestamp"`
	TranscriptKey  string    `json:"transcript_key"`
	ModulesEnabled []string  `json:"modules_enabled"`
	ConfigHash     string    `json:"config_hash"`
}

// Manifest is the deterministic index of all artifacts produced by one run.
type Manifest struct {
	SchemaVersion int         `json:"schema_version"`
	RunID         string      `json:"run_id"`
	RunMetadata   RunMetadata `json:"run_metadata"`
	Artifacts     []Entry     `json:"artifacts"`
}

// Build recursively scans runDir and produces the artifact index, sorted by
// (rel_path, kind). Read-only over the output tree; the manifest file itself
// is excluded so rebuilding is stable.
func Build(runDir, runID, transcriptKey string, modulesEnabled []string, configHash string) (*Manifest, error) {
	var entries []Entry

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
		rel = filepath.ToSlash(rel)
		if rel == FileName {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		e := classify(rel)
		e.Bytes = info.Size()
		e.MTime = info.ModTime().UTC().Truncate(time.Second)
		e.MIME = detectMIME(path)
		e.ID = entryID(rel)
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan run dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].RelPath != entries[j].RelPath {
			return entries[i].RelPath < entries[j].RelPath
		}
		return entries[i].Kind < entries[j].Kind
	})

	enabled := make([]string, len(modulesEnabled))
	copy(enabled, modulesEnabled)

	return &Manifest{
		SchemaVersion: SchemaVersion,
		RunID:         runID,
		RunMetadata: RunMetadata{
			Timestamp:      time.Now().UTC().Truncate(time.Second),
			TranscriptKey:  transcriptKey,
			ModulesEnabled: enabled,
			ConfigHash:     configHash,
		},
		Artifacts: entries,
	}, nil
}

// Write serializes the manifest into the run directory.
func Write(runDir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(runDir, FileName), append(data, '\n'), 0o644)
}

// Read loads a previously written manifest.
func Read(runDir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(runDir, FileName))
	if err != nil {
		return nil, err
	}
	m := &Manifest{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return m, nil
}

// classify maps a relative path to kind, scope, module, and tags by
// extension and location.
func classify(rel string) Entry {
	e := Entry{RelPath: rel, Scope: "global"}

	parts := strings.Split(rel, "/")
	switch {
	case parts[0] == "results" && len(parts) == 2:
		e.Module = strings.TrimSuffix(parts[1], filepath.Ext(parts[1]))
		e.Kind = "envelope"
	case parts[0] == "modules" && len(parts) >= 3:
		e.Module = parts[1]
	case parts[0] == "speakers" && len(parts) >= 3:
		e.Scope = "speaker"
		e.Speaker = parts[1]
	}

	if e.Kind == "" {
		switch strings.ToLower(filepath.Ext(rel)) {
		case ".json":
			e.Kind = "data"
		case ".csv", ".tsv":
			e.Kind = "table"
		case ".png", ".svg", ".html":
			e.Kind = "chart"
		case ".txt", ".md":
			e.Kind = "summary"
		default:
			e.Kind = "other"
		}
	}

	tags := []string{e.Kind}
	if e.Module != "" {
		tags = append(tags, e.Module)
	}
	e.Tags = tags
	return e
}

func detectMIME(path string) string {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "application/octet-stream"
	}
	// Strip charset parameters so re-detection is byte-stable.
	s := mt.String()
	if i := strings.Index(s, ";"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func entryID(rel string) string {
	sum := sha256.Sum256([]byte(rel))
	return hex.EncodeToString(sum[:8])
}
