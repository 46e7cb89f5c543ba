package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Segment is one diarized utterance of a transcript.
type Segment struct {
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Speaker  string  `json:"speaker,omitempty"`
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
}

// Capabilities describes what a transcript structurally provides. The
// requirements resolver reads these to decide whether a module can run.
type Capabilities struct {
	HasSegments      bool
	HasTimestamps    bool
	HasSpeakerLabels bool
	Language         string
}

// Transcript is a loaded, parsed transcript file.
type Transcript struct {
	Path     string
	BaseName string
	Segments []Segment

	// SourceHash is the hash of the raw file bytes, before canonicalization.
	SourceHash string
}

// transcriptFile is the on-disk JSON shape.
type transcriptFile struct {
	Language string    `json:"language,omitempty"`
	Segments []Segment `json:"segments"`
}

// Load parses a transcript JSON file.
func Load(path string) (*Transcript, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}

	var tf transcriptFile
	if err := json.Unmarshal(raw, &tf); err != nil {
		return nil, fmt.Errorf("parse transcript %s: %w", filepath.Base(path), err)
	}

	// File-level language applies to segments that don't set their own.
	if tf.Language != "" {
		for i := range tf.Segments {
			if tf.Segments[i].Language == "" {
				tf.Segments[i].Language = tf.Language
			}
		}
	}

	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	return &Transcript{
		Path:       path,
		BaseName:   base,
		Segments:   tf.Segments,
		SourceHash: rawHash(raw),
	}, nil
}

// Caps derives the transcript's structural capabilities.
func (t *Transcript) Caps() Capabilities {
	caps := Capabilities{HasSegments: len(t.Segments) > 0}
	if !caps.HasSegments {
		return caps
	}

	caps.HasTimestamps = true
	caps.HasSpeakerLabels = true
	for _, s := range t.Segments {
		if s.End <= 0 && s.Start <= 0 {
			caps.HasTimestamps = false
		}
		if s.Speaker == "" {
			caps.HasSpeakerLabels = false
		}
		if caps.Language == "" && s.Language != "" {
			caps.Language = s.Language
		}
	}
	return caps
}

// Speakers returns the distinct speaker labels in first-appearance order.
func (t *Transcript) Speakers() []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range t.Segments {
		if s.Speaker == "" || seen[s.Speaker] {
			continue
		}
		seen[s.Speaker] = true
		out = append(out, s.Speaker)
	}
	return out
}
