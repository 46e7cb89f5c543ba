package transcript

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Schema versions are folded into the identity so that a change to the
// canonical byte layout invalidates everything derived from it.
const (
	SchemaVersion         = 2
	SentenceSchemaVersion = 1

	// timestampPrecision is the number of decimal places timestamps are
	// rounded to before hashing. Sub-millisecond noise from re-serialization
	// must never produce a different hash.
	timestampPrecision = 3
)

// Identity is the derived identity of one transcript. ContentHash is
// sensitive to speaker labels (re-diarization invalidates caches);
// IdentityHash is not (group joins survive speaker-map edits).
type Identity struct {
	ContentHash           string `json:"content_hash"`
	IdentityHash          string `json:"identity_hash"`
	SchemaVersion         int    `json:"schema_version"`
	SentenceSchemaVersion int    `json:"sentence_schema_version"`
	SourceHash            string `json:"source_hash"`
}

// Identify computes the full derived identity for a transcript.
func Identify(t *Transcript) Identity {
	return Identity{
		ContentHash:           ContentHash(t.Segments),
		IdentityHash:          IdentityHash(t.Segments),
		SchemaVersion:         SchemaVersion,
		SentenceSchemaVersion: SentenceSchemaVersion,
		SourceHash:            t.SourceHash,
	}
}

// ContentHash hashes canonicalized (start, end, speaker, text, language)
// tuples. Two segment sequences differing only in whitespace or timestamp
// rounding noise hash identically.
func ContentHash(segments []Segment) string {
	h := sha256.New()
	for _, s := range segments {
		fmt.Fprintf(h, "%s\x1f%s\x1f%s\x1f%s\x1f%s\x1e",
			roundTS(s.Start), roundTS(s.End), s.Speaker,
			NormalizeText(s.Text), s.Language)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// IdentityHash is like ContentHash but deliberately excludes speaker labels,
// so it is stable across re-labeling of the same underlying audio. The
// result carries a version prefix.
func IdentityHash(segments []Segment) string {
	h := sha256.New()
	for _, s := range segments {
		fmt.Fprintf(h, "%s\x1f%s\x1f%s\x1f%s\x1e",
			roundTS(s.Start), roundTS(s.End),
			NormalizeText(s.Text), s.Language)
	}
	return fmt.Sprintf("v%d:%s", SchemaVersion, hex.EncodeToString(h.Sum(nil)))
}

// NormalizeText collapses all runs of whitespace to single spaces and trims.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func roundTS(v float64) string {
	return fmt.Sprintf("%.*f", timestampPrecision, v)
}

// HashStrings hashes an ordered list of strings into one hex digest.
func HashStrings(values []string) string {
	h := sha256.New()
	for _, v := range values {
		fmt.Fprintf(h, "%s\x1e", v)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func rawHash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
