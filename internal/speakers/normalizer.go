// Package speakers reconciles per-transcript local speaker labels into one
// canonical numeric identity space for a group of transcripts analyzed
// together.
package speakers

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/snarg/ta-engine/internal/transcript"
)

// IdentityService is the durable cross-session identity resolver, satisfied
// by *store.Store. Nil means unavailable; the normalizer falls back to a
// deterministic display-name hash.
type IdentityService interface {
	ResolveSpeaker(ctx context.Context, evidenceKey, displayName string) (int64, string, error)
}

// Map is the frozen canonical speaker map for one group run. Built once,
// then read-only for the remainder of the run; aggregators must never write
// into it.
type Map struct {
	// Canonical maps transcript path -> local label -> canonical id.
	Canonical map[string]map[string]int64 `json:"canonical"`

	// DisplayNames maps canonical id -> display name. First transcript in
	// input order to mention a canonical id sets its name.
	DisplayNames map[int64]string `json:"display_names"`

	// LocalDisplay maps transcript path -> local label -> display name.
	LocalDisplay map[string]map[string]string `json:"local_display"`
}

// CanonicalID resolves one (transcript, local label) pair.
func (m *Map) CanonicalID(transcriptPath, local string) (int64, bool) {
	locals, ok := m.Canonical[transcriptPath]
	if !ok {
		return 0, false
	}
	id, ok := locals[local]
	return id, ok
}

// FlatDisplay returns local label -> display name for one transcript, the
// shape module execution contexts consume.
func (m *Map) FlatDisplay(transcriptPath string) map[string]string {
	out := make(map[string]string)
	for local, name := range m.LocalDisplay[transcriptPath] {
		out[local] = name
	}
	return out
}

// Normalizer builds canonical speaker maps.
type Normalizer struct {
	identity IdentityService // nil: fallback hashing only
	log      zerolog.Logger
}

func NewNormalizer(identity IdentityService, log zerolog.Logger) *Normalizer {
	return &Normalizer{identity: identity, log: log}
}

// Member is one transcript in a group, in group input order.
type Member struct {
	Path       string
	Transcript *transcript.Transcript
}

// Normalize resolves every (transcript, local label) pair to one canonical
// id and one display name. Within a single pass the same pair always
// resolves to the same id (no re-resolution mid-run), and display-name ties
// across transcripts go to the first writer.
func (n *Normalizer) Normalize(ctx context.Context, members []Member) (*Map, error) {
	m := &Map{
		Canonical:    make(map[string]map[string]int64),
		DisplayNames: make(map[int64]string),
		LocalDisplay: make(map[string]map[string]string),
	}

	// Memoized per pass so re-encounters never re-resolve.
	resolved := make(map[string]int64)

	for _, member := range members {
		locals := make(map[string]int64)
		display := make(map[string]string)

		for _, label := range member.Transcript.Speakers() {
			key := evidenceKey(label)

			id, seen := resolved[key]
			if !seen {
				var err error
				id, err = n.resolve(ctx, key, label)
				if err != nil {
					return nil, fmt.Errorf("normalize speaker %q in %s: %w", label, member.Path, err)
				}
				resolved[key] = id
			}

			locals[label] = id
			display[label] = label
			if _, taken := m.DisplayNames[id]; !taken {
				m.DisplayNames[id] = label
			}
		}

		m.Canonical[member.Path] = locals
		m.LocalDisplay[member.Path] = display
	}

	n.log.Info().
		Int("transcripts", len(members)).
		Int("canonical_speakers", len(m.DisplayNames)).
		Msg("speaker normalization complete")
	return m, nil
}

func (n *Normalizer) resolve(ctx context.Context, key, label string) (int64, error) {
	if n.identity != nil {
		id, _, err := n.identity.ResolveSpeaker(ctx, key, label)
		return id, err
	}
	return fallbackID(label), nil
}

// evidenceKey canonicalizes a speaker label for identity lookup.
func evidenceKey(label string) string {
	return "name:" + strings.ToLower(transcript.NormalizeText(label))
}

// fallbackID derives a deterministic canonical id from the display name when
// no identity service is available.
func fallbackID(label string) int64 {
	h := fnv.New64a()
	h.Write([]byte(evidenceKey(label)))
	return int64(h.Sum64() & 0x7fffffffffffffff)
}
