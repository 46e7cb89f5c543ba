package modules

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/snarg/ta-engine/internal/config"
	"github.com/snarg/ta-engine/internal/registry"
	"github.com/snarg/ta-engine/internal/result"
	"github.com/snarg/ta-engine/internal/transcript"
)

// Entity is one extracted named entity with its mention segments.
type Entity struct {
	Text     string `json:"text"`
	Mentions []int  `json:"mentions"`
}

// NERReport lists extracted entities in first-mention order.
type NERReport struct {
	Entities []Entity `json:"entities"`
}

func nerDescriptor(cfg *config.Config) *registry.Descriptor {
	return &registry.Descriptor{
		Name:          "ner",
		Category:      registry.Medium,
		Tier:          registry.T1,
		Requirements:  []registry.Requirement{registry.RequireSegments},
		SourceVersion: "1",
		ConfigFields:  []string{"ner.min_token_len", "language"},
		Run: func(ctx context.Context, mc registry.ModuleContext) (*result.Payload, error) {
			return runNER(ctx, mc, cfg.NERMinTokenLen)
		},
	}
}

func runNER(_ context.Context, mc registry.ModuleContext, minLen int) (*result.Payload, error) {
	rep := extractEntities(mc.Segments(), minLen)

	art, err := writeArtifact(mc, "ner", "entities.json", rep)
	if err != nil {
		return nil, err
	}
	if err := mc.StoreAnalysisResult("ner", rep); err != nil {
		return nil, err
	}

	return &result.Payload{
		Artifacts: []result.Artifact{art},
		Metrics:   map[string]float64{"entities": float64(len(rep.Entities))},
		Data:      rep,
	}, nil
}

// extractEntities finds capitalized tokens that are not sentence-initial.
// Rule-based on purpose: the module contract, not the extraction quality, is
// what the engine exercises.
func extractEntities(segments []transcript.Segment, minLen int) NERReport {
	mentions := make(map[string][]int)
	var order []string

	for i, s := range segments {
		words := strings.Fields(transcript.NormalizeText(s.Text))
		for j, w := range words {
			token := strings.Trim(w, ".,!?;:\"'()[]")
			if len(token) < minLen || j == 0 {
				continue
			}
			runes := []rune(token)
			if !unicode.IsUpper(runes[0]) {
				continue
			}
			if _, seen := mentions[token]; !seen {
				order = append(order, token)
			}
			mentions[token] = append(mentions[token], i)
		}
	}

	rep := NERReport{}
	for _, name := range order {
		segs := mentions[name]
		sort.Ints(segs)
		rep.Entities = append(rep.Entities, Entity{Text: name, Mentions: dedupeInts(segs)})
	}
	return rep
}

func dedupeInts(in []int) []int {
	out := in[:0]
	for i, v := range in {
		if i == 0 || v != in[i-1] {
			out = append(out, v)
		}
	}
	return out
}
