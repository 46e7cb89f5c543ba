package modules

import (
	"context"
	"fmt"

	"github.com/snarg/ta-engine/internal/config"
	"github.com/snarg/ta-engine/internal/registry"
	"github.com/snarg/ta-engine/internal/result"
)

// Minimal polarity lexicon, selected as "default". SENTIMENT_LEXICON picks
// the table by name and is part of the module's cache key.
var polarity = map[string]float64{
	"good": 1, "great": 1, "excellent": 1, "love": 1, "happy": 1,
	"nice": 0.5, "fine": 0.5, "okay": 0.25, "thanks": 0.5, "agree": 0.5,
	"bad": -1, "terrible": -1, "hate": -1, "awful": -1, "angry": -1,
	"wrong": -0.5, "problem": -0.5, "sorry": -0.25, "disagree": -0.5,
}

var lexicons = map[string]map[string]float64{
	"default": polarity,
}

// SegmentSentiment is one segment's polarity score.
type SegmentSentiment struct {
	Index   int     `json:"index"`
	Speaker string  `json:"speaker,omitempty"`
	Score   float64 `json:"score"`
}

// SentimentReport is the per-transcript sentiment summary.
type SentimentReport struct {
	Overall  float64            `json:"overall"`
	Segments []SegmentSentiment `json:"segments"`
}

func sentimentDescriptor(cfg *config.Config) *registry.Descriptor {
	return &registry.Descriptor{
		Name:          "sentiment",
		Category:      registry.Light,
		Tier:          registry.T1,
		Requirements:  []registry.Requirement{registry.RequireSegments},
		SourceVersion: "1",
		ConfigFields:  []string{"sentiment.lexicon", "language"},
		Run: func(ctx context.Context, mc registry.ModuleContext) (*result.Payload, error) {
			return runSentiment(ctx, mc, cfg.SentimentLexicon)
		},
	}
}

func runSentiment(_ context.Context, mc registry.ModuleContext, lexicon string) (*result.Payload, error) {
	lex, ok := lexicons[lexicon]
	if !ok {
		return nil, fmt.Errorf("unknown sentiment lexicon %q", lexicon)
	}
	rep := scoreSentiment(mc, lex)

	art, err := writeArtifact(mc, "sentiment", "sentiment.json", rep)
	if err != nil {
		return nil, err
	}
	if err := mc.StoreAnalysisResult("sentiment", rep); err != nil {
		return nil, err
	}

	return &result.Payload{
		Artifacts: []result.Artifact{art},
		Metrics:   map[string]float64{"overall": rep.Overall},
		Data:      rep,
	}, nil
}

// scoreSentiment is exported within the package so entity_sentiment can fall
// back to direct scoring when the stored upstream result is unavailable.
func scoreSentiment(mc registry.ModuleContext, lex map[string]float64) SentimentReport {
	rep := SentimentReport{}
	var total float64
	for i, s := range mc.Segments() {
		var score float64
		for _, w := range tokenize(s.Text) {
			score += lex[w]
		}
		rep.Segments = append(rep.Segments, SegmentSentiment{Index: i, Speaker: s.Speaker, Score: score})
		total += score
	}
	if n := len(rep.Segments); n > 0 {
		rep.Overall = total / float64(n)
	}
	return rep
}
