package modules

import (
	"context"
	"fmt"

	"github.com/snarg/ta-engine/internal/config"
	"github.com/snarg/ta-engine/internal/registry"
	"github.com/snarg/ta-engine/internal/result"
)

// EntitySentiment pairs an entity with the mean polarity of the segments
// that mention it.
type EntitySentiment struct {
	Entity   string  `json:"entity"`
	Score    float64 `json:"score"`
	Mentions int     `json:"mentions"`
}

// EntitySentimentReport lists entity polarity in first-mention order.
type EntitySentimentReport struct {
	Entities []EntitySentiment `json:"entities"`
}

func entitySentimentDescriptor(cfg *config.Config) *registry.Descriptor {
	return &registry.Descriptor{
		Name:          "entity_sentiment",
		Category:      registry.Medium,
		Tier:          registry.T1,
		Dependencies:  []string{"ner", "sentiment"},
		Requirements:  []registry.Requirement{registry.RequireSegments},
		SourceVersion: "1",
		ConfigFields:  []string{"sentiment.lexicon", "ner.min_token_len", "language"},
		Run: func(ctx context.Context, mc registry.ModuleContext) (*result.Payload, error) {
			return runEntitySentiment(ctx, mc, cfg.SentimentLexicon, cfg.NERMinTokenLen)
		},
	}
}

func runEntitySentiment(_ context.Context, mc registry.ModuleContext, lexicon string, minLen int) (*result.Payload, error) {
	// Primary: consume the upstream modules' stored results. Fallback: if an
	// upstream result is unavailable (upstream failed or hit the cache in a
	// prior run), recompute directly with the same settings the upstream
	// modules were given. The unavailable condition is inspected explicitly;
	// it is not an error.
	ner, ok := analysisNER(mc)
	if !ok {
		ner = extractEntities(mc.Segments(), minLen)
	}
	sent, ok := analysisSentiment(mc)
	if !ok {
		lex, lok := lexicons[lexicon]
		if !lok {
			return nil, fmt.Errorf("unknown sentiment lexicon %q", lexicon)
		}
		sent = scoreSentiment(mc, lex)
	}

	scoreByIndex := make(map[int]float64, len(sent.Segments))
	for _, ss := range sent.Segments {
		scoreByIndex[ss.Index] = ss.Score
	}

	rep := EntitySentimentReport{}
	for _, e := range ner.Entities {
		var total float64
		for _, idx := range e.Mentions {
			total += scoreByIndex[idx]
		}
		es := EntitySentiment{Entity: e.Text, Mentions: len(e.Mentions)}
		if len(e.Mentions) > 0 {
			es.Score = total / float64(len(e.Mentions))
		}
		rep.Entities = append(rep.Entities, es)
	}

	art, err := writeArtifact(mc, "entity_sentiment", "entity_sentiment.json", rep)
	if err != nil {
		return nil, err
	}
	return &result.Payload{
		Artifacts: []result.Artifact{art},
		Metrics:   map[string]float64{"entities": float64(len(rep.Entities))},
		Data:      rep,
	}, nil
}

func analysisNER(mc registry.ModuleContext) (NERReport, bool) {
	v, ok := mc.AnalysisResult("ner")
	if !ok {
		return NERReport{}, false
	}
	rep, ok := v.(NERReport)
	return rep, ok
}

func analysisSentiment(mc registry.ModuleContext) (SentimentReport, bool) {
	v, ok := mc.AnalysisResult("sentiment")
	if !ok {
		return SentimentReport{}, false
	}
	rep, ok := v.(SentimentReport)
	return rep, ok
}
