package modules

import (
	"context"
	"math/rand"
	"sort"

	"github.com/snarg/ta-engine/internal/config"
	"github.com/snarg/ta-engine/internal/registry"
	"github.com/snarg/ta-engine/internal/result"
)

// Topic is one keyword cluster.
type Topic struct {
	ID       int      `json:"id"`
	Keywords []string `json:"keywords"`
}

// TopicsReport is the keyword-cluster output. Declared T2: cluster
// assignment depends on the configured seed (seed 0 draws a fresh one every
// run), so cached results are never trusted for reuse.
type TopicsReport struct {
	Topics []Topic `json:"topics"`
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"is": true, "are": true, "was": true, "were": true, "be": true,
	"i": true, "you": true, "he": true, "she": true, "it": true, "we": true,
	"they": true, "this": true, "that": true, "to": true, "of": true,
	"in": true, "on": true, "for": true, "with": true, "so": true,
}

func topicsDescriptor(cfg *config.Config) *registry.Descriptor {
	return &registry.Descriptor{
		Name:          "topics",
		Category:      registry.Heavy,
		Tier:          registry.T2,
		Requirements:  []registry.Requirement{registry.RequireSegments},
		SourceVersion: "2",
		ConfigFields:  []string{"topics.count", "topics.seed", "language"},
		Run: func(ctx context.Context, mc registry.ModuleContext) (*result.Payload, error) {
			return runTopics(ctx, mc, cfg.TopicCount, cfg.TopicSeed)
		},
	}
}

func runTopics(_ context.Context, mc registry.ModuleContext, topicCount int, seed int64) (*result.Payload, error) {
	freq := make(map[string]int)
	for _, s := range mc.Segments() {
		for _, w := range tokenize(s.Text) {
			if !stopwords[w] && len(w) > 2 {
				freq[w]++
			}
		}
	}

	type wc struct {
		word  string
		count int
	}
	words := make([]wc, 0, len(freq))
	for w, c := range freq {
		words = append(words, wc{w, c})
	}
	sort.Slice(words, func(i, j int) bool {
		if words[i].count != words[j].count {
			return words[i].count > words[j].count
		}
		return words[i].word < words[j].word
	})

	// Assign top keywords to clusters. Seed 0 means a fresh source per run.
	if topicCount < 1 {
		topicCount = 1
	}
	src := seed
	if src == 0 {
		src = rand.Int63()
	}
	rng := rand.New(rand.NewSource(src))
	rep := TopicsReport{}
	for i := 0; i < topicCount; i++ {
		rep.Topics = append(rep.Topics, Topic{ID: i})
	}
	limit := 25
	if len(words) < limit {
		limit = len(words)
	}
	for _, w := range words[:limit] {
		t := rng.Intn(topicCount)
		rep.Topics[t].Keywords = append(rep.Topics[t].Keywords, w.word)
	}

	art, err := writeArtifact(mc, "topics", "topics.json", rep)
	if err != nil {
		return nil, err
	}
	return &result.Payload{
		Artifacts: []result.Artifact{art},
		Metrics:   map[string]float64{"vocabulary": float64(len(freq))},
		Data:      rep,
	}, nil
}
