package modules

import (
	"context"

	"github.com/snarg/ta-engine/internal/config"
	"github.com/snarg/ta-engine/internal/registry"
	"github.com/snarg/ta-engine/internal/result"
)

var emotionLexicon = map[string]string{
	"happy": "joy", "glad": "joy", "excited": "joy", "love": "joy",
	"sad": "sadness", "sorry": "sadness", "miss": "sadness",
	"angry": "anger", "furious": "anger", "hate": "anger",
	"afraid": "fear", "scared": "fear", "worried": "fear",
	"wow": "surprise", "really": "surprise",
}

// EmotionReport counts emotion labels per speaker and overall.
type EmotionReport struct {
	ModelVersion string                    `json:"model_version"`
	Overall      map[string]int            `json:"overall"`
	BySpeaker    map[string]map[string]int `json:"by_speaker,omitempty"`
}

func emotionDescriptor(cfg *config.Config) *registry.Descriptor {
	return &registry.Descriptor{
		Name:          "emotion",
		Category:      registry.Medium,
		Tier:          registry.T1,
		Requirements:  []registry.Requirement{registry.RequireSegments},
		SourceVersion: "1",
		ConfigFields:  []string{"emotion.model_version", "language"},
		Run: func(ctx context.Context, mc registry.ModuleContext) (*result.Payload, error) {
			return runEmotion(ctx, mc, cfg.EmotionModelVersion)
		},
	}
}

// runEmotion stamps the configured model version into the report; the
// version fingerprints the lexicon in downstream records.
func runEmotion(_ context.Context, mc registry.ModuleContext, modelVersion string) (*result.Payload, error) {
	rep := EmotionReport{
		ModelVersion: modelVersion,
		Overall:      make(map[string]int),
		BySpeaker:    make(map[string]map[string]int),
	}

	for _, s := range mc.Segments() {
		for _, w := range tokenize(s.Text) {
			label, ok := emotionLexicon[w]
			if !ok {
				continue
			}
			rep.Overall[label]++
			if s.Speaker != "" {
				if rep.BySpeaker[s.Speaker] == nil {
					rep.BySpeaker[s.Speaker] = make(map[string]int)
				}
				rep.BySpeaker[s.Speaker][label]++
			}
		}
	}

	art, err := writeArtifact(mc, "emotion", "emotion.json", rep)
	if err != nil {
		return nil, err
	}
	return &result.Payload{
		Artifacts: []result.Artifact{art},
		Data:      rep,
	}, nil
}
