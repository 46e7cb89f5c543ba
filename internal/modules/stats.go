package modules

import (
	"context"
	"strings"

	"github.com/snarg/ta-engine/internal/registry"
	"github.com/snarg/ta-engine/internal/result"
)

// StatsReport is the per-transcript volume summary.
type StatsReport struct {
	Segments        int                `json:"segments"`
	Words           int                `json:"words"`
	DurationSeconds float64            `json:"duration_seconds"`
	WordsBySpeaker  map[string]int     `json:"words_by_speaker,omitempty"`
	TimeBySpeaker   map[string]float64 `json:"time_by_speaker,omitempty"`
}

func statsDescriptor() *registry.Descriptor {
	return &registry.Descriptor{
		Name:          "stats",
		Category:      registry.Light,
		Tier:          registry.T0,
		Requirements:  []registry.Requirement{registry.RequireSegments},
		SourceVersion: "1",
		Run:           runStats,
	}
}

func runStats(_ context.Context, mc registry.ModuleContext) (*result.Payload, error) {
	rep := StatsReport{
		WordsBySpeaker: make(map[string]int),
		TimeBySpeaker:  make(map[string]float64),
	}

	for _, s := range mc.Segments() {
		rep.Segments++
		words := len(strings.Fields(s.Text))
		rep.Words += words
		dur := s.End - s.Start
		if dur > 0 {
			rep.DurationSeconds += dur
		}
		if s.Speaker != "" {
			name := s.Speaker
			if display, ok := mc.SpeakerMap()[s.Speaker]; ok {
				name = display
			}
			rep.WordsBySpeaker[name] += words
			if dur > 0 {
				rep.TimeBySpeaker[name] += dur
			}
		}
	}

	art, err := writeArtifact(mc, "stats", "stats.json", rep)
	if err != nil {
		return nil, err
	}
	if err := mc.StoreAnalysisResult("stats", rep); err != nil {
		return nil, err
	}

	return &result.Payload{
		Artifacts: []result.Artifact{art},
		Metrics: map[string]float64{
			"segments": float64(rep.Segments),
			"words":    float64(rep.Words),
		},
		Data: rep,
	}, nil
}
