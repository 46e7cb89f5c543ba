package modules

import (
	"context"

	"github.com/snarg/ta-engine/internal/config"
	"github.com/snarg/ta-engine/internal/registry"
	"github.com/snarg/ta-engine/internal/result"
)

// Turn is one contiguous speaking turn.
type Turn struct {
	Speaker         string  `json:"speaker"`
	Segments        int     `json:"segments"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// InteractionReport summarizes turn-taking between speakers.
type InteractionReport struct {
	Turns    []Turn                    `json:"turns"`
	Handoffs map[string]map[string]int `json:"handoffs"`
}

func interactionDescriptor(cfg *config.Config) *registry.Descriptor {
	return &registry.Descriptor{
		Name:     "interaction",
		Category: registry.Light,
		Tier:     registry.T0,
		Requirements: []registry.Requirement{
			registry.RequireSegments,
			registry.RequireTimestamps,
			registry.RequireSpeakerLabels,
		},
		SourceVersion: "2",
		ConfigFields:  []string{"interaction.gap_seconds"},
		Run: func(ctx context.Context, mc registry.ModuleContext) (*result.Payload, error) {
			return runInteraction(ctx, mc, cfg.InteractionGap)
		},
	}
}

// runInteraction segments the conversation into turns. A silence longer than
// gap seconds breaks a turn even when the speaker does not change; gap <= 0
// disables the silence break.
func runInteraction(_ context.Context, mc registry.ModuleContext, gap float64) (*result.Payload, error) {
	rep := InteractionReport{Handoffs: make(map[string]map[string]int)}

	var cur *Turn
	var prevEnd float64
	for _, s := range mc.Segments() {
		name := s.Speaker
		if display, ok := mc.SpeakerMap()[s.Speaker]; ok {
			name = display
		}
		if cur != nil && cur.Speaker == name && (gap <= 0 || s.Start-prevEnd <= gap) {
			cur.Segments++
			cur.DurationSeconds += s.End - s.Start
			prevEnd = s.End
			continue
		}
		if cur != nil && cur.Speaker != name {
			if rep.Handoffs[cur.Speaker] == nil {
				rep.Handoffs[cur.Speaker] = make(map[string]int)
			}
			rep.Handoffs[cur.Speaker][name]++
		}
		rep.Turns = append(rep.Turns, Turn{Speaker: name, Segments: 1, DurationSeconds: s.End - s.Start})
		cur = &rep.Turns[len(rep.Turns)-1]
		prevEnd = s.End
	}

	art, err := writeArtifact(mc, "interaction", "interaction.json", rep)
	if err != nil {
		return nil, err
	}
	return &result.Payload{
		Artifacts: []result.Artifact{art},
		Metrics:   map[string]float64{"turns": float64(len(rep.Turns))},
		Data:      rep,
	}, nil
}
