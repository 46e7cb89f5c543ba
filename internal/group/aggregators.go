package group

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/snarg/ta-engine/internal/speakers"
	"github.com/snarg/ta-engine/internal/transcript"
)

// GroupRun is the read-only view an aggregator sees: the resolved members,
// their transcript keys, and the frozen canonical speaker map. Aggregators
// never write back into the map.
type GroupRun struct {
	Input      *Input
	MemberKeys []string
	Speakers   *speakers.Map
}

// Aggregator is one group-level aggregation module.
type Aggregator struct {
	Name string
	Run  func(ctx context.Context, g *GroupRun) (*RowSet, error)
}

// Aggregators returns the built-in aggregations in execution order.
func Aggregators() []Aggregator {
	return []Aggregator{
		{Name: "group_stats", Run: groupStats},
		{Name: "group_interaction", Run: groupInteraction},
	}
}

// groupStats emits per-session and per-canonical-speaker volume rows.
func groupStats(_ context.Context, g *GroupRun) (*RowSet, error) {
	rs := &RowSet{
		Name: "group_stats",
		MetricsSpec: &MetricsSpec{Metrics: []MetricSpecEntry{
			{Name: "words", Label: "Words spoken"},
			{Name: "speaking_seconds", Label: "Speaking time", Unit: "s"},
		}},
	}

	type acc struct {
		transcripts map[string]bool
		segments    int
		words       int
		seconds     float64
	}
	bySpeaker := make(map[int64]*acc)

	for i, m := range g.Input.Members {
		segs := m.Transcript.Segments
		row := SessionRow{
			TranscriptKey: g.MemberKeys[i],
			MemberIndex:   i,
			Segments:      len(segs),
			Speakers:      len(g.Speakers.Canonical[m.Path]),
		}
		for _, s := range segs {
			words := len(strings.Fields(s.Text))
			row.Words += words
			dur := s.End - s.Start
			if dur > 0 {
				row.DurationSeconds += dur
			}

			id, ok := g.Speakers.CanonicalID(m.Path, s.Speaker)
			if !ok {
				continue
			}
			a := bySpeaker[id]
			if a == nil {
				a = &acc{transcripts: make(map[string]bool)}
				bySpeaker[id] = a
			}
			a.transcripts[m.Path] = true
			a.segments++
			a.words += words
			if dur > 0 {
				a.seconds += dur
			}
		}
		rs.SessionRows = append(rs.SessionRows, row)
	}

	ids := make([]int64, 0, len(bySpeaker))
	for id := range bySpeaker {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		a := bySpeaker[id]
		rs.SpeakerRows = append(rs.SpeakerRows, SpeakerRow{
			CanonicalID:     id,
			DisplayName:     g.Speakers.DisplayNames[id],
			Transcripts:     len(a.transcripts),
			Segments:        a.segments,
			Words:           a.words,
			SpeakingSeconds: a.seconds,
		})
	}
	return rs, nil
}

// groupInteraction emits turn-handoff counts between canonical speakers,
// aggregated across every member transcript.
func groupInteraction(_ context.Context, g *GroupRun) (*RowSet, error) {
	rs := &RowSet{Name: "group_interaction"}

	handoffs := make(map[[2]int64]int)
	turns := make(map[int64]int)

	for i, m := range g.Input.Members {
		var prev int64
		havePrev := false
		segCount := 0
		for _, s := range m.Transcript.Segments {
			id, ok := g.Speakers.CanonicalID(m.Path, s.Speaker)
			if !ok {
				continue
			}
			segCount++
			turns[id]++
			if havePrev && prev != id {
				handoffs[[2]int64{prev, id}]++
			}
			prev, havePrev = id, true
		}
		rs.SessionRows = append(rs.SessionRows, SessionRow{
			TranscriptKey: g.MemberKeys[i],
			MemberIndex:   i,
			Segments:      segCount,
			Speakers:      len(g.Speakers.Canonical[m.Path]),
		})
	}

	ids := make([]int64, 0, len(turns))
	for id := range turns {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		rs.SpeakerRows = append(rs.SpeakerRows, SpeakerRow{
			CanonicalID: id,
			DisplayName: g.Speakers.DisplayNames[id],
			Transcripts: len(g.Input.Members),
			Segments:    turns[id],
		})
	}

	var rows []map[string]any
	pairs := make([][2]int64, 0, len(handoffs))
	for p := range handoffs {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}
		return pairs[i][1] < pairs[j][1]
	})
	for _, p := range pairs {
		rows = append(rows, map[string]any{
			"from":  g.Speakers.DisplayNames[p[0]],
			"to":    g.Speakers.DisplayNames[p[1]],
			"count": handoffs[p],
		})
	}
	if len(rows) > 0 {
		rs.ContentRows = map[string][]map[string]any{"handoff_rows": rows}
	}
	return rs, nil
}

// memberKey mirrors the per-transcript key used in run summaries.
func memberKey(t *transcript.Transcript) string {
	h := transcript.ContentHash(t.Segments)
	if len(h) > 12 {
		h = h[:12]
	}
	return fmt.Sprintf("%s-%s", t.BaseName, h)
}
