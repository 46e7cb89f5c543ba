package speakers

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/snarg/ta-engine/internal/transcript"
)

func member(path string, speakers ...string) Member {
	var segs []transcript.Segment
	for i, s := range speakers {
		segs = append(segs, transcript.Segment{
			Start: float64(i), End: float64(i + 1), Speaker: s, Text: "word",
		})
	}
	return Member{Path: path, Transcript: &transcript.Transcript{Path: path, Segments: segs}}
}

// fakeIdentity hands out sequential ids per distinct evidence key.
type fakeIdentity struct {
	ids   map[string]int64
	names map[string]string
	next  int64
	calls int
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{ids: make(map[string]int64), names: make(map[string]string), next: 1}
}

func (f *fakeIdentity) ResolveSpeaker(_ context.Context, evidenceKey, displayName string) (int64, string, error) {
	f.calls++
	if id, ok := f.ids[evidenceKey]; ok {
		return id, f.names[evidenceKey], nil
	}
	id := f.next
	f.next++
	f.ids[evidenceKey] = id
	f.names[evidenceKey] = displayName
	return id, displayName, nil
}

func TestNormalizeSameLabelSameID(t *testing.T) {
	n := NewNormalizer(newFakeIdentity(), zerolog.Nop())
	m, err := n.Normalize(context.Background(), []Member{
		member("/g/a.json", "Alice", "Bob"),
		member("/g/b.json", "Bob", "Carol"),
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}

	bobA, ok := m.CanonicalID("/g/a.json", "Bob")
	if !ok {
		t.Fatal("Bob missing in a.json")
	}
	bobB, _ := m.CanonicalID("/g/b.json", "Bob")
	if bobA != bobB {
		t.Errorf("same label must get the same canonical id: %d vs %d", bobA, bobB)
	}

	aliceA, _ := m.CanonicalID("/g/a.json", "Alice")
	if aliceA == bobA {
		t.Error("distinct labels must not collide")
	}
}

func TestNormalizeMemoizesWithinPass(t *testing.T) {
	ident := newFakeIdentity()
	n := NewNormalizer(ident, zerolog.Nop())
	_, err := n.Normalize(context.Background(), []Member{
		member("/g/a.json", "Alice", "Bob"),
		member("/g/b.json", "Alice", "Bob"),
		member("/g/c.json", "Alice"),
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if ident.calls != 2 {
		t.Errorf("each distinct speaker resolves once per pass, got %d calls", ident.calls)
	}
}

func TestNormalizeFirstWriterWinsDisplayName(t *testing.T) {
	// "ALICE" and "alice" share an evidence key, so they share an id; the
	// first transcript's spelling names it.
	n := NewNormalizer(nil, zerolog.Nop())
	m, err := n.Normalize(context.Background(), []Member{
		member("/g/a.json", "ALICE"),
		member("/g/b.json", "alice"),
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}

	a, _ := m.CanonicalID("/g/a.json", "ALICE")
	b, _ := m.CanonicalID("/g/b.json", "alice")
	if a != b {
		t.Fatalf("case variants share an identity: %d vs %d", a, b)
	}
	if m.DisplayNames[a] != "ALICE" {
		t.Errorf("display name goes to the first writer, got %q", m.DisplayNames[a])
	}
}

func TestNormalizeFallbackStableAcrossPasses(t *testing.T) {
	n := NewNormalizer(nil, zerolog.Nop())
	members := []Member{member("/g/a.json", "Alice", "Bob")}

	m1, err := n.Normalize(context.Background(), members)
	if err != nil {
		t.Fatal(err)
	}
	m2, err := NewNormalizer(nil, zerolog.Nop()).Normalize(context.Background(), members)
	if err != nil {
		t.Fatal(err)
	}

	for _, label := range []string{"Alice", "Bob"} {
		id1, _ := m1.CanonicalID("/g/a.json", label)
		id2, _ := m2.CanonicalID("/g/a.json", label)
		if id1 != id2 {
			t.Errorf("fallback id for %s differs across passes: %d vs %d", label, id1, id2)
		}
		if id1 <= 0 {
			t.Errorf("fallback id must be positive, got %d", id1)
		}
	}
}

func TestFlatDisplay(t *testing.T) {
	n := NewNormalizer(nil, zerolog.Nop())
	m, err := n.Normalize(context.Background(), []Member{member("/g/a.json", "S0", "S1")})
	if err != nil {
		t.Fatal(err)
	}
	flat := m.FlatDisplay("/g/a.json")
	if flat["S0"] != "S0" || flat["S1"] != "S1" {
		t.Errorf("flat display = %v", flat)
	}
	if got := m.FlatDisplay("/g/missing.json"); len(got) != 0 {
		t.Errorf("unknown transcript yields empty map, got %v", got)
	}
}
