package modules

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/snarg/ta-engine/internal/config"
	"github.com/snarg/ta-engine/internal/registry"
	"github.com/snarg/ta-engine/internal/transcript"
)

func testConfig() *config.Config {
	return &config.Config{
		Language:            "en",
		SentimentLexicon:    "default",
		EmotionModelVersion: "v1",
		NERMinTokenLen:      2,
		TopicCount:          5,
		TopicSeed:           1,
		InteractionGap:      1.5,
	}
}

// fakeContext is a minimal ModuleContext for module unit tests.
type fakeContext struct {
	segments   []transcript.Segment
	speakerMap map[string]string
	dir        string
	results    map[string]any
}

func newFakeContext(t *testing.T, segments []transcript.Segment) *fakeContext {
	t.Helper()
	sm := make(map[string]string)
	for _, s := range segments {
		if s.Speaker != "" {
			sm[s.Speaker] = s.Speaker
		}
	}
	return &fakeContext{
		segments:   segments,
		speakerMap: sm,
		dir:        t.TempDir(),
		results:    make(map[string]any),
	}
}

func (f *fakeContext) Segments() []transcript.Segment { return f.segments }
func (f *fakeContext) SpeakerMap() map[string]string  { return f.speakerMap }
func (f *fakeContext) BaseName() string               { return "test" }
func (f *fakeContext) TranscriptDir() string          { return f.dir }

func (f *fakeContext) StoreAnalysisResult(name string, value any) error {
	f.results[name] = value
	return nil
}

func (f *fakeContext) AnalysisResult(name string) (any, bool) {
	v, ok := f.results[name]
	return v, ok
}

func conversation() []transcript.Segment {
	return []transcript.Segment{
		{Start: 0, End: 2, Speaker: "S0", Text: "I think Smith did a great job"},
		{Start: 2, End: 4, Speaker: "S1", Text: "I agree the Berlin launch was good"},
		{Start: 4, End: 6, Speaker: "S0", Text: "the rollout had a bad problem though"},
	}
}

func TestBuiltinRegistryResolves(t *testing.T) {
	reg := Builtin(testConfig())
	order, err := reg.ResolveDependencies(reg.Names())
	if err != nil {
		t.Fatalf("resolve all builtins: %v", err)
	}

	pos := make(map[string]int)
	for i, name := range order {
		pos[name] = i
	}
	if pos["ner"] > pos["entity_sentiment"] || pos["sentiment"] > pos["entity_sentiment"] {
		t.Errorf("entity_sentiment dependencies out of order: %v", order)
	}
}

func TestRunStats(t *testing.T) {
	mc := newFakeContext(t, conversation())
	p, err := runStats(context.Background(), mc)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}

	rep, ok := p.Data.(StatsReport)
	if !ok {
		t.Fatalf("payload data = %T", p.Data)
	}
	if rep.Segments != 3 {
		t.Errorf("segments = %d", rep.Segments)
	}
	if rep.DurationSeconds != 6 {
		t.Errorf("duration = %f", rep.DurationSeconds)
	}
	if rep.WordsBySpeaker["S0"] == 0 || rep.WordsBySpeaker["S1"] == 0 {
		t.Errorf("words by speaker = %v", rep.WordsBySpeaker)
	}
	if len(p.Artifacts) != 1 || p.Artifacts[0].RelPath != "modules/stats/stats.json" {
		t.Errorf("artifacts = %v", p.Artifacts)
	}
	if _, ok := mc.AnalysisResult("stats"); !ok {
		t.Error("stats must publish its report for downstream modules")
	}
}

func TestExtractEntities(t *testing.T) {
	rep := extractEntities(conversation(), 2)

	var names []string
	for _, e := range rep.Entities {
		names = append(names, e.Text)
	}
	// "I" is sentence-initial or too short; "Smith" and "Berlin" qualify.
	want := map[string]bool{"Smith": true, "Berlin": true}
	for _, n := range names {
		if !want[n] {
			t.Errorf("unexpected entity %q (all: %v)", n, names)
		}
		delete(want, n)
	}
	for n := range want {
		t.Errorf("missing entity %q (all: %v)", n, names)
	}
}

func TestRunSentiment(t *testing.T) {
	mc := newFakeContext(t, conversation())
	p, err := runSentiment(context.Background(), mc, "default")
	if err != nil {
		t.Fatalf("sentiment: %v", err)
	}
	rep := p.Data.(SentimentReport)
	if len(rep.Segments) != 3 {
		t.Fatalf("segments = %v", rep.Segments)
	}
	if rep.Segments[0].Score <= 0 {
		t.Errorf("'great job' should be positive, got %f", rep.Segments[0].Score)
	}
	if rep.Segments[2].Score >= 0 {
		t.Errorf("'bad problem' should be negative, got %f", rep.Segments[2].Score)
	}
}

func TestRunEntitySentimentUsesUpstreamResults(t *testing.T) {
	mc := newFakeContext(t, conversation())

	if _, err := runNER(context.Background(), mc, 2); err != nil {
		t.Fatalf("ner: %v", err)
	}
	if _, err := runSentiment(context.Background(), mc, "default"); err != nil {
		t.Fatalf("sentiment: %v", err)
	}

	p, err := runEntitySentiment(context.Background(), mc, "default", 2)
	if err != nil {
		t.Fatalf("entity_sentiment: %v", err)
	}
	rep := p.Data.(EntitySentimentReport)
	if len(rep.Entities) == 0 {
		t.Fatal("expected entity sentiment rows")
	}
	for _, e := range rep.Entities {
		if e.Entity == "Smith" && e.Score <= 0 {
			t.Errorf("Smith appears in a positive segment, got %f", e.Score)
		}
	}
}

func TestRunEntitySentimentFallsBackWithoutUpstream(t *testing.T) {
	mc := newFakeContext(t, conversation())
	p, err := runEntitySentiment(context.Background(), mc, "default", 2)
	if err != nil {
		t.Fatalf("entity_sentiment without upstream: %v", err)
	}
	if p.Data.(EntitySentimentReport).Entities == nil {
		t.Error("fallback path should still extract entities")
	}
}

func TestRunInteraction(t *testing.T) {
	mc := newFakeContext(t, conversation())
	p, err := runInteraction(context.Background(), mc, 1.5)
	if err != nil {
		t.Fatalf("interaction: %v", err)
	}
	rep := p.Data.(InteractionReport)
	if len(rep.Turns) != 3 {
		t.Fatalf("turns = %v", rep.Turns)
	}
	if rep.Handoffs["S0"]["S1"] != 1 || rep.Handoffs["S1"]["S0"] != 1 {
		t.Errorf("handoffs = %v", rep.Handoffs)
	}
}

func TestRunInteractionMergesContiguousTurns(t *testing.T) {
	mc := newFakeContext(t, []transcript.Segment{
		{Start: 0, End: 1, Speaker: "S0", Text: "one"},
		{Start: 1, End: 2, Speaker: "S0", Text: "two"},
		{Start: 2, End: 3, Speaker: "S1", Text: "three"},
	})
	p, err := runInteraction(context.Background(), mc, 1.5)
	if err != nil {
		t.Fatal(err)
	}
	rep := p.Data.(InteractionReport)
	if len(rep.Turns) != 2 || rep.Turns[0].Segments != 2 {
		t.Errorf("turns = %+v", rep.Turns)
	}
}

func TestTopicsIsStochastic(t *testing.T) {
	d := topicsDescriptor(testConfig())
	if d.Tier != registry.T2 {
		t.Errorf("topics must declare the non-deterministic tier, got %s", d.Tier)
	}
	mc := newFakeContext(t, conversation())
	p, err := d.Run(context.Background(), mc)
	if err != nil {
		t.Fatalf("topics: %v", err)
	}
	if len(p.Artifacts) == 0 {
		t.Error("topics should still produce an artifact")
	}
}

// runVia executes one registered module through its descriptor, the way the
// coordinator invokes it.
func runVia(t *testing.T, cfg *config.Config, name string, mc registry.ModuleContext) any {
	t.Helper()
	d, ok := Builtin(cfg).Get(name)
	if !ok {
		t.Fatalf("module %s not registered", name)
	}
	p, err := d.Run(context.Background(), mc)
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return p.Data
}

func TestTopicCountReachesModule(t *testing.T) {
	cfg := testConfig()
	cfg.TopicCount = 3
	rep := runVia(t, cfg, "topics", newFakeContext(t, conversation())).(TopicsReport)
	if len(rep.Topics) != 3 {
		t.Errorf("topics = %d, want the configured 3", len(rep.Topics))
	}
}

func TestTopicSeedMakesAssignmentRepeatable(t *testing.T) {
	cfg := testConfig()
	cfg.TopicSeed = 7
	a := runVia(t, cfg, "topics", newFakeContext(t, conversation()))
	b := runVia(t, cfg, "topics", newFakeContext(t, conversation()))
	aj, _ := json.Marshal(a)
	bj, _ := json.Marshal(b)
	if string(aj) != string(bj) {
		t.Errorf("same seed produced different clusters:\n%s\n%s", aj, bj)
	}
}

func TestNERMinTokenLenReachesModule(t *testing.T) {
	segs := []transcript.Segment{
		{Start: 0, End: 2, Speaker: "S0", Text: "we met Bob at the UN office"},
	}

	cfg := testConfig()
	cfg.NERMinTokenLen = 3
	rep := runVia(t, cfg, "ner", newFakeContext(t, segs)).(NERReport)
	for _, e := range rep.Entities {
		if e.Text == "UN" {
			t.Errorf("min token length 3 must drop %q (all: %v)", e.Text, rep.Entities)
		}
	}

	cfg.NERMinTokenLen = 2
	rep = runVia(t, cfg, "ner", newFakeContext(t, segs)).(NERReport)
	found := false
	for _, e := range rep.Entities {
		if e.Text == "UN" {
			found = true
		}
	}
	if !found {
		t.Errorf("min token length 2 must keep UN (all: %v)", rep.Entities)
	}
}

func TestEmotionModelVersionReachesModule(t *testing.T) {
	cfg := testConfig()
	cfg.EmotionModelVersion = "v9"
	rep := runVia(t, cfg, "emotion", newFakeContext(t, conversation())).(EmotionReport)
	if rep.ModelVersion != "v9" {
		t.Errorf("model version = %q, want configured v9", rep.ModelVersion)
	}
}

func TestInteractionGapSplitsTurns(t *testing.T) {
	segs := []transcript.Segment{
		{Start: 0, End: 1, Speaker: "S0", Text: "before the pause"},
		{Start: 10, End: 11, Speaker: "S0", Text: "after the pause"},
	}

	cfg := testConfig()
	cfg.InteractionGap = 1.5
	rep := runVia(t, cfg, "interaction", newFakeContext(t, segs)).(InteractionReport)
	if len(rep.Turns) != 2 {
		t.Errorf("9s silence with 1.5s gap must split the turn, got %+v", rep.Turns)
	}

	cfg.InteractionGap = 0
	rep = runVia(t, cfg, "interaction", newFakeContext(t, segs)).(InteractionReport)
	if len(rep.Turns) != 1 {
		t.Errorf("gap 0 disables the silence break, got %+v", rep.Turns)
	}
}

func TestSentimentRejectsUnknownLexicon(t *testing.T) {
	mc := newFakeContext(t, conversation())
	if _, err := runSentiment(context.Background(), mc, "nope"); err == nil {
		t.Fatal("unknown lexicon must fail the module run")
	}
}

func TestTokenize(t *testing.T) {
	got := tokenize("Hello, world! (really)")
	want := []string{"hello", "world", "really"}
	if len(got) != len(want) {
		t.Fatalf("tokenize = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tokenize[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
