package pipeline

import (
	"fmt"
	"sync"

	"github.com/snarg/ta-engine/internal/transcript"
)

// execContext is the transcript-scoped execution context handed to module
// entry points. It satisfies registry.ModuleContext.
type execContext struct {
	segments   []transcript.Segment
	speakerMap map[string]string
	baseName   string
	runDir     string

	mu      sync.Mutex
	results map[string]any
}

func newExecContext(t *transcript.Transcript, runDir string) *execContext {
	// Speaker map is the identity mapping over local labels. Module output
	// is a function of the cache key alone; the canonical group map feeds
	// aggregators downstream, never module execution.
	sm := make(map[string]string)
	for _, spk := range t.Speakers() {
		sm[spk] = spk
	}
	return &execContext{
		segments:   t.Segments,
		speakerMap: sm,
		baseName:   t.BaseName,
		runDir:     runDir,
		results:    make(map[string]any),
	}
}

func (e *execContext) Segments() []transcript.Segment { return e.segments }
func (e *execContext) SpeakerMap() map[string]string  { return e.speakerMap }
func (e *execContext) BaseName() string               { return e.baseName }
func (e *execContext) TranscriptDir() string          { return e.runDir }

func (e *execContext) StoreAnalysisResult(name string, value any) error {
	if name == "" {
		return fmt.Errorf("analysis result name must not be empty")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results[name] = value
	return nil
}

func (e *execContext) AnalysisResult(name string) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.results[name]
	return v, ok
}
