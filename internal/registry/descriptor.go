package registry

import (
	"context"

	"github.com/snarg/ta-engine/internal/result"
	"github.com/snarg/ta-engine/internal/transcript"
)

// Category is a module's cost tier. It drives scheduling hints and default
// timeouts, not correctness.
type Category string

const (
	Light  Category = "light"
	Medium Category = "medium"
	Heavy  Category = "heavy"
)

// Tier is a module's determinism guarantee.
//
//	T0: byte-identical output for identical input; cacheable indefinitely.
//	T1: stable modulo model/version drift; cacheable with a version fingerprint.
//	T2: may vary run to run; cache entries are advisory and never satisfy a lookup.
type Tier string

const (
	T0 Tier = "T0"
	T1 Tier = "T1"
	T2 Tier = "T2"
)

// Requirement is a structural precondition a module declares on its input.
type Requirement string

const (
	RequireSegments      Requirement = "segments"
	RequireTimestamps    Requirement = "timestamps"
	RequireSpeakerLabels Requirement = "speaker_labels"
	RequireDurableStore  Requirement = "durable_store"
)

// ModuleContext is the execution context the coordinator hands to a module's
// entry point. Modules see the transcript and a scratch area for
// inter-module results; they never touch the run records directly.
type ModuleContext interface {
	Segments() []transcript.Segment
	SpeakerMap() map[string]string
	BaseName() string
	TranscriptDir() string

	// StoreAnalysisResult publishes a named intermediate value for
	// downstream modules in the same run.
	StoreAnalysisResult(name string, value any) error
	AnalysisResult(name string) (any, bool)
}

// RunFunc is the module entry point. A returned error (or a panic, which the
// coordinator recovers) marks the module run failed without aborting the
// pipeline.
type RunFunc func(ctx context.Context, mc ModuleContext) (*result.Payload, error)

// Descriptor declares one analysis module to the registry.
type Descriptor struct {
	Name         string
	Category     Category
	Dependencies []string
	Tier         Tier
	Requirements []Requirement

	// SourceVersion fingerprints the module implementation; bumped on any
	// change that affects output. Feeds the module-source hash.
	SourceVersion string

	// ConfigFields is the allow-list of config field paths whose values
	// affect this module's output. Only these feed the module-config hash.
	ConfigFields []string

	Run RunFunc
}
