package registry

import (
	"testing"

	"github.com/snarg/ta-engine/internal/transcript"
)

func TestShouldSkipCollectsAllReasons(t *testing.T) {
	caps := transcript.Capabilities{HasSegments: true}
	skip, reasons := ShouldSkip(
		[]Requirement{RequireSegments, RequireTimestamps, RequireSpeakerLabels, RequireDurableStore},
		caps, false)
	if !skip {
		t.Fatal("expected skip")
	}
	// Segments are present; the other three are all missing and all reported.
	if len(reasons) != 3 {
		t.Fatalf("expected 3 reasons, got %v", reasons)
	}
}

func TestShouldSkipAllMet(t *testing.T) {
	caps := transcript.Capabilities{HasSegments: true, HasTimestamps: true, HasSpeakerLabels: true}
	skip, reasons := ShouldSkip(
		[]Requirement{RequireSegments, RequireTimestamps, RequireSpeakerLabels, RequireDurableStore},
		caps, true)
	if skip {
		t.Fatalf("expected no skip, got reasons %v", reasons)
	}
}

func TestShouldSkipNoRequirements(t *testing.T) {
	skip, _ := ShouldSkip(nil, transcript.Capabilities{}, false)
	if skip {
		t.Fatal("module with no requirements never skips")
	}
}

func TestShouldSkipUnrecognizedRequirement(t *testing.T) {
	skip, reasons := ShouldSkip([]Requirement{"telepathy"}, transcript.Capabilities{}, true)
	if !skip || len(reasons) != 1 {
		t.Fatalf("unrecognized requirement must skip with one reason, got %v", reasons)
	}
}
