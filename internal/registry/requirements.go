package registry

import (
	"fmt"

	"github.com/snarg/ta-engine/internal/transcript"
)

// ShouldSkip reports whether a module must be skipped because one or more of
// its declared requirements is unmet, and returns a reason for every unmet
// requirement so the run summary can explain each skip. A missing capability
// is an expected condition, never an error.
func ShouldSkip(reqs []Requirement, caps transcript.Capabilities, hasDurableStore bool) (bool, []string) {
	var reasons []string
	for _, req := range reqs {
		switch req {
		case RequireSegments:
			if !caps.HasSegments {
				reasons = append(reasons, "transcript has no segments")
			}
		case RequireTimestamps:
			if !caps.HasTimestamps {
				reasons = append(reasons, "transcript has no per-segment timestamps")
			}
		case RequireSpeakerLabels:
			if !caps.HasSpeakerLabels {
				reasons = append(reasons, "transcript has no speaker labels")
			}
		case RequireDurableStore:
			if !hasDurableStore {
				reasons = append(reasons, "no durable store configured")
			}
		default:
			reasons = append(reasons, fmt.Sprintf("unrecognized requirement %q", req))
		}
	}
	return len(reasons) > 0, reasons
}
