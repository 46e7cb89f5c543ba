package pipeline

import (
	"github.com/snarg/ta-engine/internal/result"
	"github.com/snarg/ta-engine/internal/transcript"
)

// SummarySchemaVersion versions the run_results.json shape.
const SummarySchemaVersion = 1

// SkippedModule pairs a skipped module with the reasons it could not run.
type SkippedModule struct {
	Module string `json:"module"`
	Reason string `json:"reason"`
}

// RunError is one entry in the run's errors list.
type RunError struct {
	Module       string `json:"module"`
	ErrorType    string `json:"error_type"`
	ErrorMessage string `json:"error_message"`
}

// Summary is the run results summary: every requested module is accounted
// for in exactly one of run/cached/skipped/failed — a user never sees a
// silent absence of an expected module's output.
type Summary struct {
	SchemaVersion  int             `json:"schema_version"`
	RunID          string          `json:"run_id"`
	TranscriptKey  string          `json:"transcript_key"`
	ModulesEnabled []string        `json:"modules_enabled"`
	ModulesRun     []string        `json:"modules_run"`
	ModulesCached  []string        `json:"modules_cached"`
	ModulesSkipped []SkippedModule `json:"modules_skipped"`
	ModulesFailed  []string        `json:"modules_failed"`
	Errors         []RunError      `json:"errors"`
}

func (c *Coordinator) buildSummary(t *transcript.Transcript) *Summary {
	s := &Summary{
		SchemaVersion:  SummarySchemaVersion,
		RunID:          c.runID,
		TranscriptKey:  c.transcriptKey(t),
		ModulesEnabled: c.order,
		ModulesRun:     []string{},
		ModulesCached:  []string{},
		ModulesSkipped: []SkippedModule{},
		ModulesFailed:  []string{},
		Errors:         []RunError{},
	}
	for _, env := range c.envelopes {
		switch env.Status {
		case result.StatusRun:
			s.ModulesRun = append(s.ModulesRun, env.ModuleName)
		case result.StatusCached:
			s.ModulesCached = append(s.ModulesCached, env.ModuleName)
		case result.StatusSkipped:
			reason := ""
			if len(env.Reasons) > 0 {
				reason = env.Reasons[0]
				for _, r := range env.Reasons[1:] {
					reason += "; " + r
				}
			}
			s.ModulesSkipped = append(s.ModulesSkipped, SkippedModule{Module: env.ModuleName, Reason: reason})
		case result.StatusFailed:
			s.ModulesFailed = append(s.ModulesFailed, env.ModuleName)
			if env.Error != nil {
				s.Errors = append(s.Errors, RunError{
					Module:       env.ModuleName,
					ErrorType:    env.Error.ErrorType,
					ErrorMessage: env.Error.ErrorMessage,
				})
			}
		}
	}
	return s
}
