// Package result defines the uniform envelope every module invocation is
// normalized into — whether it ran, hit the cache, was skipped, or failed.
// Downstream reporting reads envelopes, never a module's raw return value.
package result

import (
	"fmt"
	"time"
)

// Status is the terminal state of one module run.
type Status string

const (
	StatusRun     Status = "run"
	StatusCached  Status = "cached"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// maxTracebackBytes caps the stored stack trace so a crashing module can't
// bloat logs or run records.
const maxTracebackBytes = 4096

// Artifact describes one file a module wrote under the run directory.
type Artifact struct {
	Name    string `json:"name"`
	RelPath string `json:"rel_path"`
	Kind    string `json:"kind,omitempty"`

	// Scope is "global" or "speaker"; Speaker is set for speaker-scoped files.
	Scope   string `json:"scope,omitempty"`
	Speaker string `json:"speaker,omitempty"`
}

// Payload is what a module's entry point returns on success.
type Payload struct {
	Artifacts []Artifact         `json:"artifacts,omitempty"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	Data      any                `json:"data,omitempty"`
}

// ErrorPayload is the normalized form of a module fault.
type ErrorPayload struct {
	ErrorType    string `json:"error_type"`
	ErrorMessage string `json:"error_message"`
	Traceback    string `json:"traceback,omitempty"`
}

// ModuleResult is the envelope for one module invocation.
type ModuleResult struct {
	ModuleName string             `json:"module_name"`
	Status     Status             `json:"status"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Duration   float64            `json:"duration_seconds"`
	Artifacts  []Artifact         `json:"artifacts,omitempty"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	Payload    any                `json:"payload,omitempty"`
	Reasons    []string           `json:"reasons,omitempty"`
	Error      *ErrorPayload      `json:"error,omitempty"`
}

// Failed builds a failed envelope from an error and an optional captured
// stack. The stack is truncated to a fixed cap.
func Failed(module string, started time.Time, err error, stack []byte) *ModuleResult {
	now := time.Now().UTC()
	return &ModuleResult{
		ModuleName: module,
		Status:     StatusFailed,
		StartedAt:  started,
		FinishedAt: now,
		Duration:   now.Sub(started).Seconds(),
		Error: &ErrorPayload{
			ErrorType:    fmt.Sprintf("%T", err),
			ErrorMessage: err.Error(),
			Traceback:    truncate(stack),
		},
	}
}

// Skipped builds a skipped envelope carrying every unmet-requirement reason.
func Skipped(module string, reasons []string) *ModuleResult {
	now := time.Now().UTC()
	return &ModuleResult{
		ModuleName: module,
		Status:     StatusSkipped,
		StartedAt:  now,
		FinishedAt: now,
		Reasons:    reasons,
	}
}

// Succeeded builds a completed envelope from a module payload.
func Succeeded(module string, started time.Time, p *Payload) *ModuleResult {
	now := time.Now().UTC()
	mr := &ModuleResult{
		ModuleName: module,
		Status:     StatusRun,
		StartedAt:  started,
		FinishedAt: now,
		Duration:   now.Sub(started).Seconds(),
	}
	if p != nil {
		mr.Artifacts = p.Artifacts
		mr.Metrics = p.Metrics
		mr.Payload = p.Data
	}
	return mr
}

// Cached builds an envelope for a cache hit reusing prior artifacts.
func Cached(module string, artifacts []Artifact) *ModuleResult {
	now := time.Now().UTC()
	return &ModuleResult{
		ModuleName: module,
		Status:     StatusCached,
		StartedAt:  now,
		FinishedAt: now,
		Artifacts:  artifacts,
	}
}

func truncate(stack []byte) string {
	if len(stack) == 0 {
		return ""
	}
	if len(stack) > maxTracebackBytes {
		stack = stack[:maxTracebackBytes]
	}
	return string(stack)
}
