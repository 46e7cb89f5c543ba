// Package pipeline contains the run coordinator: the component that owns the
// lifecycle of one pipeline execution — which modules run, in what order,
// whether a prior result can be reused, and how results are made durable.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/snarg/ta-engine/internal/config"
	"github.com/snarg/ta-engine/internal/hashing"
	"github.com/snarg/ta-engine/internal/manifest"
	"github.com/snarg/ta-engine/internal/metrics"
	"github.com/snarg/ta-engine/internal/registry"
	"github.com/snarg/ta-engine/internal/result"
	"github.com/snarg/ta-engine/internal/store"
	"github.com/snarg/ta-engine/internal/transcript"
)

// RerunMode controls whether start() attaches to an existing run.
type RerunMode string

const (
	RerunReuse RerunMode = "reuse" // attach to an existing non-failed run when eligible
	RerunNew   RerunMode = "new"   // always allocate a new run
)

// Coordinator states.
const (
	stateNotStarted = "not_started"
	stateStarted    = "started"
	stateFinished   = "finished"
)

// Options configures one Coordinator.
type Options struct {
	Registry *registry.Registry
	Config   *config.Config
	Store    RunStore // nil: no durable store
	Events   EventPublisher

	// OutputDir is the root under which per-run directories are created.
	OutputDir string

	Log zerolog.Logger
}

// Coordinator owns the lifecycle of one pipeline execution. Not safe for
// concurrent use; one Coordinator per run.
type Coordinator struct {
	opts  Options
	log   zerolog.Logger
	state string

	runID        string
	runDir       string
	reusedRun    bool
	identity     transcript.Identity
	pipelineHash string
	order        []string
	envelopes    []*result.ModuleResult
}

func New(opts Options) *Coordinator {
	return &Coordinator{
		opts:  opts,
		log:   opts.Log,
		state: stateNotStarted,
	}
}

// RunID returns the id of the run this coordinator opened. Empty before Run.
func (c *Coordinator) RunID() string { return c.runID }

// RunDir returns the output directory of the run. Empty before Run.
func (c *Coordinator) RunDir() string { return c.runDir }

// Run executes the full pipeline for one transcript: resolve the module
// order, open (or reuse) a run, execute each module with caching, then build
// the manifest and summary. Structural errors (unknown module, cycle, no
// segments to analyze at all) abort before any module executes; module
// faults are contained and never abort the run.
func (c *Coordinator) Run(ctx context.Context, t *transcript.Transcript, requested []string) (summary *Summary, err error) {
	if c.state != stateNotStarted {
		return nil, fmt.Errorf("coordinator already used (state %s)", c.state)
	}

	// Cleanup must happen on every exit path, including faults below.
	defer c.cleanup()

	// 1. Structural phase: fail fast, before any module executes.
	if len(t.Segments) == 0 {
		return nil, fmt.Errorf("malformed transcript %s: no segments", t.Path)
	}
	order, err := c.opts.Registry.ResolveDependencies(requested)
	if err != nil {
		return nil, err
	}
	c.order = order
	c.identity = transcript.Identify(t)
	c.pipelineHash = hashing.PipelineConfigHash(c.opts.Config.PipelinePairs())

	// 2. Open the run (or attach to a reusable one).
	if err := c.start(ctx, t, requested); err != nil {
		return nil, err
	}
	c.log.Info().
		Str("run_id", c.runID).
		Bool("reused", c.reusedRun).
		Strs("execution_order", order).
		Msg("pipeline run started")

	c.publish("run_started", map[string]any{
		"run_id":         c.runID,
		"transcript_key": c.transcriptKey(t),
		"modules":        order,
	})

	// 3. Execute modules in topological order. The order is computed once
	// and never re-computed mid-run.
	ec := newExecContext(t, c.runDir)
	caps := t.Caps()
	for _, name := range order {
		d, _ := c.opts.Registry.Get(name)
		env := c.runModule(ctx, d, ec, caps)
		c.envelopes = append(c.envelopes, env)
		c.recordModuleRun(ctx, env)
	}

	// 4. Finalize: summary, manifest, terminal run status.
	summary = c.buildSummary(t)
	if err := writeJSON(filepath.Join(c.runDir, "run_results.json"), summary); err != nil {
		return nil, fmt.Errorf("write run results: %w", err)
	}

	man, err := manifest.Build(c.runDir, c.runID, c.transcriptKey(t), c.order, c.pipelineHash)
	if err != nil {
		return nil, fmt.Errorf("build manifest: %w", err)
	}
	if err := manifest.Write(c.runDir, man); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	c.finish(ctx, "completed")
	return summary, nil
}

// start allocates a new pipeline run or, under reuse mode, attaches to the
// most recent non-failed run with the same transcript content and pipeline
// config. Reuse shares the run_id and output directory; the prior run's
// records are never mutated.
func (c *Coordinator) start(ctx context.Context, t *transcript.Transcript, requested []string) error {
	mode := RerunMode(c.opts.Config.RerunMode)

	if c.opts.Store != nil && mode == RerunReuse {
		prior, err := c.opts.Store.FindReusableRun(ctx, c.identity.ContentHash, c.pipelineHash)
		if err != nil {
			return fmt.Errorf("find reusable run: %w", err)
		}
		// A prior run is reusable regardless of whether the requested set is
		// a subset or superset of its module set: the run is identified by
		// transcript content + pipeline config, and already-satisfied
		// modules simply hit the cache.
		if prior != nil {
			if _, statErr := os.Stat(prior.RunDir); statErr == nil {
				c.runID = prior.RunID
				c.runDir = prior.RunDir
				c.reusedRun = true
			}
		}
	}

	if c.runID == "" {
		c.runID = uuid.NewString()
		c.runDir = filepath.Join(c.opts.OutputDir, c.runID)
	}
	if err := os.MkdirAll(filepath.Join(c.runDir, "results"), 0o755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}

	if c.opts.Store != nil && !c.reusedRun {
		row := &store.PipelineRunRow{
			RunID:            c.runID,
			ContentHash:      c.identity.ContentHash,
			IdentityHash:     c.identity.IdentityHash,
			SourceHash:       c.identity.SourceHash,
			SchemaVersion:    c.identity.SchemaVersion,
			PipelineHash:     c.pipelineHash,
			RequestedModules: requested,
			ExecutionOrder:   c.order,
			RunDir:           c.runDir,
			StartedAt:        time.Now().UTC(),
		}
		if err := c.opts.Store.InsertPipelineRun(ctx, row); err != nil {
			return err
		}
	}

	c.state = stateStarted
	return nil
}

// runModule takes one module through pending -> running -> terminal. Skips,
// cache hits, faults, and timeouts all come back as an envelope; nothing a
// module does can abort the pipeline.
func (c *Coordinator) runModule(ctx context.Context, d *registry.Descriptor, ec *execContext, caps transcript.Capabilities) *result.ModuleResult {
	log := c.log.With().Str("module", d.Name).Logger()

	// Requirement gaps are expected conditions, not errors.
	if skip, reasons := registry.ShouldSkip(d.Requirements, caps, c.opts.Store != nil); skip {
		log.Info().Strs("reasons", reasons).Msg("module skipped")
		return result.Skipped(d.Name, reasons)
	}

	key := c.cacheKey(d)

	// Cache check. T2 entries are advisory only and never satisfy a lookup.
	if c.opts.Store != nil {
		if env := c.checkCache(ctx, d, key, log); env != nil {
			return env
		}
	}

	// Fresh execution, bounded by the category timeout.
	started := time.Now().UTC()
	payload, err := c.invoke(ctx, d, ec)
	if err != nil {
		log.Warn().Err(err).Msg("module failed")
		env := result.Failed(d.Name, started, err, debug.Stack())
		c.persistEnvelope(env)
		return env
	}

	env := result.Succeeded(d.Name, started, payload)
	c.persistEnvelope(env)
	c.storeCacheEntry(ctx, d, key, env)
	log.Debug().Float64("duration_s", env.Duration).Msg("module complete")
	metrics.ModuleDuration.WithLabelValues(d.Name).Observe(env.Duration)
	return env
}

// invoke calls the module entry point with panic containment and a
// per-category timeout. Modules are not preemptible: on timeout the run is
// marked failed and the coordinator moves on; a straggler goroutine's
// eventual result is discarded.
func (c *Coordinator) invoke(ctx context.Context, d *registry.Descriptor, ec *execContext) (*result.Payload, error) {
	timeout := c.opts.Config.Timeout(string(d.Category))
	mctx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		mctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		payload *result.Payload
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("module panic: %v", r)}
			}
		}()
		p, err := d.Run(mctx, ec)
		done <- outcome{payload: p, err: err}
	}()

	select {
	case out := <-done:
		return out.payload, out.err
	case <-mctx.Done():
		return nil, fmt.Errorf("module %s timed out after %s: %w", d.Name, timeout, mctx.Err())
	}
}

// checkCache returns a cached envelope when a trustworthy hit exists.
func (c *Coordinator) checkCache(ctx context.Context, d *registry.Descriptor, key hashing.Key, log zerolog.Logger) *result.ModuleResult {
	entry, err := c.opts.Store.LookupCacheEntry(ctx, key.Digest())
	if err != nil {
		log.Warn().Err(err).Msg("cache lookup failed, treating as miss")
		metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
		return nil
	}
	if entry == nil {
		metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
		return nil
	}
	if d.Tier == registry.T2 {
		// Stochastic module: the entry exists for inspection, never reuse.
		metrics.CacheLookupsTotal.WithLabelValues("untrusted").Inc()
		return nil
	}

	var artifacts []result.Artifact
	if len(entry.Artifacts) > 0 {
		if err := json.Unmarshal(entry.Artifacts, &artifacts); err != nil {
			log.Warn().Err(err).Msg("corrupt cache artifacts, treating as miss")
			metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
			return nil
		}
	}

	// A hit is only trustworthy while the artifacts it unlocks are still on
	// disk under the producing run's directory.
	producerDir := filepath.Join(c.opts.OutputDir, entry.RunID)
	for _, a := range artifacts {
		if _, err := os.Stat(filepath.Join(producerDir, a.RelPath)); err != nil {
			metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
			return nil
		}
	}

	metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
	log.Info().Str("producing_run", entry.RunID).Msg("cache hit, reusing prior artifacts")
	env := result.Cached(d.Name, artifacts)
	c.persistEnvelope(env)
	return env
}

func (c *Coordinator) cacheKey(d *registry.Descriptor) hashing.Key {
	return hashing.Key{
		ContentHash:        c.identity.ContentHash,
		Module:             d.Name,
		ModuleSourceHash:   hashing.ModuleSourceHash(d.Name, d.SourceVersion),
		ModuleConfigHash:   hashing.ConfigHash(d.ConfigFields, c.opts.Config.CacheField),
		PipelineConfigHash: c.pipelineHash,
	}
}

func (c *Coordinator) storeCacheEntry(ctx context.Context, d *registry.Descriptor, key hashing.Key, env *result.ModuleResult) {
	if c.opts.Store == nil {
		return
	}
	artifacts, err := json.Marshal(env.Artifacts)
	if err != nil {
		artifacts = []byte("[]")
	}
	entry := &store.CacheEntryRow{
		CacheKey:      key.Digest(),
		ContentHash:   c.identity.ContentHash,
		ModuleName:    d.Name,
		Tier:          string(d.Tier),
		SourceVersion: d.SourceVersion,
		RunID:         c.runID,
		Artifacts:     artifacts,
	}
	if err := c.opts.Store.UpsertCacheEntry(ctx, entry); err != nil {
		c.log.Warn().Err(err).Str("module", d.Name).Msg("failed to record cache entry")
	}
}

// recordModuleRun persists the module run row and instrumentation for one
// finalized envelope. Cached envelopes produce a 'cached' row, never a
// fresh execution row.
func (c *Coordinator) recordModuleRun(ctx context.Context, env *result.ModuleResult) {
	metrics.ModuleRunsTotal.WithLabelValues(env.ModuleName, string(env.Status)).Inc()
	c.publish("module_finished", map[string]any{
		"run_id": c.runID,
		"module": env.ModuleName,
		"status": string(env.Status),
	})

	if c.opts.Store == nil {
		return
	}
	row := &store.ModuleRunRow{
		RunID:           c.runID,
		ModuleName:      env.ModuleName,
		Status:          string(env.Status),
		DurationSeconds: env.Duration,
	}
	if len(env.Reasons) > 0 {
		reason := strings.Join(env.Reasons, "; ")
		row.Reason = &reason
	}
	if env.Error != nil {
		row.ErrorType = &env.Error.ErrorType
		row.ErrorMessage = &env.Error.ErrorMessage
	}
	if err := c.opts.Store.InsertModuleRun(ctx, row); err != nil {
		c.log.Warn().Err(err).Str("module", env.ModuleName).Msg("failed to record module run")
	}
}

// persistEnvelope writes the envelope to the run's results directory. The
// envelope, not the module's raw return value, is what downstream reads.
func (c *Coordinator) persistEnvelope(env *result.ModuleResult) {
	path := filepath.Join(c.runDir, "results", env.ModuleName+".json")
	if err := writeJSON(path, env); err != nil {
		c.log.Warn().Err(err).Str("module", env.ModuleName).Msg("failed to persist envelope")
	}
}

// finish marks the pipeline run terminal. This is the only point that
// changes the run's status field.
func (c *Coordinator) finish(ctx context.Context, status string) {
	if c.state != stateStarted {
		return
	}
	c.state = stateFinished
	metrics.PipelineRunsTotal.WithLabelValues(status).Inc()
	if c.opts.Store != nil {
		if err := c.opts.Store.FinishPipelineRun(ctx, c.runID, status, time.Now().UTC()); err != nil {
			c.log.Warn().Err(err).Msg("failed to finalize run status")
		}
	}
	c.publish("run_finished", map[string]any{
		"run_id": c.runID,
		"status": status,
	})
	c.log.Info().Str("run_id", c.runID).Str("status", status).Msg("pipeline run finished")
}

// cleanup releases held resources on every exit path. A run that never
// reached finish (structural error or fault) is marked failed first.
func (c *Coordinator) cleanup() {
	if c.state == stateStarted {
		// finish was never reached: the run aborted mid-flight.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.finish(ctx, "failed")
	}
}

func (c *Coordinator) publish(event string, payload map[string]any) {
	if c.opts.Events != nil {
		c.opts.Events.Publish(event, payload)
	}
}

func (c *Coordinator) transcriptKey(t *transcript.Transcript) string {
	return t.BaseName + "-" + shortHash(c.identity.ContentHash)
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
