package delegate

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/perch-systems/offload/pkg/config"
	"github.com/perch-systems/offload/pkg/executor"
	"github.com/perch-systems/offload/pkg/task"
)

// Engine decides, per task, whether to execute on the local channel,
// the hosted assistant, or a hybrid of both, and runs the task
// accordingly while keeping usage accounting.
type Engine struct {
	cfg    *config.Config
	state  *ContextState
	local  executor.Executor
	hosted executor.Executor
	stats  *statTracker
	debug  bool

	localTools map[string]bool
}

// NewEngine creates a delegation engine. Configuration errors fail
// here, not at decision time. state is owned by the caller so tests
// and sessions can reset it.
func NewEngine(cfg *config.Config, state *ContextState, local, hosted executor.Executor) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if state == nil {
		return nil, fmt.Errorf("context state is required")
	}
	if state.Capacity() <= 0 {
		return nil, fmt.Errorf("config: context capacity must be > 0, got %d", state.Capacity())
	}
	if local == nil || hosted == nil {
		return nil, fmt.Errorf("local and hosted executors are required")
	}

	localTools := make(map[string]bool, len(cfg.Delegation.LocalTools))
	for _, tool := range cfg.Delegation.LocalTools {
		localTools[tool] = true
	}

	return &Engine{
		cfg:        cfg,
		state:      state,
		local:      local,
		hosted:     hosted,
		stats:      newStatTracker(cfg.Pricing, cfg.Hosted.Model),
		debug:      cfg.Debug,
		localTools: localTools,
	}, nil
}

// State returns the engine's shared context state.
func (e *Engine) State() *ContextState {
	return e.state
}

// Decide produces a routing decision for a task. Deterministic: the
// same task and pressure always yield the same decision.
func (e *Engine) Decide(req *task.Request) (*Decision, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	class := Classify(req, e.cfg.Delegation.EscalationTokens)
	pressure := e.state.Pressure()
	missing := e.missingLocalTool(req)

	d := e.decide(req, class, pressure, missing)
	if e.debug {
		log.Printf("[delegate] task=%s class=%s pressure=%.2f -> %s (%s, conf=%.2f)",
			req.ID, class, pressure, d.Executor, d.Reason, d.Confidence)
	}
	return d, nil
}

func (e *Engine) decide(req *task.Request, class task.Complexity, pressure float64, missing string) *Decision {
	del := e.cfg.Delegation

	// Large non-mechanical work splits: local bulk extraction,
	// hosted synthesis. Checked before the hosted rule so volume
	// wins over complexity. Mechanical tasks at this volume stay on
	// the plain local path.
	if req.EstimatedTokens >= del.HybridMinTokens && class != task.Mechanical {
		if missing != "" {
			return &Decision{
				Executor:   ExecutorHosted,
				Reason:     fmt.Sprintf("tool %q unavailable locally; hybrid downgraded to hosted", missing),
				Confidence: 0.6,
			}
		}
		return &Decision{
			Executor:   ExecutorHybrid,
			Reason:     fmt.Sprintf("token volume %d with %s complexity: local bulk pass, hosted synthesis", req.EstimatedTokens, class),
			Confidence: 0.85,
		}
	}

	switch class {
	case task.Mechanical:
		if missing != "" {
			return &Decision{
				Executor:   ExecutorHosted,
				Reason:     fmt.Sprintf("tool %q unavailable locally", missing),
				Confidence: 0.6,
			}
		}
		return &Decision{
			Executor:   ExecutorLocal,
			Reason:     "mechanical complexity: local channel handles rote work",
			Confidence: 0.95,
		}

	case task.Creative, task.Strategic:
		return &Decision{
			Executor:   ExecutorHosted,
			Reason:     fmt.Sprintf("%s complexity requires hosted judgment", class),
			Confidence: 0.9,
		}
	}

	// Analytical. Bulk scanning is cheaper locally regardless of
	// pressure; smaller tasks move local once pressure crosses the
	// threshold. Confidence shrinks near the boundary.
	if req.EstimatedTokens >= del.LargeTaskTokens {
		if missing != "" {
			return &Decision{
				Executor:   ExecutorHosted,
				Reason:     fmt.Sprintf("tool %q unavailable locally", missing),
				Confidence: 0.6,
			}
		}
		return &Decision{
			Executor:   ExecutorLocal,
			Reason:     fmt.Sprintf("analytical bulk work (%d tokens) cheaper on local channel", req.EstimatedTokens),
			Confidence: 0.8,
		}
	}

	if pressure >= del.PressureThreshold {
		if missing != "" {
			return &Decision{
				Executor:   ExecutorHosted,
				Reason:     fmt.Sprintf("tool %q unavailable locally", missing),
				Confidence: 0.55,
			}
		}
		return &Decision{
			Executor:   ExecutorLocal,
			Reason:     fmt.Sprintf("hosted context pressure %.2f at or above threshold %.2f", pressure, del.PressureThreshold),
			Confidence: boundaryConfidence(pressure, del.PressureThreshold),
		}
	}
	return &Decision{
		Executor:   ExecutorHosted,
		Reason:     fmt.Sprintf("hosted context pressure %.2f below threshold %.2f", pressure, del.PressureThreshold),
		Confidence: boundaryConfidence(pressure, del.PressureThreshold),
	}
}

// boundaryConfidence maps distance from the pressure threshold to
// confidence: near-threshold calls are ~0.55, decisive ones cap at
// 0.9. Never 0, never above 1.
func boundaryConfidence(pressure, threshold float64) float64 {
	dist := pressure - threshold
	if dist < 0 {
		dist = -dist
	}
	conf := 0.55 + dist
	if conf > 0.9 {
		conf = 0.9
	}
	return conf
}

// missingLocalTool returns the first required tool the local channel
// cannot satisfy, or "" when all are available.
func (e *Engine) missingLocalTool(req *task.Request) string {
	for _, tool := range req.RequiredTools {
		if !e.localTools[tool] {
			return tool
		}
	}
	return ""
}

// Execute runs a task according to its decision. The local path is
// health-checked first and falls back to hosted with the fallback
// recorded in the response; a hosted fault surfaces in
// Response.Errors without automatic retry.
func (e *Engine) Execute(ctx context.Context, req *task.Request, d *Decision) (*task.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("decision is required")
	}

	switch d.Executor {
	case ExecutorLocal:
		return e.executeLocal(ctx, req)
	case ExecutorHosted:
		return e.executeHosted(ctx, req)
	case ExecutorHybrid:
		return e.executeHybrid(ctx, req)
	default:
		return nil, fmt.Errorf("unknown executor type %q", d.Executor)
	}
}

func (e *Engine) executeLocal(ctx context.Context, req *task.Request) (*task.Response, error) {
	if !e.localHealthy(ctx) {
		return e.fallbackToHosted(ctx, req, "local executor unavailable (health check failed)")
	}

	resp, err := e.local.Execute(ctx, req)
	if err != nil {
		if executor.IsTransient(err) {
			return e.fallbackToHosted(ctx, req, fmt.Sprintf("local execution failed: %v", err))
		}
		e.stats.record(ExecutorLocal, 0, 0, false, true)
		return &task.Response{Errors: []string{err.Error()}}, err
	}

	e.stats.record(ExecutorLocal, resp.TokensUsed, 0, false, false)
	return resp, nil
}

func (e *Engine) executeHosted(ctx context.Context, req *task.Request) (*task.Response, error) {
	resp, err := e.hosted.Execute(ctx, req)
	if err != nil {
		e.stats.record(ExecutorHosted, 0, 0, false, true)
		return &task.Response{Errors: []string{err.Error()}}, err
	}

	e.state.Add(resp.TokensUsed)
	e.stats.record(ExecutorHosted, 0, resp.TokensUsed, false, false)
	return resp, nil
}

func (e *Engine) executeHybrid(ctx context.Context, req *task.Request) (*task.Response, error) {
	if !e.localHealthy(ctx) {
		return e.fallbackToHosted(ctx, req, "local executor unavailable for hybrid bulk pass")
	}

	bulk, err := e.local.Execute(ctx, req)
	if err != nil {
		if executor.IsTransient(err) {
			return e.fallbackToHosted(ctx, req, fmt.Sprintf("hybrid bulk pass failed: %v", err))
		}
		e.stats.record(ExecutorHybrid, 0, 0, false, true)
		return &task.Response{Errors: []string{err.Error()}}, err
	}

	synthesis := &task.Request{
		ID:              req.ID,
		Type:            req.Type,
		Description:     fmt.Sprintf("Synthesize and review the following draft for the task %q:\n\n%s", req.Description, bulk.Result),
		EstimatedTokens: task.EstimateTokens(bulk.Result),
		RequiredTools:   req.RequiredTools,
		Complexity:      req.Complexity,
	}
	final, err := e.hosted.Execute(ctx, synthesis)
	if err != nil {
		// The bulk pass succeeded; surface the hosted fault but keep
		// the local result so the caller loses nothing.
		e.stats.record(ExecutorHybrid, bulk.TokensUsed, 0, false, true)
		bulk.Errors = append(bulk.Errors, fmt.Sprintf("hybrid synthesis failed: %v", err))
		bulk.AddMeta("hybrid", "bulk_only")
		return bulk, err
	}

	e.state.Add(final.TokensUsed)
	e.stats.record(ExecutorHybrid, bulk.TokensUsed, final.TokensUsed, false, false)

	final.TokensUsed += bulk.TokensUsed
	final.Duration += bulk.Duration
	final.AddMeta("hybrid", "local_bulk+hosted_synthesis")
	final.AddMeta("bulk_tokens", fmt.Sprintf("%d", bulk.TokensUsed))
	return final, nil
}

// fallbackToHosted reroutes a local-bound task to the hosted channel
// and records the swap in the response so it is never silent.
func (e *Engine) fallbackToHosted(ctx context.Context, req *task.Request, cause string) (*task.Response, error) {
	if e.debug {
		log.Printf("[delegate] task=%s falling back to hosted: %s", req.ID, cause)
	}

	resp, err := e.hosted.Execute(ctx, req)
	if err != nil {
		e.stats.record(ExecutorHosted, 0, 0, true, true)
		return &task.Response{
			Errors: []string{cause, err.Error()},
		}, fmt.Errorf("hosted fallback failed after %s: %w", cause, err)
	}

	e.state.Add(resp.TokensUsed)
	e.stats.record(ExecutorHosted, 0, resp.TokensUsed, true, false)
	resp.Errors = append(resp.Errors, cause)
	resp.AddMeta("fallback", "hosted")
	return resp, nil
}

// localHealthy probes the local executor under the configured health
// timeout. A slow probe counts as unavailable.
func (e *Engine) localHealthy(ctx context.Context) bool {
	timeout := time.Duration(e.cfg.Local.HealthTimeoutMS) * time.Millisecond
	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return e.local.CheckHealth(hctx)
}

// Stats returns a snapshot of accumulated execution statistics.
func (e *Engine) Stats() Snapshot {
	return e.stats.snapshot()
}

// ResetStats clears accumulated statistics. Intended for tests.
func (e *Engine) ResetStats() {
	e.stats.reset()
}
