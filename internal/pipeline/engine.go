package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ralphorchestrator/ralph/internal/eventbus"
)

// DefaultMaxStepAttempts is the retry budget for a FAIL result against a
// single step when the step config does not set Max (spec.md §4.D).
const DefaultMaxStepAttempts = 3

// DefaultMaxFixAttempts is the retry budget for a step's inline fix
// sub-step when its FixConfig does not set MaxAttempts.
const DefaultMaxFixAttempts = 2

// Checkpoint is the durable per-step snapshot persisted after every step
// iteration, so a crashed or killed worker resumes exactly where it left
// off (spec.md §6 file layout: checkpoints/checkpoint-<n>.json).
type Checkpoint struct {
	N            int            `json:"n"`
	StepID       string         `json:"step_id"`
	Iteration    int            `json:"iteration"`
	Result       Result         `json:"result"`
	Attempts     map[string]int `json:"attempts"`
	NextStep     string         `json:"next_step,omitempty"`
	Done         bool           `json:"done"`
	Aborted      bool           `json:"aborted"`
	Reason       string         `json:"reason,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// StepResult is the durable record of what one step iteration produced
// (spec.md §4.E point 8: "canonical durable record of what each step
// produced"), written to results/<epoch>-<step-id>-result.json.
type StepResult struct {
	StepID    string         `json:"step_id"`
	Iteration int            `json:"iteration"`
	Result    Result         `json:"result"`
	ExitCode  int            `json:"exit_code"`
	SessionID string         `json:"session_id,omitempty"`
	Metrics   map[string]any `json:"metrics,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// EventSink receives engine lifecycle notifications. internal/eventbus.Bus
// and internal/lifecycle.EventSink both satisfy this shape.
type EventSink interface {
	Emit(eventType string, payload map[string]any)
}

// Engine runs a pipeline Config step by step against a single worker's
// workspace, routing each step's reported Result per spec.md §4.D:
//
//	PASS -> advance to the next step (result_mappings are not read for PASS)
//	FIX  -> run the step's inline fix sub-step, then retry the same step
//	FAIL -> retry up to the step's attempt budget, then follow its
//	        result_mappings[FAIL].default_jump ("next", "prev", "abort", or
//	        "jump:<step-id>"; "abort" when unset)
//	SKIP -> advance to the next step without side effects
//	STOP -> abort the pipeline immediately
type Engine struct {
	cfg       *Config
	workerDir string
	runAgent  AgentRunner
	sink      EventSink
	logger    *log.Logger

	attempts map[string]int // per-step attempt counts, keyed by step ID
	n        int             // checkpoint sequence counter
}

// New constructs an Engine for cfg, running agents via runAgent against the
// worker directory workerDir (the root under which prd.md, workspace/,
// checkpoints/, results/, summaries/ live — spec.md §6).
func New(cfg *Config, workerDir string, runAgent AgentRunner, sink EventSink, logger *log.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		workerDir: workerDir,
		runAgent:  runAgent,
		sink:      sink,
		logger:    logger,
		attempts:  map[string]int{},
	}
}

// Run executes the pipeline starting at startStepID (the config's first
// step if empty), returning the terminal checkpoint.
func (e *Engine) Run(ctx context.Context, startStepID string) (*Checkpoint, error) {
	if len(e.cfg.Steps) == 0 {
		return nil, fmt.Errorf("pipeline: config %q has no steps", e.cfg.Name)
	}
	idx := 0
	if startStepID != "" {
		idx = e.cfg.IndexOf(startStepID)
		if idx < 0 {
			return nil, fmt.Errorf("pipeline: unknown resume step %q", startStepID)
		}
	}

	iteration := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("pipeline: cancelled: %w", err)
		}
		step := e.cfg.Steps[idx]
		if !e.enabled(step) {
			e.log("step disabled, skipping", "step", step.ID)
			idx++
			if idx >= len(e.cfg.Steps) {
				return e.finish(step.ID, iteration, ResultSkip, true, false, "")
			}
			continue
		}

		iteration++
		cp, err := e.runStep(ctx, step, idx, iteration)
		if err != nil {
			return cp, err
		}
		if cp.Done || cp.Aborted {
			return cp, nil
		}

		nextIdx, err := e.resolveNext(step, idx, cp.Result)
		if err != nil {
			return cp, err
		}
		if nextIdx < 0 {
			return e.finish(step.ID, iteration, cp.Result, true, false, "")
		}
		e.recheckpointNextStep(cp, e.cfg.Steps[nextIdx].ID)
		idx = nextIdx
	}
}

// recheckpointNextStep stamps the step that will run after cp onto cp.NextStep
// and rewrites the already-persisted checkpoint file, so a restarted
// orchestrator can resume a killed worker at the right step (spec.md §4.D
// point 8, §6 checkpoints/checkpoint-<n>.json) instead of replaying from the
// pipeline's first step.
func (e *Engine) recheckpointNextStep(cp *Checkpoint, nextStepID string) {
	cp.NextStep = nextStepID
	path := filepath.Join(e.workerDir, "checkpoints", fmt.Sprintf("checkpoint-%d.json", cp.N))
	if err := eventbus.WriteAtomicJSON(path, cp); err != nil {
		e.log("warn: failed to rewrite checkpoint with next step", "error", err)
	}
}

// enabled reports whether step's EnabledBy condition (a board Extra field
// name, empty meaning always enabled) permits running it. The condition
// itself is resolved by the caller's environment in a full deployment;
// here an empty EnabledBy is the only always-true case this package
// decides on its own.
func (e *Engine) enabled(step StepConfig) bool {
	return step.EnabledBy == ""
}

// runStep executes one step, looping through FIX sub-iterations and FAIL
// retries until the step yields PASS, SKIP, STOP, or exhausts its retry
// budget.
func (e *Engine) runStep(ctx context.Context, step StepConfig, idx, iteration int) (*Checkpoint, error) {
	maxAttempts := step.Max
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxStepAttempts
	}

	for {
		inv := Invocation{
			WorkspacePath:    filepath.Join(e.workerDir, "workspace"),
			PRDPath:          filepath.Join(e.workerDir, "prd.md"),
			Step:             step,
			Iteration:        iteration,
			ContinuationPath: e.lastSummaryPath(step.ID),
		}
		e.log("running step", "step", step.ID, "agent", step.Agent, "attempt", e.attempts[step.ID]+1)

		outcome, err := e.runAgent(ctx, inv)
		if err != nil {
			return nil, fmt.Errorf("pipeline: step %q: agent runtime: %w", step.ID, err)
		}
		e.recordResult(step.ID, iteration, outcome)
		e.emit("pipeline.step_result", map[string]any{
			"step_id": step.ID, "result": string(outcome.Result), "exit_code": outcome.ExitCode,
		})

		switch outcome.Result {
		case ResultPass, ResultSkip, ResultStop:
			return e.checkpoint(step.ID, iteration, outcome.Result, outcome.Result == ResultStop), nil

		case ResultFix:
			if step.Fix == nil {
				return nil, fmt.Errorf("pipeline: step %q returned FIX but has no fix sub-step configured", step.ID)
			}
			if err := e.runFix(ctx, step, iteration); err != nil {
				return nil, err
			}
			iteration++
			continue // retry the main step after the fix sub-step completes

		case ResultFail:
			e.attempts[step.ID]++
			if e.attempts[step.ID] < maxAttempts {
				iteration++
				continue
			}
			return e.checkpoint(step.ID, iteration, ResultFail, false), nil

		default:
			return nil, fmt.Errorf("pipeline: step %q: unhandled result %q", step.ID, outcome.Result)
		}
	}
}

// runFix runs a step's inline fix sub-step up to its attempt budget. A fix
// sub-step's own result only ever feeds back into the parent step's retry
// loop — it never advances the pipeline on its own.
func (e *Engine) runFix(ctx context.Context, step StepConfig, iteration int) error {
	max := step.Fix.MaxAttempts
	if max <= 0 {
		max = DefaultMaxFixAttempts
	}
	fixStep := StepConfig{ID: step.Fix.ID, Agent: step.Fix.Agent, CommitAfter: step.Fix.CommitAfter}

	for attempt := 0; attempt < max; attempt++ {
		inv := Invocation{
			WorkspacePath:    filepath.Join(e.workerDir, "workspace"),
			PRDPath:          filepath.Join(e.workerDir, "prd.md"),
			Step:             fixStep,
			Iteration:        iteration,
			ContinuationPath: e.lastSummaryPath(step.ID),
		}
		e.log("running inline fix", "parent_step", step.ID, "fix_step", fixStep.ID, "attempt", attempt+1)

		outcome, err := e.runAgent(ctx, inv)
		if err != nil {
			return fmt.Errorf("pipeline: fix step %q: agent runtime: %w", fixStep.ID, err)
		}
		e.recordResult(fixStep.ID, iteration, outcome)

		if outcome.Result == ResultPass {
			return nil
		}
	}
	return fmt.Errorf("pipeline: fix step %q exhausted its %d attempts without PASS", fixStep.ID, max)
}

// resolveNext maps a non-terminal step result to the index of the next
// step to run. PASS/SKIP simply advance; FAIL consults the step's
// result_mappings[FAIL].default_jump ("abort" is the implicit default and
// ends the run with an error, "next" advances, "prev" steps back one,
// "jump:<id>" targets a named step).
func (e *Engine) resolveNext(step StepConfig, idx int, result Result) (int, error) {
	if result == ResultPass || result == ResultSkip {
		if idx+1 >= len(e.cfg.Steps) {
			return -1, nil
		}
		return idx + 1, nil
	}

	// result == ResultFail, retry budget exhausted.
	jump := "abort"
	if m, ok := step.ResultMappings[string(ResultFail)]; ok && m.DefaultJump != "" {
		jump = m.DefaultJump
	}
	switch {
	case jump == "next":
		if idx+1 >= len(e.cfg.Steps) {
			return -1, nil
		}
		return idx + 1, nil
	case jump == "prev":
		if idx == 0 {
			return -1, fmt.Errorf("pipeline: step %q: cannot jump to prev from the first step", step.ID)
		}
		return idx - 1, nil
	case jump == "abort":
		return -1, fmt.Errorf("pipeline: step %q: exhausted retry budget, aborting", step.ID)
	case strings.HasPrefix(jump, "jump:"):
		target := strings.TrimPrefix(jump, "jump:")
		ti := e.cfg.IndexOf(target)
		if ti < 0 {
			return -1, fmt.Errorf("pipeline: step %q: jump target %q not found", step.ID, target)
		}
		return ti, nil
	default:
		return -1, fmt.Errorf("pipeline: step %q: unrecognized default_jump %q", step.ID, jump)
	}
}

func (e *Engine) finish(stepID string, iteration int, result Result, done, aborted bool, reason string) (*Checkpoint, error) {
	cp := e.checkpoint(stepID, iteration, result, aborted)
	cp.Done = done
	cp.Reason = reason
	e.emit("pipeline.completed", map[string]any{"step_id": stepID, "done": done, "aborted": aborted})
	return cp, nil
}

func (e *Engine) checkpoint(stepID string, iteration int, result Result, aborted bool) *Checkpoint {
	e.n++
	cp := &Checkpoint{
		N:         e.n,
		StepID:    stepID,
		Iteration: iteration,
		Result:    result,
		Attempts:  cloneAttempts(e.attempts),
		Aborted:   aborted,
		Timestamp: time.Now(),
	}
	path := filepath.Join(e.workerDir, "checkpoints", fmt.Sprintf("checkpoint-%d.json", e.n))
	if err := eventbus.WriteAtomicJSON(path, cp); err != nil {
		e.log("warn: failed to write checkpoint", "error", err)
	}
	return cp
}

func (e *Engine) recordResult(stepID string, iteration int, outcome Outcome) {
	rec := StepResult{
		StepID: stepID, Iteration: iteration, Result: outcome.Result,
		ExitCode: outcome.ExitCode, SessionID: outcome.SessionID, Metrics: outcome.Metrics,
		Timestamp: time.Now(),
	}
	path := filepath.Join(e.workerDir, "results",
		fmt.Sprintf("%d-%s-result.json", time.Now().UnixNano(), stepID))
	if err := eventbus.WriteAtomicJSON(path, rec); err != nil {
		e.log("warn: failed to write step result", "error", err)
	}
}

// lastSummaryPath returns the most recently written summary path for
// stepID, or empty if none exists yet. Summaries live under
// summaries/<run>/<step>-<iter>-summary.txt; this package does not manage
// "run" subdirectories directly, leaving that to the caller-supplied
// AgentRunner, so it only checks the worker's summaries root.
func (e *Engine) lastSummaryPath(stepID string) string {
	dir := filepath.Join(e.workerDir, "summaries")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var latest string
	for _, ent := range entries {
		if strings.Contains(ent.Name(), stepID) {
			latest = filepath.Join(dir, ent.Name())
		}
	}
	return latest
}

func cloneAttempts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (e *Engine) emit(eventType string, payload map[string]any) {
	if e.sink == nil {
		return
	}
	e.sink.Emit(eventType, payload)
}

func (e *Engine) log(msg string, kvs ...any) {
	if e.logger == nil {
		return
	}
	e.logger.Info(msg, kvs...)
}
