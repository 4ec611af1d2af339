package pipeline

import "context"

// Invocation carries everything the orchestrator passes to an external
// agent runtime for one step execution (spec.md §6 agent invocation
// contract: inputs).
type Invocation struct {
	WorkspacePath    string
	PRDPath          string
	Step             StepConfig
	Iteration        int
	ContinuationPath string // previous iteration's summary path, empty on the first
}

// Outcome is what the orchestrator reads back after an agent runtime
// returns (spec.md §6 agent invocation contract: outputs).
type Outcome struct {
	Result     Result
	ExitCode   int
	ResultFile string
	ReportPath string
	SessionID  string
	Metrics    map[string]any
}

// AgentRunner invokes the external agent process for one step iteration and
// returns its parsed outcome. Implementations own spawning the agent
// binary/subprocess, enforcing its timeout, and reading back its result
// file; the pipeline engine only interprets Outcome.Result.
type AgentRunner func(ctx context.Context, inv Invocation) (Outcome, error)
