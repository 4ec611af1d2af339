package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ralphorchestrator/ralph/internal/agent"
)

// AgentRegistry resolves a step's configured agent name to a runnable
// Agent, the same lookup the teacher's review/implement stages use.
type AgentRegistry interface {
	Get(name string) (agent.Agent, error)
}

// NewAgentRunner adapts an agent.Registry into an AgentRunner: it runs the
// step's named agent against the invocation's workspace and prompt, writes
// its result file, and parses the file back into an Outcome. This is the
// concrete bridge between the pipeline engine's result-routing loop and the
// Claude/Codex/Gemini process adapters (spec.md §6 agent invocation
// contract).
func NewAgentRunner(registry AgentRegistry, promptFor func(Invocation) string) AgentRunner {
	return func(ctx context.Context, inv Invocation) (Outcome, error) {
		a, err := registry.Get(inv.Step.Agent)
		if err != nil {
			return Outcome{}, fmt.Errorf("pipeline: resolving agent %q for step %q: %w", inv.Step.Agent, inv.Step.ID, err)
		}

		res, err := a.Run(ctx, agent.RunOpts{
			Prompt:  promptFor(inv),
			WorkDir: inv.WorkspacePath,
		})
		if err != nil {
			return Outcome{}, fmt.Errorf("pipeline: running agent %q for step %q: %w", inv.Step.Agent, inv.Step.ID, err)
		}

		resultPath := resultFilePath(inv)
		if err := os.MkdirAll(filepath.Dir(resultPath), 0o755); err != nil {
			return Outcome{}, fmt.Errorf("pipeline: creating result dir: %w", err)
		}
		if err := os.WriteFile(resultPath, []byte(res.Stdout), 0o644); err != nil {
			return Outcome{}, fmt.Errorf("pipeline: writing result file: %w", err)
		}

		if IsAgentInternalFailure(res.ExitCode) {
			return Outcome{}, fmt.Errorf("pipeline: step %q: agent-internal failure exit code %d", inv.Step.ID, res.ExitCode)
		}

		result, parseErr := ParseResultTag(res.Stdout)
		if parseErr != nil {
			return Outcome{}, fmt.Errorf("pipeline: step %q: %w", inv.Step.ID, parseErr)
		}

		return Outcome{
			Result:     result,
			ExitCode:   res.ExitCode,
			ResultFile: resultPath,
		}, nil
	}
}

func resultFilePath(inv Invocation) string {
	workerDir := filepath.Dir(inv.WorkspacePath)
	return filepath.Join(workerDir, "results",
		fmt.Sprintf("%s-%d-result.txt", inv.Step.ID, inv.Iteration))
}

// DefaultPrompt builds the agent prompt for inv from the step's PRD and any
// prior-iteration continuation summary, in the teacher's "load PRD + prior
// summary, name the step" shape.
func DefaultPrompt(inv Invocation) string {
	prd, _ := os.ReadFile(inv.PRDPath)
	prompt := fmt.Sprintf("Step: %s\n\n%s", inv.Step.ID, string(prd))
	if inv.ContinuationPath != "" {
		if summary, err := os.ReadFile(inv.ContinuationPath); err == nil {
			prompt += "\n\nPrevious iteration summary:\n" + string(summary)
		}
	}
	return prompt
}
