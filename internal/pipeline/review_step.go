package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/ralphorchestrator/ralph/internal/agent"
	"github.com/ralphorchestrator/ralph/internal/git"
	"github.com/ralphorchestrator/ralph/internal/review"
)

// NewVerificationStepRunner builds an AgentRunner for a "test"/"validate"
// step that runs shell verification commands instead of invoking an AI
// agent: the review package's VerificationRunner already implements exactly
// this pass/fail-per-command contract, so the pipeline engine's
// result-routing loop drives it the same way it drives an agent step.
func NewVerificationStepRunner(commands []string, logger *log.Logger) AgentRunner {
	return func(ctx context.Context, inv Invocation) (Outcome, error) {
		runner := review.NewVerificationRunner(commands, inv.WorkspacePath, 0, logger)
		report, err := runner.Run(ctx, true)
		if err != nil {
			return Outcome{}, fmt.Errorf("pipeline: step %q: running verification commands: %w", inv.Step.ID, err)
		}

		resultPath := resultFilePath(inv)
		if err := os.MkdirAll(filepath.Dir(resultPath), 0o755); err != nil {
			return Outcome{}, fmt.Errorf("pipeline: creating result dir: %w", err)
		}
		if err := os.WriteFile(resultPath, []byte(report.FormatReport()), 0o644); err != nil {
			return Outcome{}, fmt.Errorf("pipeline: writing verification report: %w", err)
		}

		result := ResultPass
		if report.Status == review.VerificationFailed {
			result = ResultFail
		}

		return Outcome{
			Result:     result,
			ResultFile: resultPath,
			Metrics: map[string]any{
				"commands_total":  report.Total,
				"commands_passed": report.Passed,
				"commands_failed": report.Failed,
			},
		}, nil
	}
}

// NewReviewStepRunner builds an AgentRunner for a "review" step that fans
// out to one or more configured reviewing agents and consolidates their
// findings, reusing the review package's multi-agent orchestrator instead
// of the single-agent NewAgentRunner path.
func NewReviewStepRunner(
	registry *agent.Registry,
	gitClient git.Client,
	reviewCfg review.ReviewConfig,
	agents []string,
	baseBranch string,
	logger *log.Logger,
) (AgentRunner, error) {
	diffGen, err := review.NewDiffGenerator(gitClient, reviewCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("pipeline: constructing diff generator: %w", err)
	}
	promptBuilder := review.NewPromptBuilder(reviewCfg, logger)
	consolidator := review.NewConsolidator(logger)
	orchestrator := review.NewReviewOrchestrator(registry, diffGen, promptBuilder, consolidator, len(agents), logger, nil)

	return func(ctx context.Context, inv Invocation) (Outcome, error) {
		result, err := orchestrator.Run(ctx, review.ReviewOpts{
			Agents:      agents,
			Concurrency: len(agents),
			Mode:        review.ReviewModeAll,
			BaseBranch:  baseBranch,
		})
		if err != nil {
			return Outcome{}, fmt.Errorf("pipeline: step %q: running review: %w", inv.Step.ID, err)
		}

		reportGen := review.NewReportGenerator(logger)
		reportMD, err := reportGen.Generate(result.Consolidated, result.Stats, result.DiffResult)
		if err != nil {
			return Outcome{}, fmt.Errorf("pipeline: step %q: rendering review report: %w", inv.Step.ID, err)
		}

		resultPath := resultFilePath(inv)
		if err := os.MkdirAll(filepath.Dir(resultPath), 0o755); err != nil {
			return Outcome{}, fmt.Errorf("pipeline: creating result dir: %w", err)
		}
		if err := os.WriteFile(resultPath, []byte(reportMD), 0o644); err != nil {
			return Outcome{}, fmt.Errorf("pipeline: writing review report: %w", err)
		}

		pipelineResult := ResultPass
		switch result.Consolidated.Verdict {
		case review.VerdictChangesNeeded:
			pipelineResult = ResultFix
		case review.VerdictBlocking:
			pipelineResult = ResultFail
		}

		return Outcome{
			Result:     pipelineResult,
			ResultFile: resultPath,
			Metrics: map[string]any{
				"findings_total": len(result.Consolidated.Findings),
				"agents_run":     result.Consolidated.TotalAgents,
			},
		}, nil
	}, nil
}

// NewFixStepRunner builds an AgentRunner for a step's inline fix sub-step
// (FixConfig, §6): it drives the review package's iterative fix-then-verify
// cycle instead of a single agent invocation, stopping as soon as
// verification passes or the cycle budget is exhausted.
func NewFixStepRunner(
	fixEngine *review.FixEngine,
	findings []*review.Finding,
	reviewReport string,
	baseBranch string,
) AgentRunner {
	return func(ctx context.Context, inv Invocation) (Outcome, error) {
		fixReport, err := fixEngine.Fix(ctx, review.FixOpts{
			Findings:     findings,
			ReviewReport: reviewReport,
			BaseBranch:   baseBranch,
		})
		if err != nil {
			return Outcome{}, fmt.Errorf("pipeline: step %q: running fix cycle: %w", inv.Step.ID, err)
		}

		resultPath := resultFilePath(inv)
		if err := os.MkdirAll(filepath.Dir(resultPath), 0o755); err != nil {
			return Outcome{}, fmt.Errorf("pipeline: creating result dir: %w", err)
		}
		summary := fmt.Sprintf("fix cycles run: %d\nfinal status: %s\n", fixReport.TotalCycles, fixReport.FinalStatus)
		if err := os.WriteFile(resultPath, []byte(summary), 0o644); err != nil {
			return Outcome{}, fmt.Errorf("pipeline: writing fix report: %w", err)
		}

		result := ResultPass
		if fixReport.FinalStatus != review.VerificationPassed {
			result = ResultFail
		}

		return Outcome{
			Result:     result,
			ResultFile: resultPath,
			Metrics: map[string]any{
				"fix_cycles": fixReport.TotalCycles,
			},
		}, nil
	}
}
