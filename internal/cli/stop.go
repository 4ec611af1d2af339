package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ralphorchestrator/ralph/internal/git"
	"github.com/ralphorchestrator/ralph/internal/logging"
	"github.com/ralphorchestrator/ralph/internal/orchestrator"
)

// newStopCmd creates the "ralph stop" command: it requests a graceful pause
// of the scheduling loop. In-flight workers are driven to completion; no new
// tasks are admitted until "ralph start" is run.
func newStopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Pause new task admission",
		Long: `Stop writes a pause sentinel that the orchestrator loop checks on every
tick: already-running workers continue to completion, but no newly-ready
board tasks are admitted until "ralph start" clears the sentinel.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := buildOrchestrator()
			if err != nil {
				return err
			}
			if err := orch.Pause(); err != nil {
				return fmt.Errorf("pausing orchestrator: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Paused. New tasks will not be admitted until \"ralph start\" is run.")
			return nil
		},
	}
	return cmd
}

func init() {
	rootCmd.AddCommand(newStopCmd())
}

// buildOrchestrator loads config, builds the agent registry and git client,
// and constructs an Orchestrator, the common setup shared by the commands
// that need to inspect or control the running pool without entering the
// scheduling loop themselves.
func buildOrchestrator() (*orchestrator.Orchestrator, error) {
	logger := logging.New("orchestrator")

	resolved, _, err := loadAndResolveConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg := resolved.Config

	registry, err := buildAgentRegistry(cfg.Agents, implementFlags{})
	if err != nil {
		return nil, fmt.Errorf("building agent registry: %w", err)
	}

	gitClient, err := git.NewGitClient("")
	if err != nil {
		logger.Warn("git client unavailable; worker worktree isolation disabled", "error", err)
	}

	orch, err := orchestrator.New(&cfg.Orchestrator, registry, gitClient, logger)
	if err != nil {
		return nil, fmt.Errorf("constructing orchestrator: %w", err)
	}
	return orch, nil
}
