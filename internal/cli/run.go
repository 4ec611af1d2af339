package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ralphorchestrator/ralph/internal/git"
	"github.com/ralphorchestrator/ralph/internal/logging"
	"github.com/ralphorchestrator/ralph/internal/orchestrator"
)

// runFlags holds parsed flag values for the run command.
type runFlags struct {
	// Interval is the sleep between scheduling ticks.
	Interval time.Duration
	// Once runs a single tick (plus startup reset) and exits, instead of
	// looping until interrupted.
	Once bool
}

// newRunCmd creates the "ralph run" command: the long-lived driver loop that
// admits ready board tasks, drives their pipelines, and feeds lifecycle and
// resume events, per the project's resolved ralph.toml.
func newRunCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the orchestrator's scheduling loop",
		Long: `Run starts the orchestrator driver loop: each tick admits newly-ready
board tasks up to the configured worker caps, drives every live worker's
pipeline one step, and feeds the outcome back into the lifecycle and resume
engines.

The loop runs until interrupted (SIGINT/SIGTERM) unless --once is given, in
which case it performs crash recovery and a single tick, then exits.`,
		Example: `  # Run the scheduling loop until interrupted
  ralph run

  # Run a single tick (useful for cron-driven invocation)
  ralph run --once

  # Poll every 10 seconds instead of the default
  ralph run --interval 10s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrchestratorLoop(cmd, flags)
		},
	}

	cmd.Flags().DurationVar(&flags.Interval, "interval", 5*time.Second, "Sleep between scheduling ticks")
	cmd.Flags().BoolVar(&flags.Once, "once", false, "Perform crash recovery and a single tick, then exit")

	return cmd
}

func init() {
	rootCmd.AddCommand(newRunCmd())
}

func runOrchestratorLoop(cmd *cobra.Command, flags runFlags) error {
	logger := logging.New("orchestrator")

	resolved, _, err := loadAndResolveConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg := resolved.Config

	registry, err := buildAgentRegistry(cfg.Agents, implementFlags{})
	if err != nil {
		return fmt.Errorf("building agent registry: %w", err)
	}

	gitClient, err := git.NewGitClient("")
	if err != nil {
		logger.Warn("git client unavailable; worker worktree isolation disabled", "error", err)
	}

	orch, err := orchestrator.New(&cfg.Orchestrator, registry, gitClient, logger)
	if err != nil {
		return fmt.Errorf("constructing orchestrator: %w", err)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := orch.StartupReset(ctx); err != nil {
		return fmt.Errorf("startup crash recovery: %w", err)
	}

	if flags.Once {
		return orch.Tick(ctx)
	}

	if err := orch.RunLoop(ctx, flags.Interval); err != nil && err != context.Canceled {
		return fmt.Errorf("orchestrator loop: %w", err)
	}
	return nil
}
