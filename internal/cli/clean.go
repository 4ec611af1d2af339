package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ralphorchestrator/ralph/internal/board"
	"github.com/ralphorchestrator/ralph/internal/git"
)

// newCleanCmd creates the "ralph clean" command: it removes the on-disk
// worker directory (and worktree, if one still exists) for every board task
// in a terminal status (complete, failed, not-planned), and prunes any
// worktree git no longer has a registered branch for.
func newCleanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove worker directories and worktrees for terminal tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClean(cmd)
		},
	}
	return cmd
}

func init() {
	rootCmd.AddCommand(newCleanCmd())
}

func runClean(cmd *cobra.Command) error {
	resolved, _, err := loadAndResolveConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg := resolved.Config.Orchestrator
	out := cmd.OutOrStdout()

	tasks, err := board.ParseAll(cfg.KanbanFile)
	if err != nil {
		return fmt.Errorf("parsing board: %w", err)
	}

	gitClient, gitErr := git.NewGitClient("")
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var removed int
	for _, t := range tasks {
		if !t.Status.Terminal() {
			continue
		}
		workerDir := filepath.Join(cfg.WorkersDir, "worker-"+t.ID)
		if _, statErr := os.Stat(workerDir); os.IsNotExist(statErr) {
			continue
		}

		workspace := filepath.Join(workerDir, "workspace")
		if gitErr == nil {
			if _, wsErr := os.Stat(workspace); wsErr == nil {
				if err := gitClient.RemoveWorktree(ctx, workspace, true); err != nil {
					fmt.Fprintf(out, "warning: removing worktree for %s: %v\n", t.ID, err)
				}
			}
		}

		if err := os.RemoveAll(workerDir); err != nil {
			fmt.Fprintf(out, "warning: removing worker dir for %s: %v\n", t.ID, err)
			continue
		}
		removed++
		fmt.Fprintf(out, "Removed worker directory for %s (%s)\n", t.ID, t.Status)
	}

	if gitErr == nil {
		if err := gitClient.PruneWorktrees(ctx); err != nil {
			fmt.Fprintf(out, "warning: pruning worktrees: %v\n", err)
		}
	}

	fmt.Fprintf(out, "Cleaned %d worker director(ies).\n", removed)
	return nil
}
