package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ralphorchestrator/ralph/internal/board"
)

// newPlanCmd creates the "ralph plan <task-id>" command: it writes a plan
// artifact to .ralph/plans/<task-id>.md seeded with the task's full board
// entry, which the scheduler's priority formula rewards via its plan bonus.
func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <task-id>",
		Short: "Write a plan artifact for a board task",
		Long: `Plan extracts the full markdown block for the given task ID from the
kanban board and writes it, with a short front-matter stamp, to
.ralph/plans/<task-id>.md. The scheduler's priority formula ranks tasks with
an existing plan artifact above otherwise-equal siblings.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, args[0])
		},
	}
	return cmd
}

func init() {
	rootCmd.AddCommand(newPlanCmd())
}

func runPlan(cmd *cobra.Command, taskID string) error {
	resolved, _, err := loadAndResolveConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg := resolved.Config.Orchestrator

	block, err := board.ExtractFullTask(cfg.KanbanFile, taskID)
	if err != nil {
		return fmt.Errorf("extracting task %s: %w", taskID, err)
	}

	if err := os.MkdirAll(cfg.PlansDir, 0o755); err != nil {
		return fmt.Errorf("creating plans dir: %w", err)
	}

	planPath := filepath.Join(cfg.PlansDir, taskID+".md")
	contents := fmt.Sprintf("<!-- plan for %s, written %s -->\n\n%s\n", taskID, time.Now().UTC().Format(time.RFC3339), block)
	if err := os.WriteFile(planPath, []byte(contents), 0o644); err != nil {
		return fmt.Errorf("writing plan artifact: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote plan artifact for %s to %s\n", taskID, planPath)
	return nil
}
