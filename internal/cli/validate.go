package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/ralphorchestrator/ralph/internal/board"
)

// newValidateCmd creates the "ralph validate [cleanup]" command: it runs the
// board's structural and dependency-cycle checks and, when the "cleanup"
// argument is given, collapses already-complete tasks to free the file for
// readability before re-validating.
func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [cleanup]",
		Short: "Validate the kanban board and optionally collapse completed tasks",
		Long: `Validate checks the kanban board for structural errors (malformed status
markers, unknown priorities, duplicate or dangling dependency IDs) and
dependency cycles.

With the optional "cleanup" argument, completed tasks are collapsed to a
single summary line first, then the board is re-validated.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, args)
		},
	}
	return cmd
}

func init() {
	rootCmd.AddCommand(newValidateCmd())
}

func runValidate(cmd *cobra.Command, args []string) error {
	resolved, _, err := loadAndResolveConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	boardPath := resolved.Config.Orchestrator.KanbanFile

	if len(args) == 1 && args[0] == "cleanup" {
		if err := board.CollapseCompleted(boardPath); err != nil {
			return fmt.Errorf("collapsing completed tasks: %w", err)
		}
	}

	out := cmd.OutOrStdout()

	errs, err := board.Validate(boardPath)
	if err != nil {
		return fmt.Errorf("validating board: %w", err)
	}

	tasks, err := board.ParseAll(boardPath)
	if err != nil {
		return fmt.Errorf("parsing board: %w", err)
	}
	cycles := board.DetectCycles(tasks)

	if len(errs) == 0 && len(cycles) == 0 {
		fmt.Fprintln(out, lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render("Board is valid."))
		return nil
	}

	errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	fmt.Fprintln(out, errStyle.Render("Validation errors:"))
	for _, e := range errs {
		fmt.Fprintf(out, "  [%s] %s: %s\n", e.Kind, e.TaskID, e.Message)
	}
	for _, cyc := range cycles {
		fmt.Fprintf(out, "  [cycle] %s\n", cyc)
	}

	return &exitCodeError{code: 4, err: fmt.Errorf("board has %d error(s), %d cycle(s)", len(errs), len(cycles))}
}
