package cli

import (
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/ralphorchestrator/ralph/internal/board"
	"github.com/ralphorchestrator/ralph/internal/eventbus"
	"github.com/ralphorchestrator/ralph/internal/lifecycle"
	"github.com/ralphorchestrator/ralph/internal/resume"
)

// newInspectCmd creates the "ralph inspect <task-id>" command: it gathers
// everything known about a single task -- its board entry, lifecycle
// state, resume-state, and event history -- into one report.
func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <task-id>",
		Short: "Show full detail for one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, args[0])
		},
	}
	return cmd
}

func init() {
	rootCmd.AddCommand(newInspectCmd())
}

func runInspect(cmd *cobra.Command, taskID string) error {
	resolved, _, err := loadAndResolveConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg := resolved.Config.Orchestrator
	out := cmd.OutOrStdout()
	header := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))

	tasks, err := board.ParseAll(cfg.KanbanFile)
	if err != nil {
		return fmt.Errorf("parsing board: %w", err)
	}
	var task *board.Task
	for _, t := range tasks {
		if t.ID == taskID {
			task = t
			break
		}
	}
	if task == nil {
		return fmt.Errorf("task %s not found on board", taskID)
	}

	fmt.Fprintln(out, header.Render("Board"))
	fmt.Fprintf(out, "  ID:           %s\n", task.ID)
	fmt.Fprintf(out, "  Title:        %s\n", task.Title)
	fmt.Fprintf(out, "  Status:       %s\n", task.Status)
	fmt.Fprintf(out, "  Priority:     %s\n", task.Priority)
	fmt.Fprintf(out, "  Dependencies: %v\n", task.Dependencies)

	workerDir := filepath.Join(cfg.WorkersDir, "worker-"+taskID)

	ws, err := lifecycle.LoadWorkerState(filepath.Join(workerDir, "lifecycle-state.json"), "worker-"+taskID, "none")
	fmt.Fprintln(out, header.Render("Lifecycle"))
	if err != nil {
		fmt.Fprintf(out, "  (unavailable: %v)\n", err)
	} else {
		fmt.Fprintf(out, "  Current:           %s\n", ws.Current)
		fmt.Fprintf(out, "  Merge attempts:    %d\n", ws.MergeAttempts)
		fmt.Fprintf(out, "  Recovery attempts: %d\n", ws.RecoveryAttempts)
		if ws.LastError != "" {
			fmt.Fprintf(out, "  Last error:        %s\n", ws.LastError)
		}
	}

	rs, err := resume.Load(filepath.Join(workerDir, "resume-state.json"), "worker-"+taskID, resume.DefaultMaxAttempts)
	fmt.Fprintln(out, header.Render("Resume"))
	if err != nil {
		fmt.Fprintf(out, "  (unavailable: %v)\n", err)
	} else {
		fmt.Fprintf(out, "  Attempts:   %d/%d\n", rs.AttemptCount, rs.MaxAttempts)
		fmt.Fprintf(out, "  Terminal:   %t\n", rs.Terminal)
		if rs.Terminal {
			fmt.Fprintf(out, "  Reason:     %s\n", rs.TerminalReason)
		}
		if !rs.CooldownUntil.IsZero() {
			fmt.Fprintf(out, "  Cooldown until: %s\n", rs.CooldownUntil.Format("2006-01-02T15:04:05Z07:00"))
		}
	}

	bus, err := eventbus.Open(cfg.EventsLogFile)
	fmt.Fprintln(out, header.Render("Events"))
	if err != nil {
		fmt.Fprintf(out, "  (unavailable: %v)\n", err)
		return nil
	}
	records, err := bus.Scan(eventbus.Query{TaskID: taskID})
	if err != nil {
		fmt.Fprintf(out, "  (scan failed: %v)\n", err)
		return nil
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "  (none)")
		return nil
	}
	for _, r := range records {
		fmt.Fprintf(out, "  %s  %s  %v\n", r.Timestamp.Format("2006-01-02T15:04:05Z07:00"), r.EventType, r.Payload)
	}
	return nil
}
