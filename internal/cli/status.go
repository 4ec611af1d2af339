package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/ralphorchestrator/ralph/internal/board"
	"github.com/ralphorchestrator/ralph/internal/config"
)

// statusFlags holds the flag values for the status command.
type statusFlags struct {
	JSON    bool // --json for structured output
	Verbose bool // --verbose for per-task details
}

// statusOutput is the top-level JSON output type for the status command.
type statusOutput struct {
	ProjectName  string       `json:"project_name"`
	Total        int          `json:"total"`
	Pending      int          `json:"pending"`
	InProgress   int          `json:"in_progress"`
	PendingApprove int        `json:"pending_approve"`
	Complete     int          `json:"complete"`
	Failed       int          `json:"failed"`
	NotPlanned   int          `json:"not_planned"`
	Percent      float64      `json:"percent"`
	Tasks        []statusTask `json:"tasks,omitempty"`
}

type statusTask struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// newStatusCmd creates the "ralph status" command.
func newStatusCmd() *cobra.Command {
	var flags statusFlags

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the kanban board's task progress with a progress bar",
		Long: `Display a summary of board task progress: counts by status and an
overall completion bar.

Use --verbose to see per-task status details. Use --json for structured
output suitable for scripting.`,
		Example: `  # Show overall board progress
  ralph status

  # Show per-task details
  ralph status --verbose

  # Structured JSON output
  ralph status --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, args, flags)
		},
	}

	cmd.Flags().BoolVar(&flags.JSON, "json", false, "Output structured JSON to stdout")
	cmd.Flags().BoolVar(&flags.Verbose, "verbose", false, "Show per-task status details")

	return cmd
}

func init() {
	rootCmd.AddCommand(newStatusCmd())
}

// runStatus is the command's RunE function. Loads config, parses the
// kanban board, and renders overall progress.
func runStatus(cmd *cobra.Command, _ []string, flags statusFlags) error {
	resolved, _, err := loadAndResolveConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg := resolved.Config

	tasks, err := board.ParseAll(cfg.Orchestrator.KanbanFile)
	if err != nil {
		return fmt.Errorf("parsing kanban board %q: %w", cfg.Orchestrator.KanbanFile, err)
	}

	if len(tasks) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "No tasks found on the board.")
		return nil
	}

	if flags.JSON {
		return renderJSON(cmd.OutOrStdout(), cfg, tasks, flags.Verbose)
	}

	out := cmd.ErrOrStderr()
	projectName := cfg.Project.Name
	if projectName == "" {
		projectName = "ralph"
	}

	fmt.Fprintln(out, renderSummary(tasks, projectName))
	fmt.Fprintln(out, renderProgressBar(tasks))

	if flags.Verbose {
		fmt.Fprintln(out, renderTaskDetails(tasks))
	}

	return nil
}

// renderJSON serialises board progress to JSON and writes it to w.
func renderJSON(w io.Writer, cfg *config.Config, tasks []*board.Task, verbose bool) error {
	out := statusOutput{ProjectName: cfg.Project.Name}
	for _, t := range tasks {
		out.Total++
		switch t.Status {
		case board.StatusPending:
			out.Pending++
		case board.StatusInProgress:
			out.InProgress++
		case board.StatusPendingApprove:
			out.PendingApprove++
		case board.StatusComplete:
			out.Complete++
		case board.StatusFailed:
			out.Failed++
		case board.StatusNotPlanned:
			out.NotPlanned++
		}
	}
	if out.Total > 0 {
		out.Percent = float64(out.Complete+out.NotPlanned) / float64(out.Total) * 100
	}
	if verbose {
		out.Tasks = make([]statusTask, 0, len(tasks))
		for _, t := range tasks {
			out.Tasks = append(out.Tasks, statusTask{ID: t.ID, Title: t.Title, Status: t.Status.String()})
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// renderSummary returns an overall project summary header string.
//
//	Ralph Status - my-project
//	=========================
//	Overall: 45/87 tasks done (52%)
func renderSummary(tasks []*board.Task, projectName string) string {
	total, done := 0, 0
	for _, t := range tasks {
		total++
		if t.Status == board.StatusComplete || t.Status == board.StatusNotPlanned {
			done++
		}
	}
	pct := 0.0
	if total > 0 {
		pct = float64(done) / float64(total) * 100
	}

	headerStyle := lipgloss.NewStyle().Bold(true)
	title := fmt.Sprintf("Ralph Status - %s", projectName)
	sep := strings.Repeat("=", len(title))

	var sb strings.Builder
	sb.WriteString(headerStyle.Render(title))
	sb.WriteString("\n")
	sb.WriteString(sep)
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Overall: %d/%d tasks done (%.0f%%)", done, total, pct))
	return sb.String()
}

// renderProgressBar returns a styled progress bar plus per-status counts.
//
//	████████████░░░░░░░░ 60% (12/20)
//	4 pending, 2 in-progress, 1 pending-approve, 12 complete, 1 failed
func renderProgressBar(tasks []*board.Task) string {
	const progressBarWidth = 40

	pendingStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	inProgressStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11")) // yellow
	approveStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("12"))   // blue
	completeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))  // green
	failedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9"))     // red

	var pending, inProgress, approve, complete, failed, notPlanned int
	for _, t := range tasks {
		switch t.Status {
		case board.StatusPending:
			pending++
		case board.StatusInProgress:
			inProgress++
		case board.StatusPendingApprove:
			approve++
		case board.StatusComplete:
			complete++
		case board.StatusFailed:
			failed++
		case board.StatusNotPlanned:
			notPlanned++
		}
	}

	total := len(tasks)
	done := complete + notPlanned
	pct := 0.0
	if total > 0 {
		pct = float64(done) / float64(total)
	}

	bar := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(progressBarWidth),
		progress.WithoutPercentage(),
	)

	var sb strings.Builder
	sb.WriteString(bar.ViewAs(pct))
	sb.WriteString(fmt.Sprintf(" %.0f%% (%d/%d)\n", pct*100, done, total))

	var parts []string
	if pending > 0 {
		parts = append(parts, pendingStyle.Render(fmt.Sprintf("%d pending", pending)))
	}
	if inProgress > 0 {
		parts = append(parts, inProgressStyle.Render(fmt.Sprintf("%d in-progress", inProgress)))
	}
	if approve > 0 {
		parts = append(parts, approveStyle.Render(fmt.Sprintf("%d pending-approve", approve)))
	}
	if complete > 0 {
		parts = append(parts, completeStyle.Render(fmt.Sprintf("%d complete", complete)))
	}
	if failed > 0 {
		parts = append(parts, failedStyle.Render(fmt.Sprintf("%d failed", failed)))
	}
	if notPlanned > 0 {
		parts = append(parts, fmt.Sprintf("%d not-planned", notPlanned))
	}
	sb.WriteString(strings.Join(parts, ", "))
	return sb.String()
}

// renderTaskDetails returns a formatted per-task list sorted by ID, showing
// status and unmet dependencies for pending tasks.
func renderTaskDetails(tasks []*board.Task) string {
	completed := map[string]bool{}
	for _, t := range tasks {
		if t.Status == board.StatusComplete {
			completed[t.ID] = true
		}
	}

	sorted := make([]*board.Task, len(tasks))
	copy(sorted, tasks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	completeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	inProgressStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	failedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

	var sb strings.Builder
	for _, t := range sorted {
		var statusLabel string
		switch t.Status {
		case board.StatusComplete:
			statusLabel = completeStyle.Render("complete")
		case board.StatusInProgress:
			statusLabel = inProgressStyle.Render("in_progress")
		case board.StatusFailed:
			statusLabel = failedStyle.Render("failed")
		case board.StatusPendingApprove:
			statusLabel = "pending_approve"
		case board.StatusNotPlanned:
			statusLabel = "not_planned"
		default:
			statusLabel = "pending"
		}

		title := t.Title
		if len(title) > 50 {
			title = title[:47] + "..."
		}
		line := fmt.Sprintf("  %s  %-50s  %s", t.ID, title, statusLabel)

		if t.Status == board.StatusPending {
			unmet := t.UnsatisfiedDeps(completed)
			if len(unmet) > 0 {
				line += fmt.Sprintf("  [waiting on: %s]", strings.Join(unmet, ", "))
			}
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
