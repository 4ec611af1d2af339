package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/ralphorchestrator/ralph/internal/board"
	"github.com/ralphorchestrator/ralph/internal/git"
)

// staleLockAge is how long a board ".lock" file can sit unheld before
// doctor flags it as a likely leftover from a crashed process; a live
// acquireLock call always releases its flock within one mutate call.
const staleLockAge = 2 * time.Minute

// newDoctorCmd creates the "ralph doctor" command: a battery of
// prerequisite and health checks on the project's .ralph layout, mirroring
// the project-setup verification idiom used by "ralph init".
func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose the project's .ralph layout and worker state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd)
		},
	}
	return cmd
}

func init() {
	rootCmd.AddCommand(newDoctorCmd())
}

type checkResult struct {
	name string
	ok   bool
	note string
}

func runDoctor(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

	var results []checkResult
	var failed bool

	resolved, _, err := loadAndResolveConfig()
	if err != nil {
		results = append(results, checkResult{"config resolves", false, err.Error()})
		failed = true
		printDoctorResults(out, results, okStyle, failStyle)
		return &exitCodeError{code: 1, err: fmt.Errorf("doctor found %d problem(s)", 1)}
	}
	results = append(results, checkResult{"config resolves", true, ""})
	cfg := resolved.Config.Orchestrator

	if _, statErr := os.Stat(cfg.RootDir); statErr != nil {
		results = append(results, checkResult{"ralph root dir exists", false, statErr.Error()})
		failed = true
	} else {
		results = append(results, checkResult{"ralph root dir exists", true, cfg.RootDir})
	}

	if tasks, boardErr := board.ParseAll(cfg.KanbanFile); boardErr != nil {
		results = append(results, checkResult{"kanban board parses", false, boardErr.Error()})
		failed = true
	} else {
		errs, valErr := board.Validate(cfg.KanbanFile)
		if valErr != nil {
			results = append(results, checkResult{"kanban board validates", false, valErr.Error()})
			failed = true
		} else if len(errs) > 0 {
			results = append(results, checkResult{"kanban board validates", false, fmt.Sprintf("%d error(s)", len(errs))})
			failed = true
		} else {
			results = append(results, checkResult{"kanban board validates", true, fmt.Sprintf("%d task(s)", len(tasks))})
		}
		if cycles := board.DetectCycles(tasks); len(cycles) > 0 {
			results = append(results, checkResult{"dependency graph acyclic", false, fmt.Sprintf("%v", cycles)})
			failed = true
		} else {
			results = append(results, checkResult{"dependency graph acyclic", true, ""})
		}
	}

	lockPath := cfg.KanbanFile + ".lock"
	if info, statErr := os.Stat(lockPath); statErr == nil {
		if time.Since(info.ModTime()) > staleLockAge {
			results = append(results, checkResult{"board lock not stale", false, fmt.Sprintf("last touched %s ago", time.Since(info.ModTime()).Round(time.Second))})
			failed = true
		} else {
			results = append(results, checkResult{"board lock not stale", true, ""})
		}
	} else {
		results = append(results, checkResult{"board lock not stale", true, "no lock file present"})
	}

	gitClient, gitErr := git.NewGitClient("")
	if gitErr != nil {
		results = append(results, checkResult{"git prerequisites", false, gitErr.Error()})
		failed = true
	} else {
		results = append(results, checkResult{"git prerequisites", true, ""})
		if worktrees, wtErr := gitClient.ListWorktrees(cmd.Context()); wtErr != nil {
			results = append(results, checkResult{"worktrees enumerable", false, wtErr.Error()})
			failed = true
		} else {
			var orphaned int
			for _, wt := range worktrees {
				if _, statErr := os.Stat(wt.Path); os.IsNotExist(statErr) {
					orphaned++
				}
			}
			if orphaned > 0 {
				results = append(results, checkResult{"no orphaned worktrees", false, fmt.Sprintf("%d registered worktree(s) missing on disk; run \"ralph clean\"", orphaned)})
				failed = true
			} else {
				results = append(results, checkResult{"no orphaned worktrees", true, fmt.Sprintf("%d worktree(s)", len(worktrees))})
			}
		}
	}

	printDoctorResults(out, results, okStyle, failStyle)
	if failed {
		return &exitCodeError{code: 1, err: fmt.Errorf("doctor found problems")}
	}
	return nil
}

func printDoctorResults(out io.Writer, results []checkResult, okStyle, failStyle lipgloss.Style) {
	for _, r := range results {
		mark := okStyle.Render("ok")
		if !r.ok {
			mark = failStyle.Render("FAIL")
		}
		if r.note != "" {
			fmt.Fprintf(out, "[%s] %-28s %s\n", mark, r.name, r.note)
		} else {
			fmt.Fprintf(out, "[%s] %s\n", mark, r.name)
		}
	}
}
