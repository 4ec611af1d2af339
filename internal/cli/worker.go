package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ralphorchestrator/ralph/internal/board"
	"github.com/ralphorchestrator/ralph/internal/resume"
	"github.com/ralphorchestrator/ralph/internal/workerpool"
)

// newWorkerCmd creates the "ralph worker" parent command, grouping the
// per-task pool-membership controls (start, stop, kill, resume) that act on
// a single task ID rather than the whole scheduling loop.
func newWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Control an individual task's worker",
	}
	cmd.AddCommand(
		newWorkerStartCmd(),
		newWorkerStopCmd(),
		newWorkerKillCmd(),
		newWorkerResumeCmd(),
	)
	return cmd
}

func init() {
	rootCmd.AddCommand(newWorkerCmd())
}

func newWorkerStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <task-id>",
		Short: "Force-admit a task's worker into the main pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID := args[0]
			orch, err := buildOrchestrator()
			if err != nil {
				return err
			}
			if _, running := orch.Pool().FindByTask(taskID); running {
				fmt.Fprintf(cmd.OutOrStdout(), "Task %s already has a running worker.\n", taskID)
				return nil
			}
			if err := orch.Pool().Add(newCLISyntheticPID(), workerpool.KindMain, taskID); err != nil {
				return fmt.Errorf("admitting worker for %s: %w", taskID, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Admitted worker for task %s.\n", taskID)
			return nil
		},
	}
}

func newWorkerStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <task-id>",
		Short: "Remove a task's worker from the pool without marking it failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID := args[0]
			orch, err := buildOrchestrator()
			if err != nil {
				return err
			}
			pid, running := orch.Pool().FindByTask(taskID)
			if !running {
				fmt.Fprintf(cmd.OutOrStdout(), "Task %s has no running worker.\n", taskID)
				return nil
			}
			if err := orch.Pool().Remove(pid); err != nil {
				return fmt.Errorf("removing worker for %s: %w", taskID, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stopped worker for task %s; it may be re-admitted on a later tick.\n", taskID)
			return nil
		},
	}
}

func newWorkerResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <task-id>",
		Short: "Clear a task's resume cooldown so it is schedulable again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID := args[0]
			resolved, _, err := loadAndResolveConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			cfg := resolved.Config.Orchestrator
			statePath := resumeStatePath(cfg.WorkersDir, taskID)

			rs, err := resume.Load(statePath, "worker-"+taskID, resume.DefaultMaxAttempts)
			if err != nil {
				return fmt.Errorf("loading resume state for %s: %w", taskID, err)
			}
			rs.Terminal = false
			rs.TerminalReason = ""
			rs.CooldownUntil = time.Time{}
			if err := resume.Save(statePath, rs); err != nil {
				return fmt.Errorf("saving resume state for %s: %w", taskID, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared resume cooldown for task %s.\n", taskID)
			return nil
		},
	}
}

func newWorkerKillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kill <task-id>",
		Short: "Terminally abort a task's worker and mark the board task failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID := args[0]
			orch, err := buildOrchestrator()
			if err != nil {
				return err
			}
			resolved, _, err := loadAndResolveConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			cfg := resolved.Config.Orchestrator

			if pid, running := orch.Pool().FindByTask(taskID); running {
				if err := orch.Pool().Remove(pid); err != nil {
					return fmt.Errorf("removing worker for %s: %w", taskID, err)
				}
			}

			statePath := resumeStatePath(cfg.WorkersDir, taskID)
			rs, err := resume.Load(statePath, "worker-"+taskID, resume.DefaultMaxAttempts)
			if err != nil {
				return fmt.Errorf("loading resume state for %s: %w", taskID, err)
			}
			if err := rs.Apply(resume.DecisionAbort, "kill", "", "killed via worker kill", time.Now(), resume.NewCooldownBackOff()); err != nil {
				return fmt.Errorf("applying abort decision for %s: %w", taskID, err)
			}
			if err := resume.Save(statePath, rs); err != nil {
				return fmt.Errorf("saving resume state for %s: %w", taskID, err)
			}

			if err := board.SetStatus(cfg.KanbanFile, taskID, board.StatusFailed); err != nil {
				return fmt.Errorf("marking task %s failed: %w", taskID, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Killed worker for task %s and marked it failed.\n", taskID)
			return nil
		},
	}
}

func resumeStatePath(workersDir, taskID string) string {
	return filepath.Join(workersDir, "worker-"+taskID, "resume-state.json")
}

// newCLISyntheticPID mints a synthetic PID for a worker admitted by an
// operator command rather than the scheduling loop itself; the pool only
// uses PIDs as opaque slot keys (spec.md §5, §9: no real process liveness
// check), so any value unique among currently-held entries is valid.
func newCLISyntheticPID() int {
	return -int(time.Now().UnixNano() % 1_000_000_000)
}
