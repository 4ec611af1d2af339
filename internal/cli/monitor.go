package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ralphorchestrator/ralph/internal/buildinfo"
	"github.com/ralphorchestrator/ralph/internal/conflict"
	"github.com/ralphorchestrator/ralph/internal/eventbus"
	"github.com/ralphorchestrator/ralph/internal/tui"
	"github.com/ralphorchestrator/ralph/internal/workerpool"
)

// newMonitorCmd creates the "ralph monitor" command: it launches the
// full-screen dashboard that polls the board, event log, worker pool, and
// conflict queue and renders their live state.
func newMonitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Launch the live dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(cmd)
		},
	}
	return cmd
}

func init() {
	rootCmd.AddCommand(newMonitorCmd())
}

func runMonitor(cmd *cobra.Command) error {
	resolved, _, err := loadAndResolveConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg := resolved.Config.Orchestrator

	bus, err := eventbus.Open(cfg.EventsLogFile)
	if err != nil {
		return fmt.Errorf("opening event bus: %w", err)
	}
	pool, err := workerpool.Open(cfg.PoolIndexFile)
	if err != nil {
		return fmt.Errorf("opening worker pool: %w", err)
	}
	queue, err := conflict.Open(cfg.QueueFile)
	if err != nil {
		return fmt.Errorf("opening conflict queue: %w", err)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)

	appCfg := tui.AppConfig{
		Version:     buildinfo.GetInfo().Version,
		ProjectName: resolved.Config.Project.Name,
		Ctx:         ctx,
		Cancel:      cancel,
		Source: tui.MonitorSource{
			BoardPath: cfg.KanbanFile,
			Bus:       bus,
			Pool:      pool,
			Queue:     queue,
		},
	}

	if err := tui.RunTUI(appCfg); err != nil && err != context.Canceled {
		return fmt.Errorf("running monitor: %w", err)
	}
	return nil
}
