package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newStartCmd creates the "ralph start" command: it clears the pause
// sentinel written by "ralph stop", letting the scheduling loop resume
// admitting newly-ready board tasks.
func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Resume new task admission after a stop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := buildOrchestrator()
			if err != nil {
				return err
			}
			if err := orch.Resume(); err != nil {
				return fmt.Errorf("resuming orchestrator: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Resumed. New tasks will be admitted on the next tick.")
			return nil
		},
	}
	return cmd
}

func init() {
	rootCmd.AddCommand(newStartCmd())
}
