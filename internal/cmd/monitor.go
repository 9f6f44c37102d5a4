package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arclabs561/runctl/internal/types"
	"github.com/arclabs561/runctl/internal/validate"
)

// newMonitorCommand implements `runctl monitor <id> [--follow]`: tails
// the remote training log via Provider.Monitor.
func newMonitorCommand(flags *globalFlags) *cobra.Command {
	var follow bool

	cmd := &cobra.Command{
		Use:   "monitor <id>",
		Short: "Tail the training log of a resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validate.InstanceID("ec2", args[0]); err != nil {
				return err
			}
			ctx := cmd.Context()
			app, err := newAppContext(ctx, flags)
			if err != nil {
				return err
			}

			id := types.ResourceID(args[0])
			lines, err := app.Provider.Monitor(ctx, id, follow)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for line := range lines {
				fmt.Fprintf(out, "%s  %s\n", line.Timestamp.Format("15:04:05"), line.Text)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&follow, "follow", false, "keep streaming new log lines until interrupted")
	return cmd
}
