package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arclabs561/runctl/internal/types"
	"github.com/arclabs561/runctl/internal/validate"
)

// newStartStopTerminateCommands implements `runctl start|stop|terminate
// <id> [--force]`.
func newStartStopTerminateCommands(flags *globalFlags) []*cobra.Command {
	return []*cobra.Command{
		newSimpleLifecycleCommand(flags, "start", "Start a stopped resource", func(ctx context.Context, app *appContext, id types.ResourceID, force bool) error {
			return app.Provider.Start(ctx, id)
		}),
		newSimpleLifecycleCommand(flags, "stop", "Stop a running resource", func(ctx context.Context, app *appContext, id types.ResourceID, force bool) error {
			return app.Provider.Stop(ctx, id)
		}),
		newSimpleLifecycleCommand(flags, "terminate", "Terminate a resource permanently", func(ctx context.Context, app *appContext, id types.ResourceID, force bool) error {
			return app.Lifecycle.Terminate(ctx, id, force)
		}),
	}
}

type lifecycleAction func(ctx context.Context, app *appContext, id types.ResourceID, force bool) error

func newSimpleLifecycleCommand(flags *globalFlags, use, short string, action lifecycleAction) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   use + " <id>",
		Short: short,
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
			if err := action(ctx, app, id, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", use, id)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "bypass the safe-cleanup gate")
	return cmd
}
