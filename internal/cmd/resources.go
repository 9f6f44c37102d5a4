package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arclabs561/runctl/internal/cleanup"
	"github.com/arclabs561/runctl/internal/logger"
	"github.com/arclabs561/runctl/internal/provider"
)

// newResourcesCommand implements `runctl resources list|cleanup`.
func newResourcesCommand(flags *globalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "resources",
		Short: "List or reclaim tracked compute resources",
	}
	root.AddCommand(newResourcesListCommand(flags))
	root.AddCommand(newResourcesCleanupCommand(flags))
	return root
}

func newResourcesListCommand(flags *globalFlags) *cobra.Command {
	var project string
	var detailed bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List resources known to the current provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := newAppContext(ctx, flags)
			if err != nil {
				return err
			}

			statuses, err := app.Provider.ListResources(ctx, provider.ListFilters{Project: project})
			if err != nil {
				return err
			}

			color := app.Config.Log.EnableColor
			out := cmd.OutOrStdout()
			for _, status := range statuses {
				app.Tracker.Register(status)
				tracked, _ := app.Tracker.Get(status.ID)

				fmt.Fprintf(out, "%s  %-20s  %s", status.ID, status.InstanceType, logger.FormatResourceState(status.State.String(), color))
				if detailed {
					fmt.Fprintf(out, "  %s  %s", logger.FormatCost(tracked.AccumulatedCost, color), logger.FormatProtected(tracked.Protected, color))
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "filter by project tag")
	cmd.Flags().BoolVar(&detailed, "detailed", false, "include accrued cost and protection status")
	return cmd
}

func newResourcesCleanupCommand(flags *globalFlags) *cobra.Command {
	var dryRun bool
	var force bool
	var project string

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Terminate every reclaimable resource, per the safe-cleanup gate",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := newAppContext(ctx, flags)
			if err != nil {
				return err
			}

			statuses, err := app.Provider.ListResources(ctx, provider.ListFilters{Project: project})
			if err != nil {
				return err
			}

			candidates := make([]cleanup.Candidate, 0, len(statuses))
			for _, status := range statuses {
				if status.State.IsTerminal() {
					continue
				}
				app.Tracker.Register(status)
				tracked, _ := app.Tracker.Get(status.ID)
				candidates = append(candidates, cleanup.Candidate{Resource: tracked})
			}

			decisions, err := app.Gate.Evaluate(candidates, force, false)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, d := range decisions {
				if !d.Proceed {
					fmt.Fprintf(out, "skip %s: %s\n", d.ResourceID, d.Reason)
					continue
				}
				if dryRun {
					fmt.Fprintf(out, "would terminate %s\n", d.ResourceID)
					continue
				}
				if err := app.Lifecycle.Terminate(ctx, d.ResourceID, true); err != nil {
					fmt.Fprintf(out, "terminate %s failed: %v\n", d.ResourceID, err)
					continue
				}
				fmt.Fprintf(out, "terminated %s\n", d.ResourceID)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be terminated without acting")
	cmd.Flags().BoolVar(&force, "force", false, "bypass the safe-cleanup gate")
	cmd.Flags().StringVar(&project, "project", "", "filter by project tag")
	return cmd
}
