package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arclabs561/runctl/internal/lifecycle"
	"github.com/arclabs561/runctl/internal/provider"
	"github.com/arclabs561/runctl/internal/types"
)

// newCreateCommand implements `runctl create`
// `create <instance_type> [--spot] [--spot-max-price P] [--wait]
// [--output instance-id|json|text] [--project NAME] [--iam-profile NAME]`.
func newCreateCommand(flags *globalFlags) *cobra.Command {
	var (
		spot         bool
		spotMaxPrice float64
		wait         bool
		project      string
		iamProfile   string
		session      string
		tagPairs     []string
	)

	cmd := &cobra.Command{
		Use:   "create <instance_type>",
		Short: "Provision a new compute resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := newAppContext(ctx, flags)
			if err != nil {
				return err
			}

			tags, err := parseTags(tagPairs)
			if err != nil {
				return err
			}
			if project == "" {
				project = app.Config.Project
			}
			if iamProfile == "" {
				iamProfile = app.Config.IAMProfile
			}

			opts := lifecycle.CreateOptions{
				CreateOptions: provider.CreateOptions{
					Project:      project,
					Session:      session,
					Spot:         spot,
					SpotMaxPrice: spotMaxPrice,
					IAMProfile:   iamProfile,
					Tags:         tags,
				},
				MassCreateCap:  app.Config.MassCreateCap,
				MassCreateWarn: app.Config.MassCreateWarn,
			}

			var id types.ResourceID
			if wait {
				id, err = app.Lifecycle.Create(ctx, args[0], opts)
			} else {
				id, err = app.Provider.CreateResource(ctx, args[0], opts.CreateOptions)
				if err == nil {
					status, statusErr := app.Provider.GetResourceStatus(ctx, id)
					if statusErr == nil {
						app.Tracker.Register(status)
					}
				}
			}
			if err != nil {
				return err
			}

			return printResourceID(cmd, flags.output, id)
		},
	}

	cmd.Flags().BoolVar(&spot, "spot", false, "request spot/preemptible capacity")
	cmd.Flags().Float64Var(&spotMaxPrice, "spot-max-price", 0, "maximum hourly price for spot capacity")
	cmd.Flags().BoolVar(&wait, "wait", false, "block until the resource reaches Running")
	cmd.Flags().StringVar(&project, "project", "", "project tag applied to the resource")
	cmd.Flags().StringVar(&iamProfile, "iam-profile", "", "IAM instance profile name")
	cmd.Flags().StringVar(&session, "session", "", "session tag applied to the resource")
	cmd.Flags().StringSliceVar(&tagPairs, "tag", nil, "additional key=value tag, may be repeated")

	return cmd
}

func parseTags(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	tags := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --tag %q, expected key=value", p)
		}
		tags[k] = v
	}
	return tags, nil
}

func printResourceID(cmd *cobra.Command, output string, id types.ResourceID) error {
	switch output {
	case "instance-id":
		fmt.Fprintln(cmd.OutOrStdout(), id)
	case "json":
		fmt.Fprintf(cmd.OutOrStdout(), "{\"resource_id\":%q}\n", id)
	default:
		fmt.Fprintf(cmd.OutOrStdout(), "created resource %s\n", id)
	}
	return nil
}
