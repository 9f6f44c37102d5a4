package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arclabs561/runctl/internal/lifecycle"
	"github.com/arclabs561/runctl/internal/provider"
	"github.com/arclabs561/runctl/internal/types"
)

// newWorkflowCommand implements `runctl workflow train`, the
// convenience pipeline: create, wait for Running, launch training,
// then stop or terminate once it finishes, as a single command
// instead of four.
func newWorkflowCommand(flags *globalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "workflow",
		Short: "Run a full create-train-reclaim pipeline in one command",
	}
	root.AddCommand(newWorkflowTrainCommand(flags))
	return root
}

func newWorkflowTrainCommand(flags *globalFlags) *cobra.Command {
	var (
		instanceType  string
		spot          bool
		spotMaxPrice  float64
		project       string
		iamProfile    string
		hyperparams   []string
		dataSource    string
		outputDest    string
		checkpointDir string
		resume        bool
		autoStop      bool
		autoTerminate bool
		graceSeconds  int
	)

	cmd := &cobra.Command{
		Use:   "train <script> [-- ARG...]",
		Short: "Create a resource, train a script on it, then reclaim the resource",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !autoStop && !autoTerminate {
				autoTerminate = true
			}

			ctx := cmd.Context()
			app, err := newAppContext(ctx, flags)
			if err != nil {
				return err
			}

			hp, err := parseTags(hyperparams)
			if err != nil {
				return fmt.Errorf("--hyperparams: %w", err)
			}
			if project == "" {
				project = app.Config.Project
			}
			if iamProfile == "" {
				iamProfile = app.Config.IAMProfile
			}
			if instanceType == "" {
				instanceType = app.Config.DefaultInstanceType
			}
			if instanceType == "" {
				return fmt.Errorf("--instance-type is required (no default_instance_type configured)")
			}

			out := cmd.OutOrStdout()

			id, err := app.Lifecycle.Create(ctx, instanceType, lifecycle.CreateOptions{
				CreateOptions: provider.CreateOptions{
					Project:      project,
					Spot:         spot,
					SpotMaxPrice: spotMaxPrice,
					IAMProfile:   iamProfile,
				},
				MassCreateCap:  app.Config.MassCreateCap,
				MassCreateWarn: app.Config.MassCreateWarn,
			})
			if err != nil {
				return fmt.Errorf("create: %w", err)
			}
			fmt.Fprintf(out, "created and ready: %s\n", id)

			job := types.TrainingJob{
				ScriptPath:    args[0],
				ScriptArgs:    args[1:],
				Hyperparams:   hp,
				DataSource:    dataSource,
				OutputDest:    outputDest,
				CheckpointDir: checkpointDir,
				SyncCode:      true,
				AutoStop:      autoStop,
				AutoTerminate: autoTerminate,
				Wait:          true,
				Resume:        resume,
				GraceSeconds:  graceSeconds,
			}

			result, err := app.Lifecycle.Train(ctx, id, job)
			if err != nil {
				return fmt.Errorf("train: %w", err)
			}

			fmt.Fprintf(out, "job %s finished: %s (exit code %d)\n", result.Handle.JobID, result.Result.State, result.Result.ExitCode)
			if result.Result.CheckpointUpload != "" {
				fmt.Fprintf(out, "checkpoint uploaded to %s\n", result.Result.CheckpointUpload)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&instanceType, "instance-type", "", "instance type to provision")
	cmd.Flags().BoolVar(&spot, "spot", false, "request spot/preemptible capacity")
	cmd.Flags().Float64Var(&spotMaxPrice, "spot-max-price", 0, "maximum hourly price for spot capacity")
	cmd.Flags().StringVar(&project, "project", "", "project tag applied to the resource")
	cmd.Flags().StringVar(&iamProfile, "iam-profile", "", "IAM instance profile name")
	cmd.Flags().StringSliceVar(&hyperparams, "hyperparams", nil, "key=value hyperparameters, may be repeated")
	cmd.Flags().StringVar(&dataSource, "data", "", "data source URI")
	cmd.Flags().StringVar(&outputDest, "output-dest", "", "blob URI final checkpoint is uploaded to")
	cmd.Flags().StringVar(&checkpointDir, "checkpoint-dir", "", "remote directory checkpoints are written to")
	cmd.Flags().BoolVar(&resume, "resume", false, "resume from the last recorded checkpoint")
	cmd.Flags().BoolVar(&autoStop, "auto-stop", false, "stop (don't terminate) the resource when the job finishes")
	cmd.Flags().BoolVar(&autoTerminate, "auto-terminate", false, "terminate the resource when the job finishes (default)")
	cmd.Flags().IntVar(&graceSeconds, "grace-seconds", types.DefaultGraceSeconds, "SIGTERM-to-SIGKILL grace window on interruption")

	cmd.Flags().SetInterspersed(false)
	return cmd
}
