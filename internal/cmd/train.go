package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arclabs561/runctl/internal/types"
	"github.com/arclabs561/runctl/internal/validate"
)

// newTrainCommand implements `runctl train`
// `train <id> <script> [--sync-code true|false] [--hyperparams K=V,...]
// [--data <uri>] [--output-dest <uri>] [--resume] [--wait] [-- ARG...]`.
func newTrainCommand(flags *globalFlags) *cobra.Command {
	var (
		syncCode      bool
		hyperparams   []string
		dataSource    string
		outputDest    string
		checkpointDir string
		resume        bool
		wait          bool
		autoStop      bool
		autoTerminate bool
		bestEffort    bool
		graceSeconds  int
	)

	cmd := &cobra.Command{
		Use:   "train <id> <script> [-- ARG...]",
		Short: "Launch and supervise a training script on a resource",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validate.InstanceID("ec2", args[0]); err != nil {
				return err
			}
			if err := validate.Path(args[1]); err != nil {
				return err
			}

			hp, err := parseTags(hyperparams)
			if err != nil {
				return fmt.Errorf("--hyperparams: %w", err)
			}

			ctx := cmd.Context()
			app, err := newAppContext(ctx, flags)
			if err != nil {
				return err
			}

			job := types.TrainingJob{
				ScriptPath:     args[1],
				ScriptArgs:     args[2:],
				Hyperparams:    hp,
				DataSource:     dataSource,
				OutputDest:     outputDest,
				CheckpointDir:  checkpointDir,
				SyncCode:       syncCode,
				AutoStop:       autoStop,
				AutoTerminate:  autoTerminate,
				Wait:           wait,
				Resume:         resume,
				BestEffortDeps: bestEffort,
				GraceSeconds:   graceSeconds,
			}

			id := types.ResourceID(args[0])
			result, err := app.Lifecycle.Train(ctx, id, job)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "job %s launched on %s\n", result.Handle.JobID, id)
			if wait || autoStop || autoTerminate {
				fmt.Fprintf(cmd.OutOrStdout(), "final state: %s (exit code %d)\n", result.Result.State, result.Result.ExitCode)
				if result.Result.CheckpointUpload != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "checkpoint uploaded to %s\n", result.Result.CheckpointUpload)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&syncCode, "sync-code", true, "sync the local project to the resource before launch")
	cmd.Flags().StringSliceVar(&hyperparams, "hyperparams", nil, "key=value hyperparameters, may be repeated or comma-separated")
	cmd.Flags().StringVar(&dataSource, "data", "", "data source URI")
	cmd.Flags().StringVar(&outputDest, "output-dest", "", "blob URI final checkpoint is uploaded to")
	cmd.Flags().StringVar(&checkpointDir, "checkpoint-dir", "", "remote directory checkpoints are written to")
	cmd.Flags().BoolVar(&resume, "resume", false, "resume from the last recorded checkpoint")
	cmd.Flags().BoolVar(&wait, "wait", false, "block until the job reaches a terminal state")
	cmd.Flags().BoolVar(&autoStop, "auto-stop", false, "stop the resource when the job finishes")
	cmd.Flags().BoolVar(&autoTerminate, "auto-terminate", false, "terminate the resource when the job finishes")
	cmd.Flags().BoolVar(&bestEffort, "best-effort-deps", false, "treat a failed dependency install as non-fatal")
	cmd.Flags().IntVar(&graceSeconds, "grace-seconds", types.DefaultGraceSeconds, "SIGTERM-to-SIGKILL grace window on interruption")

	cmd.Flags().SetInterspersed(false)
	return cmd
}
