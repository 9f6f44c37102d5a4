package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/arclabs561/runctl/internal/checkpoint"
)

// newCheckpointCommand implements `runctl checkpoint list|info|cleanup`,
// exposing the checkpoint manager directly for operators inspecting a
// run's local checkpoint directory.
func newCheckpointCommand(flags *globalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect and prune local training checkpoints",
	}
	root.AddCommand(newCheckpointListCommand())
	root.AddCommand(newCheckpointInfoCommand())
	root.AddCommand(newCheckpointCleanupCommand())
	return root
}

func newCheckpointListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list <dir>",
		Short: "List checkpoint files in a directory, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := checkpoint.NewManager(nil, nil)
			paths, err := mgr.List(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, p := range paths {
				fmt.Fprintln(out, p)
			}
			return nil
		},
	}
}

func newCheckpointInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info <file>",
		Short: "Print size and modification time for a checkpoint file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := os.Stat(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %d bytes  modified %s\n", args[0], info.Size(), info.ModTime().Format("2006-01-02T15:04:05"))
			return nil
		},
	}
}

func newCheckpointCleanupCommand() *cobra.Command {
	var keepLastN int
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "cleanup <dir>",
		Short: "Delete all but the N newest checkpoint files in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if keepLastN < 1 {
				return fmt.Errorf("--keep-last-n must be at least 1")
			}
			mgr := checkpoint.NewManager(nil, nil)
			paths, err := mgr.List(args[0])
			if err != nil {
				return err
			}
			if len(paths) <= keepLastN {
				fmt.Fprintf(cmd.OutOrStdout(), "nothing to prune: %d checkpoint(s), keeping %d\n", len(paths), keepLastN)
				return nil
			}

			out := cmd.OutOrStdout()
			for _, p := range paths[keepLastN:] {
				if dryRun {
					fmt.Fprintf(out, "would delete %s\n", p)
					continue
				}
				if err := os.Remove(p); err != nil {
					fmt.Fprintf(out, "delete %s failed: %v\n", p, err)
					continue
				}
				fmt.Fprintf(out, "deleted %s\n", p)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&keepLastN, "keep-last-n", 3, "number of newest checkpoints to retain")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be deleted without acting")
	return cmd
}
