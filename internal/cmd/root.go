// Package cmd wires runctl's cobra CLI surface to the control-core
// packages: config, provider/awsec2, remote/ssmchannel, checkpoint,
// cleanup, tracker, and lifecycle. NewRootCommand builds the cobra
// tree; newAppContext is the per-invocation dependency-construction
// helper every subcommand calls into.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/spf13/cobra"

	"github.com/arclabs561/runctl/internal/checkpoint"
	"github.com/arclabs561/runctl/internal/cleanup"
	runctlconfig "github.com/arclabs561/runctl/internal/config"
	"github.com/arclabs561/runctl/internal/interruption"
	"github.com/arclabs561/runctl/internal/lifecycle"
	"github.com/arclabs561/runctl/internal/logger"
	"github.com/arclabs561/runctl/internal/provider"
	"github.com/arclabs561/runctl/internal/provider/awsec2"
	"github.com/arclabs561/runctl/internal/remote"
	"github.com/arclabs561/runctl/internal/remote/ssmchannel"
	codesync "github.com/arclabs561/runctl/internal/sync"
	"github.com/arclabs561/runctl/internal/tracker"
)

// Version is injected at build time via -ldflags.
var Version = "dev"

// globalFlags holds the root command's persistent flags: --config,
// --verbose, --output.
type globalFlags struct {
	configPath string
	verbose    bool
	output     string
	stagingS3  string
}

// appContext bundles every dependency a subcommand needs, built once
// per invocation by newAppContext. Kept as a plain struct (not a
// package-level singleton) so tests can construct one against a
// fakeprovider without touching AWS.
type appContext struct {
	Config      *runctlconfig.Config
	Log         *logger.ConsoleLogger
	Tracker     *tracker.Tracker
	Gate        *cleanup.Gate
	Provider    provider.Provider
	Lifecycle   *lifecycle.Orchestrator
}

// NewRootCommand builds runctl's root cobra command.
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "runctl",
		Short: "Lease, train, and reclaim cloud compute for ML jobs",
		Long: `runctl orchestrates the lifecycle of leased cloud compute used for
training runs: create an instance, sync code to it, launch and supervise
a training script, react to spot interruptions, and stop or terminate the
instance when the run finishes.`,
		Version:      Version,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to config file (default: XDG config dir)")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug-level logging")
	root.PersistentFlags().StringVar(&flags.output, "output", "text", "output format: text|json|instance-id")
	root.PersistentFlags().StringVar(&flags.stagingS3, "staging-bucket", "", "S3 bucket used for code-sync/checkpoint staging")

	root.AddCommand(newInitCommand(flags))
	root.AddCommand(newCreateCommand(flags))
	root.AddCommand(newStartStopTerminateCommands(flags)...)
	root.AddCommand(newTrainCommand(flags))
	root.AddCommand(newMonitorCommand(flags))
	root.AddCommand(newResourcesCommand(flags))
	root.AddCommand(newCheckpointCommand(flags))
	root.AddCommand(newWorkflowCommand(flags))

	return root
}

// newAppContext loads configuration and wires every control-core
// dependency against the real AWS backend. Subcommands that talk to
// the backend call this once in their RunE; `init` and the
// `checkpoint` subcommands do not call it.
func newAppContext(ctx context.Context, flags *globalFlags) (*appContext, error) {
	path := flags.configPath
	if path == "" {
		p, err := runctlconfig.UserConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	cfg, err := runctlconfig.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	level := cfg.Log.Level
	if flags.verbose {
		level = "debug"
	}
	log := logger.NewConsoleLogger(os.Stderr, level, nil)

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.DefaultRegion))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	ec2Client := ec2.NewFromConfig(awsCfg)
	pricingClient := pricing.NewFromConfig(awsCfg, func(o *pricing.Options) { o.Region = "us-east-1" })
	ssmClient := ssm.NewFromConfig(awsCfg)
	s3Client := s3.NewFromConfig(awsCfg)

	stagingBucket := flags.stagingS3
	channel := ssmchannel.New(ssmClient, s3Client, log, stagingBucket)

	p := awsec2.New(ec2Client, pricingClient, channel, log, cfg.DefaultRegion)
	wireTrainingDependencies(p, channel, s3Client, stagingBucket, log)

	t := tracker.New()
	journalPath, err := runctlconfig.UserJournalPath()
	if err != nil {
		log.Warnf("tracker journal disabled: %v", err)
	} else if err := t.LoadJournal(journalPath); err != nil {
		log.Warnf("tracker journal at %s could not be loaded, starting empty: %v", journalPath, err)
	}

	gate := cleanup.New(cleanup.Config{
		AgeGuard:         cfg.CleanupAgeGuard,
		MassOpThreshold:  cfg.MassOpThreshold,
		MassOpHardCap:    cfg.MassOpHardCap,
		ProtectedTagKeys: cfg.ProtectedTagKeys,
	})
	orch := lifecycle.New(p, t, gate, log)
	orch.WaitReadyTimeout = cfg.WaitReadyTimeout
	orch.JournalPath = journalPath

	return &appContext{
		Config:    cfg,
		Log:       log,
		Tracker:   t,
		Gate:      gate,
		Provider:  p,
		Lifecycle: orch,
	}, nil
}

// wireTrainingDependencies attaches the code-sync engine, checkpoint
// manager/store, and interruption poller factory to p, so Provider.Train
// delegates to a fully-wired train.Controller. The poller factory is
// always attached; the sync engine and checkpoint manager/store are
// left unwired (nil) when stagingBucket is empty: sync/checkpoint need
// blob staging, and a command that never calls train doesn't need them
// at all.
func wireTrainingDependencies(p *awsec2.Provider, channel remote.Channel, s3Client *s3.Client, stagingBucket string, log *logger.ConsoleLogger) {
	p.PollerFactory = func(resourceID string) interruption.Poller {
		return interruption.NewRemotePoller(channel, resourceID)
	}

	if stagingBucket == "" {
		return
	}

	p.Syncer = codesync.NewEngine(channel, s3Client, stagingBucket, log)
	p.Checkpoints = checkpoint.NewManager(s3Client, log)

	store, err := checkpoint.NewS3Store(s3Client, "s3://"+stagingBucket+"/runctl-checkpoint-index.json")
	if err != nil {
		log.Warnf("checkpoint store disabled: %v", err)
		return
	}
	p.CheckpointStore = store
}
