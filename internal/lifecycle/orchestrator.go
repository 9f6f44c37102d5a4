// Package lifecycle implements the top-level lifecycle orchestrator:
// the create → wait_ready → train → (optional auto-stop/terminate)
// workflow (no volume-attach step is run), wiring the provider
// interface, the resource tracker, and the safe-cleanup gate together
// as a config-with-hooks struct driving a sequential multi-phase
// workflow.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/arclabs561/runctl/internal/cleanup"
	"github.com/arclabs561/runctl/internal/errs"
	"github.com/arclabs561/runctl/internal/provider"
	"github.com/arclabs561/runctl/internal/retry"
	"github.com/arclabs561/runctl/internal/tracker"
	"github.com/arclabs561/runctl/internal/types"
)

// DefaultWaitReadyTimeout is the default wait_ready bound.
const DefaultWaitReadyTimeout = 10 * time.Minute

// DefaultMassCreateCap is the mass-creation guard's hard cap; warn
// starts at DefaultMassCreateWarn.
const (
	DefaultMassCreateCap  = 50
	DefaultMassCreateWarn = 10
)

// Logger receives lifecycle progress and warnings.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
}

// Orchestrator drives the top-level workflow. The zero value is not
// usable; use New.
type Orchestrator struct {
	Provider provider.Provider
	Tracker  *tracker.Tracker
	Gate     *cleanup.Gate
	Log      Logger

	WaitReadyTimeout time.Duration
	RetryConfig      retry.Config

	// JournalPath, if set, is where the tracker's crash-resume journal
	// is saved after every state-changing step, so a later invocation
	// can recover in-flight leases after a restart. Empty disables
	// journaling entirely.
	JournalPath string

	// sessionCreateCount tracks how many resources this orchestrator
	// instance has created, for the mass-creation guard. A fresh
	// process gets a fresh Orchestrator and therefore a fresh count.
	sessionCreateCount int
}

// New builds an Orchestrator with the standard defaults for any zero field.
func New(p provider.Provider, t *tracker.Tracker, gate *cleanup.Gate, log Logger) *Orchestrator {
	return &Orchestrator{
		Provider:         p,
		Tracker:          t,
		Gate:             gate,
		Log:              log,
		WaitReadyTimeout: DefaultWaitReadyTimeout,
		RetryConfig:      retry.DefaultCloudConfig(),
	}
}

// CreateOptions bundles a create request; MassCreateCap/Warn let
// callers override the defaults (e.g. from Config), zero uses the
// package defaults.
type CreateOptions struct {
	provider.CreateOptions
	MassCreateCap  int
	MassCreateWarn int
}

// Create runs the create → wait_ready phases of the workflow,
// registering the resource with the tracker as soon as it exists and
// again once it reaches Running.
func (o *Orchestrator) Create(ctx context.Context, instanceType string, opts CreateOptions) (types.ResourceID, error) {
	hardCap := opts.MassCreateCap
	if hardCap <= 0 {
		hardCap = DefaultMassCreateCap
	}
	warn := opts.MassCreateWarn
	if warn <= 0 {
		warn = DefaultMassCreateWarn
	}
	if o.sessionCreateCount >= hardCap {
		return "", fmt.Errorf("lifecycle: mass-creation guard: %d resources already created this session, hard cap is %d", o.sessionCreateCount, hardCap)
	}
	if o.sessionCreateCount == warn {
		o.Log.Warnf("lifecycle: this session has created %d resources, approaching the hard cap of %d", o.sessionCreateCount, hardCap)
	}

	id, err := retry.Execute(ctx, o.RetryConfig, o.Log, "create_resource", func(ctx context.Context) (types.ResourceID, error) {
		return o.Provider.CreateResource(ctx, instanceType, opts.CreateOptions)
	})
	if err != nil {
		return "", err
	}
	o.sessionCreateCount++

	status, err := o.Provider.GetResourceStatus(ctx, id)
	if err != nil {
		o.Log.Warnf("lifecycle: created %s but could not fetch initial status: %v", id, err)
		status = types.ResourceStatus{ID: id, Provider: "unknown", InstanceType: instanceType, State: types.StatePending}
	}
	o.Tracker.Register(status)
	o.saveJournal()

	if err := o.waitReady(ctx, id); err != nil {
		return id, err
	}
	return id, nil
}

// waitReady polls get_resource_status through the retry executor
// until the resource reports Running, or the timeout elapses.
func (o *Orchestrator) waitReady(ctx context.Context, id types.ResourceID) error {
	timeout := o.WaitReadyTimeout
	if timeout <= 0 {
		timeout = DefaultWaitReadyTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		status, err := o.Provider.GetResourceStatus(ctx, id)
		if err == nil {
			if updErr := o.Tracker.UpdateState(id, status.State); updErr != nil {
				o.Log.Warnf("lifecycle: tracker update for %s failed: %v", id, updErr)
			}
			o.saveJournal()
			switch status.State {
			case types.StateRunning:
				return nil
			case types.StateTerminated, types.StateError:
				return errs.CloudProvider("", fmt.Sprintf("resource %s entered %s while waiting to become ready", id, status.State), nil)
			}
		} else {
			o.Log.Warnf("lifecycle: status poll for %s failed: %v", id, err)
		}

		select {
		case <-ctx.Done():
			return errs.Retryable(0, 0, fmt.Sprintf("wait_ready timed out for %s", id), ctx.Err())
		case <-ticker.C:
		}
	}
}

// TrainResult bundles the job handle and terminal outcome of a Train
// call, for callers that want both.
type TrainResult struct {
	Handle provider.JobHandle
	Result types.JobResult
}

// Train launches a training job on id and, if job.Wait is set, blocks
// for completion and runs the auto-stop/auto-terminate phase.
func (o *Orchestrator) Train(ctx context.Context, id types.ResourceID, job types.TrainingJob) (TrainResult, error) {
	handle, err := o.Provider.Train(ctx, id, job)
	if err != nil {
		return TrainResult{}, err
	}

	if !job.Wait && !job.AutoStop && !job.AutoTerminate {
		return TrainResult{Handle: handle}, nil
	}

	result, err := o.Provider.Wait(ctx, handle)
	if err != nil {
		return TrainResult{Handle: handle}, err
	}

	if job.AutoStop || job.AutoTerminate {
		o.postTrainCleanup(ctx, id, job)
	}
	return TrainResult{Handle: handle, Result: result}, nil
}

// postTrainCleanup implements auto-stop/terminate
// phase: on Completed or Failed, stop or terminate through the
// provider, running destructive steps (terminate) past the
// cleanup gate first.
func (o *Orchestrator) postTrainCleanup(ctx context.Context, id types.ResourceID, job types.TrainingJob) {
	if job.AutoTerminate {
		resource, ok := o.Tracker.Get(id)
		if !ok {
			resource = types.NewTrackedResource(types.ResourceStatus{ID: id})
		}
		decisions, err := o.Gate.Evaluate([]cleanup.Candidate{{Resource: resource}}, false, false)
		if err != nil {
			o.Log.Warnf("lifecycle: cleanup gate error for %s: %v", id, err)
			return
		}
		if len(decisions) == 0 || !decisions[0].Proceed {
			reason := "blocked"
			if len(decisions) > 0 {
				reason = decisions[0].Reason
			}
			o.Log.Warnf("lifecycle: auto_terminate for %s blocked by cleanup gate: %s", id, reason)
			return
		}
		if err := o.Provider.Terminate(ctx, id, false); err != nil {
			o.Log.Warnf("lifecycle: auto_terminate for %s failed: %v", id, err)
			return
		}
		if err := o.Tracker.UpdateState(id, types.StateTerminated); err != nil {
			o.Log.Warnf("lifecycle: tracker update for %s failed: %v", id, err)
		}
		o.saveJournal()
		return
	}

	if job.AutoStop {
		if err := o.Provider.Stop(ctx, id); err != nil {
			o.Log.Warnf("lifecycle: auto_stop for %s failed: %v", id, err)
			return
		}
		if err := o.Tracker.UpdateState(id, types.StateStopped); err != nil {
			o.Log.Warnf("lifecycle: tracker update for %s failed: %v", id, err)
		}
		o.saveJournal()
	}
}

// Terminate runs the safe-cleanup gate before delegating to the
// provider: every destructive step queries the gate first. force
// bypasses the gate entirely, same as the gate's own top precedence
// rule.
func (o *Orchestrator) Terminate(ctx context.Context, id types.ResourceID, force bool) error {
	if !force {
		resource, ok := o.Tracker.Get(id)
		if !ok {
			return errs.ResourceNotFound("resource", string(id))
		}
		decisions, err := o.Gate.Evaluate([]cleanup.Candidate{{Resource: resource}}, false, false)
		if err != nil {
			return err
		}
		if len(decisions) == 0 || !decisions[0].Proceed {
			reason := "blocked by cleanup gate"
			if len(decisions) > 0 {
				reason = decisions[0].Reason
			}
			return errs.Cleanup(reason)
		}
	}
	if err := o.Provider.Terminate(ctx, id, force); err != nil {
		return err
	}
	err := o.Tracker.UpdateState(id, types.StateTerminated)
	o.saveJournal()
	return err
}

// saveJournal persists the tracker to JournalPath, if configured. It
// is best-effort: a journal write failure is logged, never returned,
// since it must not block the workflow it is shadowing.
func (o *Orchestrator) saveJournal() {
	if o.JournalPath == "" {
		return
	}
	if err := o.Tracker.SaveJournal(o.JournalPath); err != nil {
		o.Log.Warnf("lifecycle: tracker journal save failed: %v", err)
	}
}
