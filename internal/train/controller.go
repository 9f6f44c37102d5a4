// Package train implements the training controller: the per-job state
// machine that syncs code, installs dependencies, launches the
// training script on a remote instance, supervises it, reacts to
// interruption, and hands off to auto-stop/terminate. Background work
// (log tail, interruption poll) runs under a single
// cancellation scope rooted at the controller.
package train

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	stdsync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/arclabs561/runctl/internal/checkpoint"
	"github.com/arclabs561/runctl/internal/errs"
	"github.com/arclabs561/runctl/internal/interruption"
	"github.com/arclabs561/runctl/internal/remote"
	codesync "github.com/arclabs561/runctl/internal/sync"
	"github.com/arclabs561/runctl/internal/types"
)

// Logger is the narrow logging surface the controller depends on.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
}

// Syncer is the code-sync capability the controller calls during the
// Syncing state. Satisfied by *codesync.Engine.
type Syncer interface {
	Sync(ctx context.Context, resourceID, localRoot, remoteDir string, excludes, includes []string) (codesync.Result, error)
}

// remoteWorkDir is where synced code lands on the instance.
const remoteWorkDir = "/home/ec2-user/runctl-job"
const remoteLogFile = "/tmp/runctl-train.log"
const remoteMarkerFile = "/tmp/runctl-train.pid"

// Controller runs the training state machine for a single job. The zero
// value is not usable; use NewController. Syncer/Checkpoints/
// CheckpointStore/PollerFactory are optional: a Controller built with
// only a channel and logger still launches and supervises a job, it
// just skips checkpoint mirroring and interruption polling. Without a
// Syncer, Launch fails for a job that sets SyncCode.
type Controller struct {
	channel         remote.Channel
	log             Logger
	Syncer          Syncer
	Checkpoints     *checkpoint.Manager
	CheckpointStore checkpoint.Store
	PollerFactory   func(resourceID string) interruption.Poller

	mu   stdsync.Mutex
	jobs map[string]*jobState
}

type jobState struct {
	resourceID string
	job        types.TrainingJob
	state      types.JobState
	cancel     context.CancelFunc
}

// NewController builds a Controller against a remote command channel.
func NewController(channel remote.Channel, log Logger) *Controller {
	return &Controller{channel: channel, log: log, jobs: make(map[string]*jobState)}
}

// Launch runs Prepare → Sync → InstallDeps → Launch (the synchronous,
// fast part of the state machine) and returns a job id. Supervise
// should be called afterward (typically from a background goroutine)
// to run the slow, long-lived part: tailing, interruption handling,
// and the final Completed/Failed transition.
func (c *Controller) Launch(ctx context.Context, resourceID string, job types.TrainingJob) (string, error) {
	jobID := uuid.NewString()
	js := &jobState{resourceID: resourceID, job: job, state: types.JobCreated}

	c.mu.Lock()
	c.jobs[jobID] = js
	c.mu.Unlock()

	if alive, err := c.markerIndicatesLivePID(ctx, resourceID); err != nil {
		return "", err
	} else if alive {
		return "", errs.ResourceExists("training", resourceID)
	}

	resumePath := ""
	if job.Resume && c.Checkpoints != nil && c.CheckpointStore != nil {
		if rec, ok, err := c.Checkpoints.FindResumable(ctx, c.CheckpointStore, jobID); err == nil && ok {
			resumePath = rec.Path
		}
	}

	if job.SyncCode {
		js.state = types.JobSyncing
		if c.Syncer == nil {
			return "", errs.Config("sync_code requested but no code-sync engine is wired", nil)
		}
		if _, err := c.Syncer.Sync(ctx, resourceID, ".", remoteWorkDir, nil, nil); err != nil {
			js.state = types.JobFailed
			return "", err
		}
	}

	js.state = types.JobInstallingDeps
	if err := c.installDeps(ctx, resourceID, job); err != nil {
		if !job.BestEffortDeps {
			js.state = types.JobFailed
			return "", err
		}
		c.log.Warnf("dependency install failed, continuing best-effort: %v", err)
	}

	js.state = types.JobLaunching
	if err := c.launch(ctx, resourceID, job, resumePath); err != nil {
		js.state = types.JobFailed
		return "", err
	}
	js.state = types.JobRunning

	return jobID, nil
}

func (c *Controller) installDeps(ctx context.Context, resourceID string, job types.TrainingJob) error {
	script := InstallScript(remoteWorkDir)
	res, err := c.channel.RunAndWait(ctx, resourceID, script, remote.DefaultSyncTimeout)
	if err != nil {
		return err
	}
	if res.Outcome != remote.Succeeded {
		return errs.CloudAgent("remote", "dependency install failed: "+res.Stderr, nil)
	}
	return nil
}

func (c *Controller) markerIndicatesLivePID(ctx context.Context, resourceID string) (bool, error) {
	script := fmt.Sprintf("test -f %q && kill -0 \"$(cat %q)\" 2>/dev/null && echo alive || echo dead", remoteMarkerFile, remoteMarkerFile)
	res, err := c.channel.RunAndWait(ctx, resourceID, script, 30*time.Second)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(res.Stdout) == "alive", nil
}

// launch starts the training script under a detached session,
// redirecting stdout+stderr to remoteLogFile and recording the PID to
// remoteMarkerFile.
func (c *Controller) launch(ctx context.Context, resourceID string, job types.TrainingJob, resumePath string) error {
	args := BuildScriptArgs(job.Hyperparams, job.ScriptArgs, resumePath)
	envPrefix := envAssignments(job.Env)
	script := fmt.Sprintf(
		"cd %q && %ssetsid python3 %q %s > %q 2>&1 < /dev/null & echo $! > %q",
		remoteWorkDir, envPrefix, job.ScriptPath, strings.Join(quoteAll(args), " "), remoteLogFile, remoteMarkerFile,
	)
	res, err := c.channel.RunAndWait(ctx, resourceID, script, 30*time.Second)
	if err != nil {
		return err
	}
	if res.Outcome != remote.Succeeded {
		return errs.CloudAgent("remote", "launch failed: "+res.Stderr, nil)
	}
	return nil
}

func envAssignments(env map[string]string) string {
	if len(env) == 0 {
		return ""
	}
	var b strings.Builder
	for k, v := range env {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
		b.WriteByte(' ')
	}
	return b.String()
}

func quoteAll(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
	}
	return out
}

// Supervise runs the long-lived part of the state machine: it tails
// the remote log, polls process liveness, runs the interruption
// monitor in the background, and reacts to either a clean exit or an
// interruption notice. It blocks until the job reaches Completed or
// Failed.
func (c *Controller) Supervise(ctx context.Context, resourceID, jobID string, job types.TrainingJob, lines chan<- remote.LogLine) types.JobResult {
	start := time.Now()
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if js, ok := c.jobs[jobID]; ok {
		js.cancel = cancel
	}
	c.mu.Unlock()

	var wg stdsync.WaitGroup
	var mon *interruption.Monitor
	if c.PollerFactory != nil {
		mon = interruption.New(c.PollerFactory(resourceID), c.log, 0)
		wg.Add(1)
		go func() {
			defer wg.Done()
			mon.Start(jobCtx)
		}()
	}

	if lines != nil {
		tailed, err := c.channel.Tail(jobCtx, resourceID, true)
		if err == nil {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for l := range tailed {
					select {
					case lines <- l:
					case <-jobCtx.Done():
						return
					}
				}
			}()
		}
	}

	result := c.waitForExitOrInterrupt(jobCtx, resourceID, job, mon)
	cancel()
	wg.Wait()
	result.Duration = time.Since(start)
	return result
}

// waitForExitOrInterrupt polls process liveness (2s cadence) while
// racing against an interruption event, if a monitor is running.
func (c *Controller) waitForExitOrInterrupt(ctx context.Context, resourceID string, job types.TrainingJob, mon *interruption.Monitor) types.JobResult {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var events <-chan interruption.Event
	if mon != nil {
		events = mon.Events()
	}

	for {
		select {
		case <-ctx.Done():
			return types.JobResult{State: types.JobFailed, Err: ctx.Err()}

		case ev := <-events:
			return c.reactToInterruption(ctx, resourceID, job, ev)

		case <-ticker.C:
			exited, code, err := c.checkExit(ctx, resourceID)
			if err != nil {
				c.log.Warnf("liveness check failed for %s: %v", resourceID, err)
				continue
			}
			if exited {
				result := types.JobResult{ExitCode: code}
				if code == 0 {
					result.State = types.JobCompleted
				} else {
					result.State = types.JobFailed
					result.Err = errs.CloudAgent("remote", fmt.Sprintf("training script exited %d", code), nil)
				}
				c.finalCheckpointUpload(ctx, resourceID, job, &result)
				return result
			}
		}
	}
}

func (c *Controller) checkExit(ctx context.Context, resourceID string) (exited bool, code int, err error) {
	script := fmt.Sprintf(
		"if kill -0 \"$(cat %q 2>/dev/null)\" 2>/dev/null; then echo running; else cat /tmp/runctl-train.exitcode 2>/dev/null || echo 0; fi",
		remoteMarkerFile,
	)
	res, rerr := c.channel.RunAndWait(ctx, resourceID, script, 15*time.Second)
	if rerr != nil {
		return false, 0, rerr
	}
	out := strings.TrimSpace(res.Stdout)
	if out == "running" {
		return false, 0, nil
	}
	var ec int
	fmt.Sscanf(out, "%d", &ec)
	return true, ec, nil
}

// reactToInterruption sends SIGTERM, waits up to grace_seconds for the
// process to exit, escalates to SIGKILL if still alive, then
// performs the final checkpoint upload before returning.
func (c *Controller) reactToInterruption(ctx context.Context, resourceID string, job types.TrainingJob, ev interruption.Event) types.JobResult {
	c.log.Warnf("interruption notice for %s (reason=%s, deadline=%s)", resourceID, ev.Reason, ev.Deadline)

	termScript := fmt.Sprintf("kill -TERM \"$(cat %q 2>/dev/null)\" 2>/dev/null || true", remoteMarkerFile)
	_, _ = c.channel.RunAndWait(ctx, resourceID, termScript, 15*time.Second)

	grace := job.GracePeriod()
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		exited, _, err := c.checkExit(ctx, resourceID)
		if err == nil && exited {
			break
		}
		time.Sleep(2 * time.Second)
	}

	if exited, _, _ := c.checkExit(ctx, resourceID); !exited {
		killScript := fmt.Sprintf("kill -KILL \"$(cat %q 2>/dev/null)\" 2>/dev/null || true", remoteMarkerFile)
		_, _ = c.channel.RunAndWait(ctx, resourceID, killScript, 15*time.Second)
	}

	result := types.JobResult{State: types.JobInterrupted, InterruptReason: types.InterruptionReason(ev.Reason), ExitCode: 130}
	c.finalCheckpointUpload(ctx, resourceID, job, &result)
	if result.Err == nil {
		result.State = types.JobCompleted
	} else {
		result.State = types.JobFailed
	}
	return result
}

// finalCheckpointUpload always attempts one last checkpoint upload
// before the controller declares Completed/Failed. The checkpoint file
// lives on the remote instance (job.CheckpointDir is a remote path), so
// this first locates the newest match over the remote channel and
// pulls it down to a local staging directory before handing it to the
// checkpoint manager for upload.
func (c *Controller) finalCheckpointUpload(ctx context.Context, resourceID string, job types.TrainingJob, result *types.JobResult) {
	if c.Checkpoints == nil || job.CheckpointDir == "" || job.OutputDest == "" {
		return
	}

	remotePath, ok, err := c.remoteLatestCheckpoint(ctx, resourceID, job.CheckpointDir)
	if err != nil {
		c.log.Warnf("locating remote checkpoint failed for %s: %v", resourceID, err)
		return
	}
	if !ok {
		return
	}

	stagingDir, err := os.MkdirTemp("", "runctl-checkpoint-")
	if err != nil {
		c.log.Warnf("create local checkpoint staging dir failed for %s: %v", resourceID, err)
		return
	}
	defer os.RemoveAll(stagingDir)
	localPath := filepath.Join(stagingDir, filepath.Base(remotePath))

	downloadCtx, cancelDL := context.WithTimeout(context.Background(), 60*time.Second)
	derr := c.channel.Download(downloadCtx, resourceID, remotePath, localPath)
	cancelDL()
	if derr != nil {
		c.log.Warnf("download checkpoint %s from %s failed: %v", remotePath, resourceID, derr)
		return
	}

	uploadCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	if err := c.Checkpoints.UploadLatest(uploadCtx, localPath, job.OutputDest); err != nil {
		c.log.Warnf("final checkpoint upload failed for %s: %v", resourceID, err)
		return
	}
	result.CheckpointUpload = job.OutputDest
}

// remoteLatestCheckpoint lists dir on the remote instance for files
// matching a recognized checkpoint suffix and returns the newest one by
// mtime, mirroring the ordering Manager.Latest applies locally.
func (c *Controller) remoteLatestCheckpoint(ctx context.Context, resourceID, dir string) (string, bool, error) {
	suffixes := checkpoint.Suffixes()
	globs := make([]string, len(suffixes))
	for i, suf := range suffixes {
		globs[i] = fmt.Sprintf("%s/*%s", dir, suf)
	}
	script := fmt.Sprintf("ls -t %s 2>/dev/null | head -n1", strings.Join(globs, " "))
	res, err := c.channel.RunAndWait(ctx, resourceID, script, 30*time.Second)
	if err != nil {
		return "", false, err
	}
	path := strings.TrimSpace(res.Stdout)
	if path == "" {
		return "", false, nil
	}
	return path, true, nil
}
