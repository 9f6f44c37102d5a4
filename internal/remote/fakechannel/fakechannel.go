// Package fakechannel is an in-memory remote.Channel used by the test
// suite: no network calls, deterministic behavior, inspectable state.
package fakechannel

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/arclabs561/runctl/internal/errs"
	"github.com/arclabs561/runctl/internal/remote"
)

type command struct {
	script string
	result remote.CommandResult
	done   bool
}

type scriptedMatch struct {
	substr string
	result remote.CommandResult
}

// Channel is a fake remote.Channel. Scripted commands resolve
// immediately with the configured result; unscripted ones default to
// Succeeded with empty output, so simple tests don't need to script
// every call.
type Channel struct {
	mu          sync.Mutex
	commands    map[string]*command
	nextID      int
	logLines    map[string][]remote.LogLine
	downloaded  map[string]string
	terminated  map[string]bool
	defaultExit int
	matches     []scriptedMatch

	downloadContent []byte
	writeOnDownload bool
}

var _ remote.Channel = (*Channel)(nil)

// New creates an empty fake channel.
func New() *Channel {
	return &Channel{
		commands:   make(map[string]*command),
		logLines:   make(map[string][]remote.LogLine),
		downloaded: make(map[string]string),
		terminated: make(map[string]bool),
	}
}

// ScriptResult pre-programs the result every later SendCommand for any
// resource resolves to, unless a ScriptResultFor match applies.
func (c *Channel) ScriptResult(res remote.CommandResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultExit = res.ExitCode
	c.commands["__scripted__"] = &command{result: res, done: true}
}

// ScriptResultFor pre-programs the result for any command whose script
// contains substr, checked before falling back to the default set by
// ScriptResult. Lets a single test distinguish, e.g., a liveness check
// from a checkpoint listing.
func (c *Channel) ScriptResultFor(substr string, res remote.CommandResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.matches = append(c.matches, scriptedMatch{substr: substr, result: res})
}

// SetLogLines seeds the lines Tail will emit for resourceID.
func (c *Channel) SetLogLines(resourceID string, lines []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	ll := make([]remote.LogLine, len(lines))
	for i, l := range lines {
		ll[i] = remote.LogLine{Text: l, Timestamp: now}
	}
	c.logLines[resourceID] = ll
}

func (c *Channel) SendCommand(ctx context.Context, resourceID, script string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := resourceID + "-cmd-" + time.Now().String()
	result := remote.CommandResult{Outcome: remote.Succeeded}
	if scripted, ok := c.commands["__scripted__"]; ok {
		result = scripted.result
	}
	for _, m := range c.matches {
		if strings.Contains(script, m.substr) {
			result = m.result
			break
		}
	}
	c.commands[id] = &command{script: script, result: result, done: true}
	return id, nil
}

func (c *Channel) Poll(ctx context.Context, resourceID, commandID string) (remote.CommandResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cmd, ok := c.commands[commandID]
	if !ok {
		return remote.CommandResult{}, errs.ResourceNotFound("command", commandID)
	}
	return cmd.result, nil
}

func (c *Channel) RunAndWait(ctx context.Context, resourceID, script string, timeout time.Duration) (remote.CommandResult, error) {
	id, err := c.SendCommand(ctx, resourceID, script)
	if err != nil {
		return remote.CommandResult{}, err
	}
	return c.Poll(ctx, resourceID, id)
}

func (c *Channel) Tail(ctx context.Context, resourceID string, follow bool) (<-chan remote.LogLine, error) {
	c.mu.Lock()
	lines := append([]remote.LogLine(nil), c.logLines[resourceID]...)
	c.mu.Unlock()

	out := make(chan remote.LogLine, len(lines))
	for _, l := range lines {
		out <- l
	}
	close(out)
	return out, nil
}

func (c *Channel) Download(ctx context.Context, resourceID, remotePath, localPath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.downloaded[resourceID+":"+remotePath] = localPath
	if c.writeOnDownload {
		if err := os.WriteFile(localPath, c.downloadContent, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// WriteFileOnDownload makes subsequent Download calls actually write
// content to localPath, for tests whose code under test reads the
// downloaded file back from disk.
func (c *Channel) WriteFileOnDownload(content []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.downloadContent = content
	c.writeOnDownload = true
}

func (c *Channel) Terminate(ctx context.Context, resourceID, commandID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.terminated[commandID] = true
	return nil
}

// WasTerminated reports whether Terminate was called for commandID.
func (c *Channel) WasTerminated(commandID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminated[commandID]
}

// WasDownloaded reports whether Download was called for the given
// resourceID/remotePath pair.
func (c *Channel) WasDownloaded(resourceID, remotePath string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	local, ok := c.downloaded[resourceID+":"+remotePath]
	return local, ok
}
