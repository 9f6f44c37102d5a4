// Package ssmchannel implements the remote command channel against
// AWS Systems Manager: SendCommand dispatches a shell document,
// GetCommandInvocation polls it.
package ssmchannel

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/arclabs561/runctl/internal/errs"
	"github.com/arclabs561/runctl/internal/remote"
	"github.com/arclabs561/runctl/internal/retry"
)

// SSMAPI is the narrow SSM surface this channel calls.
type SSMAPI interface {
	SendCommand(ctx context.Context, params *ssm.SendCommandInput, optFns ...func(*ssm.Options)) (*ssm.SendCommandOutput, error)
	GetCommandInvocation(ctx context.Context, params *ssm.GetCommandInvocationInput, optFns ...func(*ssm.Options)) (*ssm.GetCommandInvocationOutput, error)
	CancelCommand(ctx context.Context, params *ssm.CancelCommandInput, optFns ...func(*ssm.Options)) (*ssm.CancelCommandOutput, error)
}

// S3DownloadAPI is the narrow S3 surface used to fetch a remote file
// that the remote agent has already staged to a bucket (SSM has no
// direct file-pull primitive of its own).
type S3DownloadAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Logger is the narrow logging surface this package depends on.
type Logger interface {
	Warnf(format string, args ...any)
	Infof(format string, args ...any)
}

// Channel implements remote.Channel over SSM RunShellScript documents.
type Channel struct {
	ssm           SSMAPI
	s3            S3DownloadAPI
	log           Logger
	stagingBucket string
	tailOffsets   map[string]int64
}

var _ remote.Channel = (*Channel)(nil)

// New builds an SSM-backed Channel. stagingBucket is where Download
// expects the remote agent to have already copied files (runctl never
// invents a file-transfer primitive SSM doesn't have).
func New(ssmClient SSMAPI, s3Client S3DownloadAPI, log Logger, stagingBucket string) *Channel {
	return &Channel{ssm: ssmClient, s3: s3Client, log: log, stagingBucket: stagingBucket, tailOffsets: make(map[string]int64)}
}

func (c *Channel) SendCommand(ctx context.Context, resourceID, script string) (string, error) {
	out, err := c.ssm.SendCommand(ctx, &ssm.SendCommandInput{
		InstanceIds:  []string{resourceID},
		DocumentName: aws.String("AWS-RunShellScript"),
		Parameters:   map[string][]string{"commands": {script}},
	})
	if err != nil {
		return "", errs.CloudAgent("aws-ssm", "send_command failed", err)
	}
	return aws.ToString(out.Command.CommandId), nil
}

func (c *Channel) Poll(ctx context.Context, resourceID, commandID string) (remote.CommandResult, error) {
	out, err := c.ssm.GetCommandInvocation(ctx, &ssm.GetCommandInvocationInput{
		CommandId:  aws.String(commandID),
		InstanceId: aws.String(resourceID),
	})
	if err != nil {
		return remote.CommandResult{}, errs.CloudAgent("aws-ssm", "get_command_invocation failed", err)
	}
	switch out.Status {
	case ssmtypes.CommandInvocationStatusPending, ssmtypes.CommandInvocationStatusInProgress, ssmtypes.CommandInvocationStatusDelayed:
		return remote.CommandResult{Outcome: remote.Pending}, nil
	case ssmtypes.CommandInvocationStatusSuccess:
		return remote.CommandResult{
			Outcome: remote.Succeeded,
			Stdout:  aws.ToString(out.StandardOutputContent),
			Stderr:  aws.ToString(out.StandardErrorContent),
		}, nil
	default:
		return remote.CommandResult{
			Outcome:  remote.Failed,
			Stdout:   aws.ToString(out.StandardOutputContent),
			Stderr:   aws.ToString(out.StandardErrorContent),
			ExitCode: int(out.ResponseCode),
		}, nil
	}
}

// RunAndWait sends a command and polls it at the PollCadence schedule
// (2s, capped at 10s after 30s) until a terminal outcome or timeout.
func (c *Channel) RunAndWait(ctx context.Context, resourceID, script string, timeout time.Duration) (remote.CommandResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	commandID, err := c.SendCommand(ctx, resourceID, script)
	if err != nil {
		return remote.CommandResult{}, err
	}

	start := time.Now()
	for {
		res, err := retry.Execute(ctx, retry.DefaultCloudConfig(), c.log, "ssm:poll", func(ctx context.Context) (remote.CommandResult, error) {
			r, perr := c.Poll(ctx, resourceID, commandID)
			if perr != nil {
				return remote.CommandResult{}, perr
			}
			return r, nil
		})
		if err != nil {
			return remote.CommandResult{}, err
		}
		if res.Outcome != remote.Pending {
			return res, nil
		}

		select {
		case <-ctx.Done():
			_ = c.Terminate(context.Background(), resourceID, commandID)
			return remote.CommandResult{}, errs.Retryable(0, 0, "command timed out", ctx.Err())
		case <-time.After(remote.PollCadence(time.Since(start))):
		}
	}
}

// Tail polls the remote training log by repeatedly invoking
// `tail -c +offset` from a maintained byte offset. With follow=false
// the channel is closed after delivering one window.
func (c *Channel) Tail(ctx context.Context, resourceID string, follow bool) (<-chan remote.LogLine, error) {
	out := make(chan remote.LogLine)
	go func() {
		defer close(out)
		ticker := time.NewTicker(remote.TailCadence)
		defer ticker.Stop()

		for {
			offset := c.tailOffsets[resourceID]
			script := fmt.Sprintf("tail -c +%d /tmp/runctl-train.log 2>/dev/null; wc -c < /tmp/runctl-train.log", offset+1)
			res, err := c.RunAndWait(ctx, resourceID, script, 30*time.Second)
			if err != nil {
				c.log.Warnf("tail poll failed for %s: %v", resourceID, err)
			} else if res.Outcome == remote.Succeeded && res.Stdout != "" {
				lines, newLen := splitTailOutput(res.Stdout)
				now := time.Now()
				for _, l := range lines {
					select {
					case out <- remote.LogLine{Text: l, Timestamp: now}:
					case <-ctx.Done():
						return
					}
				}
				if newLen > offset {
					c.tailOffsets[resourceID] = newLen
				}
			}

			if !follow {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return out, nil
}

func (c *Channel) Download(ctx context.Context, resourceID, remotePath, localPath string) error {
	key := fmt.Sprintf("runctl-staging/%s/%s", resourceID, remotePath)
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(c.stagingBucket), Key: aws.String(key)})
	if err != nil {
		return errs.CloudBlob("aws-s3", "download failed", err)
	}
	defer out.Body.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return errs.IO("create local file failed", err)
	}
	defer f.Close()

	buf := make([]byte, 32*1024)
	for {
		n, rerr := out.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return errs.IO("write local file failed", werr)
			}
		}
		if rerr != nil {
			break
		}
	}
	return nil
}

func (c *Channel) Terminate(ctx context.Context, resourceID, commandID string) error {
	_, err := c.ssm.CancelCommand(ctx, &ssm.CancelCommandInput{CommandId: aws.String(commandID), InstanceIds: []string{resourceID}})
	if err != nil {
		return errs.CloudAgent("aws-ssm", "cancel_command failed", err)
	}
	return nil
}

func splitTailOutput(raw string) ([]string, int64) {
	var lines []string
	var cur []byte
	for i := 0; i < len(raw); i++ {
		if raw[i] == '\n' {
			lines = append(lines, string(cur))
			cur = nil
			continue
		}
		cur = append(cur, raw[i])
	}
	newLen, _ := strconv.ParseInt(string(cur), 10, 64)
	return lines, newLen
}
