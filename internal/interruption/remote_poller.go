package interruption

import (
	"context"
	"strings"
	"time"

	"github.com/arclabs561/runctl/internal/remote"
)

// Channel is the narrow remote-command surface RemotePoller needs.
type Channel interface {
	RunAndWait(ctx context.Context, resourceID, script string, timeout time.Duration) (remote.CommandResult, error)
}

// RemotePoller implements Poller by curling the instance metadata
// service from the control plane's position, through the same remote
// command channel used for training commands — runctl itself runs
// off-instance, so IMDS is only reachable this way, not via a direct
// metadata client.
type RemotePoller struct {
	channel    Channel
	resourceID string
}

var _ Poller = (*RemotePoller)(nil)

// NewRemotePoller builds a RemotePoller for resourceID.
func NewRemotePoller(channel Channel, resourceID string) *RemotePoller {
	return &RemotePoller{channel: channel, resourceID: resourceID}
}

const imdsInstanceActionScript = `
TOKEN=$(curl -s -X PUT "http://169.254.169.254/latest/api/token" -H "X-aws-ec2-metadata-token-ttl-seconds: 21600" 2>/dev/null)
curl -s -f -H "X-aws-ec2-metadata-token: $TOKEN" "http://169.254.169.254/latest/meta-data/spot/instance-action" 2>/dev/null
`

func (p *RemotePoller) Poll(ctx context.Context) (*Event, error) {
	res, err := p.channel.RunAndWait(ctx, p.resourceID, imdsInstanceActionScript, 15*time.Second)
	if err != nil {
		return nil, err
	}
	body := strings.TrimSpace(res.Stdout)
	if body == "" {
		return nil, nil
	}

	reason := "spot"
	if strings.Contains(body, `"action":"stop"`) {
		reason = "stop"
	} else if strings.Contains(body, `"action":"terminate"`) {
		reason = "terminate"
	}

	deadline := time.Now()
	if idx := strings.Index(body, `"time":"`); idx >= 0 {
		rest := body[idx+len(`"time":"`):]
		if end := strings.Index(rest, `"`); end >= 0 {
			if t, err := time.Parse(time.RFC3339, rest[:end]); err == nil {
				deadline = t
			}
		}
	}
	return &Event{Deadline: deadline, Reason: reason}, nil
}
