package awsec2

import (
	"github.com/arclabs561/runctl/internal/types"
)

// stateTable implements the state-normalization table: EC2
// instance-state-name strings to types.ResourceState.
// Spot-interruption-derived states (a stopped/terminated instance
// whose state-transition reason mentions a Spot interruption) are
// resolved to StateInterrupted by the caller, which has the reason
// string available; this table only sees the bare state name.
var stateTable = map[string]types.ResourceState{
	"pending":       types.StatePending,
	"running":       types.StateRunning,
	"shutting-down": types.StateTerminating,
	"stopping":      types.StateStopping,
	"stopped":       types.StateStopped,
	"terminated":    types.StateTerminated,
}

// NormalizeState maps an EC2 instance-state-name to a
// types.ResourceState. Unknown strings resolve to types.StateUnknown
// rather than panicking; the caller is
// expected to log a warning when that happens.
func NormalizeState(ec2State string) types.ResourceState {
	if s, ok := stateTable[ec2State]; ok {
		return s
	}
	return types.StateUnknown
}

// spotInterruptionReasons are EC2 state-transition-reason substrings
// that indicate the instance was reclaimed by the spot market rather
// than stopped/terminated by the user.
var spotInterruptionReasons = []string{
	"Server.SpotInstanceTermination",
	"Client.SpotInstanceTermination",
}

// IsSpotInterruption reports whether a state-transition reason string
// indicates a spot reclaim, used to upgrade a normalized
// Stopped/Terminated state to Interrupted.
func IsSpotInterruption(reason string) bool {
	for _, r := range spotInterruptionReasons {
		if reason == r || containsFold(reason, r) {
			return true
		}
	}
	return false
}

func containsFold(haystack, needle string) bool {
	if len(needle) == 0 || len(haystack) < len(needle) {
		return false
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if equalFold(haystack[i:i+len(needle)], needle) {
			return true
		}
	}
	return false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
