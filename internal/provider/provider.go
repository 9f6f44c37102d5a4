// Package provider defines the provider interface: the abstract
// capability set every cloud backend must implement, plus the
// StateNormalizer signature for mapping provider status strings to a
// ResourceState (the EC2 table is awsec2.NormalizeState).
//
// The orchestrator (lifecycle, train) depends only on this interface,
// never on a concrete cloud SDK: the interface is load-bearing, with
// one concrete AWS EC2 implementation (internal/provider/awsec2) and a
// fake used by the test suite (internal/provider/fakeprovider).
package provider

import (
	"context"
	"time"

	"github.com/arclabs561/runctl/internal/types"
)

// CreateOptions parameterizes resource creation.
type CreateOptions struct {
	Project      string
	Session      string
	Spot         bool
	SpotMaxPrice float64
	IAMProfile   string
	Tags         map[string]string
}

// ListFilters narrows list_resources results.
type ListFilters struct {
	Project string
	Tags    map[string]string
}

// LogLine is a single line emitted by monitor().
type LogLine struct {
	Text      string
	Timestamp time.Time
}

// JobHandle is returned by train() and identifies the launched job for
// later monitor()/status calls. The concrete shape is provider-opaque;
// the training controller is the only consumer that interprets it, by
// delegating back into the same provider.
type JobHandle struct {
	ResourceID types.ResourceID
	JobID      string
}

// Provider is the capability set every cloud backend implements. No
// default implementation is supplied here — every method is
// provider-specific.
type Provider interface {
	// CreateResource provisions a new resource and tags it with
	// tool:created=true, tool:project, tool:session. Idempotent-by-tag
	// where the provider supports it; otherwise at-least-once.
	CreateResource(ctx context.Context, instanceType string, opts CreateOptions) (types.ResourceID, error)

	// GetResourceStatus never fabricates state: a transient provider
	// failure returns StateUnknown, not a guess.
	GetResourceStatus(ctx context.Context, id types.ResourceID) (types.ResourceStatus, error)

	// ListResources paginates fully before returning.
	ListResources(ctx context.Context, filters ListFilters) ([]types.ResourceStatus, error)

	Start(ctx context.Context, id types.ResourceID) error
	Stop(ctx context.Context, id types.ResourceID) error

	// Terminate refuses if the resource is protected unless force is
	// true; the primary protection check is performed by the caller via
	// the cleanup gate, and the provider re-checks its own
	// provider-side tool:protected tag as defense in depth.
	Terminate(ctx context.Context, id types.ResourceID, force bool) error

	// Train delegates to the training controller; providers implement
	// it by wiring their remote channel + checkpoint manager into a
	// train.Controller and calling Launch. Train itself does not block
	// on job completion — callers that need to wait use Wait.
	Train(ctx context.Context, id types.ResourceID, job types.TrainingJob) (JobHandle, error)

	// Wait blocks until the job identified by handle reaches a terminal
	// JobState (Completed or Failed), supervising tail/interruption
	// handling for the duration. Safe to call at most once per handle.
	Wait(ctx context.Context, handle JobHandle) (types.JobResult, error)

	// Monitor tails the remote training log. With follow=false it
	// returns the final tail window and the returned channel is closed
	// once delivered.
	Monitor(ctx context.Context, id types.ResourceID, follow bool) (<-chan LogLine, error)

	Download(ctx context.Context, id types.ResourceID, remotePath, localPath string) error

	// EstimateCost looks up the hourly price of instanceType (awsec2
	// queries the Pricing API) and multiplies it by hours; unknown
	// instance types return NaN and the implementation logs a warning
	// rather than erroring.
	EstimateCost(ctx context.Context, instanceType string, hours float64) (float64, error)
}

// StateNormalizer maps a provider-specific status string to a
// types.ResourceState; awsec2.NormalizeState is the EC2 one. Unknown
// strings must resolve to types.StateUnknown and never panic.
type StateNormalizer func(providerState string) types.ResourceState
