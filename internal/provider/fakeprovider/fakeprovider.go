// Package fakeprovider is an in-memory provider.Provider used by the
// test suite: no network calls, deterministic behavior, inspectable
// state, every method driven by maps guarded by a single mutex.
package fakeprovider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arclabs561/runctl/internal/errs"
	"github.com/arclabs561/runctl/internal/provider"
	"github.com/arclabs561/runctl/internal/types"
)

// Provider is a fake provider.Provider. Costs are scripted via
// SetCostPerHour; everything else defaults to sensible zero values so
// a test only needs to script what it cares about.
type Provider struct {
	mu sync.Mutex

	nextID      int
	resources   map[types.ResourceID]*types.ResourceStatus
	costPerHour map[string]float64
	jobs        map[string]*jobRecord
	logLines    map[types.ResourceID][]provider.LogLine
	downloaded  map[string]string
	terminated  map[types.ResourceID]bool

	// CreateErr, if set, is returned by every CreateResource call.
	CreateErr error
}

type jobRecord struct {
	resourceID types.ResourceID
	job        types.TrainingJob
	result     types.JobResult
	done       bool
}

var _ provider.Provider = (*Provider)(nil)

// New creates an empty fake provider.
func New() *Provider {
	return &Provider{
		resources:   make(map[types.ResourceID]*types.ResourceStatus),
		costPerHour: make(map[string]float64),
		jobs:        make(map[string]*jobRecord),
		logLines:    make(map[types.ResourceID][]provider.LogLine),
		downloaded:  make(map[string]string),
		terminated:  make(map[types.ResourceID]bool),
	}
}

// SetCostPerHour scripts EstimateCost/CreateResource's CostPerHour for
// an instance type.
func (p *Provider) SetCostPerHour(instanceType string, cost float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.costPerHour[instanceType] = cost
}

// SetLogLines seeds the lines Monitor will emit for id.
func (p *Provider) SetLogLines(id types.ResourceID, lines []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	ll := make([]provider.LogLine, len(lines))
	for i, l := range lines {
		ll[i] = provider.LogLine{Text: l, Timestamp: now}
	}
	p.logLines[id] = ll
}

// SetJobResult scripts the result Wait returns for a handle's JobID.
func (p *Provider) SetJobResult(jobID string, result types.JobResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if rec, ok := p.jobs[jobID]; ok {
		rec.result = result
		rec.done = true
	}
}

func (p *Provider) CreateResource(ctx context.Context, instanceType string, opts provider.CreateOptions) (types.ResourceID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CreateErr != nil {
		return "", p.CreateErr
	}
	p.nextID++
	id := types.ResourceID(fmt.Sprintf("fake-%d", p.nextID))
	tags := map[string]string{"tool:created": "true", "tool:project": opts.Project, "tool:session": opts.Session}
	for k, v := range opts.Tags {
		tags[k] = v
	}
	now := time.Now()
	p.resources[id] = &types.ResourceStatus{
		ID:           id,
		Provider:     "fake",
		InstanceType: instanceType,
		State:        types.StatePending,
		LaunchTime:   &now,
		CostPerHour:  p.costPerHour[instanceType],
		Tags:         tags,
	}
	return id, nil
}

func (p *Provider) GetResourceStatus(ctx context.Context, id types.ResourceID) (types.ResourceStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.resources[id]
	if !ok {
		return types.ResourceStatus{}, errs.ResourceNotFound("resource", string(id))
	}
	return *r, nil
}

func (p *Provider) ListResources(ctx context.Context, filters provider.ListFilters) ([]types.ResourceStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []types.ResourceStatus
	for _, r := range p.resources {
		if filters.Project != "" && r.Tags["tool:project"] != filters.Project {
			continue
		}
		match := true
		for k, v := range filters.Tags {
			if r.Tags[k] != v {
				match = false
				break
			}
		}
		if match {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (p *Provider) Start(ctx context.Context, id types.ResourceID) error {
	return p.setState(id, types.StateRunning)
}

func (p *Provider) Stop(ctx context.Context, id types.ResourceID) error {
	return p.setState(id, types.StateStopped)
}

func (p *Provider) Terminate(ctx context.Context, id types.ResourceID, force bool) error {
	p.mu.Lock()
	r, ok := p.resources[id]
	if !ok {
		p.mu.Unlock()
		return errs.ResourceNotFound("resource", string(id))
	}
	if r.Tags["tool:protected"] == "true" && !force {
		p.mu.Unlock()
		return errs.Cleanup("resource is protected")
	}
	p.terminated[id] = true
	p.mu.Unlock()
	return p.setState(id, types.StateTerminated)
}

func (p *Provider) setState(id types.ResourceID, state types.ResourceState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.resources[id]
	if !ok {
		return errs.ResourceNotFound("resource", string(id))
	}
	if !r.State.CanTransitionTo(state) {
		return errs.Validation("state", "illegal transition from "+r.State.String()+" to "+state.String())
	}
	r.State = state
	return nil
}

func (p *Provider) Train(ctx context.Context, id types.ResourceID, job types.TrainingJob) (provider.JobHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.resources[id]; !ok {
		return provider.JobHandle{}, errs.ResourceNotFound("resource", string(id))
	}
	jobID := fmt.Sprintf("job-%s-%d", id, len(p.jobs)+1)
	p.jobs[jobID] = &jobRecord{
		resourceID: id,
		job:        job,
		result:     types.JobResult{State: types.JobCompleted, ExitCode: 0},
		done:       true,
	}
	return provider.JobHandle{ResourceID: id, JobID: jobID}, nil
}

func (p *Provider) Wait(ctx context.Context, handle provider.JobHandle) (types.JobResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.jobs[handle.JobID]
	if !ok {
		return types.JobResult{}, errs.ResourceNotFound("job", handle.JobID)
	}
	return rec.result, nil
}

func (p *Provider) Monitor(ctx context.Context, id types.ResourceID, follow bool) (<-chan provider.LogLine, error) {
	p.mu.Lock()
	lines := append([]provider.LogLine(nil), p.logLines[id]...)
	p.mu.Unlock()

	out := make(chan provider.LogLine, len(lines))
	for _, l := range lines {
		out <- l
	}
	close(out)
	return out, nil
}

func (p *Provider) Download(ctx context.Context, id types.ResourceID, remotePath, localPath string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.downloaded[string(id)+":"+remotePath] = localPath
	return nil
}

func (p *Provider) EstimateCost(ctx context.Context, instanceType string, hours float64) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cost, ok := p.costPerHour[instanceType]
	if !ok {
		return 0, nil
	}
	return cost * hours, nil
}

// WasTerminated reports whether Terminate was called for id.
func (p *Provider) WasTerminated(id types.ResourceID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminated[id]
}

// WasDownloaded reports whether Download was called for the given
// id/remotePath pair.
func (p *Provider) WasDownloaded(id types.ResourceID, remotePath string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	local, ok := p.downloaded[string(id)+":"+remotePath]
	return local, ok
}
