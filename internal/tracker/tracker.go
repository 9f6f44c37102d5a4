// Package tracker implements the resource tracker: a process-internal,
// thread-safe registry of every resource runctl has acquired, with
// lazily-computed accumulated cost. SaveJournal/LoadJournal persist
// that registry to disk so it survives a restart, using
// internal/filelock's lock-coordinated atomic write.
package tracker

import (
	"os"
	"sync"
	"time"

	gojson "github.com/goccy/go-json"

	"github.com/arclabs561/runctl/internal/errs"
	"github.com/arclabs561/runctl/internal/filelock"
	"github.com/arclabs561/runctl/internal/types"
)

// entry is the tracker's private bookkeeping wrapper around a
// types.TrackedResource. The frozen/frozenAt fields implement the
// "freeze elapsed-time integration on Stopped/Terminated" rule and are
// never exposed outside this package.
type entry struct {
	resource types.TrackedResource
	frozen   bool
	frozenAt time.Time
}

// Tracker is the resource registry. The zero value is not usable; use New.
type Tracker struct {
	mu      sync.RWMutex
	entries map[types.ResourceID]*entry
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{entries: make(map[types.ResourceID]*entry)}
}

// Register adds a resource to the tracker. Register is idempotent by
// id: a second call for the same id merges tags and refreshes
// LaunchTime only if it was previously unset.
func (t *Tracker) Register(status types.ResourceStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.entries[status.ID]; ok {
		for k, v := range status.Tags {
			existing.resource.Tags[k] = v
		}
		if existing.resource.Status.LaunchTime == nil {
			existing.resource.Status.LaunchTime = status.LaunchTime
		}
		return
	}

	t.entries[status.ID] = &entry{
		resource: types.NewTrackedResource(status),
		frozen:   status.State == types.StateStopped || status.State == types.StateTerminated,
		frozenAt: time.Now(),
	}
}

// UpdateState records an observed state transition for id. It enforces
// the state DAG (no return to Pending, Terminated is a sink) and
// freezes cost accrual when the new state is Stopped or Terminated.
func (t *Tracker) UpdateState(id types.ResourceID, next types.ResourceState) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok {
		return errs.ResourceNotFound("resource", string(id))
	}

	if !e.resource.Status.State.CanTransitionTo(next) {
		return errs.Validation("state", "illegal transition from "+e.resource.Status.State.String()+" to "+next.String())
	}

	// Freeze accrued cost at the moment of entering a terminal/stopped
	// state, using the cost computed up to right now.
	if (next == types.StateStopped || next == types.StateTerminated) && !e.frozen {
		e.resource.AccumulatedCost = computeCost(e.resource, time.Now())
		e.frozen = true
		e.frozenAt = time.Now()
	}
	if next == types.StateRunning && e.frozen {
		// Resumed from Stopped: resume accrual from now.
		e.frozen = false
		e.resource.Status.LaunchTime = timePtr(time.Now())
	}

	e.resource.Status.State = next
	return nil
}

// UpdateUsage appends a usage sample. Usage history is append-only;
// samples are never mutated or removed.
func (t *Tracker) UpdateUsage(id types.ResourceID, sample types.ResourceUsage) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok {
		return errs.ResourceNotFound("resource", string(id))
	}
	e.resource.UsageSamples = append(e.resource.UsageSamples, sample)
	return nil
}

// Get returns a snapshot of the tracked resource with its cost
// recomputed as of now. The bool is false if id is not tracked.
func (t *Tracker) Get(id types.ResourceID) (types.TrackedResource, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.entries[id]
	if !ok {
		return types.TrackedResource{}, false
	}
	return snapshot(e), true
}

// GetRunning returns snapshots of every tracked resource currently in
// StateRunning.
func (t *Tracker) GetRunning() []types.TrackedResource {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []types.TrackedResource
	for _, e := range t.entries {
		if e.resource.Status.State == types.StateRunning {
			out = append(out, snapshot(e))
		}
	}
	return out
}

// GetByTag returns snapshots of every tracked resource carrying the
// given tag key/value pair.
func (t *Tracker) GetByTag(key, value string) []types.TrackedResource {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []types.TrackedResource
	for _, e := range t.entries {
		if e.resource.Tags[key] == value {
			out = append(out, snapshot(e))
		}
	}
	return out
}

// RefreshCosts forces the accumulated cost of every non-frozen,
// running resource to be recomputed. Callers of Get/GetRunning already
// see fresh costs lazily; RefreshCosts exists for callers that want a
// batch of TrackedResource values with AccumulatedCost already
// materialized.
func (t *Tracker) RefreshCosts() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	for _, e := range t.entries {
		if !e.frozen {
			e.resource.AccumulatedCost = computeCost(e.resource, now)
		}
	}
}

// Protect marks a resource as protected, which the safe-cleanup gate
// consults before any destructive operation.
func (t *Tracker) Protect(id types.ResourceID) error {
	return t.setProtected(id, true)
}

// Unprotect clears the protection flag.
func (t *Tracker) Unprotect(id types.ResourceID) error {
	return t.setProtected(id, false)
}

func (t *Tracker) setProtected(id types.ResourceID, protected bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return errs.ResourceNotFound("resource", string(id))
	}
	e.resource.Protected = protected
	return nil
}

// Remove deletes a resource from the tracker. This is only valid once
// the resource has confirmed Terminated state; callers are responsible
// for calling UpdateState(Terminated) first.
func (t *Tracker) Remove(id types.ResourceID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok {
		return errs.ResourceNotFound("resource", string(id))
	}
	if e.resource.Status.State != types.StateTerminated {
		return errs.Validation("state", "cannot remove a resource that has not reached Terminated")
	}
	delete(t.entries, id)
	return nil
}

// Count returns the number of resources currently tracked.
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

func snapshot(e *entry) types.TrackedResource {
	r := e.resource
	if !e.frozen {
		r.AccumulatedCost = computeCost(e.resource, time.Now())
	}
	samples := make([]types.ResourceUsage, len(e.resource.UsageSamples))
	copy(samples, e.resource.UsageSamples)
	r.UsageSamples = samples
	tags := make(map[string]string, len(e.resource.Tags))
	for k, v := range e.resource.Tags {
		tags[k] = v
	}
	r.Tags = tags
	return r
}

// computeCost implements the lazy cost formula:
// cost_per_hour * (now - launch_time) for running resources.
func computeCost(r types.TrackedResource, now time.Time) float64 {
	if r.Status.LaunchTime == nil {
		return r.AccumulatedCost
	}
	elapsed := now.Sub(*r.Status.LaunchTime)
	if elapsed < 0 {
		elapsed = 0
	}
	cost := r.Status.CostPerHour * elapsed.Hours()
	if cost < r.AccumulatedCost {
		// Never report less than what was already frozen/accrued.
		return r.AccumulatedCost
	}
	return cost
}

func timePtr(t time.Time) *time.Time { return &t }

// journalRecord is the on-disk shape of one tracked resource, used by
// SaveJournal/LoadJournal to survive a runctl process restart without
// losing track of resources it already leased.
type journalRecord struct {
	Resource types.TrackedResource
	Frozen   bool
	FrozenAt time.Time
}

// SaveJournal writes every tracked resource to path, so a later
// process can recover in-flight leases after a crash or restart. The
// write goes through internal/filelock's LockAndWrite: atomic (temp
// file + rename) and lock-coordinated, so a concurrent runctl
// invocation against the same project never observes a half-written
// journal.
func (t *Tracker) SaveJournal(path string) error {
	t.mu.RLock()
	records := make(map[types.ResourceID]journalRecord, len(t.entries))
	for id, e := range t.entries {
		records[id] = journalRecord{Resource: e.resource, Frozen: e.frozen, FrozenAt: e.frozenAt}
	}
	t.mu.RUnlock()

	data, err := gojson.Marshal(records)
	if err != nil {
		return errs.IO("encode tracker journal failed", err)
	}
	if err := filelock.LockAndWrite(path, data); err != nil {
		return errs.IO("write tracker journal failed", err)
	}
	return nil
}

// LoadJournal replaces the tracker's contents with whatever was last
// saved at path. A missing journal is not an error: a fresh process
// with no prior leases starts from an empty tracker.
func (t *Tracker) LoadJournal(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errs.IO("read tracker journal failed", err)
	}

	var records map[types.ResourceID]journalRecord
	if err := gojson.Unmarshal(data, &records); err != nil {
		return errs.IO("decode tracker journal failed", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[types.ResourceID]*entry, len(records))
	for id, r := range records {
		t.entries[id] = &entry{resource: r.Resource, frozen: r.Frozen, frozenAt: r.FrozenAt}
	}
	return nil
}
