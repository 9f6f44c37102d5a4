// Package cleanup implements the safe-cleanup gate: a Proceed/Block
// decision for any destructive operation, applying age, tag,
// explicit-protection, mass-operation, and dependency rules in a
// fixed precedence order.
package cleanup

import (
	"fmt"
	"time"

	"github.com/arclabs561/runctl/internal/types"
)

// Decision is the gate's verdict for one candidate resource.
type Decision struct {
	ResourceID types.ResourceID
	Proceed    bool
	Reason     string
}

// Config parameterizes the gate's thresholds.
type Config struct {
	AgeGuard         time.Duration // default 5 minutes
	MassOpThreshold  int           // warn threshold, default 10
	MassOpHardCap    int           // hard cap, default 50
	ProtectedTagKeys []string      // additional tag keys treated as protection, beyond tool:protected
}

// DefaultConfig returns the gate's standard defaults.
func DefaultConfig() Config {
	return Config{
		AgeGuard:        5 * time.Minute,
		MassOpThreshold: 10,
		MassOpHardCap:   50,
	}
}

// Candidate is one resource under consideration for a destructive
// operation, plus whatever dependency information the caller has
// already gathered (e.g. attached volumes).
type Candidate struct {
	Resource     types.TrackedResource
	Dependencies []string // names/ids of attached child resources, if any
}

// Gate evaluates cleanup candidates against a fixed precedence order.
type Gate struct {
	cfg Config
	now func() time.Time
}

// New builds a Gate with cfg; a zero Config uses DefaultConfig values
// for any zero field.
func New(cfg Config) *Gate {
	if cfg.AgeGuard <= 0 {
		cfg.AgeGuard = DefaultConfig().AgeGuard
	}
	if cfg.MassOpThreshold <= 0 {
		cfg.MassOpThreshold = DefaultConfig().MassOpThreshold
	}
	if cfg.MassOpHardCap <= 0 {
		cfg.MassOpHardCap = DefaultConfig().MassOpHardCap
	}
	return &Gate{cfg: cfg, now: time.Now}
}

// Evaluate applies the gate to every candidate in a single batch
// operation (e.g. `resources cleanup`), so the mass-operation guard
// can see the batch size. force bypasses every other check.
// confirmed indicates the caller already obtained the confirmation the
// mass-operation guard requires past MassOpThreshold.
func (g *Gate) Evaluate(candidates []Candidate, force, confirmed bool) ([]Decision, error) {
	if !force && len(candidates) > g.cfg.MassOpHardCap {
		return nil, fmt.Errorf("cleanup: %d resources exceeds hard cap of %d", len(candidates), g.cfg.MassOpHardCap)
	}

	massOpRequiresConfirm := !force && len(candidates) > g.cfg.MassOpThreshold && !confirmed

	decisions := make([]Decision, 0, len(candidates))
	for _, c := range candidates {
		decisions = append(decisions, g.evaluateOne(c, force, massOpRequiresConfirm))
	}
	return decisions, nil
}

func (g *Gate) evaluateOne(c Candidate, force, massOpRequiresConfirm bool) Decision {
	id := c.Resource.Status.ID

	// 1. force bypasses all checks.
	if force {
		return Decision{ResourceID: id, Proceed: true}
	}

	// 2. explicit protected flag.
	if c.Resource.Protected {
		return Decision{ResourceID: id, Proceed: false, Reason: "resource is explicitly protected"}
	}

	// 3. tag protection.
	if tag, blocked := g.tagProtected(c.Resource.Tags); blocked {
		return Decision{ResourceID: id, Proceed: false, Reason: fmt.Sprintf("protected by tag %q", tag)}
	}

	// 4. age guard.
	if launch := c.Resource.Status.LaunchTime; launch != nil {
		if age := g.now().Sub(*launch); age < g.cfg.AgeGuard {
			return Decision{ResourceID: id, Proceed: false, Reason: fmt.Sprintf("resource is only %s old, below the %s age guard", age.Round(time.Second), g.cfg.AgeGuard)}
		}
	}

	// 5. mass-operation guard.
	if massOpRequiresConfirm {
		return Decision{ResourceID: id, Proceed: false, Reason: fmt.Sprintf("batch exceeds %d resources, explicit confirmation required", g.cfg.MassOpThreshold)}
	}

	// 6. dependency guard.
	if len(c.Dependencies) > 0 {
		return Decision{ResourceID: id, Proceed: false, Reason: fmt.Sprintf("resource has attached dependencies: %v", c.Dependencies)}
	}

	return Decision{ResourceID: id, Proceed: true}
}

func (g *Gate) tagProtected(tags map[string]string) (string, bool) {
	if tags["tool:protected"] == "true" {
		return "tool:protected", true
	}
	for _, key := range g.cfg.ProtectedTagKeys {
		if tags[key] == "true" {
			return key, true
		}
	}
	return "", false
}
