package logger

import (
	"fmt"

	"github.com/fatih/color"
)

// resourceColorScheme colors the fields of a `resources list` row:
// state green/yellow/red by liveness, cost cyan, protected resources
// flagged in bold red.
type resourceColorScheme struct {
	running   *color.Color
	degraded  *color.Color
	stopped   *color.Color
	label     *color.Color
	value     *color.Color
	protected *color.Color
}

func newResourceColorScheme() *resourceColorScheme {
	return &resourceColorScheme{
		running:   color.New(color.FgGreen),
		degraded:  color.New(color.FgYellow),
		stopped:   color.New(color.FgRed),
		label:     color.New(color.FgCyan),
		value:     color.New(color.FgWhite),
		protected: color.New(color.FgRed, color.Bold),
	}
}

// FormatResourceState colorizes a resource state string for
// `resources list` table output. Colors are automatically disabled
// when output is not a TTY, via fatih/color's own detection plus the
// caller-supplied enableColor flag.
func FormatResourceState(state string, enableColor bool) string {
	if !enableColor {
		return state
	}
	scheme := newResourceColorScheme()
	switch state {
	case "running":
		return scheme.running.Sprint(state)
	case "pending", "stopping", "terminating":
		return scheme.degraded.Sprint(state)
	case "stopped", "terminated", "interrupted", "error":
		return scheme.stopped.Sprint(state)
	default:
		return state
	}
}

// FormatCost renders a dollar amount (such as a resource's accrued
// cost) colorized cyan, or plain when enableColor is false.
func FormatCost(amount float64, enableColor bool) string {
	s := fmt.Sprintf("$%.4f", amount)
	if !enableColor {
		return s
	}
	return newResourceColorScheme().label.Sprint(s)
}

// FormatProtected renders the protected-resource marker used by
// `resources list --detailed`.
func FormatProtected(protected bool, enableColor bool) string {
	if !protected {
		return ""
	}
	if !enableColor {
		return "[protected]"
	}
	return newResourceColorScheme().protected.Sprint("[protected]")
}
