package types

// TrackedResource is everything the resource tracker owns about a
// single leased resource: its last-observed status, accumulated cost,
// usage history, and protection flags. This is a plain snapshot type —
// bookkeeping fields needed to compute cost lazily live in the tracker
// package's private entry type, not here, so types stays a pure data
// model with no component-specific behavior.
type TrackedResource struct {
	Status          ResourceStatus
	AccumulatedCost float64
	UsageSamples    []ResourceUsage
	Protected       bool
	Tags            map[string]string
}

// NewTrackedResource seeds a TrackedResource snapshot for registration,
// copying the status's tag map so later mutation by the tracker never
// aliases the caller's map.
func NewTrackedResource(status ResourceStatus) TrackedResource {
	tags := make(map[string]string, len(status.Tags))
	for k, v := range status.Tags {
		tags[k] = v
	}
	return TrackedResource{Status: status, Tags: tags}
}
