package engine

import "sort"

// Resource identifies an exclusively-schedulable observatory subsystem.
//
// A Resource may be held by at most one sequence at a time. Holding is
// tracked implicitly through non-terminal actions: there is no explicit
// acquire/release call, a resource frees itself when the action occupying
// it reaches a terminal state.
type Resource string

// Facility resources.
const (
	ResourceTCS    Resource = "tcs"
	ResourceGcal   Resource = "gcal"
	ResourceGuider Resource = "guider"
)

// Instrument resources.
const (
	ResourceGmosN  Resource = "gmos_n"
	ResourceGmosS  Resource = "gmos_s"
	ResourceF2     Resource = "f2"
	ResourceGnirs  Resource = "gnirs"
	ResourceNifs   Resource = "nifs"
	ResourceGsaoi  Resource = "gsaoi"
	ResourceGpi    Resource = "gpi"
	ResourceGhost  Resource = "ghost"
	ResourceNiri   Resource = "niri"
	ResourceGraces Resource = "graces"
)

// ResourceObserve is the pseudo-resource occupied by the detector readout
// of the step's instrument. Exactly one observe action exists per step and
// it is keyed under this resource in its action group.
const ResourceObserve Resource = "observe"

// AllResources returns all schedulable resource values, excluding the
// observe pseudo-resource.
func AllResources() []Resource {
	return []Resource{
		ResourceTCS, ResourceGcal, ResourceGuider,
		ResourceGmosN, ResourceGmosS, ResourceF2, ResourceGnirs,
		ResourceNifs, ResourceGsaoi, ResourceGpi, ResourceGhost,
		ResourceNiri, ResourceGraces,
	}
}

// ValidResource reports whether r names a known subsystem.
func ValidResource(r Resource) bool {
	if r == ResourceObserve {
		return true
	}
	for _, known := range AllResources() {
		if r == known {
			return true
		}
	}
	return false
}

// ResourceSet is an unordered collection of resources.
type ResourceSet map[Resource]struct{}

// NewResourceSet builds a set from the given resources.
func NewResourceSet(resources ...Resource) ResourceSet {
	set := make(ResourceSet, len(resources))
	for _, r := range resources {
		set[r] = struct{}{}
	}
	return set
}

// Contains reports whether r is in the set.
func (s ResourceSet) Contains(r Resource) bool {
	_, ok := s[r]
	return ok
}

// Add inserts r into the set.
func (s ResourceSet) Add(r Resource) {
	s[r] = struct{}{}
}

// Intersects reports whether the two sets share any resource.
func (s ResourceSet) Intersects(other ResourceSet) bool {
	// Iterate the smaller set.
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}
	for r := range small {
		if large.Contains(r) {
			return true
		}
	}
	return false
}

// Sorted returns the set's resources in lexical order.
// Used for deterministic logging and notification payloads.
func (s ResourceSet) Sorted() []Resource {
	out := make([]Resource, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clone returns an independent copy of the set.
func (s ResourceSet) Clone() ResourceSet {
	cpy := make(ResourceSet, len(s))
	for r := range s {
		cpy[r] = struct{}{}
	}
	return cpy
}
