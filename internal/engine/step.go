package engine

// ActionGroup is a set of actions that run in parallel, keyed by the
// resource each occupies. At most one action per resource per group.
type ActionGroup map[Resource]*Action

// Clone returns a deep copy of the group.
func (g ActionGroup) Clone() ActionGroup {
	cpy := make(ActionGroup, len(g))
	for r, a := range g {
		cpy[r] = a.Clone()
	}
	return cpy
}

// Settled reports whether every action in the group is terminal or paused.
// Group n+1 must not start before group n settles.
func (g ActionGroup) Settled() bool {
	for _, a := range g {
		if !a.State.Settled() {
			return false
		}
	}
	return true
}

// Completed reports whether every action in the group completed
// successfully.
func (g ActionGroup) Completed() bool {
	for _, a := range g {
		if a.State.Phase != PhaseCompleted {
			return false
		}
	}
	return true
}

// StepStatus is the derived execution status of a step. It is always
// recomputed from the step's action states, never stored.
type StepStatus string

// Step statuses.
const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepPaused    StepStatus = "paused"
	StepCompleted StepStatus = "completed"
	StepSkipped   StepStatus = "skipped"
	StepStopped   StepStatus = "stopped"
	StepAborted   StepStatus = "aborted"
	StepError     StepStatus = "error"
)

// ResourceStatus is the per-resource configuration status within a step.
type ResourceStatus string

// Resource statuses.
const (
	ResourcePending   ResourceStatus = "pending"
	ResourceRunning   ResourceStatus = "running"
	ResourceCompleted ResourceStatus = "completed"
)

// ObserveStatus is the status of a step's observe action.
type ObserveStatus string

// Observe statuses.
const (
	ObservePending   ObserveStatus = "pending"
	ObserveRunning   ObserveStatus = "running"
	ObservePaused    ObserveStatus = "paused"
	ObserveCompleted ObserveStatus = "completed"
	ObserveStopped   ObserveStatus = "stopped"
	ObserveAborted   ObserveStatus = "aborted"
	ObserveError     ObserveStatus = "error"
)

// ConfigEntry pairs a resource with its derived configuration status.
// Entries are reported in first-appearance order across the groups.
type ConfigEntry struct {
	Resource Resource       `json:"resource"`
	Status   ResourceStatus `json:"status"`
}

// Step is one entry of a sequence: ordered groups of actions that run in
// parallel within a group and strictly in sequence between groups.
type Step struct {
	ID         int
	Breakpoint bool
	Skip       bool
	// Skipped marks a step that was passed over without executing, either
	// because its skip flag was set or because a start-from command jumped
	// past it.
	Skipped bool
	Groups  []ActionGroup
}

// Clone returns a deep copy of the step.
func (s *Step) Clone() *Step {
	cpy := &Step{
		ID:         s.ID,
		Breakpoint: s.Breakpoint,
		Skip:       s.Skip,
		Skipped:    s.Skipped,
		Groups:     make([]ActionGroup, len(s.Groups)),
	}
	for i, g := range s.Groups {
		cpy.Groups[i] = g.Clone()
	}
	return cpy
}

// Resources returns the set of resources occupied by any action of the
// step, excluding the observe pseudo-resource.
func (s *Step) Resources() ResourceSet {
	set := make(ResourceSet)
	for _, g := range s.Groups {
		for r := range g {
			if r != ResourceObserve {
				set.Add(r)
			}
		}
	}
	return set
}

// ConfigStatus derives the per-resource configuration status by scanning
// the groups in order. Scanning stops at the first group containing an
// unfinished configuration action: resources first appearing in later
// groups are not reported (callers treat absence as pending). A resource
// is completed only if its most recent appearance before the scan stopped
// is a completed action.
func (s *Step) ConfigStatus() []ConfigEntry {
	var entries []ConfigEntry
	index := make(map[Resource]int)

	for _, g := range s.Groups {
		unfinished := false
		for _, r := range sortedConfigResources(g) {
			a := g[r]
			status := ResourceRunning
			if a.State.Phase == PhaseCompleted {
				status = ResourceCompleted
			} else {
				unfinished = true
			}
			if i, seen := index[r]; seen {
				entries[i].Status = status
			} else {
				index[r] = len(entries)
				entries = append(entries, ConfigEntry{Resource: r, Status: status})
			}
		}
		if unfinished {
			break
		}
	}
	return entries
}

// ConfigStatusFor returns the derived status of one resource, defaulting
// to pending when the resource is not reached by the group scan.
func (s *Step) ConfigStatusFor(r Resource) ResourceStatus {
	for _, e := range s.ConfigStatus() {
		if e.Resource == r {
			return e.Status
		}
	}
	return ResourcePending
}

// sortedConfigResources returns the group's configuration resources in
// lexical order for deterministic reduction output.
func sortedConfigResources(g ActionGroup) []Resource {
	set := make(ResourceSet, len(g))
	for r := range g {
		if r != ResourceObserve {
			set.Add(r)
		}
	}
	return set.Sorted()
}

// observeAction returns the step's observe action, or nil if none exists.
func (s *Step) observeAction() *Action {
	for _, g := range s.Groups {
		if a, ok := g[ResourceObserve]; ok {
			return a
		}
	}
	return nil
}

// ObserveStatus derives the status of the step's observe action.
func (s *Step) ObserveStatus() ObserveStatus {
	a := s.observeAction()
	if a == nil {
		return ObservePending
	}
	switch a.State.Phase {
	case PhaseIdle:
		return ObservePending
	case PhaseStarted:
		return ObserveRunning
	case PhasePaused:
		return ObservePaused
	case PhaseFailed:
		return ObserveError
	case PhaseCompleted:
		switch a.State.Result.Outcome {
		case OutcomeStopped:
			return ObserveStopped
		case OutcomeAborted:
			return ObserveAborted
		default:
			return ObserveCompleted
		}
	}
	return ObservePending
}

// Status reduces the states of all the step's actions into a single step
// status. Completed only when every action of every group completed;
// Error when any action failed; Stopped/Aborted reflect a non-success
// terminal observe.
func (s *Step) Status() StepStatus {
	if s.Skipped {
		return StepSkipped
	}

	allCompleted := true
	anyActive := false
	anyPaused := false

	for _, g := range s.Groups {
		for _, a := range g {
			switch a.State.Phase {
			case PhaseFailed:
				return StepError
			case PhaseCompleted:
				if a.Kind == ActionObserve {
					switch a.State.Result.Outcome {
					case OutcomeStopped:
						return StepStopped
					case OutcomeAborted:
						return StepAborted
					}
				}
			case PhaseStarted:
				anyActive = true
				allCompleted = false
			case PhasePaused:
				anyPaused = true
				allCompleted = false
			case PhaseIdle:
				allCompleted = false
			}
		}
	}

	switch {
	case len(s.Groups) == 0:
		return StepPending
	case allCompleted:
		return StepCompleted
	case anyPaused && !anyActive:
		return StepPaused
	case anyActive || s.anyCompleted():
		return StepRunning
	default:
		return StepPending
	}
}

// anyCompleted reports whether at least one action has completed, which
// distinguishes a partially-executed step from an untouched one.
func (s *Step) anyCompleted() bool {
	for _, g := range s.Groups {
		for _, a := range g {
			if a.State.Phase == PhaseCompleted {
				return true
			}
		}
	}
	return false
}

// currentGroup returns the index of the first unsettled group, or -1 when
// every group has settled.
func (s *Step) currentGroup() int {
	for i, g := range s.Groups {
		if !g.Settled() {
			return i
		}
	}
	return -1
}

// runnableActions returns the idle actions of the first unsettled group,
// provided all earlier groups have settled. These are the actions the
// engine may launch right now.
func (s *Step) runnableActions() []*Action {
	idx := s.currentGroup()
	if idx < 0 {
		return nil
	}
	// Earlier groups are settled by construction of currentGroup.
	var runnable []*Action
	for _, r := range groupResourcesSorted(s.Groups[idx]) {
		a := s.Groups[idx][r]
		if a.State.Phase == PhaseIdle {
			runnable = append(runnable, a)
		}
	}
	return runnable
}

// groupResourcesSorted returns all resources of a group, observe included,
// in lexical order.
func groupResourcesSorted(g ActionGroup) []Resource {
	set := make(ResourceSet, len(g))
	for r := range g {
		set.Add(r)
	}
	return set.Sorted()
}

// actionFor returns the step's action occupying the given resource, or
// nil when no group contains one that is not yet terminal. When a
// resource appears in several groups the first unsettled occurrence wins.
func (s *Step) actionFor(r Resource) *Action {
	var last *Action
	for _, g := range s.Groups {
		if a, ok := g[r]; ok {
			last = a
			if !a.State.Settled() {
				return a
			}
		}
	}
	return last
}
