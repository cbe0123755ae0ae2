package engine

import (
	"fmt"
	"sort"
)

// EngineState is the single mutable root of the execution engine: every
// loaded sequence, the ambient conditions, and the operator identity.
//
// The engine replaces the whole structure on every loop iteration;
// snapshots handed to observers are deep copies and never mutated again.
// Resource usage is not stored: it is always derived from the per-sequence
// action states so the two can never diverge.
type EngineState struct { //nolint:revive // engine.EngineState reads better than engine.State at call sites
	Sequences  map[string]*Sequence
	Conditions Conditions
	Operator   string

	// AdHoc holds out-of-band single-resource configure actions issued by
	// the engineering interface, keyed by the resource they occupy. They
	// participate in the resource usage projection like sequence actions.
	AdHoc map[Resource]*Action
}

// adHocHolder is the holder id reported for out-of-band configure
// actions in the resource usage projection.
const adHocHolder = "engineering"

// NewEngineState returns the empty state the engine starts from.
func NewEngineState() *EngineState {
	return &EngineState{
		Sequences:  make(map[string]*Sequence),
		Conditions: DefaultConditions(),
		AdHoc:      make(map[Resource]*Action),
	}
}

// Clone returns a deep copy of the state.
func (s *EngineState) Clone() *EngineState {
	cpy := &EngineState{
		Sequences:  make(map[string]*Sequence, len(s.Sequences)),
		Conditions: s.Conditions,
		Operator:   s.Operator,
		AdHoc:      make(map[Resource]*Action, len(s.AdHoc)),
	}
	for id, seq := range s.Sequences {
		cpy.Sequences[id] = seq.Clone()
	}
	for r, a := range s.AdHoc {
		cpy.AdHoc[r] = a.Clone()
	}
	return cpy
}

// Sequence returns the loaded sequence for an observation id.
func (s *EngineState) Sequence(id string) (*Sequence, error) {
	seq, ok := s.Sequences[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSequenceNotFound, id)
	}
	return seq, nil
}

// ResourcesInUse derives, for each resource, the observation id of the
// sequence currently holding it. A pure projection over the sequences:
//
//   - an active sequence (running or stopping) holds every resource any of
//     its remaining non-skipped steps will need, so a competing sequence
//     cannot slip in between two of its steps;
//   - any sequence additionally holds the resources occupied by its
//     non-terminal actions, which keeps a paused exposure's detector
//     claimed until the action reaches a terminal state.
func (s *EngineState) ResourcesInUse() map[Resource]string {
	held := make(map[Resource]string)
	for id, seq := range s.Sequences {
		if seq.Active() {
			for r := range seq.RequiredResources() {
				held[r] = id
			}
		}
		for r := range seq.HeldResources() {
			held[r] = id
		}
	}
	for r, a := range s.AdHoc {
		if !a.State.Terminal() {
			held[r] = adHocHolder
		}
	}
	return held
}

// ObservationIDs returns the loaded observation ids in lexical order.
func (s *EngineState) ObservationIDs() []string {
	ids := make([]string, 0, len(s.Sequences))
	for id := range s.Sequences {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
