package api

import (
	"sort"

	"github.com/meridian-obs/meridian-core/internal/engine"
)

// StepView is the wire representation of one sequence step. All statuses
// are derived from the step's action states at snapshot time.
type StepView struct {
	ID         int                  `json:"id"`
	Status     engine.StepStatus    `json:"status"`
	Breakpoint bool                 `json:"breakpoint"`
	Skip       bool                 `json:"skip"`
	Configs    []engine.ConfigEntry `json:"configs,omitempty"`
	Observe    engine.ObserveStatus `json:"observe"`
	FileID     string               `json:"file_id,omitempty"`
	Error      string               `json:"error,omitempty"`
}

// SequenceView is the wire representation of one loaded sequence.
type SequenceView struct {
	ID         string               `json:"id"`
	Title      string               `json:"title,omitempty"`
	Instrument engine.Resource      `json:"instrument"`
	State      engine.SequenceState `json:"state"`
	Cursor     int                  `json:"cursor"`
	Observer   string               `json:"observer,omitempty"`
	Steps      []StepView           `json:"steps"`
}

// newStepView reduces a step snapshot into its wire form.
func newStepView(st *engine.Step) StepView {
	v := StepView{
		ID:         st.ID,
		Status:     st.Status(),
		Breakpoint: st.Breakpoint,
		Skip:       st.Skip,
		Configs:    st.ConfigStatus(),
		Observe:    st.ObserveStatus(),
	}
	for _, g := range st.Groups {
		a, ok := g[engine.ResourceObserve]
		if !ok {
			continue
		}
		if a.State.Phase == engine.PhaseCompleted && a.State.Result != nil {
			v.FileID = a.State.Result.FileID
		}
		if a.State.Phase == engine.PhaseFailed && a.State.Err != nil {
			v.Error = a.State.Err.Error()
		}
	}
	return v
}

// newSequenceView reduces a sequence snapshot into its wire form.
func newSequenceView(seq *engine.Sequence) SequenceView {
	v := SequenceView{
		ID:         seq.ID,
		Title:      seq.Title,
		Instrument: seq.Instrument,
		State:      seq.State,
		Cursor:     seq.Cursor,
		Observer:   seq.Observer,
		Steps:      make([]StepView, 0, len(seq.Steps)),
	}
	for _, st := range seq.Steps {
		v.Steps = append(v.Steps, newStepView(st))
	}
	return v
}

// sequenceListView renders every loaded sequence in lexical observation
// id order.
func sequenceListView(st *engine.EngineState) []SequenceView {
	views := make([]SequenceView, 0, len(st.Sequences))
	for _, id := range st.ObservationIDs() {
		views = append(views, newSequenceView(st.Sequences[id]))
	}
	return views
}

// ResourceUseView is one entry of the resource occupancy projection.
type ResourceUseView struct {
	Resource engine.Resource `json:"resource"`
	HeldBy   string          `json:"held_by"`
}

// resourcesView renders the derived resource occupancy in lexical
// resource order.
func resourcesView(st *engine.EngineState) []ResourceUseView {
	held := st.ResourcesInUse()
	views := make([]ResourceUseView, 0, len(held))
	for r, holder := range held {
		views = append(views, ResourceUseView{Resource: r, HeldBy: holder})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Resource < views[j].Resource })
	return views
}
