package engine

import "fmt"

// SequenceState is the control state of a sequence.
type SequenceState string

// Sequence states.
const (
	SeqIdle      SequenceState = "idle"
	SeqRunning   SequenceState = "running"
	SeqStopping  SequenceState = "stopping"
	SeqPaused    SequenceState = "paused"
	SeqCompleted SequenceState = "completed"
	SeqFailed    SequenceState = "failed"
	SeqAborted   SequenceState = "aborted"
)

// StepFactory builds a fresh copy of the step at the given index from the
// sequence's static template. Actions produced by successive calls are
// independent; the factory itself is immutable and shared across state
// snapshots.
type StepFactory func(index int) (*Step, error)

// Sequence is the ordered list of steps for one observation, together
// with its execution cursor and control state.
//
// All mutation happens inside the engine loop. The sequence value held in
// a published EngineState snapshot is a deep copy and safe to read from
// any goroutine.
type Sequence struct {
	// ID is the observation id (e.g. "GS-2026B-Q-17-23").
	ID string
	// Title is the human-readable observation title.
	Title string
	// Instrument is the primary instrument resource of the observation.
	Instrument Resource

	Steps  []*Step
	Cursor int
	State  SequenceState

	// Observer is the free-text observer identity for this observation.
	Observer string

	// PauseRequested marks a cooperative pause in progress: the sequence
	// stays Running until every in-flight action settles.
	PauseRequested bool

	// AbortRequested records that the halt draining in Stopping is an
	// abort rather than a graceful stop, so a racing pause or completion
	// still settles with the abort's precedence.
	AbortRequested bool

	factory StepFactory
}

// NewSequence builds a sequence of count steps using the factory.
func NewSequence(id, title string, instrument Resource, count int, factory StepFactory) (*Sequence, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: sequence %q has no steps", ErrInvalidStep, id)
	}
	seq := &Sequence{
		ID:         id,
		Title:      title,
		Instrument: instrument,
		Steps:      make([]*Step, count),
		State:      SeqIdle,
		factory:    factory,
	}
	for i := range seq.Steps {
		step, err := factory(i)
		if err != nil {
			return nil, fmt.Errorf("building step %d of %q: %w", i, id, err)
		}
		step.ID = i
		seq.Steps[i] = step
	}
	return seq, nil
}

// Clone returns a deep copy of the sequence. The step factory is shared;
// it is immutable.
func (s *Sequence) Clone() *Sequence {
	cpy := *s
	cpy.Steps = make([]*Step, len(s.Steps))
	for i, st := range s.Steps {
		cpy.Steps[i] = st.Clone()
	}
	return &cpy
}

// CurrentStep returns the step under the cursor, or nil when the cursor
// has advanced past the last step.
func (s *Sequence) CurrentStep() *Step {
	if s.Cursor < 0 || s.Cursor >= len(s.Steps) {
		return nil
	}
	return s.Steps[s.Cursor]
}

// Resumable reports whether a start command is legal in the current
// state. Completed sequences are not resumable; failed, aborted and idle
// ones are.
func (s *Sequence) Resumable() bool {
	switch s.State {
	case SeqIdle, SeqFailed, SeqAborted:
		return true
	default:
		return false
	}
}

// Active reports whether the sequence is currently driving hardware.
func (s *Sequence) Active() bool {
	switch s.State {
	case SeqRunning, SeqStopping:
		return true
	default:
		return false
	}
}

// RequiredResources returns the union of resources needed by every
// remaining non-skipped step from the cursor onwards. This is the set the
// scheduler checks before granting a start.
func (s *Sequence) RequiredResources() ResourceSet {
	set := make(ResourceSet)
	if s.Instrument != "" {
		// The observation's own instrument is always needed: every step's
		// observe action occupies its detector.
		set.Add(s.Instrument)
	}
	for i := s.Cursor; i < len(s.Steps); i++ {
		st := s.Steps[i]
		if st.Skip || st.Skipped {
			continue
		}
		for r := range st.Resources() {
			set.Add(r)
		}
	}
	return set
}

// HeldResources returns the resources currently occupied by non-terminal
// actions of the current step. Unlike RequiredResources this reflects
// actual hardware occupancy and is non-empty even for a paused sequence
// with a paused exposure.
func (s *Sequence) HeldResources() ResourceSet {
	set := make(ResourceSet)
	st := s.CurrentStep()
	if st == nil {
		return set
	}
	for _, g := range st.Groups {
		for r, a := range g {
			if r == ResourceObserve {
				r = s.Instrument
			}
			switch a.State.Phase {
			case PhaseStarted, PhasePaused:
				set.Add(r)
			}
		}
	}
	return set
}

// SkipThrough marks every step before index as skipped and moves the
// cursor there. This is the only operation that may move the cursor to an
// arbitrary position; everywhere else the cursor is monotone.
func (s *Sequence) SkipThrough(index int) error {
	if index < 0 || index >= len(s.Steps) {
		return fmt.Errorf("%w: %d of %d", ErrInvalidStep, index, len(s.Steps))
	}
	for i := 0; i < index; i++ {
		s.Steps[i].Skipped = true
	}
	s.Cursor = index
	return nil
}

// RefreshStep replaces the step at index with a freshly built copy from
// the static template, preserving the operator-set breakpoint and skip
// flags. Used when re-starting a failed, stopped or aborted step whose
// actions have already been consumed.
func (s *Sequence) RefreshStep(index int) error {
	if index < 0 || index >= len(s.Steps) {
		return fmt.Errorf("%w: %d of %d", ErrInvalidStep, index, len(s.Steps))
	}
	old := s.Steps[index]
	fresh, err := s.factory(index)
	if err != nil {
		return fmt.Errorf("rebuilding step %d of %q: %w", index, s.ID, err)
	}
	fresh.ID = old.ID
	fresh.Breakpoint = old.Breakpoint
	fresh.Skip = old.Skip
	fresh.Skipped = old.Skipped
	s.Steps[index] = fresh
	return nil
}

// stepNeedsRefresh reports whether the current step carries consumed or
// terminal actions from a previous attempt and must be rebuilt before it
// can run again.
func (s *Sequence) stepNeedsRefresh() bool {
	st := s.CurrentStep()
	if st == nil {
		return false
	}
	for _, g := range st.Groups {
		for _, a := range g {
			if a.State.Phase != PhaseIdle && a.State.Phase != PhasePaused {
				return true
			}
		}
	}
	return false
}

// Completed reports whether the cursor has advanced past the final step.
func (s *Sequence) CompletedAllSteps() bool {
	return s.Cursor >= len(s.Steps)
}
