package odb

import (
	"sync"

	"github.com/meridian-obs/meridian-core/internal/engine"
)

// SequenceTracker diffs successive engine state snapshots and fires the
// sequence-level notifier milestones on each transition. Dataset-level
// milestones are reported directly by the observe actions; the tracker
// covers the lifecycle the actions cannot see.
//
// It implements engine.Sink. Publish is called from the engine loop in
// emission order, so the last-seen map needs no ordering logic, only
// mutual exclusion against concurrent readers.
type SequenceTracker struct {
	notifier Notifier

	mu   sync.Mutex
	last map[string]engine.SequenceState
}

// NewSequenceTracker creates a tracker reporting to the notifier.
func NewSequenceTracker(notifier Notifier) *SequenceTracker {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &SequenceTracker{
		notifier: notifier,
		last:     make(map[string]engine.SequenceState),
	}
}

// Publish implements engine.Sink.
func (t *SequenceTracker) Publish(e engine.Emission) {
	if e.State == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for id, seq := range e.State.Sequences {
		prev, seen := t.last[id]
		if seen && prev == seq.State {
			continue
		}
		t.last[id] = seq.State
		t.transition(id, prev, seq.State, seen)
	}

	// Unloaded sequences drop out of the map.
	for id := range t.last {
		if _, ok := e.State.Sequences[id]; !ok {
			delete(t.last, id)
		}
	}
}

// transition maps one state change onto the notifier milestones.
func (t *SequenceTracker) transition(obsID string, prev, next engine.SequenceState, seen bool) {
	switch next {
	case engine.SeqRunning:
		if seen && prev == engine.SeqPaused {
			t.notifier.SequenceContinue(obsID)
		} else {
			t.notifier.SequenceStart(obsID)
		}
	case engine.SeqPaused:
		t.notifier.SequencePause(obsID)
	case engine.SeqCompleted:
		t.notifier.SequenceEnd(obsID)
	case engine.SeqIdle, engine.SeqStopping, engine.SeqFailed, engine.SeqAborted:
		// Stops, failures and aborts reach the observing database through
		// the dataset milestones of the action that ended them.
	}
}
