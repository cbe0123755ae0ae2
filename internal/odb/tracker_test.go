package odb

import (
	"sync"
	"testing"

	"github.com/meridian-obs/meridian-core/internal/engine"
)

// milestoneNotifier records sequence-level milestones in arrival order.
type milestoneNotifier struct {
	NopNotifier
	mu     sync.Mutex
	events []string
}

func (n *milestoneNotifier) record(kind, obsID string) {
	n.mu.Lock()
	n.events = append(n.events, kind+":"+obsID)
	n.mu.Unlock()
}

func (n *milestoneNotifier) SequenceStart(obsID string)    { n.record("start", obsID) }
func (n *milestoneNotifier) SequenceEnd(obsID string)      { n.record("end", obsID) }
func (n *milestoneNotifier) SequencePause(obsID string)    { n.record("pause", obsID) }
func (n *milestoneNotifier) SequenceContinue(obsID string) { n.record("continue", obsID) }

func (n *milestoneNotifier) recorded() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

// publishState feeds the tracker a snapshot with one sequence in the
// given state.
func publishState(t *SequenceTracker, obsID string, state engine.SequenceState) {
	st := engine.NewEngineState()
	st.Sequences[obsID] = &engine.Sequence{ID: obsID, State: state}
	t.Publish(engine.Emission{State: st})
}

func TestSequenceTracker_Lifecycle(t *testing.T) {
	n := &milestoneNotifier{}
	tracker := NewSequenceTracker(n)

	publishState(tracker, "GS-2026B-Q-17-23", engine.SeqIdle)
	publishState(tracker, "GS-2026B-Q-17-23", engine.SeqRunning)
	publishState(tracker, "GS-2026B-Q-17-23", engine.SeqPaused)
	publishState(tracker, "GS-2026B-Q-17-23", engine.SeqRunning)
	publishState(tracker, "GS-2026B-Q-17-23", engine.SeqCompleted)

	want := []string{
		"start:GS-2026B-Q-17-23",
		"pause:GS-2026B-Q-17-23",
		"continue:GS-2026B-Q-17-23",
		"end:GS-2026B-Q-17-23",
	}
	got := n.recorded()
	if len(got) != len(want) {
		t.Fatalf("milestones = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("milestone[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSequenceTracker_NoDuplicateOnUnchangedState(t *testing.T) {
	n := &milestoneNotifier{}
	tracker := NewSequenceTracker(n)

	publishState(tracker, "GS-2026B-Q-5-1", engine.SeqRunning)
	publishState(tracker, "GS-2026B-Q-5-1", engine.SeqRunning)
	publishState(tracker, "GS-2026B-Q-5-1", engine.SeqRunning)

	if got := n.recorded(); len(got) != 1 || got[0] != "start:GS-2026B-Q-5-1" {
		t.Errorf("milestones = %v, want a single start", got)
	}
}

func TestSequenceTracker_ForgetsUnloadedSequences(t *testing.T) {
	n := &milestoneNotifier{}
	tracker := NewSequenceTracker(n)

	publishState(tracker, "GS-2026B-Q-5-1", engine.SeqRunning)

	// Unload: the sequence disappears from the snapshot.
	tracker.Publish(engine.Emission{State: engine.NewEngineState()})

	// A reloaded sequence starting again is a fresh start, not a continue.
	publishState(tracker, "GS-2026B-Q-5-1", engine.SeqRunning)

	got := n.recorded()
	if len(got) != 2 || got[1] != "start:GS-2026B-Q-5-1" {
		t.Errorf("milestones = %v, want two starts", got)
	}
}

func TestSequenceTracker_StopAndFailureAreSilent(t *testing.T) {
	n := &milestoneNotifier{}
	tracker := NewSequenceTracker(n)

	publishState(tracker, "GS-2026B-Q-5-1", engine.SeqRunning)
	publishState(tracker, "GS-2026B-Q-5-1", engine.SeqStopping)
	publishState(tracker, "GS-2026B-Q-5-1", engine.SeqFailed)

	if got := n.recorded(); len(got) != 1 {
		t.Errorf("milestones = %v, want only the start", got)
	}
}
