package engine

import (
	"errors"
	"testing"
)

// ─── Helpers ────────────────────────────────────────────────────────────────

func actionInPhase(kind ActionKind, r Resource, phase ActionPhase) *Action {
	a := NewAction(kind, r, nil)
	switch phase {
	case PhaseStarted:
		a.markStarted()
	case PhasePaused:
		a.markStarted()
		a.applyNotification(Notification{Kind: NotifyPaused, Pause: &Continuation{}})
	case PhaseCompleted:
		a.markStarted()
		a.applyNotification(Notification{Kind: NotifyCompleted, Result: Result{Outcome: OutcomeOK}})
	case PhaseFailed:
		a.markStarted()
		a.applyNotification(Notification{Kind: NotifyFailed, Err: errors.New("boom")})
	}
	return a
}

func completedObserve(outcome Outcome) *Action {
	a := NewAction(ActionObserve, ResourceObserve, nil)
	a.markStarted()
	a.applyNotification(Notification{Kind: NotifyCompleted, Result: Result{Outcome: outcome}})
	return a
}

// ─── Config status ──────────────────────────────────────────────────────────

func TestStep_ConfigStatus_StopsAtUnfinishedGroup(t *testing.T) {
	// Group 1 finished both systems; group 2 re-commands the telescope and
	// is still running; group 3 has not been reached. The lamp first
	// appearing in group 3 must not be reported at all.
	step := &Step{Groups: []ActionGroup{
		{
			ResourceTCS:   actionInPhase(ActionConfigure, ResourceTCS, PhaseCompleted),
			ResourceGmosN: actionInPhase(ActionConfigure, ResourceGmosN, PhaseCompleted),
		},
		{
			ResourceTCS: actionInPhase(ActionConfigure, ResourceTCS, PhaseStarted),
		},
		{
			ResourceGcal: actionInPhase(ActionConfigure, ResourceGcal, PhaseIdle),
		},
	}}

	entries := step.ConfigStatus()
	got := make(map[Resource]ResourceStatus, len(entries))
	for _, e := range entries {
		got[e.Resource] = e.Status
	}

	if got[ResourceGmosN] != ResourceCompleted {
		t.Errorf("gmos_n = %s, want completed", got[ResourceGmosN])
	}
	// The second appearance overrides the first.
	if got[ResourceTCS] != ResourceRunning {
		t.Errorf("tcs = %s, want running", got[ResourceTCS])
	}
	if _, reported := got[ResourceGcal]; reported {
		t.Error("gcal reported before its group was reached")
	}
	if s := step.ConfigStatusFor(ResourceGcal); s != ResourcePending {
		t.Errorf("ConfigStatusFor(gcal) = %s, want pending", s)
	}
}

func TestStep_ConfigStatus_AllCompleted(t *testing.T) {
	step := &Step{Groups: []ActionGroup{
		{
			ResourceF2:  actionInPhase(ActionConfigure, ResourceF2, PhaseCompleted),
			ResourceTCS: actionInPhase(ActionConfigure, ResourceTCS, PhaseCompleted),
		},
		{
			ResourceObserve: completedObserve(OutcomeOK),
		},
	}}

	for _, e := range step.ConfigStatus() {
		if e.Status != ResourceCompleted {
			t.Errorf("%s = %s, want completed", e.Resource, e.Status)
		}
	}
	if step.ConfigStatusFor(ResourceObserve) != ResourcePending {
		t.Error("observe pseudo-resource must not appear in config status")
	}
}

// ─── Step status reduction ──────────────────────────────────────────────────

func TestStep_Status(t *testing.T) {
	tests := []struct {
		name string
		step *Step
		want StepStatus
	}{
		{
			name: "untouched",
			step: &Step{Groups: []ActionGroup{{
				ResourceTCS: actionInPhase(ActionConfigure, ResourceTCS, PhaseIdle),
			}}},
			want: StepPending,
		},
		{
			name: "config running",
			step: &Step{Groups: []ActionGroup{{
				ResourceTCS:     actionInPhase(ActionConfigure, ResourceTCS, PhaseStarted),
				ResourceObserve: actionInPhase(ActionObserve, ResourceObserve, PhaseIdle),
			}}},
			want: StepRunning,
		},
		{
			name: "partially executed between groups",
			step: &Step{Groups: []ActionGroup{
				{ResourceTCS: actionInPhase(ActionConfigure, ResourceTCS, PhaseCompleted)},
				{ResourceObserve: actionInPhase(ActionObserve, ResourceObserve, PhaseIdle)},
			}},
			want: StepRunning,
		},
		{
			name: "exposure paused",
			step: &Step{Groups: []ActionGroup{
				{ResourceTCS: actionInPhase(ActionConfigure, ResourceTCS, PhaseCompleted)},
				{ResourceObserve: actionInPhase(ActionObserve, ResourceObserve, PhasePaused)},
			}},
			want: StepPaused,
		},
		{
			name: "all completed",
			step: &Step{Groups: []ActionGroup{
				{ResourceTCS: actionInPhase(ActionConfigure, ResourceTCS, PhaseCompleted)},
				{ResourceObserve: completedObserve(OutcomeOK)},
			}},
			want: StepCompleted,
		},
		{
			name: "config failed",
			step: &Step{Groups: []ActionGroup{{
				ResourceTCS:     actionInPhase(ActionConfigure, ResourceTCS, PhaseFailed),
				ResourceObserve: actionInPhase(ActionObserve, ResourceObserve, PhaseIdle),
			}}},
			want: StepError,
		},
		{
			name: "observe stopped",
			step: &Step{Groups: []ActionGroup{
				{ResourceObserve: completedObserve(OutcomeStopped)},
			}},
			want: StepStopped,
		},
		{
			name: "observe aborted",
			step: &Step{Groups: []ActionGroup{
				{ResourceObserve: completedObserve(OutcomeAborted)},
			}},
			want: StepAborted,
		},
		{
			name: "skipped wins",
			step: &Step{Skipped: true, Groups: []ActionGroup{
				{ResourceTCS: actionInPhase(ActionConfigure, ResourceTCS, PhaseIdle)},
			}},
			want: StepSkipped,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.step.Status(); got != tt.want {
				t.Errorf("Status() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestStep_ObserveStatus(t *testing.T) {
	step := &Step{Groups: []ActionGroup{
		{ResourceObserve: actionInPhase(ActionObserve, ResourceObserve, PhasePaused)},
	}}
	if got := step.ObserveStatus(); got != ObservePaused {
		t.Errorf("ObserveStatus() = %s, want paused", got)
	}

	noObserve := &Step{Groups: []ActionGroup{
		{ResourceTCS: actionInPhase(ActionConfigure, ResourceTCS, PhaseIdle)},
	}}
	if got := noObserve.ObserveStatus(); got != ObservePending {
		t.Errorf("ObserveStatus() without observe = %s, want pending", got)
	}
}

// ─── Group sequencing ───────────────────────────────────────────────────────

func TestStep_RunnableActions_GateOnEarlierGroups(t *testing.T) {
	step := &Step{Groups: []ActionGroup{
		{
			ResourceTCS:   actionInPhase(ActionConfigure, ResourceTCS, PhaseStarted),
			ResourceGmosS: actionInPhase(ActionConfigure, ResourceGmosS, PhaseIdle),
		},
		{
			ResourceObserve: actionInPhase(ActionObserve, ResourceObserve, PhaseIdle),
		},
	}}

	runnable := step.runnableActions()
	if len(runnable) != 1 || runnable[0].Resource != ResourceGmosS {
		t.Fatalf("runnable = %v, want only the idle gmos_s action of group 1", resourcesOf(runnable))
	}

	// Settle group 1; group 2 becomes runnable.
	step.Groups[0][ResourceTCS].applyNotification(Notification{Kind: NotifyCompleted, Result: Result{Outcome: OutcomeOK}})
	step.Groups[0][ResourceGmosS].markStarted()
	step.Groups[0][ResourceGmosS].applyNotification(Notification{Kind: NotifyCompleted, Result: Result{Outcome: OutcomeOK}})

	runnable = step.runnableActions()
	if len(runnable) != 1 || runnable[0].Resource != ResourceObserve {
		t.Fatalf("runnable after group 1 settled = %v, want observe", resourcesOf(runnable))
	}
}

func TestStep_RunnableActions_DeterministicOrder(t *testing.T) {
	step := &Step{Groups: []ActionGroup{{
		ResourceTCS:    actionInPhase(ActionConfigure, ResourceTCS, PhaseIdle),
		ResourceF2:     actionInPhase(ActionConfigure, ResourceF2, PhaseIdle),
		ResourceGuider: actionInPhase(ActionConfigure, ResourceGuider, PhaseIdle),
	}}}

	got := resourcesOf(step.runnableActions())
	want := []Resource{ResourceF2, ResourceGuider, ResourceTCS}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want lexical order %v", got, want)
		}
	}
}

func TestStep_ActionFor_PrefersUnsettledOccurrence(t *testing.T) {
	first := actionInPhase(ActionConfigure, ResourceTCS, PhaseCompleted)
	second := actionInPhase(ActionConfigure, ResourceTCS, PhaseStarted)
	step := &Step{Groups: []ActionGroup{
		{ResourceTCS: first},
		{ResourceTCS: second},
	}}

	if got := step.actionFor(ResourceTCS); got != second {
		t.Error("actionFor returned a settled occurrence while an unsettled one exists")
	}
}

func resourcesOf(actions []*Action) []Resource {
	out := make([]Resource, len(actions))
	for i, a := range actions {
		out[i] = a.Resource
	}
	return out
}
