package instrument

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/meridian-obs/meridian-core/internal/engine"
	"github.com/meridian-obs/meridian-core/internal/odb"
)

// ─── Helpers ────────────────────────────────────────────────────────────────

// recordingNotifier captures dataset milestones.
type recordingNotifier struct {
	odb.NopNotifier
	mu        sync.Mutex
	started   []string
	completed []string
	aborted   []string
}

func (n *recordingNotifier) DatasetStart(_, fileID string) {
	n.mu.Lock()
	n.started = append(n.started, fileID)
	n.mu.Unlock()
}

func (n *recordingNotifier) DatasetComplete(_, fileID string) {
	n.mu.Lock()
	n.completed = append(n.completed, fileID)
	n.mu.Unlock()
}

func (n *recordingNotifier) ObservationAbort(_, fileID string) {
	n.mu.Lock()
	n.aborted = append(n.aborted, fileID)
	n.mu.Unlock()
}

func testDefinition() *odb.ObservationDefinition {
	return &odb.ObservationDefinition{
		ID:         "GS-2026B-Q-17-23",
		Title:      "NGC 1300 longslit",
		Instrument: "gmos_s",
		Observer:   "A. Observer",
		Steps: []odb.StepDefinition{
			{
				Exposure: 0.01,
				Configs: map[string]map[string]any{
					"tcs":    {"offset_p": 10.0},
					"gmos_s": {"filter": "r"},
				},
			},
			{Exposure: 0.01, Breakpoint: true},
		},
	}
}

func testBuilder(n odb.Notifier) *Builder {
	bank := SimBank(0, time.Millisecond, engine.ResourceGmosS)
	files := NewFileAllocator("gemini-south")
	return NewBuilder(bank, n, files)
}

// drainStream collects notifications until the stream closes.
func drainStream(t *testing.T, stream <-chan engine.Notification) []engine.Notification {
	t.Helper()
	var all []engine.Notification
	deadline := time.After(3 * time.Second)
	for {
		select {
		case n, ok := <-stream:
			if !ok {
				return all
			}
			all = append(all, n)
		case <-deadline:
			t.Fatal("timed out draining stream")
		}
	}
}

// ─── Builder Tests ──────────────────────────────────────────────────────────

func TestBuilder_Sequence(t *testing.T) {
	b := testBuilder(nil)

	seq, err := b.Sequence(testDefinition())
	if err != nil {
		t.Fatalf("Sequence() error = %v", err)
	}

	if seq.ID != "GS-2026B-Q-17-23" {
		t.Errorf("ID = %q", seq.ID)
	}
	if seq.Instrument != engine.ResourceGmosS {
		t.Errorf("Instrument = %s, want gmos_s", seq.Instrument)
	}
	if seq.Observer != "A. Observer" {
		t.Errorf("Observer = %q", seq.Observer)
	}
	if len(seq.Steps) != 2 {
		t.Fatalf("len(Steps) = %d, want 2", len(seq.Steps))
	}

	// Step 0: one config group plus one observe group.
	step := seq.Steps[0]
	if len(step.Groups) != 2 {
		t.Fatalf("Steps[0] has %d groups, want 2", len(step.Groups))
	}
	if _, ok := step.Groups[0][engine.ResourceTCS]; !ok {
		t.Error("Steps[0].Groups[0] missing tcs config action")
	}
	if _, ok := step.Groups[0][engine.ResourceGmosS]; !ok {
		t.Error("Steps[0].Groups[0] missing gmos_s config action")
	}
	if _, ok := step.Groups[1][engine.ResourceObserve]; !ok {
		t.Error("Steps[0].Groups[1] missing observe action")
	}

	// Step 1: no configs, so the observe group stands alone; breakpoint
	// carries over from the definition.
	if len(seq.Steps[1].Groups) != 1 {
		t.Errorf("Steps[1] has %d groups, want 1", len(seq.Steps[1].Groups))
	}
	if !seq.Steps[1].Breakpoint {
		t.Error("Steps[1].Breakpoint = false, want true")
	}
}

func TestBuilder_SequenceUnknownInstrument(t *testing.T) {
	b := testBuilder(nil)
	def := testDefinition()
	def.Instrument = "niri" // Not in the sim bank.

	if _, err := b.Sequence(def); !errors.Is(err, ErrUnknownSystem) {
		t.Errorf("Sequence() error = %v, want ErrUnknownSystem", err)
	}
}

func TestBuilder_FactoryRebuildsFreshActions(t *testing.T) {
	b := testBuilder(nil)

	seq, err := b.Sequence(testDefinition())
	if err != nil {
		t.Fatalf("Sequence() error = %v", err)
	}

	// Consume the observe action of step 0, then refresh and check the
	// rebuilt step carries an unconsumed action.
	obs := seq.Steps[0].Groups[1][engine.ResourceObserve]
	stream, err := obs.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	drainStream(t, stream)

	if err := seq.RefreshStep(0); err != nil {
		t.Fatalf("RefreshStep() error = %v", err)
	}

	fresh := seq.Steps[0].Groups[1][engine.ResourceObserve]
	if _, err := fresh.Start(context.Background()); err != nil {
		t.Errorf("rebuilt action Start() error = %v", err)
	}
}

// ─── Observe Stream Tests ───────────────────────────────────────────────────

func TestObserveStream_Completes(t *testing.T) {
	notifier := &recordingNotifier{}
	b := testBuilder(notifier)

	seq, err := b.Sequence(testDefinition())
	if err != nil {
		t.Fatalf("Sequence() error = %v", err)
	}

	obs := seq.Steps[0].Groups[1][engine.ResourceObserve]
	stream, err := obs.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	all := drainStream(t, stream)
	if len(all) < 2 {
		t.Fatalf("stream produced %d notifications, want at least file id and terminal", len(all))
	}

	// First notification allocates the dataset label.
	if all[0].Kind != engine.NotifyFileID || all[0].FileID == "" {
		t.Fatalf("first notification = %+v, want file id", all[0])
	}
	fileID := all[0].FileID

	last := all[len(all)-1]
	if last.Kind != engine.NotifyCompleted {
		t.Fatalf("last notification = %s, want completed", last.Kind)
	}
	if last.Result.Outcome != engine.OutcomeOK {
		t.Errorf("Outcome = %s, want ok", last.Result.Outcome)
	}
	if last.Result.FileID != fileID {
		t.Errorf("Result.FileID = %q, want %q", last.Result.FileID, fileID)
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.started) != 1 || notifier.started[0] != fileID {
		t.Errorf("DatasetStart calls = %v, want [%s]", notifier.started, fileID)
	}
	if len(notifier.completed) != 1 || notifier.completed[0] != fileID {
		t.Errorf("DatasetComplete calls = %v, want [%s]", notifier.completed, fileID)
	}
}

func TestObserveStream_AbortDiscardsDataset(t *testing.T) {
	notifier := &recordingNotifier{}
	bank := SimBank(0, time.Millisecond, engine.ResourceGmosS)
	b := NewBuilder(bank, notifier, NewFileAllocator("gemini-south"))

	def := testDefinition()
	def.Steps[0].Exposure = 60 // Long enough to abort mid-flight.
	seq, err := b.Sequence(def)
	if err != nil {
		t.Fatalf("Sequence() error = %v", err)
	}

	obs := seq.Steps[0].Groups[1][engine.ResourceObserve]
	stream, err := obs.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Wait for the exposure to be underway, then abort through the
	// action's controls.
	deadline := time.After(3 * time.Second)
	aborted := false
	requested := false
	for !aborted {
		select {
		case n, ok := <-stream:
			if !ok {
				t.Fatal("stream closed before abort")
			}
			switch n.Kind {
			case engine.NotifyProgress:
				if requested {
					continue
				}
				requested = true
				if err := obs.Controls.Abort(context.Background()); err != nil {
					t.Fatalf("Abort() error = %v", err)
				}
			case engine.NotifyCompleted:
				if n.Result.Outcome != engine.OutcomeAborted {
					t.Fatalf("Outcome = %s, want aborted", n.Result.Outcome)
				}
				if n.Result.FileID != "" {
					t.Errorf("aborted Result.FileID = %q, want empty", n.Result.FileID)
				}
				aborted = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for abort")
		}
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.aborted) != 1 {
		t.Errorf("ObservationAbort calls = %v, want 1", notifier.aborted)
	}
	if len(notifier.completed) != 0 {
		t.Errorf("DatasetComplete calls = %v, want none", notifier.completed)
	}
}

func TestObserveStream_PauseYieldsContinuation(t *testing.T) {
	bank := SimBank(0, time.Millisecond, engine.ResourceGmosS)
	b := NewBuilder(bank, nil, NewFileAllocator("gemini-south"))

	def := testDefinition()
	def.Steps[0].Exposure = 60
	seq, err := b.Sequence(def)
	if err != nil {
		t.Fatalf("Sequence() error = %v", err)
	}

	obs := seq.Steps[0].Groups[1][engine.ResourceObserve]
	ctx := context.Background()
	stream, err := obs.Start(ctx)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	var cont *engine.Continuation
	deadline := time.After(3 * time.Second)
	requested := false
	for cont == nil {
		select {
		case n, ok := <-stream:
			if !ok {
				t.Fatal("stream closed before pause")
			}
			switch n.Kind {
			case engine.NotifyProgress:
				if requested {
					continue
				}
				requested = true
				if err := obs.Controls.Pause(ctx); err != nil {
					t.Fatalf("Pause() error = %v", err)
				}
			case engine.NotifyPaused:
				cont = n.Pause
			}
		case <-deadline:
			t.Fatal("timed out waiting for pause")
		}
	}

	if cont.Remaining <= 0 || cont.Remaining > cont.Total {
		t.Errorf("continuation Remaining = %v, Total = %v", cont.Remaining, cont.Total)
	}
	if cont.Progress == nil || cont.Stop == nil || cont.Abort == nil {
		t.Fatal("continuation missing progress or control functions")
	}

	// Stop the paused exposure through the continuation, then resume the
	// stream; the stopped outcome must flow through it.
	if err := cont.Stop(ctx); err != nil {
		t.Fatalf("continuation Stop() error = %v", err)
	}

	resumed := engine.ResumeStream(ctx, cont)
	all := drainStream(t, resumed)
	last := all[len(all)-1]
	if last.Kind != engine.NotifyCompleted || last.Result.Outcome != engine.OutcomeStopped {
		t.Errorf("resumed terminal = %+v, want completed/stopped", last)
	}
}

// ─── Configure Tests ────────────────────────────────────────────────────────

func TestConfigureAction(t *testing.T) {
	b := testBuilder(nil)

	a, err := b.ConfigureAction(engine.ResourceGcal, map[string]any{"lamp": "flat"})
	if err != nil {
		t.Fatalf("ConfigureAction() error = %v", err)
	}
	if a.Kind != engine.ActionConfigure || a.Resource != engine.ResourceGcal {
		t.Errorf("action = %s on %s", a.Kind, a.Resource)
	}

	stream, err := a.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	all := drainStream(t, stream)
	if last := all[len(all)-1]; last.Kind != engine.NotifyCompleted {
		t.Errorf("terminal = %s, want completed", last.Kind)
	}
}

func TestConfigureAction_UnknownResource(t *testing.T) {
	b := testBuilder(nil)

	if _, err := b.ConfigureAction(engine.ResourceNiri, nil); !errors.Is(err, ErrUnknownSystem) {
		t.Errorf("ConfigureAction() error = %v, want ErrUnknownSystem", err)
	}
}
