package engine

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Logger is the minimal logging surface the engine needs. Satisfied by
// *slog.Logger and by the application's logging wrapper.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards everything. Used until SetLogger is called.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// NoticeLevel grades operator notices.
type NoticeLevel string

// Notice levels.
const (
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a human-directed message produced while applying an event:
// rejected commands, resource conflicts, failures, milestone transitions.
// Notices ride on the emission alongside the state snapshot so the
// command surface can route them back to the issuing client.
type Notice struct {
	Level NoticeLevel `json:"level"`
	// ObsID is the observation the notice concerns, empty for global ones.
	ObsID string `json:"observation_id,omitempty"`
	// Step is the zero-based step index the notice concerns, -1 when the
	// notice is not tied to a step.
	Step    int    `json:"step"`
	Message string `json:"message"`
	// ClientID identifies the client whose command produced the notice.
	ClientID string `json:"client_id,omitempty"`
}

// Emission is the engine's output for one applied event: the event
// itself, the resulting state snapshot (a deep copy, safe to read from
// any goroutine, never mutated again) and any notices the transition
// produced.
type Emission struct {
	Event   Event
	State   *EngineState
	Notices []Notice
}

// Sink receives every emission, in loop order. Publish is called from
// the engine goroutine and must not block for long; slow consumers
// buffer internally.
type Sink interface {
	Publish(Emission)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Emission)

// Publish implements Sink.
func (f SinkFunc) Publish(e Emission) { f(e) }

// MultiSink fans an emission out to several sinks in order.
type MultiSink []Sink

// Publish implements Sink.
func (m MultiSink) Publish(e Emission) {
	for _, s := range m {
		s.Publish(e)
	}
}

// launch describes an action the loop decided to start (or resume). The
// stream is opened after the state swap so a slow hardware handshake
// never blocks the loop.
type launch struct {
	obsID  string
	step   int
	action *Action
	// resume re-enters a paused action through its continuation instead
	// of consuming the initial stream.
	resume *Continuation
}

// controlRequest is a cooperative pause/stop/abort (or progress query)
// closure to invoke off-loop. Outcomes return through result streams.
type controlRequest struct {
	name  string
	obsID string
	fn    func(ctx context.Context) error
}

// transition accumulates the side effects of applying one event.
type transition struct {
	notices  []Notice
	launches []launch
	requests []controlRequest
}

func (tr *transition) notice(level NoticeLevel, obsID string, step int, format string, args ...any) {
	tr.notices = append(tr.notices, Notice{
		Level:   level,
		ObsID:   obsID,
		Step:    step,
		Message: fmt.Sprintf(format, args...),
	})
}

// Engine is the single-threaded execution core. All state transitions
// happen inside Run's loop goroutine: commands and action callbacks are
// queued as events, applied strictly in arrival order, and each applied
// event produces exactly one emission.
//
// Concurrency model:
//   - one loop goroutine owns the state and is its only writer;
//   - action bodies run on their own goroutines and communicate solely
//     through result streams, pumped back into the queue as events;
//   - observers receive deep-copied snapshots and can never see a
//     half-applied transition.
type Engine struct {
	queue        *eventQueue
	sink         Sink
	logger       Logger
	pollInterval time.Duration

	// state is owned by the loop goroutine, replaced wholesale per event.
	state *EngineState

	mu       sync.RWMutex
	snapshot *EngineState

	runCtx context.Context
	wg     sync.WaitGroup
}

// New creates an engine publishing to sink. A nil sink is allowed; the
// engine then runs headless (useful in tests that inspect Snapshot).
func New(sink Sink) *Engine {
	return &Engine{
		queue:  newEventQueue(),
		sink:   sink,
		logger: noopLogger{},
		state:  NewEngineState(),
	}
}

// SetLogger installs the logger. Call before Run.
func (e *Engine) SetLogger(l Logger) {
	if l != nil {
		e.logger = l
	}
}

// SetPollInterval enables periodic progress polling of paused
// observations. Zero disables polling. Call before Run.
func (e *Engine) SetPollInterval(d time.Duration) {
	e.pollInterval = d
}

// Offer enqueues an event for the loop. Safe from any goroutine.
// Returns ErrEngineClosed once the engine has shut down.
func (e *Engine) Offer(ev Event) error {
	if ev == nil {
		return fmt.Errorf("engine: nil event")
	}
	return e.queue.push(ev)
}

// Snapshot returns the most recently published state. The returned value
// is a settled deep copy; callers must treat it as read-only.
func (e *Engine) Snapshot() *EngineState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.snapshot == nil {
		return NewEngineState()
	}
	return e.snapshot
}

// QueueDepth reports the number of pending events, for telemetry.
func (e *Engine) QueueDepth() int {
	return e.queue.depth()
}

// Run executes the event loop until ctx is cancelled. It drains launched
// action pumps before returning; actions are expected to honour ctx and
// wind down promptly.
func (e *Engine) Run(ctx context.Context) error {
	e.runCtx = ctx

	if e.pollInterval > 0 {
		ticker := time.NewTicker(e.pollInterval)
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := e.queue.push(Poll{}); err != nil {
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	e.logger.Info("engine loop started")
	for {
		ev, ok := e.queue.pop(ctx)
		if !ok {
			e.queue.close()
			e.wg.Wait()
			e.logger.Info("engine loop stopped")
			return nil
		}
		e.process(ev)
	}
}

// process applies one event: clone, transition, swap, publish, and only
// then perform the collected side effects.
func (e *Engine) process(ev Event) {
	next := e.state.Clone()
	tr := &transition{}
	e.apply(next, ev, tr)
	e.state = next

	snap := next.Clone()
	e.mu.Lock()
	e.snapshot = snap
	e.mu.Unlock()

	for i := range tr.notices {
		tr.notices[i].ClientID = ev.Client()
	}

	for _, l := range tr.launches {
		e.startLaunch(l)
	}
	for _, req := range tr.requests {
		e.runRequest(req)
	}

	if e.sink != nil {
		e.sink.Publish(Emission{Event: ev, State: snap, Notices: tr.notices})
	}
}

// startLaunch opens an action's result stream and pumps its
// notifications back into the queue as events.
func (e *Engine) startLaunch(l launch) {
	var stream <-chan Notification
	if l.resume != nil {
		stream = ResumeStream(e.runCtx, l.resume)
	} else {
		s, err := l.action.Start(e.runCtx)
		if err != nil {
			// Consumed stream means a stale step was not refreshed; fail
			// the action rather than wedge the step.
			_ = e.queue.push(ActionCompleted{
				ObsID:    l.obsID,
				Step:     l.step,
				Resource: l.action.Resource,
				Note:     Notification{Kind: NotifyFailed, Err: err},
			})
			return
		}
		stream = s
	}

	_ = e.queue.push(ActionStarted{ObsID: l.obsID, Step: l.step, Resource: l.action.Resource})

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for n := range stream {
			var ev Event
			if n.Terminal() {
				ev = ActionCompleted{ObsID: l.obsID, Step: l.step, Resource: l.action.Resource, Note: n}
			} else {
				ev = ActionProgress{ObsID: l.obsID, Step: l.step, Resource: l.action.Resource, Note: n}
			}
			if err := e.queue.push(ev); err != nil {
				// Shutdown: keep draining so the producer can exit.
				e.logger.Debug("dropping action event after shutdown",
					"observation", l.obsID, "resource", string(l.action.Resource))
			}
		}
	}()
}

// runRequest invokes a cooperative control closure off-loop.
func (e *Engine) runRequest(req controlRequest) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := req.fn(e.runCtx); err != nil {
			e.logger.Warn("control request failed",
				"request", req.name, "observation", req.obsID, "error", err)
		}
	}()
}

// ─── Event application ───────────────────────────────────────────────────────

func (e *Engine) apply(st *EngineState, ev Event, tr *transition) {
	switch ev := ev.(type) {
	case LoadSequence:
		e.applyLoad(st, ev, tr)
	case UnloadSequence:
		e.applyUnload(st, ev, tr)
	case StartSequence:
		e.applyStart(st, ev, tr)
	case PauseSequence:
		e.applyPause(st, ev, tr)
	case StopSequence:
		e.applyHalt(st, ev.ObsID, false, tr)
	case AbortSequence:
		e.applyHalt(st, ev.ObsID, true, tr)
	case SetBreakpoint:
		e.applyStepFlag(st, ev.ObsID, ev.Step, tr, func(s *Step) { s.Breakpoint = ev.On })
	case SetSkip:
		e.applyStepFlag(st, ev.ObsID, ev.Step, tr, func(s *Step) { s.Skip = ev.On })
	case SetOperator:
		st.Operator = ev.Name
	case SetObserver:
		seq, err := st.Sequence(ev.ObsID)
		if err != nil {
			tr.notice(NoticeError, ev.ObsID, -1, "set observer: %v", err)
			return
		}
		seq.Observer = ev.Name
	case SetConditions:
		st.Conditions = ev.Conditions
	case SetImageQuality:
		st.Conditions.ImageQuality = ev.Value
	case SetCloudCover:
		st.Conditions.CloudCover = ev.Value
	case SetWaterVapor:
		st.Conditions.WaterVapor = ev.Value
	case SetSkyBackground:
		st.Conditions.SkyBackground = ev.Value
	case ConfigureResource:
		e.applyConfigure(st, ev, tr)
	case Sync:
		// No state change; the loop publishes the snapshot regardless.
	case ActionStarted:
		// Pass-through: the action was marked started when launched.
	case ActionProgress:
		// Pass-through: progress does not change lifecycle state.
	case ActionCompleted:
		e.applyActionCompleted(st, ev, tr)
	case Poll:
		e.applyPoll(st, tr)
	default:
		e.logger.Error("unhandled event", "kind", ev.Kind())
	}
}

func (e *Engine) applyLoad(st *EngineState, ev LoadSequence, tr *transition) {
	if ev.Sequence == nil || ev.Sequence.ID == "" {
		tr.notice(NoticeError, "", -1, "load: missing sequence")
		return
	}
	if _, exists := st.Sequences[ev.Sequence.ID]; exists {
		tr.notice(NoticeError, ev.Sequence.ID, -1, "load: %v: %q", ErrSequenceExists, ev.Sequence.ID)
		return
	}
	st.Sequences[ev.Sequence.ID] = ev.Sequence.Clone()
	tr.notice(NoticeInfo, ev.Sequence.ID, -1, "sequence loaded: %d steps", len(ev.Sequence.Steps))
}

func (e *Engine) applyUnload(st *EngineState, ev UnloadSequence, tr *transition) {
	seq, err := st.Sequence(ev.ObsID)
	if err != nil {
		tr.notice(NoticeError, ev.ObsID, -1, "unload: %v", err)
		return
	}
	if seq.Active() {
		tr.notice(NoticeWarning, ev.ObsID, -1, "unload: %v: sequence is %s", ErrSequenceBusy, seq.State)
		return
	}
	delete(st.Sequences, ev.ObsID)
	tr.notice(NoticeInfo, ev.ObsID, -1, "sequence unloaded")
}

func (e *Engine) applyStart(st *EngineState, ev StartSequence, tr *transition) {
	seq, err := st.Sequence(ev.ObsID)
	if err != nil {
		tr.notice(NoticeError, ev.ObsID, -1, "start: %v", err)
		return
	}

	if seq.State == SeqPaused {
		if ev.FromStep != nil {
			tr.notice(NoticeWarning, ev.ObsID, seq.Cursor,
				"start: from_step %d ignored; resuming paused sequence at step %d", *ev.FromStep, seq.Cursor)
		}
		e.resumePaused(st, seq, tr)
		return
	}
	if !seq.Resumable() {
		tr.notice(NoticeWarning, ev.ObsID, -1,
			"start: %v: sequence is %s", ErrInvalidTransition, seq.State)
		return
	}

	if ev.FromStep != nil {
		if err := seq.SkipThrough(*ev.FromStep); err != nil {
			tr.notice(NoticeError, ev.ObsID, -1, "start from step: %v", err)
			return
		}
	}

	advancePastSkipped(seq)

	if seq.CompletedAllSteps() {
		seq.State = SeqCompleted
		seq.PauseRequested = false
		tr.notice(NoticeInfo, ev.ObsID, -1, "no steps remaining; sequence completed")
		return
	}

	grant := CheckResources(st, seq.ID, seq.RequiredResources())
	if !grant.Granted {
		tr.notice(NoticeWarning, ev.ObsID, seq.Cursor,
			"start refused: %v: %s", ErrResourceConflict, formatConflicts(grant.Conflicts))
		return
	}

	if seq.stepNeedsRefresh() {
		if err := seq.RefreshStep(seq.Cursor); err != nil {
			tr.notice(NoticeError, ev.ObsID, seq.Cursor, "start: %v", err)
			return
		}
	}

	seq.State = SeqRunning
	seq.PauseRequested = false
	e.launchRunnable(seq, tr)
}

// resumePaused re-enters the paused actions of the current step through
// their continuations and restarts any idle siblings. A paused sequence
// released its claim on future resources, so the resume re-runs the
// scheduling check like any start.
func (e *Engine) resumePaused(st *EngineState, seq *Sequence, tr *transition) {
	grant := CheckResources(st, seq.ID, seq.RequiredResources())
	if !grant.Granted {
		tr.notice(NoticeWarning, seq.ID, seq.Cursor,
			"resume refused: %v: %s", ErrResourceConflict, formatConflicts(grant.Conflicts))
		return
	}

	step := seq.CurrentStep()
	if step == nil {
		// Paused between steps (breakpoint or cooperative pause at a step
		// boundary after the last step): nothing to resume.
		seq.State = SeqRunning
		seq.PauseRequested = false
		e.finishOrAdvance(seq, tr)
		return
	}

	seq.State = SeqRunning
	seq.PauseRequested = false

	for _, g := range step.Groups {
		for _, a := range g {
			if a.State.Phase != PhasePaused || a.State.Pause == nil {
				continue
			}
			cont := a.State.Pause
			a.markStarted()
			tr.launches = append(tr.launches, launch{
				obsID: seq.ID, step: seq.Cursor, action: a, resume: cont,
			})
		}
	}
	e.launchRunnable(seq, tr)

	if stepFullyCompleted(step) {
		// Paused at a breakpoint or between steps: the current step is
		// already done, move on.
		e.advanceStep(seq, tr)
	}
}

func (e *Engine) applyPause(st *EngineState, ev PauseSequence, tr *transition) {
	seq, err := st.Sequence(ev.ObsID)
	if err != nil {
		tr.notice(NoticeError, ev.ObsID, -1, "pause: %v", err)
		return
	}
	if seq.State == SeqPaused {
		tr.notice(NoticeInfo, ev.ObsID, seq.Cursor, "already paused")
		return
	}
	if seq.State != SeqRunning {
		tr.notice(NoticeWarning, ev.ObsID, -1,
			"pause: %v: sequence is %s", ErrInvalidTransition, seq.State)
		return
	}

	seq.PauseRequested = true

	step := seq.CurrentStep()
	if step == nil || !stepInFlight(step) {
		seq.State = SeqPaused
		seq.PauseRequested = false
		tr.notice(NoticeInfo, ev.ObsID, seq.Cursor, "sequence paused")
		return
	}

	for _, g := range step.Groups {
		for _, a := range g {
			if a.State.Phase != PhaseStarted || a.Controls.Pause == nil {
				continue
			}
			tr.requests = append(tr.requests, controlRequest{
				name: "pause", obsID: seq.ID, fn: a.Controls.Pause,
			})
		}
	}
}

// applyHalt services both stop (graceful, hard=false) and abort
// (hard=true). Both act on the in-flight observe action of the current
// step; the sequence state settles when the terminal outcome arrives.
func (e *Engine) applyHalt(st *EngineState, obsID string, hard bool, tr *transition) {
	verb := "stop"
	if hard {
		verb = "abort"
	}
	seq, err := st.Sequence(obsID)
	if err != nil {
		tr.notice(NoticeError, obsID, -1, "%s: %v", verb, err)
		return
	}

	step := seq.CurrentStep()
	var observe *Action
	if step != nil {
		observe = step.actionFor(ResourceObserve)
	}

	switch {
	case observe != nil && observe.State.Phase == PhaseStarted:
		req := observe.Controls.Stop
		if hard {
			req = observe.Controls.Abort
		}
		if req == nil {
			tr.notice(NoticeWarning, obsID, seq.Cursor, "%s not supported by instrument", verb)
			return
		}
		seq.State = SeqStopping
		seq.PauseRequested = false
		seq.AbortRequested = hard
		tr.requests = append(tr.requests, controlRequest{name: verb, obsID: obsID, fn: req})

	case observe != nil && observe.State.Phase == PhasePaused && observe.State.Pause != nil:
		// A paused exposure is halted by resuming its continuation while
		// issuing the halt request; the outcome flows back through the
		// resumed stream.
		cont := observe.State.Pause
		req := cont.Stop
		if hard {
			req = cont.Abort
		}
		if req == nil {
			tr.notice(NoticeWarning, obsID, seq.Cursor, "%s not supported by instrument", verb)
			return
		}
		observe.markStarted()
		seq.State = SeqStopping
		seq.PauseRequested = false
		seq.AbortRequested = hard
		tr.launches = append(tr.launches, launch{
			obsID: seq.ID, step: seq.Cursor, action: observe, resume: cont,
		})
		tr.requests = append(tr.requests, controlRequest{name: verb, obsID: obsID, fn: req})

	default:
		tr.notice(NoticeInfo, obsID, seq.Cursor, "%s: no observation in progress", verb)
	}
}

func (e *Engine) applyStepFlag(st *EngineState, obsID string, index int, tr *transition, set func(*Step)) {
	seq, err := st.Sequence(obsID)
	if err != nil {
		tr.notice(NoticeError, obsID, -1, "set flag: %v", err)
		return
	}
	if index < 0 || index >= len(seq.Steps) {
		tr.notice(NoticeError, obsID, index, "set flag: %v: %d of %d", ErrInvalidStep, index, len(seq.Steps))
		return
	}
	set(seq.Steps[index])
}

func (e *Engine) applyConfigure(st *EngineState, ev ConfigureResource, tr *transition) {
	if !ValidResource(ev.Resource) || ev.Resource == ResourceObserve {
		tr.notice(NoticeError, "", -1, "configure: invalid resource %q", string(ev.Resource))
		return
	}
	if ev.Run == nil {
		tr.notice(NoticeError, "", -1, "configure: missing stream for %q", string(ev.Resource))
		return
	}

	required := make(ResourceSet)
	required.Add(ev.Resource)
	grant := CheckResources(st, "", required)
	if !grant.Granted {
		tr.notice(NoticeWarning, "", -1,
			"configure refused: %v: %s", ErrResourceConflict, formatConflicts(grant.Conflicts))
		return
	}

	a := NewAction(ActionConfigure, ev.Resource, ev.Run)
	a.markStarted()
	st.AdHoc[ev.Resource] = a
	tr.launches = append(tr.launches, launch{obsID: "", step: -1, action: a})
}

func (e *Engine) applyActionCompleted(st *EngineState, ev ActionCompleted, tr *transition) {
	if ev.ObsID == "" {
		e.applyAdHocCompleted(st, ev, tr)
		return
	}

	seq, err := st.Sequence(ev.ObsID)
	if err != nil {
		e.logger.Warn("action event for unknown observation",
			"observation", ev.ObsID, "resource", string(ev.Resource))
		return
	}
	if ev.Step < 0 || ev.Step >= len(seq.Steps) {
		return
	}
	step := seq.Steps[ev.Step]
	a := step.actionFor(ev.Resource)
	if a == nil {
		e.logger.Warn("action event for unknown resource",
			"observation", ev.ObsID, "step", ev.Step, "resource", string(ev.Resource))
		return
	}
	a.applyNotification(ev.Note)

	switch ev.Note.Kind {
	case NotifyFailed:
		seq.State = SeqFailed
		seq.PauseRequested = false
		seq.AbortRequested = false
		tr.notice(NoticeError, seq.ID, ev.Step,
			"%s failed: %v", string(ev.Resource), ev.Note.Err)

	case NotifyPaused:
		e.settlePause(seq, step, a, ev, tr)

	case NotifyCompleted:
		switch ev.Note.Result.Outcome {
		case OutcomeStopped:
			seq.State = SeqIdle
			seq.PauseRequested = false
			seq.AbortRequested = false
			tr.notice(NoticeInfo, seq.ID, ev.Step, "observation stopped")
		case OutcomeAborted:
			seq.State = SeqAborted
			seq.PauseRequested = false
			seq.AbortRequested = false
			tr.notice(NoticeWarning, seq.ID, ev.Step, "observation aborted")
		default:
			if ev.Step != seq.Cursor {
				return
			}
			switch seq.State {
			case SeqRunning:
				e.finishOrAdvance(seq, tr)
			case SeqStopping:
				e.settleHalt(seq, step, ev, tr)
			}
		}
	}
}

// settleHalt handles an OK terminal arriving while a halt is draining:
// the exposure write finished before the halt reached the instrument.
// The completed step stands. A graceful stop halts the sequence after
// the finished write; an abort that lost the race has nothing left to
// discard but the sequence still ends aborted.
func (e *Engine) settleHalt(seq *Sequence, step *Step, ev ActionCompleted, tr *transition) {
	if stepInFlight(step) {
		return
	}

	if seq.AbortRequested {
		seq.State = SeqAborted
		seq.PauseRequested = false
		seq.AbortRequested = false
		tr.notice(NoticeWarning, seq.ID, ev.Step, "observation aborted after exposure completed")
		return
	}

	// The step completed in full, so a later start resumes after it.
	if step.Status() == StepCompleted {
		seq.Cursor++
		advancePastSkipped(seq)
	}
	if seq.CompletedAllSteps() {
		seq.State = SeqCompleted
		seq.PauseRequested = false
		tr.notice(NoticeInfo, seq.ID, -1, "sequence completed")
		return
	}
	seq.State = SeqIdle
	seq.PauseRequested = false
	tr.notice(NoticeInfo, seq.ID, ev.Step, "observation stopped after exposure completed")
}

// settlePause handles a Paused terminal arriving from an action stream.
func (e *Engine) settlePause(seq *Sequence, step *Step, a *Action, ev ActionCompleted, tr *transition) {
	if seq.State == SeqStopping {
		// The pause raced the halt: re-enter the continuation and
		// re-issue the requested halt so it still lands. An abort stays
		// an abort; it is never downgraded to a graceful stop.
		verb := "stop"
		cont := a.State.Pause
		var req func(ctx context.Context) error
		if cont != nil {
			req = cont.Stop
			if seq.AbortRequested {
				verb, req = "abort", cont.Abort
			}
		}
		if req == nil {
			// The continuation cannot service the requested halt; park
			// the sequence paused rather than lose the exposure.
			seq.State = SeqPaused
			seq.PauseRequested = false
			seq.AbortRequested = false
			tr.notice(NoticeWarning, seq.ID, ev.Step, "%s not supported while paused", verb)
			return
		}
		a.markStarted()
		tr.launches = append(tr.launches, launch{
			obsID: seq.ID, step: ev.Step, action: a, resume: cont,
		})
		tr.requests = append(tr.requests, controlRequest{name: verb, obsID: seq.ID, fn: req})
		return
	}

	if !stepInFlight(step) {
		seq.State = SeqPaused
		seq.PauseRequested = false
		tr.notice(NoticeInfo, seq.ID, ev.Step, "sequence paused")
	}
}

func (e *Engine) applyAdHocCompleted(st *EngineState, ev ActionCompleted, tr *transition) {
	a, ok := st.AdHoc[ev.Resource]
	if !ok {
		e.logger.Warn("ad-hoc action event for unknown resource", "resource", string(ev.Resource))
		return
	}
	a.applyNotification(ev.Note)
	switch {
	case a.State.Phase == PhaseFailed:
		tr.notice(NoticeError, "", -1,
			"configure %s failed: %v", string(ev.Resource), a.State.Err)
		delete(st.AdHoc, ev.Resource)
	case a.State.Terminal():
		tr.notice(NoticeInfo, "", -1, "configure %s completed", string(ev.Resource))
		delete(st.AdHoc, ev.Resource)
	}
}

// finishOrAdvance drives a running sequence forward after a successful
// action completion: launch the next group, advance past completed and
// skipped steps, honour pauses and breakpoints, and complete the
// sequence when the cursor passes the last step.
func (e *Engine) finishOrAdvance(seq *Sequence, tr *transition) {
	step := seq.CurrentStep()
	if step == nil {
		seq.State = SeqCompleted
		seq.PauseRequested = false
		tr.notice(NoticeInfo, seq.ID, -1, "sequence completed")
		return
	}

	if step.Status() == StepCompleted {
		e.advanceStep(seq, tr)
		return
	}

	if seq.PauseRequested {
		if !stepInFlight(step) {
			seq.State = SeqPaused
			seq.PauseRequested = false
			tr.notice(NoticeInfo, seq.ID, seq.Cursor, "sequence paused")
		}
		return
	}
	e.launchRunnable(seq, tr)
}

// advanceStep moves the cursor past the completed current step and
// starts the next runnable one.
func (e *Engine) advanceStep(seq *Sequence, tr *transition) {
	seq.Cursor++
	advancePastSkipped(seq)

	if seq.CompletedAllSteps() {
		seq.State = SeqCompleted
		seq.PauseRequested = false
		tr.notice(NoticeInfo, seq.ID, -1, "sequence completed")
		return
	}

	if seq.PauseRequested {
		seq.State = SeqPaused
		seq.PauseRequested = false
		tr.notice(NoticeInfo, seq.ID, seq.Cursor, "sequence paused between steps")
		return
	}

	next := seq.CurrentStep()
	if next.Breakpoint {
		seq.State = SeqPaused
		seq.PauseRequested = false
		tr.notice(NoticeInfo, seq.ID, seq.Cursor, "breakpoint reached before step %d", seq.Cursor)
		return
	}
	e.launchRunnable(seq, tr)
}

// launchRunnable marks the current step's runnable actions started and
// schedules their streams.
func (e *Engine) launchRunnable(seq *Sequence, tr *transition) {
	step := seq.CurrentStep()
	if step == nil {
		return
	}
	for _, a := range step.runnableActions() {
		a.markStarted()
		tr.launches = append(tr.launches, launch{obsID: seq.ID, step: seq.Cursor, action: a})
	}
}

func (e *Engine) applyPoll(st *EngineState, tr *transition) {
	for id, seq := range st.Sequences {
		step := seq.CurrentStep()
		if step == nil {
			continue
		}
		stepIdx := seq.Cursor
		for _, g := range step.Groups {
			for r, a := range g {
				if a.State.Phase != PhasePaused || a.State.Pause == nil || a.State.Pause.Progress == nil {
					continue
				}
				progress := a.State.Pause.Progress
				tr.requests = append(tr.requests, controlRequest{
					name: "progress", obsID: id,
					fn: func(ctx context.Context) error {
						p, err := progress(ctx)
						if err != nil {
							return err
						}
						return e.queue.push(ActionProgress{
							ObsID: id, Step: stepIdx, Resource: r,
							Note: Notification{Kind: NotifyProgress, Progress: p},
						})
					},
				})
			}
		}
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// advancePastSkipped marks skip-flagged steps as skipped and moves the
// cursor past them.
func advancePastSkipped(seq *Sequence) {
	for {
		cur := seq.CurrentStep()
		if cur == nil || !cur.Skip {
			return
		}
		cur.Skipped = true
		seq.Cursor++
	}
}

// stepInFlight reports whether any action of the step is started.
func stepInFlight(st *Step) bool {
	for _, g := range st.Groups {
		for _, a := range g {
			if a.State.Phase == PhaseStarted {
				return true
			}
		}
	}
	return false
}

// stepFullyCompleted reports whether every action of every group
// completed successfully.
func stepFullyCompleted(st *Step) bool {
	for _, g := range st.Groups {
		if !g.Completed() {
			return false
		}
	}
	return len(st.Groups) > 0
}

// formatConflicts renders scheduler conflicts for notices.
func formatConflicts(conflicts []Conflict) string {
	out := ""
	for i, c := range conflicts {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s held by %s", string(c.Resource), c.HeldBy)
	}
	return out
}
