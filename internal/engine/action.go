package engine

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ActionKind tags what an action does to the hardware it occupies.
type ActionKind string

// Action kinds.
const (
	ActionConfigure ActionKind = "configure"
	ActionObserve   ActionKind = "observe"
	ActionOther     ActionKind = "other"
)

// Outcome is the terminal disposition of a completed action.
type Outcome string

// Outcomes.
const (
	OutcomeOK      Outcome = "ok"
	OutcomeStopped Outcome = "stopped"
	OutcomeAborted Outcome = "aborted"
)

// Result is the payload of a completed action.
type Result struct {
	Outcome Outcome `json:"outcome"`
	// FileID is the dataset file id allocated for an observe action.
	// Empty for configure actions.
	FileID  string `json:"file_id,omitempty"`
	Message string `json:"message,omitempty"`
}

// Progress is a point-in-time report of a long-running action.
type Progress struct {
	FileID    string        `json:"file_id,omitempty"`
	Total     time.Duration `json:"total"`
	Remaining time.Duration `json:"remaining"`
}

// NotificationKind discriminates the elements of an action's result stream.
type NotificationKind string

// Notification kinds. A stream carries zero or more non-terminal
// notifications (progress, file id allocation) followed by exactly one
// terminal notification (completed, paused or failed).
const (
	NotifyProgress  NotificationKind = "progress"
	NotifyFileID    NotificationKind = "file_id"
	NotifyCompleted NotificationKind = "completed"
	NotifyPaused    NotificationKind = "paused"
	NotifyFailed    NotificationKind = "failed"
)

// Notification is one element of an action's result stream.
type Notification struct {
	Kind     NotificationKind
	Progress Progress
	FileID   string
	Result   Result
	Pause    *Continuation
	Err      error
}

// Terminal reports whether the notification ends the stream.
func (n Notification) Terminal() bool {
	switch n.Kind {
	case NotifyCompleted, NotifyPaused, NotifyFailed:
		return true
	default:
		return false
	}
}

// Continuation carries everything needed to re-enter a paused action
// without restarting it from scratch: a resume stream for the remaining
// work, a progress query, and the cooperative stop/abort requests.
type Continuation struct {
	// Total is the full duration of the paused operation (e.g. the
	// complete exposure time, not just the remaining part).
	Total time.Duration

	// Remaining is the portion outstanding at the moment of the pause.
	Remaining time.Duration

	// Resume produces the result stream for the remaining work.
	Resume StreamFunc

	// Progress queries current elapsed/remaining time without disturbing
	// the paused operation. May be nil when the hardware cannot report.
	Progress func(ctx context.Context) (Progress, error)

	// Stop requests a graceful halt: finish writing the current exposure,
	// then stop. Cooperative, not guaranteed to take effect immediately.
	Stop func(ctx context.Context) error

	// Abort requests a hard halt, discarding in-progress data.
	Abort func(ctx context.Context) error
}

// Controls are the cooperative cancellation requests captured when an
// action is created. Invoking one asks the action's in-flight body to
// wind down; the outcome arrives later through the result stream as a
// terminal notification. Any field may be nil when the hardware offers no
// such request.
type Controls struct {
	// Pause requests a mid-operation pause; the stream then terminates
	// with a Paused notification carrying a continuation.
	Pause func(ctx context.Context) error
	// Stop requests a graceful halt (finish the current exposure write).
	Stop func(ctx context.Context) error
	// Abort requests a hard halt, discarding in-progress data.
	Abort func(ctx context.Context) error
}

// StreamFunc produces an action's notifications. Implementations send zero
// or more non-terminal notifications followed by exactly one terminal
// notification, then return. The channel is closed by the stream runner,
// not by the producer.
type StreamFunc func(ctx context.Context, out chan<- Notification)

// ActionPhase is the lifecycle phase of an action.
type ActionPhase string

// Action phases.
const (
	PhaseIdle      ActionPhase = "idle"
	PhaseStarted   ActionPhase = "started"
	PhasePaused    ActionPhase = "paused"
	PhaseCompleted ActionPhase = "completed"
	PhaseFailed    ActionPhase = "failed"
)

// ActionState is the tagged state of an action. Exactly the fields implied
// by Phase are populated: Pause for PhasePaused, Result for PhaseCompleted,
// Err for PhaseFailed.
type ActionState struct {
	Phase  ActionPhase
	Pause  *Continuation
	Result *Result
	Err    error
}

// Terminal reports whether the action can no longer change state.
// Paused is not terminal: the continuation can re-enter the action.
func (s ActionState) Terminal() bool {
	return s.Phase == PhaseCompleted || s.Phase == PhaseFailed
}

// Settled reports whether the action has left the in-flight set: either
// terminal or paused. Group sequencing waits for every action of a group
// to settle before the next group may start.
func (s ActionState) Settled() bool {
	return s.Terminal() || s.Phase == PhasePaused
}

// Action is the atomic unit of hardware work: a lazily-produced stream of
// progress notifications with a single terminal result, plus the engine's
// view of its completion state.
//
// The engine is the only writer of State, and only from inside its event
// loop. Action bodies communicate exclusively through the result stream.
type Action struct {
	Kind     ActionKind
	Resource Resource
	State    ActionState

	// Controls are the cancellation requests for the running body.
	Controls Controls

	// run produces the initial result stream. Consumed at most once; a
	// paused action is re-entered through its continuation's Resume.
	run      StreamFunc
	consumed bool
	mu       sync.Mutex
}

// NewAction creates an idle action occupying the given resource.
func NewAction(kind ActionKind, resource Resource, run StreamFunc) *Action {
	return &Action{
		Kind:     kind,
		Resource: resource,
		State:    ActionState{Phase: PhaseIdle},
		run:      run,
	}
}

// Start begins execution and returns the action's result stream. It
// returns immediately; the caller must not assume completion. The stream
// is single-consumption: a second Start returns ErrStreamConsumed.
//
// The returned channel delivers every notification the action body
// produces and is guaranteed to end with exactly one terminal
// notification, even if the body panics or returns without one.
func (a *Action) Start(ctx context.Context) (<-chan Notification, error) {
	a.mu.Lock()
	if a.consumed {
		a.mu.Unlock()
		return nil, ErrStreamConsumed
	}
	a.consumed = true
	run := a.run
	a.mu.Unlock()

	if run == nil {
		run = func(_ context.Context, out chan<- Notification) {
			out <- Notification{Kind: NotifyCompleted, Result: Result{Outcome: OutcomeOK}}
		}
	}

	return runStream(ctx, run), nil
}

// ResumeStream runs a continuation's resume function with the same
// terminal guarantees as Start.
func ResumeStream(ctx context.Context, cont *Continuation) <-chan Notification {
	return runStream(ctx, cont.Resume)
}

// runStream executes a StreamFunc on its own goroutine, converting panics
// into a Failed terminal notification and synthesising one if the producer
// returns without emitting a terminal. The engine therefore always
// receives a well-formed stream.
func runStream(ctx context.Context, run StreamFunc) <-chan Notification {
	out := make(chan Notification)
	inner := make(chan Notification)

	go func() {
		defer close(out)

		terminal := false
		for n := range inner {
			out <- n
			if n.Terminal() {
				terminal = true
			}
		}
		if !terminal {
			out <- Notification{
				Kind: NotifyFailed,
				Err:  fmt.Errorf("action ended without terminal notification"),
			}
		}
	}()

	go func() {
		defer close(inner)
		defer func() {
			if r := recover(); r != nil {
				inner <- Notification{
					Kind: NotifyFailed,
					Err:  fmt.Errorf("action panic: %v", r),
				}
			}
		}()
		run(ctx, inner)
	}()

	return out
}

// applyNotification folds a terminal or pause notification into the
// action's state. Non-terminal notifications leave state untouched.
// Terminal states are frozen: once Completed or Failed the state never
// changes again.
func (a *Action) applyNotification(n Notification) {
	if a.State.Terminal() {
		return
	}
	switch n.Kind {
	case NotifyCompleted:
		result := n.Result
		a.State = ActionState{Phase: PhaseCompleted, Result: &result}
	case NotifyPaused:
		a.State = ActionState{Phase: PhasePaused, Pause: n.Pause}
	case NotifyFailed:
		a.State = ActionState{Phase: PhaseFailed, Err: n.Err}
	case NotifyProgress, NotifyFileID:
		// Progress does not change lifecycle phase.
	}
}

// markStarted transitions an idle or paused action to Started.
func (a *Action) markStarted() {
	if !a.State.Terminal() {
		a.State = ActionState{Phase: PhaseStarted}
	}
}

// Clone returns a copy of the action sharing the (immutable) stream
// producer but with an independent state value. Continuations and results
// are shared by pointer; they are never mutated after creation.
func (a *Action) Clone() *Action {
	cpy := &Action{
		Kind:     a.Kind,
		Resource: a.Resource,
		State:    a.State,
		Controls: a.Controls,
		run:      a.run,
		consumed: a.consumed,
	}
	return cpy
}
