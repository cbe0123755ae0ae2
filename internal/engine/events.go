package engine

// Event is one element of the engine's FIFO. The sum of user commands,
// action callbacks and the periodic poll tick. Every event is applied as
// a pure transition of the engine state inside the single loop goroutine.
//
// The type set is sealed: all implementations live in this package.
type Event interface {
	// Kind names the event for logging, auditing and sink payloads.
	Kind() string
	// Client is the id of the remote client that issued the command, for
	// notification targeting. Internal events return "".
	Client() string

	isEvent()
}

// Command carries the client/session identifier common to all user
// commands. Embed it in a command event and set ClientID to the issuing
// client's id.
type Command struct {
	ClientID string
}

// Client implements Event.
func (c Command) Client() string { return c.ClientID }
func (Command) isEvent()         {}

// internalEvent is the base of engine-generated events.
type internalEvent struct{}

func (internalEvent) Client() string { return "" }
func (internalEvent) isEvent()       {}

// ─── User commands ──────────────────────────────────────────────────────────

// LoadSequence adds a built sequence to the engine state.
type LoadSequence struct {
	Command
	Sequence *Sequence
}

// Kind implements Event.
func (LoadSequence) Kind() string { return "load" }

// UnloadSequence removes an idle sequence from the engine state.
type UnloadSequence struct {
	Command
	ObsID string
}

// Kind implements Event.
func (UnloadSequence) Kind() string { return "unload" }

// StartSequence starts (or resumes) a sequence. When FromStep is set, all
// steps before it are marked skipped first.
type StartSequence struct {
	Command
	ObsID    string
	FromStep *int
}

// Kind implements Event.
func (StartSequence) Kind() string { return "start" }

// PauseSequence requests a cooperative pause of a running sequence.
type PauseSequence struct {
	Command
	ObsID string
}

// Kind implements Event.
func (PauseSequence) Kind() string { return "pause" }

// StopSequence requests a graceful stop of the in-flight observe action:
// the current exposure is written out, then the sequence halts.
type StopSequence struct {
	Command
	ObsID string
}

// Kind implements Event.
func (StopSequence) Kind() string { return "stop" }

// AbortSequence requests a hard abort, discarding in-progress data.
// Abort wins over a concurrently requested stop.
type AbortSequence struct {
	Command
	ObsID string
}

// Kind implements Event.
func (AbortSequence) Kind() string { return "abort" }

// SetBreakpoint toggles the breakpoint flag on a step.
type SetBreakpoint struct {
	Command
	ObsID string
	Step  int
	On    bool
}

// Kind implements Event.
func (SetBreakpoint) Kind() string { return "set_breakpoint" }

// SetSkip toggles the skip flag on a step.
type SetSkip struct {
	Command
	ObsID string
	Step  int
	On    bool
}

// Kind implements Event.
func (SetSkip) Kind() string { return "set_skip" }

// SetOperator records the telescope operator identity.
type SetOperator struct {
	Command
	Name string
}

// Kind implements Event.
func (SetOperator) Kind() string { return "set_operator" }

// SetObserver records the observer identity for one observation.
type SetObserver struct {
	Command
	ObsID string
	Name  string
}

// Kind implements Event.
func (SetObserver) Kind() string { return "set_observer" }

// SetConditions replaces the whole ambient condition tuple.
type SetConditions struct {
	Command
	Conditions Conditions
}

// Kind implements Event.
func (SetConditions) Kind() string { return "set_conditions" }

// SetImageQuality updates the image quality bin.
type SetImageQuality struct {
	Command
	Value ImageQuality
}

// Kind implements Event.
func (SetImageQuality) Kind() string { return "set_image_quality" }

// SetCloudCover updates the cloud cover bin.
type SetCloudCover struct {
	Command
	Value CloudCover
}

// Kind implements Event.
func (SetCloudCover) Kind() string { return "set_cloud_cover" }

// SetWaterVapor updates the water vapour bin.
type SetWaterVapor struct {
	Command
	Value WaterVapor
}

// Kind implements Event.
func (SetWaterVapor) Kind() string { return "set_water_vapor" }

// SetSkyBackground updates the sky background bin.
type SetSkyBackground struct {
	Command
	Value SkyBackground
}

// Kind implements Event.
func (SetSkyBackground) Kind() string { return "set_sky_background" }

// ConfigureResource applies a single subsystem configuration outside the
// normal step flow. Subject to the same resource exclusion check as a
// sequence start, at the granularity of the one resource.
type ConfigureResource struct {
	Command
	Resource Resource
	Run      StreamFunc
}

// Kind implements Event.
func (ConfigureResource) Kind() string { return "configure_resource" }

// Sync requests a fresh state emission without changing anything. Used
// by clients that reconnect and need the current snapshot pushed through
// the normal emission path.
type Sync struct {
	Command
}

// Kind implements Event.
func (Sync) Kind() string { return "sync" }

// Poll triggers a progress sample of in-flight observe actions. Emitted
// periodically by the engine's ticker; carries no payload.
type Poll struct {
	internalEvent
}

// Kind implements Event.
func (Poll) Kind() string { return "poll" }

// ─── Action callbacks ───────────────────────────────────────────────────────

// ActionStarted reports that a launched action has begun producing its
// result stream.
type ActionStarted struct {
	internalEvent
	ObsID    string
	Step     int
	Resource Resource
}

// Kind implements Event.
func (ActionStarted) Kind() string { return "action_started" }

// ActionProgress relays a non-terminal notification from an action's
// result stream (elapsed time, dataset file id allocation).
type ActionProgress struct {
	internalEvent
	ObsID    string
	Step     int
	Resource Resource
	Note     Notification
}

// Kind implements Event.
func (ActionProgress) Kind() string { return "action_progress" }

// ActionCompleted relays the terminal (or pause) notification of an
// action's result stream back into the loop.
type ActionCompleted struct {
	internalEvent
	ObsID    string
	Step     int
	Resource Resource
	Note     Notification
}

// Kind implements Event.
func (ActionCompleted) Kind() string { return "action_completed" }
