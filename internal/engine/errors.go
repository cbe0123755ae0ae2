package engine

import "errors"

// Domain errors for the engine package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, engine.ErrSequenceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrSequenceNotFound is returned when an observation id is not loaded.
	ErrSequenceNotFound = errors.New("engine: sequence not found")

	// ErrSequenceExists is returned when loading an observation id that is
	// already present in the engine state.
	ErrSequenceExists = errors.New("engine: sequence already loaded")

	// ErrSequenceBusy is returned when unloading a sequence that still has
	// actions in flight.
	ErrSequenceBusy = errors.New("engine: sequence busy")

	// ErrInvalidTransition is returned when a command is not legal in the
	// sequence's current state (e.g. start on a running sequence).
	ErrInvalidTransition = errors.New("engine: invalid state transition")

	// ErrResourceConflict is returned by the scheduler when a required
	// resource is held by another sequence.
	ErrResourceConflict = errors.New("engine: resource in use")

	// ErrInvalidStep is returned when a step index is out of range.
	ErrInvalidStep = errors.New("engine: invalid step index")

	// ErrInvalidCondition is returned when a condition value is not a
	// recognised percentile bin.
	ErrInvalidCondition = errors.New("engine: invalid condition value")

	// ErrActionTerminal is returned when resuming, stopping or aborting an
	// action that has already reached a terminal state.
	ErrActionTerminal = errors.New("engine: action already terminal")

	// ErrStreamConsumed is returned when an action's result stream is
	// started a second time. Streams are single-consumption.
	ErrStreamConsumed = errors.New("engine: result stream already consumed")

	// ErrEngineClosed is returned when offering an event to a stopped engine.
	ErrEngineClosed = errors.New("engine: closed")
)
