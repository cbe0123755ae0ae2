package instrument

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-obs/meridian-core/internal/engine"
)

// System is one controllable observatory subsystem.
type System interface {
	// Resource identifies which engine resource this system occupies.
	Resource() engine.Resource

	// ApplyConfig drives the hardware to the demanded settings, blocking
	// until the subsystem reports the configuration complete.
	ApplyConfig(ctx context.Context, settings map[string]any) error
}

// Detector is a system that can acquire datasets.
type Detector interface {
	System

	// StartExposure begins acquiring one dataset and returns a handle for
	// driving it. The call returns as soon as the exposure is underway.
	StartExposure(ctx context.Context, total time.Duration, fileID string) (ExposureHandle, error)
}

// ExposureEventKind discriminates exposure handle events.
type ExposureEventKind string

// Exposure event kinds. A handle's event channel carries zero or more
// progress events followed by exactly one of the remaining kinds.
const (
	ExposureProgress  ExposureEventKind = "progress"
	ExposurePaused    ExposureEventKind = "paused"
	ExposureCompleted ExposureEventKind = "completed"
	ExposureStopped   ExposureEventKind = "stopped"
	ExposureAborted   ExposureEventKind = "aborted"
	ExposureFailed    ExposureEventKind = "failed"
)

// ExposureEvent is one event from an in-flight exposure.
type ExposureEvent struct {
	Kind      ExposureEventKind
	Total     time.Duration
	Remaining time.Duration
	Err       error
}

// ExposureHandle drives one in-flight exposure.
//
// The control requests are cooperative: they ask the detector to wind
// down and return once the request is delivered. The outcome arrives
// later on the event channel (Paused, Stopped, Aborted).
type ExposureHandle interface {
	// Events delivers progress and the final disposition. The channel is
	// closed after a final event (completed, stopped, aborted, failed).
	// A paused event is not final: the channel stays open, quiescent,
	// until Resume is called.
	Events() <-chan ExposureEvent

	// Pause suspends the exposure, preserving accumulated charge.
	Pause(ctx context.Context) error

	// Resume continues a paused exposure. Events resume flowing.
	Resume(ctx context.Context) error

	// Stop ends the exposure gracefully; the dataset written so far is kept.
	Stop(ctx context.Context) error

	// Abort ends the exposure immediately, discarding the dataset.
	Abort(ctx context.Context) error

	// Progress reports elapsed and remaining time without disturbing the
	// exposure. Valid while the exposure is running or paused.
	Progress(ctx context.Context) (engine.Progress, error)
}

// Bank is the set of systems available to the engine, keyed by resource.
type Bank struct {
	systems map[engine.Resource]System
}

// NewBank creates a bank holding the given systems.
func NewBank(systems ...System) *Bank {
	b := &Bank{systems: make(map[engine.Resource]System, len(systems))}
	for _, s := range systems {
		b.systems[s.Resource()] = s
	}
	return b
}

// System returns the system occupying the given resource.
func (b *Bank) System(r engine.Resource) (System, error) {
	s, ok := b.systems[r]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSystem, r)
	}
	return s, nil
}

// Detector returns the detector occupying the given resource.
func (b *Bank) Detector(r engine.Resource) (Detector, error) {
	s, err := b.System(r)
	if err != nil {
		return nil, err
	}
	d, ok := s.(Detector)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotDetector, r)
	}
	return d, nil
}

// Resources returns every resource with a registered system.
func (b *Bank) Resources() []engine.Resource {
	set := make(engine.ResourceSet, len(b.systems))
	for r := range b.systems {
		set.Add(r)
	}
	return set.Sorted()
}
