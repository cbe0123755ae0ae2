package instrument

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/meridian-obs/meridian-core/internal/engine"
)

// SimSystem is a simulated subsystem that accepts any configuration
// after a fixed latency.
type SimSystem struct {
	resource engine.Resource
	latency  time.Duration
}

// NewSimSystem creates a simulated system for the given resource.
func NewSimSystem(resource engine.Resource, latency time.Duration) *SimSystem {
	return &SimSystem{resource: resource, latency: latency}
}

// Resource implements System.
func (s *SimSystem) Resource() engine.Resource {
	return s.resource
}

// ApplyConfig implements System. It succeeds after the configured
// latency, or earlier if the context is cancelled.
func (s *SimSystem) ApplyConfig(ctx context.Context, _ map[string]any) error {
	if s.latency <= 0 {
		return nil
	}
	select {
	case <-time.After(s.latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SimDetector is a simulated detector whose exposures progress on a
// fixed tick. It supports the full pause/stop/abort protocol.
type SimDetector struct {
	*SimSystem
	tick time.Duration
}

// NewSimDetector creates a simulated detector.
//
// Parameters:
//   - resource: the instrument resource this detector occupies
//   - latency: configuration latency
//   - tick: wall-clock duration of one unit of exposure progress
func NewSimDetector(resource engine.Resource, latency, tick time.Duration) *SimDetector {
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}
	return &SimDetector{
		SimSystem: NewSimSystem(resource, latency),
		tick:      tick,
	}
}

// StartExposure implements Detector.
func (d *SimDetector) StartExposure(ctx context.Context, total time.Duration, _ string) (ExposureHandle, error) {
	h := &simExposure{
		tick:      d.tick,
		total:     total,
		remaining: total,
		// The one-slot buffer lets the loop deliver a final disposition and
		// exit even when the consumer is between the paused event and its
		// resume, so a stop-while-paused cannot wedge the loop.
		events: make(chan ExposureEvent, 1),
		cmds:   make(chan simCommand),
		done:   make(chan struct{}),
	}
	go h.run(ctx)
	return h, nil
}

// simCommand is a control request delivered to the exposure loop.
type simCommand int

const (
	cmdPause simCommand = iota
	cmdResume
	cmdStop
	cmdAbort
)

// simExposure drives one simulated exposure on its own goroutine.
type simExposure struct {
	tick time.Duration

	events chan ExposureEvent
	cmds   chan simCommand
	done   chan struct{}

	mu        sync.Mutex
	total     time.Duration
	remaining time.Duration
}

// run is the exposure loop. It decrements remaining by one tick at a
// time, reacting to control commands between ticks.
func (h *simExposure) run(ctx context.Context) {
	defer close(h.events)
	defer close(h.done)

	paused := false
	for {
		h.mu.Lock()
		remaining := h.remaining
		total := h.total
		h.mu.Unlock()

		if remaining <= 0 {
			h.events <- ExposureEvent{Kind: ExposureCompleted, Total: total}
			return
		}

		if paused {
			// Quiescent until a command arrives. Accumulated exposure is
			// preserved.
			select {
			case cmd := <-h.cmds:
				switch cmd {
				case cmdResume:
					paused = false
				case cmdStop:
					h.events <- ExposureEvent{Kind: ExposureStopped, Total: total, Remaining: remaining}
					return
				case cmdAbort:
					h.events <- ExposureEvent{Kind: ExposureAborted, Total: total, Remaining: remaining}
					return
				case cmdPause:
					// Already paused.
				}
			case <-ctx.Done():
				h.events <- ExposureEvent{Kind: ExposureFailed, Err: ctx.Err()}
				return
			}
			continue
		}

		select {
		case <-time.After(h.tick):
			h.mu.Lock()
			h.remaining -= h.tick
			if h.remaining < 0 {
				h.remaining = 0
			}
			remaining = h.remaining
			h.mu.Unlock()
			h.events <- ExposureEvent{Kind: ExposureProgress, Total: total, Remaining: remaining}
		case cmd := <-h.cmds:
			switch cmd {
			case cmdPause:
				paused = true
				h.events <- ExposureEvent{Kind: ExposurePaused, Total: total, Remaining: remaining}
			case cmdStop:
				h.events <- ExposureEvent{Kind: ExposureStopped, Total: total, Remaining: remaining}
				return
			case cmdAbort:
				h.events <- ExposureEvent{Kind: ExposureAborted, Total: total, Remaining: remaining}
				return
			case cmdResume:
				// Not paused; ignore.
			}
		case <-ctx.Done():
			h.events <- ExposureEvent{Kind: ExposureFailed, Err: ctx.Err()}
			return
		}
	}
}

// Events implements ExposureHandle.
func (h *simExposure) Events() <-chan ExposureEvent {
	return h.events
}

// send delivers a command unless the exposure has already ended.
func (h *simExposure) send(ctx context.Context, cmd simCommand) error {
	select {
	case h.cmds <- cmd:
		return nil
	case <-h.done:
		return ErrNoExposure
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pause implements ExposureHandle.
func (h *simExposure) Pause(ctx context.Context) error {
	return h.send(ctx, cmdPause)
}

// Resume implements ExposureHandle.
func (h *simExposure) Resume(ctx context.Context) error {
	return h.send(ctx, cmdResume)
}

// Stop implements ExposureHandle.
func (h *simExposure) Stop(ctx context.Context) error {
	return h.send(ctx, cmdStop)
}

// Abort implements ExposureHandle.
func (h *simExposure) Abort(ctx context.Context) error {
	return h.send(ctx, cmdAbort)
}

// Progress implements ExposureHandle.
func (h *simExposure) Progress(_ context.Context) (engine.Progress, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return engine.Progress{Total: h.total, Remaining: h.remaining}, nil
}

// SimBank builds a bank of simulated systems covering the TCS, the
// calibration unit and the given instruments.
func SimBank(latency, tick time.Duration, instruments ...engine.Resource) *Bank {
	systems := []System{
		NewSimSystem(engine.ResourceTCS, latency),
		NewSimSystem(engine.ResourceGcal, latency),
	}
	for _, r := range instruments {
		systems = append(systems, NewSimDetector(r, latency, tick))
	}
	return NewBank(systems...)
}

var _ Detector = (*SimDetector)(nil)

// String implements fmt.Stringer for log output.
func (s *SimSystem) String() string {
	return fmt.Sprintf("sim(%s)", s.resource)
}
