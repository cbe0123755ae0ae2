package instrument

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/meridian-obs/meridian-core/internal/engine"
	"github.com/meridian-obs/meridian-core/internal/odb"
)

// Builder turns observation definitions into engine sequences whose
// actions drive the systems of a bank.
type Builder struct {
	bank     *Bank
	notifier odb.Notifier
	files    *FileAllocator
}

// NewBuilder creates a builder over the given bank.
func NewBuilder(bank *Bank, notifier odb.Notifier, files *FileAllocator) *Builder {
	if notifier == nil {
		notifier = odb.NopNotifier{}
	}
	return &Builder{bank: bank, notifier: notifier, files: files}
}

// Sequence builds an executable sequence from a definition. The step
// factory it installs rebuilds steps on demand, so a re-started step
// gets fresh, unconsumed actions.
func (b *Builder) Sequence(def *odb.ObservationDefinition) (*engine.Sequence, error) {
	inst := engine.Resource(def.Instrument)
	if _, err := b.bank.Detector(inst); err != nil {
		return nil, err
	}
	seq, err := engine.NewSequence(def.ID, def.Title, inst, len(def.Steps), b.factory(def))
	if err != nil {
		return nil, err
	}
	seq.Observer = def.Observer
	return seq, nil
}

// factory returns the step factory for one definition.
func (b *Builder) factory(def *odb.ObservationDefinition) engine.StepFactory {
	inst := engine.Resource(def.Instrument)
	return func(i int) (*engine.Step, error) {
		if i < 0 || i >= len(def.Steps) {
			return nil, fmt.Errorf("step %d of %q out of range", i, def.ID)
		}
		sd := def.Steps[i]

		var groups []engine.ActionGroup

		if len(sd.Configs) > 0 {
			group := make(engine.ActionGroup, len(sd.Configs))
			for name, settings := range sd.Configs {
				r := engine.Resource(name)
				sys, err := b.bank.System(r)
				if err != nil {
					return nil, fmt.Errorf("step %d of %q: %w", i, def.ID, err)
				}
				group[r] = engine.NewAction(engine.ActionConfigure, r, configStream(sys, settings))
			}
			groups = append(groups, group)
		}

		det, err := b.bank.Detector(inst)
		if err != nil {
			return nil, err
		}
		exposure := time.Duration(sd.Exposure * float64(time.Second))
		groups = append(groups, engine.ActionGroup{
			engine.ResourceObserve: b.observeAction(det, def.ID, exposure),
		})

		return &engine.Step{
			Breakpoint: sd.Breakpoint,
			Skip:       sd.Skip,
			Groups:     groups,
		}, nil
	}
}

// ConfigureAction builds a standalone configure action for the
// engineering interface.
func (b *Builder) ConfigureAction(r engine.Resource, settings map[string]any) (*engine.Action, error) {
	sys, err := b.bank.System(r)
	if err != nil {
		return nil, err
	}
	return engine.NewAction(engine.ActionConfigure, r, configStream(sys, settings)), nil
}

// ConfigureStream returns the stream producer for an out-of-band
// configure on one resource, for callers that hand the stream to the
// engine themselves.
func (b *Builder) ConfigureStream(r engine.Resource, settings map[string]any) (engine.StreamFunc, error) {
	sys, err := b.bank.System(r)
	if err != nil {
		return nil, err
	}
	return configStream(sys, settings), nil
}

// configStream produces the single-shot stream of a configure action.
func configStream(sys System, settings map[string]any) engine.StreamFunc {
	return func(ctx context.Context, out chan<- engine.Notification) {
		if err := sys.ApplyConfig(ctx, settings); err != nil {
			out <- engine.Notification{
				Kind: engine.NotifyFailed,
				Err:  fmt.Errorf("configuring %s: %w", sys.Resource(), err),
			}
			return
		}
		out <- engine.Notification{
			Kind:   engine.NotifyCompleted,
			Result: engine.Result{Outcome: engine.OutcomeOK},
		}
	}
}

// exposureControls routes the action's cooperative control requests to
// the exposure handle once one exists. Requests before the exposure has
// started return ErrNoExposure.
type exposureControls struct {
	mu     sync.Mutex
	handle ExposureHandle
}

func (c *exposureControls) set(h ExposureHandle) {
	c.mu.Lock()
	c.handle = h
	c.mu.Unlock()
}

func (c *exposureControls) get() (ExposureHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle == nil {
		return nil, ErrNoExposure
	}
	return c.handle, nil
}

// observeAction builds the observe action for one step: allocate a
// dataset label, start the exposure, and relay its events into the
// action's result stream.
func (b *Builder) observeAction(det Detector, obsID string, total time.Duration) *engine.Action {
	ctl := &exposureControls{}

	stream := func(ctx context.Context, out chan<- engine.Notification) {
		fileID := b.files.Next()
		out <- engine.Notification{Kind: engine.NotifyFileID, FileID: fileID}
		b.notifier.DatasetStart(obsID, fileID)

		h, err := det.StartExposure(ctx, total, fileID)
		if err != nil {
			out <- engine.Notification{
				Kind: engine.NotifyFailed,
				Err:  fmt.Errorf("starting exposure on %s: %w", det.Resource(), err),
			}
			return
		}
		ctl.set(h)

		b.relayExposure(ctx, h, obsID, fileID, out)
	}

	a := engine.NewAction(engine.ActionObserve, engine.ResourceObserve, stream)
	a.Controls = engine.Controls{
		Pause: func(ctx context.Context) error {
			h, err := ctl.get()
			if err != nil {
				return err
			}
			return h.Pause(ctx)
		},
		Stop: func(ctx context.Context) error {
			h, err := ctl.get()
			if err != nil {
				return err
			}
			return h.Stop(ctx)
		},
		Abort: func(ctx context.Context) error {
			h, err := ctl.get()
			if err != nil {
				return err
			}
			return h.Abort(ctx)
		},
	}
	return a
}

// relayExposure converts exposure handle events into action stream
// notifications. On a pause it emits a continuation whose resume
// re-enters this relay, so a resumed exposure keeps the same handle and
// dataset label.
func (b *Builder) relayExposure(ctx context.Context, h ExposureHandle, obsID, fileID string, out chan<- engine.Notification) {
	for ev := range h.Events() {
		switch ev.Kind {
		case ExposureProgress:
			out <- engine.Notification{
				Kind: engine.NotifyProgress,
				Progress: engine.Progress{
					FileID:    fileID,
					Total:     ev.Total,
					Remaining: ev.Remaining,
				},
			}

		case ExposurePaused:
			out <- engine.Notification{
				Kind: engine.NotifyPaused,
				Pause: &engine.Continuation{
					Total:     ev.Total,
					Remaining: ev.Remaining,
					Resume: func(ctx context.Context, out chan<- engine.Notification) {
						// ErrNoExposure means the exposure already reached a
						// final disposition (a stop or abort raced the resume);
						// the pending event is still relayed below.
						if err := h.Resume(ctx); err != nil && !errors.Is(err, ErrNoExposure) {
							out <- engine.Notification{
								Kind: engine.NotifyFailed,
								Err:  fmt.Errorf("resuming exposure %s: %w", fileID, err),
							}
							return
						}
						b.relayExposure(ctx, h, obsID, fileID, out)
					},
					Progress: h.Progress,
					Stop:     h.Stop,
					Abort:    h.Abort,
				},
			}
			return

		case ExposureCompleted:
			b.notifier.DatasetComplete(obsID, fileID)
			out <- engine.Notification{
				Kind:   engine.NotifyCompleted,
				Result: engine.Result{Outcome: engine.OutcomeOK, FileID: fileID},
			}
			return

		case ExposureStopped:
			out <- engine.Notification{
				Kind:   engine.NotifyCompleted,
				Result: engine.Result{Outcome: engine.OutcomeStopped, FileID: fileID},
			}
			return

		case ExposureAborted:
			b.notifier.ObservationAbort(obsID, fileID)
			out <- engine.Notification{
				Kind:   engine.NotifyCompleted,
				Result: engine.Result{Outcome: engine.OutcomeAborted},
			}
			return

		case ExposureFailed:
			out <- engine.Notification{Kind: engine.NotifyFailed, Err: ev.Err}
			return
		}
	}

	// Event channel closed without a final disposition.
	out <- engine.Notification{
		Kind: engine.NotifyFailed,
		Err:  fmt.Errorf("exposure %s ended without a final event", fileID),
	}
}
