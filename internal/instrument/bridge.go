package instrument

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-obs/meridian-core/internal/engine"
	"github.com/meridian-obs/meridian-core/internal/infrastructure/mqtt"
)

// Messenger is the slice of the MQTT client the bridge needs. Satisfied
// by *mqtt.Client; tests substitute an in-memory implementation.
type Messenger interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// bridgeCommand is the wire format of a command published to a
// subsystem bridge.
type bridgeCommand struct {
	RequestID string         `json:"request_id"`
	Command   string         `json:"command"`
	Settings  map[string]any `json:"settings,omitempty"`
	FileID    string         `json:"file_id,omitempty"`
	// Exposure is the requested exposure time in seconds.
	Exposure float64 `json:"exposure,omitempty"`
	// Ref names the observe request a control command applies to.
	Ref string `json:"ref,omitempty"`
}

// bridgeAck is the wire format of a bridge acknowledgement.
type bridgeAck struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	// Total and Remaining are exposure times in seconds; present on
	// in_progress and paused acks for observe requests.
	Total     float64 `json:"total,omitempty"`
	Remaining float64 `json:"remaining,omitempty"`
}

// Acknowledgement statuses a bridge may report.
const (
	ackInProgress = "in_progress"
	ackCompleted  = "completed"
	ackFailed     = "failed"
	ackPaused     = "paused"
	ackStopped    = "stopped"
	ackAborted    = "aborted"
)

// BridgeSystem drives a real subsystem through its MQTT bridge process.
// Each command round-trips over the broker: publish on the command
// topic, collect acknowledgements on the per-request ack topic.
type BridgeSystem struct {
	resource   engine.Resource
	msg        Messenger
	qos        byte
	ackTimeout time.Duration
}

// NewBridgeSystem creates a bridge-backed system for the given resource.
// The MQTT system segment is the resource name itself.
func NewBridgeSystem(resource engine.Resource, msg Messenger, qos byte, ackTimeout time.Duration) *BridgeSystem {
	if ackTimeout <= 0 {
		ackTimeout = 30 * time.Second
	}
	return &BridgeSystem{resource: resource, msg: msg, qos: qos, ackTimeout: ackTimeout}
}

// Resource implements System.
func (b *BridgeSystem) Resource() engine.Resource {
	return b.resource
}

// ApplyConfig implements System. It publishes a configure command and
// waits for the bridge to acknowledge completion. Every acknowledgement
// restarts the timeout window, so a slow mechanism that keeps reporting
// in_progress is not cut off.
func (b *BridgeSystem) ApplyConfig(ctx context.Context, settings map[string]any) error {
	requestID := uuid.NewString()
	acks, unsubscribe, err := b.listen(requestID)
	if err != nil {
		return err
	}
	defer unsubscribe()

	if err := b.publish(bridgeCommand{
		RequestID: requestID,
		Command:   "configure",
		Settings:  settings,
	}); err != nil {
		return err
	}

	timer := time.NewTimer(b.ackTimeout)
	defer timer.Stop()

	for {
		select {
		case ack := <-acks:
			switch ack.Status {
			case ackCompleted:
				return nil
			case ackFailed:
				return fmt.Errorf("%w: %s: %s", ErrCommandFailed, b.resource, ack.Error)
			default:
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(b.ackTimeout)
			}
		case <-timer.C:
			return fmt.Errorf("%w: %s configure %s", ErrAckTimeout, b.resource, requestID)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// listen subscribes to the per-request ack topic and returns a channel
// of decoded acknowledgements plus the unsubscribe function.
func (b *BridgeSystem) listen(requestID string) (<-chan bridgeAck, func(), error) {
	topic := mqtt.Topics{}.SystemAck(string(b.resource), requestID)
	acks := make(chan bridgeAck, 16)

	handler := func(_ string, payload []byte) error {
		var ack bridgeAck
		if err := json.Unmarshal(payload, &ack); err != nil {
			return fmt.Errorf("decoding ack for %s: %w", requestID, err)
		}
		select {
		case acks <- ack:
		default:
			// Ack buffer full; drop rather than block the MQTT callback.
		}
		return nil
	}

	if err := b.msg.Subscribe(topic, b.qos, handler); err != nil {
		return nil, nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}

	return acks, func() { _ = b.msg.Unsubscribe(topic) }, nil
}

// publish serialises and sends one command on the subsystem's command
// topic.
func (b *BridgeSystem) publish(cmd bridgeCommand) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encoding command: %w", err)
	}
	topic := mqtt.Topics{}.SystemCommand(string(b.resource), cmd.RequestID)
	if err := b.msg.Publish(topic, payload, b.qos, false); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// BridgeDetector is a bridge-backed system that can acquire datasets.
type BridgeDetector struct {
	*BridgeSystem
}

// NewBridgeDetector creates a bridge-backed detector.
func NewBridgeDetector(resource engine.Resource, msg Messenger, qos byte, ackTimeout time.Duration) *BridgeDetector {
	return &BridgeDetector{BridgeSystem: NewBridgeSystem(resource, msg, qos, ackTimeout)}
}

// StartExposure implements Detector. It publishes an observe command
// and returns a handle that translates the bridge's acknowledgements
// into exposure events.
func (d *BridgeDetector) StartExposure(_ context.Context, total time.Duration, fileID string) (ExposureHandle, error) {
	requestID := uuid.NewString()
	acks, unsubscribe, err := d.listen(requestID)
	if err != nil {
		return nil, err
	}

	if err := d.publish(bridgeCommand{
		RequestID: requestID,
		Command:   "observe",
		FileID:    fileID,
		Exposure:  total.Seconds(),
	}); err != nil {
		unsubscribe()
		return nil, err
	}

	h := &bridgeExposure{
		detector:    d,
		requestID:   requestID,
		total:       total,
		remaining:   total,
		events:      make(chan ExposureEvent),
		unsubscribe: unsubscribe,
	}
	go h.run(acks)
	return h, nil
}

// bridgeExposure translates bridge acknowledgements for one observe
// request into exposure events.
type bridgeExposure struct {
	detector    *BridgeDetector
	requestID   string
	events      chan ExposureEvent
	unsubscribe func()

	mu        sync.Mutex
	total     time.Duration
	remaining time.Duration
}

// run consumes acknowledgements until a final disposition arrives.
func (h *bridgeExposure) run(acks <-chan bridgeAck) {
	defer close(h.events)
	defer h.unsubscribe()

	for ack := range acks {
		total := time.Duration(ack.Total * float64(time.Second))
		remaining := time.Duration(ack.Remaining * float64(time.Second))

		h.mu.Lock()
		if total > 0 {
			h.total = total
		} else {
			total = h.total
		}
		h.remaining = remaining
		h.mu.Unlock()

		switch ack.Status {
		case ackInProgress:
			h.events <- ExposureEvent{Kind: ExposureProgress, Total: total, Remaining: remaining}
		case ackPaused:
			h.events <- ExposureEvent{Kind: ExposurePaused, Total: total, Remaining: remaining}
		case ackCompleted:
			h.events <- ExposureEvent{Kind: ExposureCompleted, Total: total}
			return
		case ackStopped:
			h.events <- ExposureEvent{Kind: ExposureStopped, Total: total, Remaining: remaining}
			return
		case ackAborted:
			h.events <- ExposureEvent{Kind: ExposureAborted, Total: total, Remaining: remaining}
			return
		case ackFailed:
			h.events <- ExposureEvent{
				Kind: ExposureFailed,
				Err:  fmt.Errorf("%w: %s: %s", ErrCommandFailed, h.detector.resource, ack.Error),
			}
			return
		}
	}
}

// Events implements ExposureHandle.
func (h *bridgeExposure) Events() <-chan ExposureEvent {
	return h.events
}

// control publishes a control command referencing this exposure's
// observe request.
func (h *bridgeExposure) control(command string) error {
	return h.detector.publish(bridgeCommand{
		RequestID: uuid.NewString(),
		Command:   command,
		Ref:       h.requestID,
	})
}

// Pause implements ExposureHandle.
func (h *bridgeExposure) Pause(_ context.Context) error {
	return h.control("pause")
}

// Resume implements ExposureHandle.
func (h *bridgeExposure) Resume(_ context.Context) error {
	return h.control("resume")
}

// Stop implements ExposureHandle.
func (h *bridgeExposure) Stop(_ context.Context) error {
	return h.control("stop")
}

// Abort implements ExposureHandle.
func (h *bridgeExposure) Abort(_ context.Context) error {
	return h.control("abort")
}

// Progress implements ExposureHandle. It reports the last acknowledged
// progress; the bridge is not queried.
func (h *bridgeExposure) Progress(_ context.Context) (engine.Progress, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return engine.Progress{Total: h.total, Remaining: h.remaining}, nil
}

// BridgeBank builds a bank of bridge-backed systems covering the TCS,
// the calibration unit and the given instruments.
func BridgeBank(msg Messenger, qos byte, ackTimeout time.Duration, instruments ...engine.Resource) *Bank {
	systems := []System{
		NewBridgeSystem(engine.ResourceTCS, msg, qos, ackTimeout),
		NewBridgeSystem(engine.ResourceGcal, msg, qos, ackTimeout),
	}
	for _, r := range instruments {
		systems = append(systems, NewBridgeDetector(r, msg, qos, ackTimeout))
	}
	return NewBank(systems...)
}

var _ Detector = (*BridgeDetector)(nil)
