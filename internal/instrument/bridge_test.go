package instrument

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/meridian-obs/meridian-core/internal/engine"
	"github.com/meridian-obs/meridian-core/internal/infrastructure/mqtt"
)

// ─── Fake Messenger ─────────────────────────────────────────────────────────

type publishedMsg struct {
	topic   string
	payload []byte
}

// fakeMessenger records publishes and routes delivered payloads to
// subscribed handlers, standing in for a live broker.
type fakeMessenger struct {
	mu        sync.Mutex
	subs      map[string]mqtt.MessageHandler
	published []publishedMsg
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{subs: make(map[string]mqtt.MessageHandler)}
}

func (f *fakeMessenger) Publish(topic string, payload []byte, _ byte, _ bool) error {
	f.mu.Lock()
	f.published = append(f.published, publishedMsg{topic: topic, payload: payload})
	f.mu.Unlock()
	return nil
}

func (f *fakeMessenger) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	f.subs[topic] = handler
	f.mu.Unlock()
	return nil
}

func (f *fakeMessenger) Unsubscribe(topic string) error {
	f.mu.Lock()
	delete(f.subs, topic)
	f.mu.Unlock()
	return nil
}

// deliver routes a payload to the handler subscribed on the topic.
func (f *fakeMessenger) deliver(t *testing.T, topic string, payload string) {
	t.Helper()
	f.mu.Lock()
	handler := f.subs[topic]
	f.mu.Unlock()
	if handler == nil {
		t.Fatalf("no subscription for %s", topic)
	}
	if err := handler(topic, []byte(payload)); err != nil {
		t.Fatalf("handler error for %s: %v", topic, err)
	}
}

// lastCommand waits until a command matching the given verb has been
// published and returns it with its request id.
func (f *fakeMessenger) lastCommand(t *testing.T, verb string) (bridgeCommand, string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		for i := len(f.published) - 1; i >= 0; i-- {
			var cmd bridgeCommand
			if json.Unmarshal(f.published[i].payload, &cmd) == nil && cmd.Command == verb {
				f.mu.Unlock()
				return cmd, cmd.RequestID
			}
		}
		f.mu.Unlock()
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("no %s command published", verb)
	return bridgeCommand{}, ""
}

// ─── Configure Tests ────────────────────────────────────────────────────────

func TestBridgeSystem_ApplyConfig(t *testing.T) {
	msg := newFakeMessenger()
	sys := NewBridgeSystem(engine.ResourceTCS, msg, 1, time.Second)

	done := make(chan error, 1)
	go func() {
		done <- sys.ApplyConfig(context.Background(), map[string]any{"offset_p": 10.0})
	}()

	cmd, requestID := msg.lastCommand(t, "configure")
	if cmd.Settings["offset_p"] != 10.0 {
		t.Errorf("published settings = %v", cmd.Settings)
	}

	ackTopic := mqtt.Topics{}.SystemAck("tcs", requestID)
	msg.deliver(t, ackTopic, `{"status":"in_progress"}`)
	msg.deliver(t, ackTopic, `{"status":"completed"}`)

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ApplyConfig() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ApplyConfig() did not return")
	}
}

func TestBridgeSystem_ApplyConfigFailed(t *testing.T) {
	msg := newFakeMessenger()
	sys := NewBridgeSystem(engine.ResourceGcal, msg, 1, time.Second)

	done := make(chan error, 1)
	go func() {
		done <- sys.ApplyConfig(context.Background(), map[string]any{"lamp": "flat"})
	}()

	_, requestID := msg.lastCommand(t, "configure")
	msg.deliver(t, mqtt.Topics{}.SystemAck("gcal", requestID), `{"status":"failed","error":"shutter jam"}`)

	select {
	case err := <-done:
		if !errors.Is(err, ErrCommandFailed) {
			t.Errorf("ApplyConfig() error = %v, want ErrCommandFailed", err)
		}
		if err == nil || !strings.Contains(err.Error(), "shutter jam") {
			t.Errorf("error %v does not carry the bridge message", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ApplyConfig() did not return")
	}
}

func TestBridgeSystem_ApplyConfigTimeout(t *testing.T) {
	msg := newFakeMessenger()
	sys := NewBridgeSystem(engine.ResourceTCS, msg, 1, 20*time.Millisecond)

	err := sys.ApplyConfig(context.Background(), nil)
	if !errors.Is(err, ErrAckTimeout) {
		t.Errorf("ApplyConfig() error = %v, want ErrAckTimeout", err)
	}
}

func TestBridgeSystem_ApplyConfigCancelled(t *testing.T) {
	msg := newFakeMessenger()
	sys := NewBridgeSystem(engine.ResourceTCS, msg, 1, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- sys.ApplyConfig(ctx, nil)
	}()

	msg.lastCommand(t, "configure")
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("ApplyConfig() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ApplyConfig() did not return after cancel")
	}
}

// ─── Exposure Tests ─────────────────────────────────────────────────────────

func TestBridgeDetector_ExposureLifecycle(t *testing.T) {
	msg := newFakeMessenger()
	det := NewBridgeDetector(engine.ResourceGmosS, msg, 1, time.Second)

	h, err := det.StartExposure(context.Background(), 300*time.Second, "S20260824S0007")
	if err != nil {
		t.Fatalf("StartExposure() error = %v", err)
	}

	cmd, requestID := msg.lastCommand(t, "observe")
	if cmd.FileID != "S20260824S0007" {
		t.Errorf("observe FileID = %q", cmd.FileID)
	}
	if cmd.Exposure != 300 {
		t.Errorf("observe Exposure = %v, want 300", cmd.Exposure)
	}

	ackTopic := mqtt.Topics{}.SystemAck("gmos_s", requestID)
	msg.deliver(t, ackTopic, `{"status":"in_progress","total":300,"remaining":290}`)

	ev := nextEvent(t, h.Events())
	if ev.Kind != ExposureProgress || ev.Remaining != 290*time.Second {
		t.Fatalf("event = %+v, want progress 290s", ev)
	}

	// Progress mirrors the last acknowledgement.
	p, err := h.Progress(context.Background())
	if err != nil {
		t.Fatalf("Progress() error = %v", err)
	}
	if p.Total != 300*time.Second || p.Remaining != 290*time.Second {
		t.Errorf("Progress() = %+v", p)
	}

	msg.deliver(t, ackTopic, `{"status":"completed","total":300}`)
	if final := nextEvent(t, h.Events()); final.Kind != ExposureCompleted {
		t.Errorf("final event = %s, want completed", final.Kind)
	}
}

func TestBridgeDetector_ControlCommandsReferenceObserve(t *testing.T) {
	msg := newFakeMessenger()
	det := NewBridgeDetector(engine.ResourceGmosS, msg, 1, time.Second)

	h, err := det.StartExposure(context.Background(), 300*time.Second, "S20260824S0008")
	if err != nil {
		t.Fatalf("StartExposure() error = %v", err)
	}

	_, observeID := msg.lastCommand(t, "observe")

	if err := h.Pause(context.Background()); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	pauseCmd, _ := msg.lastCommand(t, "pause")
	if pauseCmd.Ref != observeID {
		t.Errorf("pause Ref = %q, want %q", pauseCmd.Ref, observeID)
	}

	ackTopic := mqtt.Topics{}.SystemAck("gmos_s", observeID)
	msg.deliver(t, ackTopic, `{"status":"paused","total":300,"remaining":120}`)
	if ev := nextEvent(t, h.Events()); ev.Kind != ExposurePaused || ev.Remaining != 120*time.Second {
		t.Fatalf("event = %+v, want paused 120s", ev)
	}

	if err := h.Resume(context.Background()); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	resumeCmd, _ := msg.lastCommand(t, "resume")
	if resumeCmd.Ref != observeID {
		t.Errorf("resume Ref = %q, want %q", resumeCmd.Ref, observeID)
	}

	if err := h.Abort(context.Background()); err != nil {
		t.Fatalf("Abort() error = %v", err)
	}
	msg.deliver(t, ackTopic, `{"status":"aborted","total":300,"remaining":100}`)
	if final := nextEvent(t, h.Events()); final.Kind != ExposureAborted {
		t.Errorf("final event = %s, want aborted", final.Kind)
	}
}

func TestBridgeDetector_FailedExposure(t *testing.T) {
	msg := newFakeMessenger()
	det := NewBridgeDetector(engine.ResourceF2, msg, 1, time.Second)

	h, err := det.StartExposure(context.Background(), 60*time.Second, "S20260824S0009")
	if err != nil {
		t.Fatalf("StartExposure() error = %v", err)
	}

	_, requestID := msg.lastCommand(t, "observe")
	msg.deliver(t, mqtt.Topics{}.SystemAck("f2", requestID), `{"status":"failed","error":"readout error"}`)

	ev := nextEvent(t, h.Events())
	if ev.Kind != ExposureFailed {
		t.Fatalf("event = %s, want failed", ev.Kind)
	}
	if !errors.Is(ev.Err, ErrCommandFailed) {
		t.Errorf("event Err = %v, want ErrCommandFailed", ev.Err)
	}
}

func TestBridgeBank_Composition(t *testing.T) {
	msg := newFakeMessenger()
	bank := BridgeBank(msg, 1, time.Second, engine.ResourceGmosS, engine.ResourceF2)

	if _, err := bank.Detector(engine.ResourceGmosS); err != nil {
		t.Errorf("Detector(gmos_s) error = %v", err)
	}
	if _, err := bank.System(engine.ResourceTCS); err != nil {
		t.Errorf("System(tcs) error = %v", err)
	}
	if _, err := bank.Detector(engine.ResourceTCS); !errors.Is(err, ErrNotDetector) {
		t.Errorf("Detector(tcs) error = %v, want ErrNotDetector", err)
	}
}
