package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/meridian-obs/meridian-core/internal/engine"
	"github.com/meridian-obs/meridian-core/internal/infrastructure/config"
	"github.com/meridian-obs/meridian-core/internal/infrastructure/logging"
	"github.com/meridian-obs/meridian-core/internal/instrument"
	"github.com/meridian-obs/meridian-core/internal/odb"
)

const testObsID = "GS-2026B-Q-17-23"

const testObsYAML = `id: GS-2026B-Q-17-23
title: NGC 1300 longslit
instrument: gmos_s
observer: A. Observer
steps:
  - exposure: 0.01
    configs:
      tcs:
        offset_p: 10.0
      gmos_s:
        filter: r
  - exposure: 0.01
`

// testLogger returns a quiet logger for tests.
func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
}

// testWSConfig returns the WebSocket settings used across the tests.
func testWSConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		MaxMessageSize: 8192,
		PingInterval:   30,
		PongTimeout:    10,
	}
}

// testServer creates a Server over a running engine, a sim instrument
// bank and a temp-dir sequence source.
func testServer(t *testing.T) *Server {
	t.Helper()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, testObsID+".yaml"), []byte(testObsYAML), 0o600); err != nil {
		t.Fatalf("writing test definition: %v", err)
	}

	log := testLogger()

	hub := NewHub(testWSConfig(), log)

	eng := engine.New(NewEmissionBroadcaster(hub))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		//nolint:errcheck // Run only returns on context cancellation
		eng.Run(ctx)
	}()
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-done
	})

	bank := instrument.SimBank(0, time.Millisecond, engine.ResourceGmosS)
	builder := instrument.NewBuilder(bank, nil, instrument.NewFileAllocator("gemini-south"))

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS:          testWSConfig(),
		Logger:      log,
		Engine:      eng,
		Source:      odb.NewSource(dir),
		Builder:     builder,
		ExternalHub: hub,
		Version:     "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	return srv
}

// waitFor polls a condition until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// doRequest runs one request through the router.
func doRequest(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	router := srv.buildRouter()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// ─── Health & Middleware Tests ──────────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv := testServer(t)

	w := doRequest(srv, http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
	if w.Header().Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", w.Header().Get("Content-Type"))
	}
}

func TestRequestID_Generated(t *testing.T) {
	srv := testServer(t)

	w := doRequest(srv, http.MethodGet, "/api/v1/health", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestCORS_Preflight(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want %q", got, "http://localhost:3000")
	}
}

func TestNotFound(t *testing.T) {
	srv := testServer(t)

	w := doRequest(srv, http.MethodGet, "/api/v1/nonexistent", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ─── Sequence Endpoint Tests ────────────────────────────────────────────────

func TestListSequences(t *testing.T) {
	srv := testServer(t)

	w := doRequest(srv, http.MethodGet, "/api/v1/sequences", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Loaded    []SequenceView `json:"loaded"`
		Available []struct {
			ID    string `json:"id"`
			Steps int    `json:"steps"`
		} `json:"available"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if len(resp.Loaded) != 0 {
		t.Errorf("loaded = %v, want empty", resp.Loaded)
	}
	if len(resp.Available) != 1 || resp.Available[0].ID != testObsID || resp.Available[0].Steps != 2 {
		t.Errorf("available = %v, want one entry for %s with 2 steps", resp.Available, testObsID)
	}
}

func TestLoadAndGetSequence(t *testing.T) {
	srv := testServer(t)

	w := doRequest(srv, http.MethodPost, "/api/v1/sequences/"+testObsID+"/load", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("load status = %d; body: %s", w.Code, w.Body.String())
	}

	waitFor(t, "sequence to load", func() bool {
		_, err := srv.engine.Snapshot().Sequence(testObsID)
		return err == nil
	})

	w = doRequest(srv, http.MethodGet, "/api/v1/sequences/"+testObsID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d; body: %s", w.Code, w.Body.String())
	}

	var view SequenceView
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if view.ID != testObsID || view.Instrument != engine.ResourceGmosS {
		t.Errorf("view = %+v", view)
	}
	if view.State != engine.SeqIdle {
		t.Errorf("state = %s, want idle", view.State)
	}
	if len(view.Steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(view.Steps))
	}
	if view.Observer != "A. Observer" {
		t.Errorf("observer = %q", view.Observer)
	}
}

func TestLoadSequence_NotFound(t *testing.T) {
	srv := testServer(t)

	w := doRequest(srv, http.MethodPost, "/api/v1/sequences/GS-0000B-Q-0-0/load", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestGetSequence_NotLoaded(t *testing.T) {
	srv := testServer(t)

	w := doRequest(srv, http.MethodGet, "/api/v1/sequences/"+testObsID, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestStartSequence_RunsToCompletion(t *testing.T) {
	srv := testServer(t)

	doRequest(srv, http.MethodPost, "/api/v1/sequences/"+testObsID+"/load", "")
	waitFor(t, "sequence to load", func() bool {
		_, err := srv.engine.Snapshot().Sequence(testObsID)
		return err == nil
	})

	w := doRequest(srv, http.MethodPost, "/api/v1/sequences/"+testObsID+"/start", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("start status = %d; body: %s", w.Code, w.Body.String())
	}

	waitFor(t, "sequence to complete", func() bool {
		seq, err := srv.engine.Snapshot().Sequence(testObsID)
		return err == nil && seq.State == engine.SeqCompleted
	})

	w = doRequest(srv, http.MethodGet, "/api/v1/sequences/"+testObsID, "")
	var view SequenceView
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for i, step := range view.Steps {
		if step.Status != engine.StepCompleted {
			t.Errorf("step %d status = %s, want completed", i, step.Status)
		}
		if step.FileID == "" {
			t.Errorf("step %d missing dataset file id", i)
		}
	}
}

func TestSetBreakpoint(t *testing.T) {
	srv := testServer(t)

	doRequest(srv, http.MethodPost, "/api/v1/sequences/"+testObsID+"/load", "")
	waitFor(t, "sequence to load", func() bool {
		_, err := srv.engine.Snapshot().Sequence(testObsID)
		return err == nil
	})

	w := doRequest(srv, http.MethodPut, "/api/v1/sequences/"+testObsID+"/steps/1/breakpoint", `{"set":true}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}

	waitFor(t, "breakpoint to apply", func() bool {
		seq, err := srv.engine.Snapshot().Sequence(testObsID)
		return err == nil && seq.Steps[1].Breakpoint
	})
}

func TestSetBreakpoint_InvalidStep(t *testing.T) {
	srv := testServer(t)

	w := doRequest(srv, http.MethodPut, "/api/v1/sequences/"+testObsID+"/steps/x/breakpoint", `{"set":true}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestUnloadSequence(t *testing.T) {
	srv := testServer(t)

	doRequest(srv, http.MethodPost, "/api/v1/sequences/"+testObsID+"/load", "")
	waitFor(t, "sequence to load", func() bool {
		_, err := srv.engine.Snapshot().Sequence(testObsID)
		return err == nil
	})

	w := doRequest(srv, http.MethodDelete, "/api/v1/sequences/"+testObsID, "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}

	waitFor(t, "sequence to unload", func() bool {
		_, err := srv.engine.Snapshot().Sequence(testObsID)
		return err != nil
	})
}

// ─── Site State Tests ───────────────────────────────────────────────────────

func TestConditions_DefaultAndUpdate(t *testing.T) {
	srv := testServer(t)

	w := doRequest(srv, http.MethodGet, "/api/v1/conditions", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var cond engine.Conditions
	if err := json.Unmarshal(w.Body.Bytes(), &cond); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if cond != engine.DefaultConditions() {
		t.Errorf("conditions = %+v, want defaults", cond)
	}

	w = doRequest(srv, http.MethodPut, "/api/v1/conditions", `{"image_quality":"iq70","cloud_cover":"cc50"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("put status = %d; body: %s", w.Code, w.Body.String())
	}

	waitFor(t, "conditions to apply", func() bool {
		c := srv.engine.Snapshot().Conditions
		return c.ImageQuality == engine.IQ70 && c.CloudCover == engine.CC50
	})

	// Untouched bins keep their values.
	if got := srv.engine.Snapshot().Conditions.WaterVapor; got != engine.WVAny {
		t.Errorf("water vapour = %s, want wv_any", got)
	}
}

func TestConditions_InvalidBin(t *testing.T) {
	srv := testServer(t)

	w := doRequest(srv, http.MethodPut, "/api/v1/conditions", `{"image_quality":"iq99"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
	}
}

func TestSetOperator(t *testing.T) {
	srv := testServer(t)

	w := doRequest(srv, http.MethodPut, "/api/v1/operator", `{"name":"T. Operator"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}

	waitFor(t, "operator to apply", func() bool {
		return srv.engine.Snapshot().Operator == "T. Operator"
	})
}

func TestResources_Empty(t *testing.T) {
	srv := testServer(t)

	w := doRequest(srv, http.MethodGet, "/api/v1/resources", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if int(resp["count"].(float64)) != 0 {
		t.Errorf("count = %v, want 0", resp["count"])
	}
}

// ─── Engineering Tests ──────────────────────────────────────────────────────

func TestConfigure(t *testing.T) {
	srv := testServer(t)

	w := doRequest(srv, http.MethodPost, "/api/v1/engineering/configure",
		`{"resource":"tcs","settings":{"offset_p":10.0}}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
}

func TestConfigure_UnknownResource(t *testing.T) {
	srv := testServer(t)

	w := doRequest(srv, http.MethodPost, "/api/v1/engineering/configure",
		`{"resource":"dome","settings":{}}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
	}
}

// ─── Journal Tests ──────────────────────────────────────────────────────────

func TestJournal_NotConfigured(t *testing.T) {
	srv := testServer(t)

	w := doRequest(srv, http.MethodGet, "/api/v1/journal", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ─── Sync Tests ─────────────────────────────────────────────────────────────

func TestSync(t *testing.T) {
	srv := testServer(t)

	w := doRequest(srv, http.MethodPost, "/api/v1/sync", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp["command"] != "sync" {
		t.Errorf("command = %q, want sync", resp["command"])
	}
}
