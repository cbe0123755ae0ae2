package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-obs/meridian-core/internal/engine"
	"github.com/meridian-obs/meridian-core/internal/odb"
)

// handleListSequences returns the loaded sequences and the observation
// definitions available in the sequence source.
func (s *Server) handleListSequences(w http.ResponseWriter, _ *http.Request) {
	snap := s.engine.Snapshot()

	available, err := s.source.List()
	if err != nil {
		s.logger.Warn("listing sequence source failed", "error", err)
		available = []odb.Summary{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"loaded":    sequenceListView(snap),
		"available": available,
	})
}

// handleGetSequence returns a single loaded sequence by observation id.
func (s *Server) handleGetSequence(w http.ResponseWriter, r *http.Request) {
	obsID := chi.URLParam(r, "obsID")

	seq, err := s.engine.Snapshot().Sequence(obsID)
	if err != nil {
		writeNotFound(w, "sequence not loaded")
		return
	}
	writeJSON(w, http.StatusOK, newSequenceView(seq))
}

// handleLoadSequence reads an observation definition from the source,
// builds an executable sequence and offers it to the engine.
func (s *Server) handleLoadSequence(w http.ResponseWriter, r *http.Request) {
	obsID := chi.URLParam(r, "obsID")

	def, err := s.source.Load(obsID)
	if err != nil {
		if errors.Is(err, odb.ErrNotFound) {
			writeNotFound(w, "observation not found in sequence source")
			return
		}
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
		return
	}

	seq, err := s.builder.Sequence(def)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
		return
	}

	s.offer(w, r, engine.LoadSequence{
		Command:  engine.Command{ClientID: requestID(r)},
		Sequence: seq,
	})
}

// handleUnloadSequence removes an idle sequence from the engine.
func (s *Server) handleUnloadSequence(w http.ResponseWriter, r *http.Request) {
	s.offer(w, r, engine.UnloadSequence{
		Command: engine.Command{ClientID: requestID(r)},
		ObsID:   chi.URLParam(r, "obsID"),
	})
}

// startRequest is the optional body of a start command.
type startRequest struct {
	// FromStep skips every step before the given zero-based index.
	FromStep *int `json:"from_step,omitempty"`
}

// handleStartSequence starts or resumes a sequence, optionally from a
// given step.
func (s *Server) handleStartSequence(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
	}

	s.offer(w, r, engine.StartSequence{
		Command:  engine.Command{ClientID: requestID(r)},
		ObsID:    chi.URLParam(r, "obsID"),
		FromStep: req.FromStep,
	})
}

// handlePauseSequence requests a cooperative pause.
func (s *Server) handlePauseSequence(w http.ResponseWriter, r *http.Request) {
	s.offer(w, r, engine.PauseSequence{
		Command: engine.Command{ClientID: requestID(r)},
		ObsID:   chi.URLParam(r, "obsID"),
	})
}

// handleStopSequence requests a graceful stop of the in-flight exposure.
func (s *Server) handleStopSequence(w http.ResponseWriter, r *http.Request) {
	s.offer(w, r, engine.StopSequence{
		Command: engine.Command{ClientID: requestID(r)},
		ObsID:   chi.URLParam(r, "obsID"),
	})
}

// handleAbortSequence requests a hard abort, discarding in-flight data.
func (s *Server) handleAbortSequence(w http.ResponseWriter, r *http.Request) {
	s.offer(w, r, engine.AbortSequence{
		Command: engine.Command{ClientID: requestID(r)},
		ObsID:   chi.URLParam(r, "obsID"),
	})
}

// flagRequest is the body of a breakpoint or skip toggle.
type flagRequest struct {
	Set bool `json:"set"`
}

// handleSetBreakpoint toggles the breakpoint flag on one step.
func (s *Server) handleSetBreakpoint(w http.ResponseWriter, r *http.Request) {
	step, ok := stepParam(w, r)
	if !ok {
		return
	}
	var req flagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	s.offer(w, r, engine.SetBreakpoint{
		Command: engine.Command{ClientID: requestID(r)},
		ObsID:   chi.URLParam(r, "obsID"),
		Step:    step,
		On:      req.Set,
	})
}

// handleSetSkip toggles the skip flag on one step.
func (s *Server) handleSetSkip(w http.ResponseWriter, r *http.Request) {
	step, ok := stepParam(w, r)
	if !ok {
		return
	}
	var req flagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	s.offer(w, r, engine.SetSkip{
		Command: engine.Command{ClientID: requestID(r)},
		ObsID:   chi.URLParam(r, "obsID"),
		Step:    step,
		On:      req.Set,
	})
}

// nameRequest is the body of an observer or operator assignment.
type nameRequest struct {
	Name string `json:"name"`
}

// handleSetObserver records the observer identity for one observation.
func (s *Server) handleSetObserver(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	s.offer(w, r, engine.SetObserver{
		Command: engine.Command{ClientID: requestID(r)},
		ObsID:   chi.URLParam(r, "obsID"),
		Name:    req.Name,
	})
}

// stepParam parses the step index path parameter.
func stepParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	step, err := strconv.Atoi(chi.URLParam(r, "step"))
	if err != nil || step < 0 {
		writeBadRequest(w, "invalid step index")
		return 0, false
	}
	return step, true
}

// offer enqueues an engine event and acknowledges the command. Commands
// are applied asynchronously in the engine loop; the outcome arrives as
// a notice carrying the request id over the WebSocket stream.
func (s *Server) offer(w http.ResponseWriter, r *http.Request, ev engine.Event) {
	if err := s.engine.Offer(ev); err != nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "engine unavailable")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"command":    ev.Kind(),
		"request_id": requestID(r),
	})
}
