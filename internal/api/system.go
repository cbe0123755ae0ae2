package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/meridian-obs/meridian-core/internal/audit"
	"github.com/meridian-obs/meridian-core/internal/engine"
)

// handleSync asks the engine to push a fresh snapshot through the
// emission path. Used by clients after a WebSocket reconnect.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	s.offer(w, r, engine.Sync{
		Command: engine.Command{ClientID: requestID(r)},
	})
}

// handleGetConditions returns the current ambient condition tuple.
func (s *Server) handleGetConditions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Snapshot().Conditions)
}

// conditionsRequest is the body of a conditions update. Absent fields
// keep their current value.
type conditionsRequest struct {
	ImageQuality  *string `json:"image_quality,omitempty"`
	CloudCover    *string `json:"cloud_cover,omitempty"`
	WaterVapor    *string `json:"water_vapor,omitempty"`
	SkyBackground *string `json:"sky_background,omitempty"`
}

// handleSetConditions updates the ambient condition bins. Each provided
// bin is validated before any event is offered, so a request either
// applies in full or not at all.
func (s *Server) handleSetConditions(w http.ResponseWriter, r *http.Request) {
	var req conditionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	next := s.engine.Snapshot().Conditions
	if req.ImageQuality != nil {
		iq, err := engine.ParseImageQuality(*req.ImageQuality)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
			return
		}
		next.ImageQuality = iq
	}
	if req.CloudCover != nil {
		cc, err := engine.ParseCloudCover(*req.CloudCover)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
			return
		}
		next.CloudCover = cc
	}
	if req.WaterVapor != nil {
		wv, err := engine.ParseWaterVapor(*req.WaterVapor)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
			return
		}
		next.WaterVapor = wv
	}
	if req.SkyBackground != nil {
		sb, err := engine.ParseSkyBackground(*req.SkyBackground)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
			return
		}
		next.SkyBackground = sb
	}

	s.offer(w, r, engine.SetConditions{
		Command:    engine.Command{ClientID: requestID(r)},
		Conditions: next,
	})
}

// handleSetOperator records the telescope operator identity.
func (s *Server) handleSetOperator(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	s.offer(w, r, engine.SetOperator{
		Command: engine.Command{ClientID: requestID(r)},
		Name:    req.Name,
	})
}

// handleResources returns the derived resource occupancy projection.
func (s *Server) handleResources(w http.ResponseWriter, _ *http.Request) {
	views := resourcesView(s.engine.Snapshot())
	writeJSON(w, http.StatusOK, map[string]any{"resources": views, "count": len(views)})
}

// configureRequest is the body of an engineering configure command.
type configureRequest struct {
	Resource string         `json:"resource"`
	Settings map[string]any `json:"settings"`
}

// handleConfigure applies a single subsystem configuration outside the
// normal step flow. The engine enforces the same resource exclusion as a
// sequence start.
func (s *Server) handleConfigure(w http.ResponseWriter, r *http.Request) {
	var req configureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	resource := engine.Resource(req.Resource)
	run, err := s.builder.ConfigureStream(resource, req.Settings)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
		return
	}

	s.offer(w, r, engine.ConfigureResource{
		Command:  engine.Command{ClientID: requestID(r)},
		Resource: resource,
		Run:      run,
	})
}

// handleListJournal returns journalled commands, most recent first.
//
// Query parameters:
//   - command: filter by command name (start, pause, stop, abort, load)
//   - observation_id: filter by observation
//   - client_id: filter by originating client
//   - limit, offset: pagination
func (s *Server) handleListJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeNotFound(w, "command journal not configured")
		return
	}

	filter := audit.Filter{
		Command:  r.URL.Query().Get("command"),
		ObsID:    r.URL.Query().Get("observation_id"),
		ClientID: r.URL.Query().Get("client_id"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "invalid limit")
			return
		}
		filter.Limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "invalid offset")
			return
		}
		filter.Offset = n
	}

	result, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing command journal failed", "error", err)
		writeInternalError(w, "failed to list command journal")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
