package api

import (
	"github.com/meridian-obs/meridian-core/internal/engine"
)

// Broadcast channels exposed over the WebSocket stream.
const (
	ChannelSequenceState = "sequence.state"
	ChannelStepProgress  = "step.progress"
	ChannelConditions    = "conditions.changed"
	ChannelResources     = "resources.changed"
	ChannelNotice        = "engine.notice"
)

// StepProgressView is the step.progress broadcast payload. Durations are
// reported in seconds.
type StepProgressView struct {
	ObsID     string  `json:"observation_id"`
	Step      int     `json:"step"`
	FileID    string  `json:"file_id,omitempty"`
	TotalSec  float64 `json:"total_s"`
	RemainSec float64 `json:"remaining_s"`
}

// EmissionBroadcaster relays engine emissions to WebSocket clients. It
// implements engine.Sink; Publish is called from the engine loop, and
// the hub's per-client buffers absorb slow consumers.
type EmissionBroadcaster struct {
	hub *Hub
}

// NewEmissionBroadcaster creates a broadcaster over the given hub.
func NewEmissionBroadcaster(hub *Hub) *EmissionBroadcaster {
	return &EmissionBroadcaster{hub: hub}
}

// Publish implements engine.Sink.
func (b *EmissionBroadcaster) Publish(e engine.Emission) {
	for _, n := range e.Notices {
		b.hub.Broadcast(ChannelNotice, n)
	}

	switch ev := e.Event.(type) {
	case engine.ActionProgress:
		b.hub.Broadcast(ChannelStepProgress, StepProgressView{
			ObsID:     ev.ObsID,
			Step:      ev.Step,
			FileID:    firstNonEmpty(ev.Note.FileID, ev.Note.Progress.FileID),
			TotalSec:  ev.Note.Progress.Total.Seconds(),
			RemainSec: ev.Note.Progress.Remaining.Seconds(),
		})

	case engine.SetConditions, engine.SetImageQuality, engine.SetCloudCover,
		engine.SetWaterVapor, engine.SetSkyBackground:
		b.hub.Broadcast(ChannelConditions, e.State.Conditions)

	case engine.Poll:
		// Poll emissions carry no state change; progress samples arrive as
		// ActionProgress events.

	default:
		b.hub.Broadcast(ChannelSequenceState, sequenceListView(e.State))
		b.hub.Broadcast(ChannelResources, resourcesView(e.State))
	}
}

// firstNonEmpty returns the first non-empty string.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
