package audit

import (
	"context"
	"time"

	"github.com/meridian-obs/meridian-core/internal/engine"
)

// journalQueueSize is the number of pending records the sink buffers
// before dropping.
const journalQueueSize = 64

// writeTimeout bounds one journal insert.
const writeTimeout = 5 * time.Second

// Sink journals operator commands from engine emissions. Internal engine
// events (polls, action callbacks) are not journalled.
//
// Publish is called from the engine loop and must not block, so records
// are queued and written by Run on its own goroutine; when the queue is
// full the record is dropped with a warning.
type Sink struct {
	repo   Repository
	logger engine.Logger
	queue  chan CommandRecord
}

// NewSink creates a journal sink over the repository.
func NewSink(repo Repository, logger engine.Logger) *Sink {
	return &Sink{
		repo:   repo,
		logger: logger,
		queue:  make(chan CommandRecord, journalQueueSize),
	}
}

// Publish implements engine.Sink.
func (s *Sink) Publish(e engine.Emission) {
	clientID := e.Event.Client()
	if clientID == "" {
		return
	}

	rec := CommandRecord{
		Command:  e.Event.Kind(),
		ObsID:    eventObsID(e.Event),
		ClientID: clientID,
		Outcome:  outcomeOf(e.Notices),
	}
	if len(e.Notices) > 0 {
		messages := make([]string, 0, len(e.Notices))
		for _, n := range e.Notices {
			messages = append(messages, n.Message)
		}
		rec.Details = map[string]any{"notices": messages}
	}

	select {
	case s.queue <- rec:
	default:
		s.logger.Warn("command journal queue full, dropping record",
			"command", rec.Command, "observation", rec.ObsID)
	}
}

// Run writes queued records until ctx is cancelled.
func (s *Sink) Run(ctx context.Context) {
	for {
		select {
		case rec := <-s.queue:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			if err := s.repo.Create(writeCtx, &rec); err != nil {
				s.logger.Error("writing command journal entry failed",
					"command", rec.Command, "error", err)
			}
			cancel()
		case <-ctx.Done():
			return
		}
	}
}

// outcomeOf reduces the notices of one emission to a journal outcome.
// Any error notice marks the command rejected; a warning marks it
// refused (typically a resource conflict or an illegal transition).
func outcomeOf(notices []engine.Notice) string {
	outcome := "ok"
	for _, n := range notices {
		switch n.Level {
		case engine.NoticeError:
			return "rejected"
		case engine.NoticeWarning:
			outcome = "refused"
		case engine.NoticeInfo:
		}
	}
	return outcome
}

// eventObsID extracts the observation id a command concerns, empty for
// global commands.
func eventObsID(ev engine.Event) string {
	switch ev := ev.(type) {
	case engine.LoadSequence:
		if ev.Sequence != nil {
			return ev.Sequence.ID
		}
	case engine.UnloadSequence:
		return ev.ObsID
	case engine.StartSequence:
		return ev.ObsID
	case engine.PauseSequence:
		return ev.ObsID
	case engine.StopSequence:
		return ev.ObsID
	case engine.AbortSequence:
		return ev.ObsID
	case engine.SetBreakpoint:
		return ev.ObsID
	case engine.SetSkip:
		return ev.ObsID
	case engine.SetObserver:
		return ev.ObsID
	}
	return ""
}
