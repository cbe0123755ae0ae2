package odb

// Logger is the minimal logging interface the notifier needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Notifier carries execution milestones back to the observing database.
//
// The engine calls these from stream goroutines, so implementations must
// be safe for concurrent use and must not block on slow I/O.
type Notifier interface {
	// SequenceStart marks the beginning of sequence execution.
	SequenceStart(obsID string)
	// SequenceEnd marks a sequence running to completion.
	SequenceEnd(obsID string)
	// SequencePause marks the sequence settling into a paused state.
	SequencePause(obsID string)
	// SequenceContinue marks resumption after a pause.
	SequenceContinue(obsID string)

	// DatasetStart marks the first write of a dataset file.
	DatasetStart(obsID, fileID string)
	// DatasetComplete marks a dataset written in full.
	DatasetComplete(obsID, fileID string)
	// ObservationAbort marks a dataset discarded by an abort.
	ObservationAbort(obsID, fileID string)
}

// LogNotifier records milestones to the structured log. It is the
// default notifier when no remote ODB endpoint is configured.
type LogNotifier struct {
	log Logger
}

// NewLogNotifier creates a notifier writing to the given logger.
func NewLogNotifier(log Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) SequenceStart(obsID string) {
	n.log.Info("sequence started", "obs_id", obsID)
}

func (n *LogNotifier) SequenceEnd(obsID string) {
	n.log.Info("sequence ended", "obs_id", obsID)
}

func (n *LogNotifier) SequencePause(obsID string) {
	n.log.Info("sequence paused", "obs_id", obsID)
}

func (n *LogNotifier) SequenceContinue(obsID string) {
	n.log.Info("sequence continued", "obs_id", obsID)
}

func (n *LogNotifier) DatasetStart(obsID, fileID string) {
	n.log.Info("dataset started", "obs_id", obsID, "file_id", fileID)
}

func (n *LogNotifier) DatasetComplete(obsID, fileID string) {
	n.log.Info("dataset complete", "obs_id", obsID, "file_id", fileID)
}

func (n *LogNotifier) ObservationAbort(obsID, fileID string) {
	n.log.Warn("dataset aborted", "obs_id", obsID, "file_id", fileID)
}

// NopNotifier discards every milestone. Useful in tests.
type NopNotifier struct{}

func (NopNotifier) SequenceStart(string)            {}
func (NopNotifier) SequenceEnd(string)              {}
func (NopNotifier) SequencePause(string)            {}
func (NopNotifier) SequenceContinue(string)         {}
func (NopNotifier) DatasetStart(string, string)     {}
func (NopNotifier) DatasetComplete(string, string)  {}
func (NopNotifier) ObservationAbort(string, string) {}

// MultiNotifier fans milestones out to several notifiers in order.
type MultiNotifier []Notifier

func (m MultiNotifier) SequenceStart(obsID string) {
	for _, n := range m {
		n.SequenceStart(obsID)
	}
}

func (m MultiNotifier) SequenceEnd(obsID string) {
	for _, n := range m {
		n.SequenceEnd(obsID)
	}
}

func (m MultiNotifier) SequencePause(obsID string) {
	for _, n := range m {
		n.SequencePause(obsID)
	}
}

func (m MultiNotifier) SequenceContinue(obsID string) {
	for _, n := range m {
		n.SequenceContinue(obsID)
	}
}

func (m MultiNotifier) DatasetStart(obsID, fileID string) {
	for _, n := range m {
		n.DatasetStart(obsID, fileID)
	}
}

func (m MultiNotifier) DatasetComplete(obsID, fileID string) {
	for _, n := range m {
		n.DatasetComplete(obsID, fileID)
	}
}

func (m MultiNotifier) ObservationAbort(obsID, fileID string) {
	for _, n := range m {
		n.ObservationAbort(obsID, fileID)
	}
}
