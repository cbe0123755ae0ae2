package instrument

import "errors"

// Sentinel errors for instrument operations.
var (
	// ErrUnknownSystem indicates no system is registered for a resource.
	ErrUnknownSystem = errors.New("instrument: unknown system")

	// ErrNotDetector indicates the resource's system cannot acquire datasets.
	ErrNotDetector = errors.New("instrument: system is not a detector")

	// ErrNoExposure indicates a control request arrived before the
	// exposure started or after it ended.
	ErrNoExposure = errors.New("instrument: no exposure in flight")

	// ErrCommandFailed indicates the subsystem rejected or failed a command.
	ErrCommandFailed = errors.New("instrument: command failed")

	// ErrAckTimeout indicates the bridge did not acknowledge within the
	// configured window.
	ErrAckTimeout = errors.New("instrument: acknowledgement timeout")
)
