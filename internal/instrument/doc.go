// Package instrument connects the sequence engine to observatory
// hardware.
//
// A System is one controllable subsystem (telescope, calibration unit,
// instrument). A Detector is a system that can also acquire datasets.
// The Builder turns observation definitions into engine steps whose
// actions drive the registered systems.
//
// Two implementations exist:
//
//   - sim: in-process simulated subsystems with configurable latencies,
//     used for development and acceptance testing without hardware.
//   - bridge: MQTT-backed subsystems, where each command round-trips
//     through a broker to a hardware bridge process.
//
// Which one backs a given deployment is selected by instruments.mode in
// config.yaml.
//
// # Exposure Model
//
// An exposure is driven through an ExposureHandle: the handle's event
// channel carries progress ticks and exactly one final disposition.
// Pause, stop and abort are cooperative requests; the outcome always
// arrives through the event channel, never through the request's return
// value.
package instrument
