// Package engine implements the observation sequence execution core: a
// single-threaded event loop that drives telescope and instrument
// subsystems through ordered steps of parallel actions, with cooperative
// pause, stop and abort, and mutual exclusion of hardware resources
// between observations.
//
// # Architecture
//
//	             commands                     action callbacks
//	(api, mqtt, engineering)              (progress, terminal, pause)
//	           │                                      │
//	           ▼                                      ▼
//	   ┌──────────────────────────────────────────────────────┐
//	   │                 unbounded event FIFO                 │
//	   └──────────────────────────┬───────────────────────────┘
//	                              │ single consumer
//	                              ▼
//	   ┌──────────────────────────────────────────────────────┐
//	   │  event loop: clone state → apply event → swap state  │
//	   └───────┬──────────────────┬───────────────────┬───────┘
//	           │                  │                   │
//	           ▼                  ▼                   ▼
//	    action streams     control requests       emissions
//	   (launch / resume)  (pause/stop/abort)  (snapshot + notices)
//	           │                                      │
//	           ▼                                      ▼
//	    instrument systems                     sinks (websocket,
//	   (tcs, detectors, gcal)                 telemetry, audit log)
//
// # Model
//
// An Action is a lazily-produced stream of notifications over one
// hardware resource, ending in exactly one terminal notification
// (completed, paused with a continuation, or failed). A Step is an
// ordered list of action groups: actions within a group run in
// parallel, groups run strictly in sequence. A Sequence is the ordered
// steps of one observation plus its execution cursor and control state.
//
// EngineState is the single mutable root. The loop replaces it
// wholesale on every event; observers only ever see deep-copied
// snapshots, so step and resource status can be derived at any time
// without locks. Resource usage is likewise a pure projection over the
// action states, never stored.
//
// # Concurrency
//
// Exactly one goroutine (Run) mutates state. Hardware work runs on
// stream goroutines that communicate only through notifications pumped
// back into the FIFO. Pause, stop and abort are cooperative requests:
// the loop never blocks waiting for hardware, and the outcome of a
// request arrives later as an ordinary event. When stop and abort race,
// the abort's discarding outcome wins.
package engine
