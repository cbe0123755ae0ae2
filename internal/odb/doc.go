// Package odb loads observation definitions and reports execution
// milestones back to the observing database.
//
// Observations are described by YAML files in the configured sequences
// directory, one file per observation. The Source turns those files into
// validated definitions; the Notifier interface carries dataset and
// sequence lifecycle events back out (to logs today, to a remote ODB
// service when one is wired in).
//
// # File Format
//
//	id: GS-2026B-Q-17-23
//	title: NGC 1300 longslit
//	instrument: gmos_s
//	steps:
//	  - exposure: 300
//	    configs:
//	      tcs:    { offset_p: 10.0, offset_q: 0.0 }
//	      gmos_s: { filter: r, grating: B600 }
//	  - exposure: 300
//	    configs:
//	      gcal:   { lamp: flat }
//	    breakpoint: true
//
// Step order in the file is execution order. The exposure is in seconds.
package odb
