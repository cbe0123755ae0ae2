package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteObserveProgress writes dataset acquisition progress for an observation.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - obsID: Observation identifier (e.g., "GS-2026B-Q-17-23")
//   - instrument: Instrument resource collecting the dataset (e.g., "gmos_s")
//   - step: Zero-based step index within the sequence
//   - remaining: Exposure time remaining in seconds
//   - total: Total exposure time in seconds
//
// Example:
//
//	client.WriteObserveProgress("GS-2026B-Q-17-23", "gmos_s", 3, 120.5, 300.0)
func (c *Client) WriteObserveProgress(obsID, instrument string, step int, remaining, total float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"observe_progress",
		map[string]string{
			"obs_id":     obsID,
			"instrument": instrument,
		},
		map[string]interface{}{
			"step":      step,
			"remaining": remaining,
			"total":     total,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteSequenceState writes a sequence state transition.
//
// Used for tracking observation lifecycle over time (running, paused,
// completed, failed, aborted).
//
// Parameters:
//   - obsID: Observation identifier
//   - state: Sequence state name
//   - step: Current cursor position (step index)
func (c *Client) WriteSequenceState(obsID, state string, step int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"sequence_state",
		map[string]string{
			"obs_id": obsID,
			"state":  state,
		},
		map[string]interface{}{
			"step": step,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteConditions writes the current observing conditions.
//
// Each condition is recorded as a percentile band tag plus a marker
// field so dashboards can graph degradation over the night.
//
// Parameters:
//   - iq: Image quality band (e.g., "iq70")
//   - cc: Cloud cover band
//   - wv: Water vapour band
//   - sb: Sky background band
func (c *Client) WriteConditions(iq, cc, wv, sb string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"conditions",
		map[string]string{
			"iq": iq,
			"cc": cc,
			"wv": wv,
			"sb": sb,
		},
		map[string]interface{}{
			"recorded": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteEngineMetric writes an engine health measurement.
//
// Used for tracking event loop behaviour like queue depth and
// loaded sequence count.
//
// Parameters:
//   - metricName: Engine metric (e.g., "queue_depth", "sequences_loaded")
//   - value: The metric value
func (c *Client) WriteEngineMetric(metricName string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"engine",
		map[string]string{
			"metric": metricName,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "meridian-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
