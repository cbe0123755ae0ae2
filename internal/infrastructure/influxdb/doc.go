// Package influxdb provides InfluxDB connectivity for Meridian Core.
//
// It wraps the official influxdb-client-go v2 library with Meridian-specific
// patterns for connection management, metric writing, and health monitoring.
//
// # Purpose
//
// This package handles time-series data storage for:
//   - Observation progress (exposure remaining per dataset)
//   - Sequence state transitions over the night
//   - Observing conditions (image quality, cloud cover, water vapour, sky background)
//   - Engine health metrics (event queue depth, loaded sequence count)
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "meridian",
//	    Bucket: "observatory",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Record exposure progress
//	client.WriteObserveProgress("GS-2026B-Q-17-23", "gmos_s", 3, 120.5, 300.0)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
// This reduces network overhead during rapid exposure progress updates.
package influxdb
