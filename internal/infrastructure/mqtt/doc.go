// Package mqtt provides MQTT client connectivity for the Meridian
// sequence executor.
//
// This package manages:
//   - Connection to Mosquitto broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Meridian uses MQTT as the message bus connecting the execution core to
// the subsystem bridge daemons (telescope control, instrument detectors,
// the calibration unit). The broker (Mosquitto) decouples the core from
// subsystem-specific control protocols.
//
//	Meridian Core ↔ MQTT Broker ↔ Subsystem Bridges
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Reconnect: Exponential backoff 1s-60s with jitter
//   - Message throughput: Broker-limited (typically 10K+ msg/sec)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all subsystem event streams
//	err = client.Subscribe(mqtt.Topics{}.AllSystemEvents(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish a command
//	topic := mqtt.Topics{}.SystemCommand("gmos_s", "req-abc123")
//	client.Publish(topic, []byte(`{"command":"apply_config"}`), 1, false)
package mqtt
