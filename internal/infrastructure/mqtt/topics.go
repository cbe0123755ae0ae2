package mqtt

import "fmt"

// Topic prefixes for the Meridian MQTT hierarchy.
//
// Instrument bridge topics use the flat scheme:
// meridian/{category}/{system}/{id}. This matches the bridge daemons'
// subscriptions and all runtime subscribers.
const (
	// TopicPrefix is the base for all Meridian topics.
	TopicPrefix = "meridian"

	// TopicPrefixStatus is the base for retained status topics.
	TopicPrefixStatus = "meridian/status"

	// TopicPrefixSystem is the base for service lifecycle topics.
	TopicPrefixSystem = "meridian/system"
)

// Topics provides builders for Meridian MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	cmdTopic := topics.SystemCommand("gmos_s", "req-abc123")
//	// Returns: "meridian/command/gmos_s/req-abc123"
type Topics struct{}

// =============================================================================
// Instrument Bridge Topics
// =============================================================================

// SystemCommand returns the topic for a command to a subsystem bridge.
// The request id correlates the eventual acknowledgement.
//
// Example: meridian/command/gmos_s/req-abc123
func (Topics) SystemCommand(system, requestID string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, system, requestID)
}

// SystemAck returns the topic a bridge acknowledges one command on.
//
// Example: meridian/ack/gmos_s/req-abc123
func (Topics) SystemAck(system, requestID string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, system, requestID)
}

// SystemEvent returns the topic a bridge publishes unsolicited progress
// and dataset events on.
//
// Example: meridian/event/gmos_s
func (Topics) SystemEvent(system string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefix, system)
}

// SystemHealth returns the topic for a bridge's health heartbeat.
//
// Example: meridian/health/tcs
func (Topics) SystemHealth(system string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, system)
}

// =============================================================================
// Status Topics (retained)
// =============================================================================

// StatusSequence returns the retained topic carrying a sequence's
// current control state.
//
// Example: meridian/status/sequence/GS-2026B-Q-17-23
func (Topics) StatusSequence(obsID string) string {
	return fmt.Sprintf("%s/sequence/%s", TopicPrefixStatus, obsID)
}

// StatusConditions returns the retained topic for the ambient condition
// tuple.
//
// Example: meridian/status/conditions
func (Topics) StatusConditions() string {
	return fmt.Sprintf("%s/conditions", TopicPrefixStatus)
}

// StatusOperator returns the retained topic for the operator identity.
//
// Example: meridian/status/operator
func (Topics) StatusOperator() string {
	return fmt.Sprintf("%s/operator", TopicPrefixStatus)
}

// StatusNotice returns the topic operator notices are published on.
//
// Example: meridian/status/notice
func (Topics) StatusNotice() string {
	return fmt.Sprintf("%s/notice", TopicPrefixStatus)
}

// =============================================================================
// Service Topics
// =============================================================================

// SystemStatus returns the service status topic (also the LWT target).
//
// Example: meridian/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// SystemTime returns the time sync topic.
//
// Example: meridian/system/time
func (Topics) SystemTime() string {
	return fmt.Sprintf("%s/time", TopicPrefixSystem)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllSystemAcks returns a pattern matching every bridge acknowledgement.
//
// Pattern: meridian/ack/+/+
func (Topics) AllSystemAcks() string {
	return fmt.Sprintf("%s/ack/+/+", TopicPrefix)
}

// SystemAcks returns a pattern matching all acknowledgements of one
// subsystem.
//
// Pattern: meridian/ack/gmos_s/+
func (Topics) SystemAcks(system string) string {
	return fmt.Sprintf("%s/ack/%s/+", TopicPrefix, system)
}

// AllSystemEvents returns a pattern matching every bridge event stream.
//
// Pattern: meridian/event/+
func (Topics) AllSystemEvents() string {
	return fmt.Sprintf("%s/event/+", TopicPrefix)
}

// AllSystemHealth returns a pattern matching every bridge heartbeat.
//
// Pattern: meridian/health/+
func (Topics) AllSystemHealth() string {
	return fmt.Sprintf("%s/health/+", TopicPrefix)
}

// AllSequenceStatus returns a pattern matching every sequence status
// topic.
//
// Pattern: meridian/status/sequence/+
func (Topics) AllSequenceStatus() string {
	return fmt.Sprintf("%s/sequence/+", TopicPrefixStatus)
}

// AllTopics returns a pattern matching all Meridian topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: meridian/#
func (Topics) AllTopics() string {
	return "meridian/#"
}
