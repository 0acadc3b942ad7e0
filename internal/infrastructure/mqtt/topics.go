package mqtt

import "strings"

// Topic namespace for the storefront telemetry core.
//
//	storefront/telemetry/{device_id}   device submissions (inbound)
//	storefront/events/{kind}           mirrored broadcast events (outbound)
//	storefront/system/status           core online/offline (retained, LWT)
const (
	topicRoot      = "storefront"
	telemetryLevel = "telemetry"
	eventsLevel    = "events"
)

// Topics builds topic strings. It is a zero-size namespace type:
//
//	mqtt.Topics{}.Telemetry("TEMP_001")
type Topics struct{}

// Telemetry is the topic a device publishes readings to.
func (Topics) Telemetry(deviceID string) string {
	return topicRoot + "/" + telemetryLevel + "/" + deviceID
}

// AllTelemetry matches every device telemetry topic.
func (Topics) AllTelemetry() string {
	return topicRoot + "/" + telemetryLevel + "/+"
}

// Event is the topic a broadcast event of kind is mirrored to.
func (Topics) Event(kind string) string {
	return topicRoot + "/" + eventsLevel + "/" + kind
}

// EventPrefix is the prefix under which events are mirrored.
func (Topics) EventPrefix() string {
	return topicRoot + "/" + eventsLevel
}

// AllEvents matches every mirrored event topic.
func (Topics) AllEvents() string {
	return topicRoot + "/" + eventsLevel + "/+"
}

// SystemStatus carries the core's retained online/offline status.
func (Topics) SystemStatus() string {
	return topicRoot + "/system/status"
}

// DeviceIDFromTelemetry extracts the device ID from a telemetry topic.
// Returns false if topic is not storefront/telemetry/{id}.
func DeviceIDFromTelemetry(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != topicRoot || parts[1] != telemetryLevel || parts[2] == "" {
		return "", false
	}
	return parts[2], true
}
