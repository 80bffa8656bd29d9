package mqtt

import "fmt"

// Topic prefixes for the qdmacore mailbox channel.
//
// Per-device topics use the flat scheme: qdmacore/dev/{bdf}/{channel}
// where {bdf} is the packed bus address rendered as five hex digits,
// matching the device display-name suffix.
const (
	// TopicPrefix is the base for all qdmacore topics.
	TopicPrefix = "qdmacore"

	// TopicPrefixDevice is the base for per-device topics.
	TopicPrefixDevice = "qdmacore/dev"

	// TopicPrefixSystem is the base for daemon-level topics.
	TopicPrefixSystem = "qdmacore/system"
)

// Topics provides builders for qdmacore MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	statusTopic := topics.DeviceStatus(0x3b000)
//	// Returns: "qdmacore/dev/3b000/status"
type Topics struct{}

// DeviceStatus returns the retained status topic for a device.
//
// Example: qdmacore/dev/3b000/status
func (Topics) DeviceStatus(bdf uint32) string {
	return fmt.Sprintf("%s/%05x/status", TopicPrefixDevice, bdf)
}

// DeviceMbox returns the peer message topic for a device.
//
// Example: qdmacore/dev/3b000/mbox
func (Topics) DeviceMbox(bdf uint32) string {
	return fmt.Sprintf("%s/%05x/mbox", TopicPrefixDevice, bdf)
}

// SystemStatus returns the daemon status topic.
//
// Example: qdmacore/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllDeviceStatus returns a pattern matching every device status topic.
//
// Pattern: qdmacore/dev/+/status
func (Topics) AllDeviceStatus() string {
	return fmt.Sprintf("%s/+/status", TopicPrefixDevice)
}

// AllDeviceMbox returns a pattern matching every device mailbox topic.
//
// Pattern: qdmacore/dev/+/mbox
func (Topics) AllDeviceMbox() string {
	return fmt.Sprintf("%s/+/mbox", TopicPrefixDevice)
}

// AllTopics returns a pattern matching all qdmacore topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: qdmacore/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
