package mqtt

import "fmt"

// topicPrefix roots every hub topic.
const topicPrefix = "wolhub"

// Topics builds the hub's MQTT topic strings. A zero value is ready to
// use:
//
//	mqtt.Topics{}.DeviceState("node-proxmox")
type Topics struct{}

// DeviceState returns the retained state topic for one device kind:
// wolhub/device/{kind}/state.
func (Topics) DeviceState(kind string) string {
	return fmt.Sprintf("%s/device/%s/state", topicPrefix, kind)
}

// DeviceCommand returns the command topic for one device kind:
// wolhub/command/{kind}.
func (Topics) DeviceCommand(kind string) string {
	return fmt.Sprintf("%s/command/%s", topicPrefix, kind)
}

// AllDeviceCommands returns a wildcard pattern matching every device
// command topic: wolhub/command/+.
func (Topics) AllDeviceCommands() string {
	return topicPrefix + "/command/+"
}

// AllDeviceStates returns a wildcard pattern matching every retained
// state topic: wolhub/device/+/state.
func (Topics) AllDeviceStates() string {
	return topicPrefix + "/device/+/state"
}

// SystemStatus returns the hub status topic: wolhub/system/status.
// Retained; carries the LWT on unexpected disconnect.
func (Topics) SystemStatus() string {
	return topicPrefix + "/system/status"
}

// CommandKind extracts the device kind from a command topic. Returns
// false for topics outside the command namespace.
func (Topics) CommandKind(topic string) (string, bool) {
	prefix := topicPrefix + "/command/"
	if len(topic) <= len(prefix) || topic[:len(prefix)] != prefix {
		return "", false
	}
	kind := topic[len(prefix):]
	for i := 0; i < len(kind); i++ {
		if kind[i] == '/' {
			return "", false
		}
	}
	return kind, true
}
