package mqtt

import "strings"

// Topics builds the topic hierarchy of one console device.
//
// Entity topics live under the device base:
//
//	topics := mqtt.Topics{Root: "espconsole", Device: "kitchen"}
//	topics.EntityState("relay_1")
//	// Returns: "/espconsole/kitchen/relay_1/state"
//
// Discovery topics live under a separate prefix:
//
//	topics.Discovery("/homeassistant", "switch", "cx1a2b3c", "relay_1")
//	// Returns: "/homeassistant/switch/cx1a2b3c/relay_1/config"
type Topics struct {
	Root   string
	Device string
}

// Base returns the device base topic.
//
// Example: /espconsole/kitchen
func (t Topics) Base() string {
	return "/" + strings.Trim(t.Root, "/") + "/" + t.Device
}

// Status returns the device-level availability topic (LWT).
//
// Example: /espconsole/kitchen/status
func (t Topics) Status() string {
	return t.Base() + "/status"
}

// Log returns the remote log sink topic.
//
// Example: /espconsole/kitchen/log
func (t Topics) Log() string {
	return t.Base() + "/log"
}

// Entity returns an entity base topic, which doubles as its availability topic.
//
// Example: /espconsole/kitchen/relay_1
func (t Topics) Entity(name string) string {
	return t.Base() + "/" + name
}

// EntityCommand returns the topic an entity receives commands on.
//
// Example: /espconsole/kitchen/relay_1/cmd
func (t Topics) EntityCommand(name string) string {
	return t.Entity(name) + "/cmd"
}

// EntityState returns the topic an entity publishes its state on.
//
// Example: /espconsole/kitchen/relay_1/state
func (t Topics) EntityState(name string) string {
	return t.Entity(name) + "/state"
}

// EntityAttributes returns the topic an entity publishes JSON attributes on.
//
// Example: /espconsole/kitchen/relay_1/attributes
func (t Topics) EntityAttributes(name string) string {
	return t.Entity(name) + "/attributes"
}

// Discovery returns the retained discovery topic of an entity.
//
// Example: /homeassistant/switch/cx1a2b3c/relay_1/config
func (Topics) Discovery(prefix, entityType, deviceID, name string) string {
	return strings.TrimRight(prefix, "/") + "/" + entityType + "/" + deviceID + "/" + name + "/config"
}

// All returns a pattern matching every topic of the device.
//
// Pattern: /espconsole/kitchen/#
func (t Topics) All() string {
	return t.Base() + "/#"
}
