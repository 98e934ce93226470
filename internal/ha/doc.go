// Package ha models the Home Assistant entities a console exposes over MQTT.
//
// A single Device groups every entity. Each entity has a sanitised name, a
// unique id of the form cx<chip-id>_<name> and a topic subtree under the
// device base:
//
//	/<root>/<device>/<entity>             availability (online/offline)
//	/<root>/<device>/<entity>/cmd         commands from the broker
//	/<root>/<device>/<entity>/state       state published by the console
//	/<root>/<device>/<entity>/attributes  JSON attributes
//
// Registration publishes a retained discovery document under
// <discovery>/<type>/<device-id>/<entity>/config. Deregistration publishes
// empty retained payloads on the same topics, which removes the entity from
// both Home Assistant and the broker.
//
// The package does not own an MQTT connection. The caller supplies a
// Publisher, typically an adapter around the infrastructure MQTT client.
package ha
