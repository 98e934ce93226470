// Package mqtt provides MQTT client connectivity for the console runtime.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees and retained flags
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) on the device status topic
//   - The device topic hierarchy used by the HA entity model
//
// # Topic hierarchy
//
//	/<root>/<device>/status                 online/offline (LWT)
//	/<root>/<device>/log                    remote log sink
//	/<root>/<device>/<entity>               entity availability
//	/<root>/<device>/<entity>/cmd           entity commands
//	/<root>/<device>/<entity>/state         entity state
//	/<root>/<device>/<entity>/attributes    entity attributes
//	<discovery>/<type>/<device-id>/<entity>/config
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, "kitchen")
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(client.Topics().EntityCommand("relay_1"), 1,
//	    func(msg mqtt.Message) error {
//	        log.Printf("Received: %s = %s", msg.Topic, msg.Payload)
//	        return nil
//	    })
//
//	client.Publish(client.Topics().EntityState("relay_1"), []byte("ON"), 1, true)
//
// Handlers run on paho goroutines. The console loop is single-threaded, so
// the mqtt capability queues messages and drains them from its loop hook.
package mqtt
