// Package mqtt provides MQTT client connectivity for the purifier service.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support, restored after reconnect
//   - Last Will and Testament (LWT) for offline detection
//   - Topic builders rooted at the configured prefix
//
// # Architecture
//
// Purifiers speak a local protocol that a gateway bridges onto MQTT. The
// service never talks to a device directly: each device link subscribes to
// the device's status and ack topics and publishes control writes to its
// command topic.
//
//	purifierd ↔ MQTT Broker ↔ gateway ↔ purifier
//
// # Security Considerations
//
//   - TLS should be enabled for any broker reachable off-host (cfg.Broker.TLS=true)
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.Subscribe(topics.PurifierStatus("192.168.1.20"), 1,
//	    func(topic string, payload []byte) error {
//	        return handle(payload)
//	    })
//
//	client.Publish(topics.PurifierCommand("192.168.1.20"), []byte(`{"key":"pwr","value":"1"}`), 1, false)
package mqtt
