// Package mqtt connects the access node to its local Mosquitto broker.
//
// The node has no radio, keypad or servo of its own: a BLE gateway, a
// keypad controller and a lock controller sit on the broker and exchange
// messages with the node over the topics built by Topics. This package
// owns the connection itself: auto-reconnect with subscription replay,
// a retained online/offline status with a Last Will, and panic-safe
// message dispatch.
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := mqtt.Topics{Node: cfg.Site.ID}
//	err = client.Subscribe(topics.Keypad(), 1, func(topic string, payload []byte) error {
//	    return keypad.HandleMessage(topic, payload)
//	})
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS) when the broker is not on loopback
//   - Anyone able to publish on link event topics can impersonate a peer,
//     so restrict the broker ACL to the gateway's credentials
package mqtt
