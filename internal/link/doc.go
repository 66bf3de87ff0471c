// Package link connects the radio stack to the access control loop.
//
// The radio side runs on its own goroutines (MQTT callbacks from the BLE
// gateway) and never blocks. It talks to the control loop only through a
// Bus:
//
//   - per role, three binary semaphores: connected, disconnected (a
//     teardown the loop asked for completed) and reconnect (the link dropped
//     without being asked);
//   - a bounded queue of raw sensor readings and a bounded queue of mobile
//     peer addresses. Producers never block; when a queue is full the item
//     is dropped and a rate-limited warning is logged.
//
// The control loop blocks on the Bus only at its documented suspension
// points (sensor connect, sensor teardown, mobile connect with timeout,
// mobile teardown).
//
// MQTTRadio is the production radio: it publishes discovery, teardown and
// write requests to the gateway and feeds gateway events into the Bus.
package link
