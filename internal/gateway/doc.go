// Package gateway supervises the BLE-to-MQTT gateway daemon.
//
// The access node never talks Bluetooth itself: a gateway process owns the
// radio and bridges link events onto MQTT (see package link). When the node
// is configured to manage that process, a Supervisor starts it, forwards its
// output to the node's log, and restarts it with exponential backoff when it
// exits. Stop delivers SIGTERM to the whole process group and escalates to
// SIGKILL after the graceful timeout.
package gateway
