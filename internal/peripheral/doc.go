// Package peripheral adapts the door hardware reachable over MQTT to the
// control loop: the keypad, the lock actuator and the alert outputs
// (buzzer, camera trigger).
package peripheral
