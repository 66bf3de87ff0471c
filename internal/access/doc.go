// Package access implements the node's control loop.
//
// The Orchestrator is a polled finite state machine. Each pass evaluates
// exactly one state and makes at most one transition:
//
//	IDLE -> SENSOR_CONNECT -> SENSOR_SYNC -> SENSOR_DATA -> SENSOR_DISCONNECT
//	     -> MOBILE_CONNECT -> MOBILE_DATA -> MOBILE_DISCONNECT -> FAIL | SUCCESS
//	     -> BLOCKCHAIN -> IDLE
//
// with MOBILE_CONNECT falling through to TAMPERING or PRESENCE (and then
// BLOCKCHAIN) when no registered phone pairs within the connect timeout.
//
// The loop goroutine owns all control state: the current and previous
// state, the pending event, the paired credential and the credential
// excluded after a lockout. It is also the only writer of the audit chain.
// Other goroutines observe it through Snapshot and Observer callbacks.
//
// The loop suspends only at the documented points: the unbounded wait for
// the sensor link, the sensor and mobile teardown waits, the bounded wait
// for a mobile link, and the fixed settle delays. Failures of collaborators
// are logged and absorbed; Run returns only when its context is cancelled.
package access
