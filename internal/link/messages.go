package link

import "time"

// Gateway wire format. The BLE gateway owns the radio; the node only sends
// requests and consumes reports.

// Control actions published on the link control topic.
const (
	ActionDiscover = "discover"
	ActionTeardown = "teardown"
)

// Gateway event names received on the link event topic.
const (
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
)

// ControlMessage asks the gateway to start discovery or drop the link.
// Topic: accessnode/{node}/link/{role}/control
type ControlMessage struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`

	// Allow restricts discovery to these peer addresses. Empty means any.
	Allow []string `json:"allow,omitempty"`
}

// TxMessage carries bytes for the connected peer.
// Topic: accessnode/{node}/link/{role}/tx
type TxMessage struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Data      []byte    `json:"data"` // base64 on the wire
}

// EventMessage reports a link state change.
// Topic: accessnode/{node}/link/{role}/event
type EventMessage struct {
	Event  string `json:"event"`
	Peer   string `json:"peer,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// DataMessage carries a notification received from the peer.
// Topic: accessnode/{node}/link/{role}/data
type DataMessage struct {
	Peer    string `json:"peer"`
	Payload string `json:"payload"`
}
