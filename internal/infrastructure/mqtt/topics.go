package mqtt

import "fmt"

// TopicPrefix roots every access node topic.
const TopicPrefix = "accessnode"

// Topics builds topic names for one node. Node is the site ID.
//
//	accessnode/{node}/link/{role}/control   node -> gateway: discover, teardown
//	accessnode/{node}/link/{role}/event     gateway -> node: connected, disconnected
//	accessnode/{node}/link/{role}/data      gateway -> node: notifications
//	accessnode/{node}/link/{role}/tx        node -> gateway: writes to the peer
//	accessnode/{node}/keypad                keypad -> node: key presses
//	accessnode/{node}/lock/command          node -> lock: toggle
//	accessnode/{node}/alert                 node -> buzzer/notifier
//	accessnode/{node}/state                 retained state snapshot
//	accessnode/{node}/thresholds            retained detection thresholds
//	accessnode/system/status                retained online/offline (LWT)
type Topics struct {
	Node string
}

func (t Topics) node() string {
	return fmt.Sprintf("%s/%s", TopicPrefix, t.Node)
}

// LinkControl carries discovery and teardown requests for a radio role.
func (t Topics) LinkControl(role string) string {
	return fmt.Sprintf("%s/link/%s/control", t.node(), role)
}

// LinkEvent carries connect and disconnect reports for a radio role.
func (t Topics) LinkEvent(role string) string {
	return fmt.Sprintf("%s/link/%s/event", t.node(), role)
}

// LinkData carries notification payloads received from the peer.
func (t Topics) LinkData(role string) string {
	return fmt.Sprintf("%s/link/%s/data", t.node(), role)
}

// LinkTx carries writes destined for the connected peer.
func (t Topics) LinkTx(role string) string {
	return fmt.Sprintf("%s/link/%s/tx", t.node(), role)
}

// Keypad carries single key presses.
func (t Topics) Keypad() string {
	return t.node() + "/keypad"
}

// LockCommand drives the latch actuator.
func (t Topics) LockCommand() string {
	return t.node() + "/lock/command"
}

// Alert announces tampering, presence and failed attempts.
func (t Topics) Alert() string {
	return t.node() + "/alert"
}

// State is the retained control loop snapshot.
func (t Topics) State() string {
	return t.node() + "/state"
}

// Thresholds is the retained pair of detection thresholds.
func (t Topics) Thresholds() string {
	return t.node() + "/thresholds"
}

// SystemStatus is shared by all nodes; the payload names the client.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}
