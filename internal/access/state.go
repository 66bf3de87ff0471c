package access

import "fmt"

// State is one state of the control loop.
type State int

const (
	StateIdle State = iota
	StateSensorConnect
	StateSensorSync
	StateSensorData
	StateSensorDisconnect
	StateMobileConnect
	StateMobileData
	StateMobileDisconnect
	StateTampering
	StatePresence
	StateFail
	StateSuccess
	StateBlockchain
)

var stateNames = [...]string{
	StateIdle:             "IDLE",
	StateSensorConnect:    "SENSOR_CONNECT",
	StateSensorSync:       "SENSOR_SYNC",
	StateSensorData:       "SENSOR_DATA",
	StateSensorDisconnect: "SENSOR_DISCONNECT",
	StateMobileConnect:    "MOBILE_CONNECT",
	StateMobileData:       "MOBILE_DATA",
	StateMobileDisconnect: "MOBILE_DISCONNECT",
	StateTampering:        "TAMPERING",
	StatePresence:         "PRESENCE",
	StateFail:             "FAIL",
	StateSuccess:          "SUCCESS",
	StateBlockchain:       "BLOCKCHAIN",
}

// StateNames returns the state name table, indexed by State.
func StateNames() []string {
	out := make([]string, len(stateNames))
	copy(out, stateNames[:])
	return out
}

// String returns the state name.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("STATE(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText encodes the state as its name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// EventKind is the outcome a cycle is heading towards.
type EventKind int

const (
	EventNone EventKind = iota
	EventPresence
	EventTampering
	EventFail
	EventSuccess
)

// String returns the name written to the audit chain.
func (k EventKind) String() string {
	switch k {
	case EventPresence:
		return "PRESENCE"
	case EventTampering:
		return "TAMPERING"
	case EventFail:
		return "FAIL"
	case EventSuccess:
		return "SUCCESS"
	default:
		return "NONE"
	}
}

// MarshalText encodes the kind as its name.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// NotAvailable fills measurement and subject fields that have no value.
const NotAvailable = "N/A"

// Event is the pending outcome of the current cycle.
type Event struct {
	Kind      EventKind `json:"kind"`
	Timestamp int64     `json:"timestamp"` // Unix seconds
	MagMeas   string    `json:"mag_meas"`
	UltraMeas string    `json:"ultra_meas"`
}

func emptyEvent() Event {
	return Event{Kind: EventNone, MagMeas: NotAvailable, UltraMeas: NotAvailable}
}
