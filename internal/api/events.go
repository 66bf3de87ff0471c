package api

import (
	"github.com/nerrad567/gray-logic-access/internal/access"
	"github.com/nerrad567/gray-logic-access/internal/chain"
	"github.com/nerrad567/gray-logic-access/internal/threshold"
)

// WebSocket channels.
const (
	ChannelStateChanged      = "state.changed"
	ChannelChainRecorded     = "chain.recorded"
	ChannelChainValidated    = "chain.validated"
	ChannelThresholdsChanged = "thresholds.changed"
)

// eventChannels lists every channel a console may subscribe to.
var eventChannels = []string{
	ChannelStateChanged,
	ChannelChainRecorded,
	ChannelChainValidated,
	ChannelThresholdsChanged,
}

// StateChangedEvent is the payload of a state.changed broadcast.
type StateChangedEvent struct {
	From     access.State    `json:"from"`
	To       access.State    `json:"to"`
	Snapshot access.Snapshot `json:"snapshot"`
}

// StateChanged broadcasts an orchestrator transition. Implements access.Observer.
func (s *Server) StateChanged(from, to access.State) {
	s.hub.Broadcast(ChannelStateChanged, StateChangedEvent{
		From:     from,
		To:       to,
		Snapshot: s.state.Snapshot(),
	})
}

// Recorded broadcasts a newly appended block. Implements access.Observer.
func (s *Server) Recorded(b chain.Block) {
	s.hub.Broadcast(ChannelChainRecorded, b)
}

// ChainValidated broadcasts a validation result. Suitable for Validator.OnResult.
func (s *Server) ChainValidated(res chain.Result) {
	s.hub.Broadcast(ChannelChainValidated, res)
}

// ThresholdsChanged broadcasts the current thresholds. Suitable for Publisher.OnChange.
func (s *Server) ThresholdsChanged(values map[threshold.Kind]string) {
	s.hub.Broadcast(ChannelThresholdsChanged, values)
}
