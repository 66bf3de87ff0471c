package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/gateway"
)

// SystemMetrics is the body of GET /metrics.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
	MQTT          MQTTMetrics    `json:"mqtt"`
	Node          NodeMetrics    `json:"node"`
	Gateway       *gateway.Stats `json:"gateway,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains operator console statistics.
type WSMetrics struct {
	ConnectedClients int    `json:"connected_clients"`
	DroppedEvents    uint64 `json:"dropped_events"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// NodeMetrics summarises the access node without exposing identities.
type NodeMetrics struct {
	State          string `json:"state"`
	LinkDropped    uint64 `json:"link_dropped"`
	JournalDropped uint64 `json:"journal_dropped"`
	ChainValid     *bool  `json:"chain_valid,omitempty"`
	ChainBlocks    int    `json:"chain_blocks"`
	ChainCheckedAt string `json:"chain_checked_at,omitempty"`
}

// handleMetrics returns process and node counters. No authentication required.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
			DroppedEvents:    s.hub.Dropped(),
		},
		Node: NodeMetrics{
			State: s.state.Snapshot().State.String(),
		},
	}

	if s.mqtt != nil {
		metrics.MQTT.Connected = s.mqtt.IsConnected()
	}
	if s.links != nil {
		metrics.Node.LinkDropped = s.links.Dropped()
	}
	if s.gateway != nil {
		st := s.gateway.Stats()
		metrics.Gateway = &st
	}
	if s.journal != nil {
		metrics.Node.JournalDropped = s.journal.Dropped()
	}
	if last := s.validator.Last(); !last.CheckedAt.IsZero() {
		valid := last.Valid
		metrics.Node.ChainValid = &valid
		metrics.Node.ChainBlocks = last.Blocks
		metrics.Node.ChainCheckedAt = last.CheckedAt.Format(time.RFC3339)
	}

	writeJSON(w, http.StatusOK, metrics)
}
