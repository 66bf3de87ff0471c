package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-access/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/logging"
)

// Console message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// consoleQueue is the number of events held for one slow console.
	consoleQueue = 256
)

// WSMessage is one frame in either direction.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload of subscribe and unsubscribe frames.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// Hub fans node events out to connected operator consoles. Broadcast is
// called from the control loop and the chain validator; it never waits on
// a console. Events a console has no room for are dropped and counted.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu       sync.RWMutex
	consoles map[*WSClient]struct{}
	dropped  atomic.Uint64
}

// WSClient is one operator console.
type WSClient struct {
	hub      *Hub
	conn     *websocket.Conn
	operator string

	mu       sync.Mutex
	send     chan []byte
	channels map[string]struct{}
	closed   bool
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Tickets are single-use and bound to a logged-in operator.
		return true
	},
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:      cfg,
		logger:   logger,
		consoles: make(map[*WSClient]struct{}),
	}
}

func newConsole(hub *Hub, conn *websocket.Conn, operator string) *WSClient {
	return &WSClient{
		hub:      hub,
		conn:     conn,
		operator: operator,
		send:     make(chan []byte, consoleQueue),
		channels: make(map[string]struct{}),
	}
}

// Run blocks until ctx ends, then disconnects every console.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	consoles := make([]*WSClient, 0, len(h.consoles))
	for c := range h.consoles {
		consoles = append(consoles, c)
	}
	clear(h.consoles)
	h.mu.Unlock()

	for _, c := range consoles {
		c.close()
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

// Register adds a console.
func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	h.consoles[c] = struct{}{}
	n := len(h.consoles)
	h.mu.Unlock()
	h.logger.Debug("operator console connected", "operator", c.operator, "consoles", n)
}

// Unregister removes a console and closes its queue. Safe to call twice.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	delete(h.consoles, c)
	n := len(h.consoles)
	h.mu.Unlock()

	c.close()
	h.logger.Debug("operator console disconnected", "operator", c.operator, "consoles", n)
}

// Broadcast sends payload as an event on channel to every console
// subscribed to it.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("encoding console event", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	consoles := make([]*WSClient, 0, len(h.consoles))
	for c := range h.consoles {
		consoles = append(consoles, c)
	}
	h.mu.RUnlock()

	for _, c := range consoles {
		if !c.subscribed(channel) {
			continue
		}
		if !c.deliver(data) {
			n := h.dropped.Add(1)
			h.logger.Warn("console queue full, event dropped",
				"operator", c.operator,
				"channel", channel,
				"dropped_total", n,
			)
		}
	}
}

// ClientCount returns the number of connected consoles.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.consoles)
}

// Dropped returns the number of events lost to full console queues.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// handleWebSocket upgrades an operator console. The ticket comes from
// POST /auth/ws-ticket because browsers cannot set headers on upgrade.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		writeUnauthorized(w, "ticket query parameter is required")
		return
	}
	operator, ok := s.tickets.redeem(ticket, time.Now())
	if !ok {
		writeUnauthorized(w, "invalid or expired ticket")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "operator", operator, "error", err)
		return
	}

	c := newConsole(s.hub, conn, operator)
	s.hub.Register(c)

	ka := keepaliveFrom(s.wsCfg)
	go c.writeLoop(ka)
	go c.readLoop(ka, int64(s.wsCfg.MaxMessageSize))
}

// keepalive holds the ping cadence and how long a silent console survives.
type keepalive struct {
	ping time.Duration
	pong time.Duration
}

func keepaliveFrom(cfg config.WebSocketConfig) keepalive {
	return keepalive{
		ping: time.Duration(cfg.PingInterval) * time.Second,
		pong: time.Duration(cfg.PongTimeout) * time.Second,
	}
}

func (k keepalive) readDeadline() time.Time {
	return time.Now().Add(k.ping + k.pong)
}

func (k keepalive) writeDeadline() time.Time {
	return time.Now().Add(k.pong)
}

// readLoop handles frames from the console until it goes away.
func (c *WSClient) readLoop(ka keepalive, limit int64) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(limit)
	c.conn.SetReadDeadline(ka.readDeadline()) //nolint:errcheck // read error ends the loop
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(ka.readDeadline())
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("operator console read failed", "operator", c.operator, "error", err)
			}
			return
		}
		// Any frame counts as liveness; some browsers never answer pings.
		c.conn.SetReadDeadline(ka.readDeadline()) //nolint:errcheck // read error ends the loop
		c.handleMessage(frame)
	}
}

// writeLoop drains the console queue and sends keepalive pings.
func (c *WSClient) writeLoop(ka keepalive) {
	ticker := time.NewTicker(ka.ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		var (
			kind = websocket.TextMessage
			data []byte
		)
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil) //nolint:errcheck // closing anyway
				return
			}
			data = msg
		case <-ticker.C:
			kind = websocket.PingMessage
		}

		c.conn.SetWriteDeadline(ka.writeDeadline()) //nolint:errcheck // write error ends the loop
		if err := c.conn.WriteMessage(kind, data); err != nil {
			return
		}
	}
}

// handleMessage applies one frame from the console.
func (c *WSClient) handleMessage(frame []byte) {
	var msg WSMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		c.replyError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe:
		c.subscribe(msg)
	case WSTypeUnsubscribe:
		c.unsubscribe(msg)
	case WSTypePing:
		c.reply(msg.ID, WSTypePong, nil)
	default:
		c.replyError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// subscribe adds the node channels named in msg. Anything else is
// reported back as rejected.
func (c *WSClient) subscribe(msg WSMessage) {
	req, ok := c.channelsOf(msg)
	if !ok {
		return
	}

	accepted := make([]string, 0, len(req.Channels))
	rejected := []string{}
	c.mu.Lock()
	for _, ch := range req.Channels {
		if !slices.Contains(eventChannels, ch) {
			rejected = append(rejected, ch)
			continue
		}
		c.channels[ch] = struct{}{}
		accepted = append(accepted, ch)
	}
	c.mu.Unlock()

	c.hub.logger.Info("operator console subscribed", "operator", c.operator, "channels", accepted)
	c.reply(msg.ID, WSTypeResponse, map[string]any{
		"subscribed": accepted,
		"rejected":   rejected,
	})
}

func (c *WSClient) unsubscribe(msg WSMessage) {
	req, ok := c.channelsOf(msg)
	if !ok {
		return
	}

	c.mu.Lock()
	for _, ch := range req.Channels {
		delete(c.channels, ch)
	}
	c.mu.Unlock()

	c.reply(msg.ID, WSTypeResponse, map[string]any{
		"unsubscribed": req.Channels,
	})
}

// channelsOf decodes the channel list of a subscribe or unsubscribe frame.
func (c *WSClient) channelsOf(msg WSMessage) (WSSubscribePayload, bool) {
	var req WSSubscribePayload
	raw, err := json.Marshal(msg.Payload)
	if err == nil {
		err = json.Unmarshal(raw, &req)
	}
	if err != nil {
		c.replyError(msg.ID, "invalid "+msg.Type+" payload")
		return req, false
	}
	return req, true
}

func (c *WSClient) subscribed(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.channels[channel]
	return ok
}

// deliver queues data for the console. It reports false only when the
// queue is full; a closed console silently discards.
func (c *WSClient) deliver(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close ends the write loop. Safe to call more than once.
func (c *WSClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.deliver(data)
}

func (c *WSClient) replyError(id, message string) {
	c.reply(id, WSTypeError, map[string]string{"message": message})
}
