package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/storefront-telemetry/internal/broadcast"
	"github.com/nerrad567/storefront-telemetry/internal/infrastructure/config"
	"github.com/nerrad567/storefront-telemetry/internal/infrastructure/logging"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// wsControlBufferSize is the per-client queue for responses. Events
	// are queued by the broadcast subscription, not here.
	wsControlBufferSize = 16

	defaultPingInterval = 30 * time.Second
	defaultPongTimeout  = 10 * time.Second
)

// WSMessage is a message sent to a WebSocket client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// wsInbound is a message received from a client.
type wsInbound struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSSubscribePayload selects events for subscribe and unsubscribe.
// An empty subscribe payload means every event.
type WSSubscribePayload struct {
	Kinds   []broadcast.Kind `json:"kinds,omitempty"`
	Devices []string         `json:"devices,omitempty"`
	Items   []string         `json:"items,omitempty"`
}

func (p WSSubscribePayload) filter() broadcast.Filter {
	return broadcast.Filter{Kinds: p.Kinds, Devices: p.Devices, Items: p.Items}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origins are enforced by the CORS policy.
		return true
	},
}

// WSClient is one WebSocket connection. It receives nothing until it
// sends a subscribe message; the first subscribe creates its broadcast
// subscription and later ones add filters to it.
type WSClient struct {
	hub    *broadcast.Hub
	conn   *websocket.Conn
	logger *logging.Logger

	// send carries responses; events come from sub.
	send chan []byte
	// resub wakes the write pump when sub changes.
	resub chan struct{}
	done  chan struct{}

	mu  sync.Mutex
	sub *broadcast.Subscription
}

// handleWebSocket upgrades the connection and starts its pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:    s.hub,
		conn:   conn,
		logger: s.logger,
		send:   make(chan []byte, wsControlBufferSize),
		resub:  make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	s.logger.Debug("websocket client connected", "remote", r.RemoteAddr)

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)
}

func keepalive(cfg config.WebSocketConfig) (ping, pong time.Duration) {
	ping = time.Duration(cfg.PingInterval) * time.Second
	if ping <= 0 {
		ping = defaultPingInterval
	}
	pong = time.Duration(cfg.PongTimeout) * time.Second
	if pong <= 0 {
		pong = defaultPongTimeout
	}
	return ping, pong
}

// readPump handles client messages until the connection fails, then
// releases the subscription.
func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.mu.Lock()
		if c.sub != nil {
			c.sub.Close()
			c.sub = nil
		}
		c.mu.Unlock()
		close(c.done)
		c.conn.Close()
	}()

	if cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	}
	pingInterval, pongWait := keepalive(cfg)
	//nolint:errcheck // best-effort deadline
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		//nolint:errcheck // best-effort deadline
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(message)
	}
}

// writePump writes responses, events and pings. It ends when the read
// pump finishes or when the hub drops the subscription for being too
// slow.
func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	pingInterval, pongWait := keepalive(cfg)
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) bool {
		//nolint:errcheck // write error is checked below
		c.conn.SetWriteDeadline(time.Now().Add(pongWait))
		return c.conn.WriteMessage(kind, data) == nil
	}

	for {
		sub := c.subscription()
		var events <-chan broadcast.Event
		if sub != nil {
			events = sub.Events()
		}

		select {
		case <-c.done:
			write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-c.resub:

		case data := <-c.send:
			if !write(websocket.TextMessage, data) {
				return
			}

		case e, ok := <-events:
			if !ok {
				if c.subscription() != sub {
					continue
				}
				c.logger.Warn("websocket subscriber dropped by broadcast hub")
				write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too slow"))
				return
			}
			data, err := json.Marshal(WSMessage{
				Type:      WSTypeEvent,
				ID:        e.ID,
				EventType: string(e.Kind),
				Timestamp: e.Timestamp.Format(time.RFC3339Nano),
				Payload:   e,
			})
			if err != nil {
				c.logger.Error("failed to marshal event", "kind", e.Kind, "error", err)
				continue
			}
			if !write(websocket.TextMessage, data) {
				return
			}

		case <-ticker.C:
			if !write(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *WSClient) subscription() *broadcast.Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sub
}

func (c *WSClient) handleMessage(data []byte) {
	var msg wsInbound
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe, WSTypeUnsubscribe:
		var p WSSubscribePayload
		if len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, &p); err != nil {
				c.sendError(msg.ID, "invalid "+msg.Type+" payload")
				return
			}
		}
		for _, k := range p.Kinds {
			if !validKind(k) {
				c.sendError(msg.ID, "unknown event kind: "+string(k))
				return
			}
		}
		if msg.Type == WSTypeSubscribe {
			c.subscribe(msg.ID, p.filter())
		} else {
			c.unsubscribe(msg.ID, p.filter())
		}
	case WSTypePing:
		c.sendResponse(msg.ID, WSTypePong, nil)
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

func validKind(k broadcast.Kind) bool {
	for _, known := range broadcast.AllKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// subscribe widens the subscription to also receive events matching f,
// creating it on first use. Earlier subscribes keep matching.
func (c *WSClient) subscribe(id string, f broadcast.Filter) {
	c.mu.Lock()
	var current broadcast.FilterSet
	if c.sub == nil {
		c.sub = c.hub.Subscribe(f)
		current = c.sub.Filters()
	} else {
		current = c.sub.AddFilter(f)
	}
	c.mu.Unlock()
	c.wake()

	c.sendResponse(id, WSTypeResponse, map[string]any{"subscribed": current})
}

// unsubscribe narrows the subscription. An empty payload, or narrowing
// away every filter, ends it.
func (c *WSClient) unsubscribe(id string, f broadcast.Filter) {
	c.mu.Lock()
	var current broadcast.FilterSet
	if c.sub != nil {
		if !f.IsEmpty() {
			current = c.sub.RemoveFilter(f)
		}
		if len(current) == 0 {
			c.sub.Close()
			c.sub = nil
		}
	}
	c.mu.Unlock()
	c.wake()

	c.sendResponse(id, WSTypeResponse, map[string]any{"subscribed": current})
}

func (c *WSClient) wake() {
	select {
	case c.resub <- struct{}{}:
	default:
	}
}

// trySend queues a response, dropping it if the client is not reading.
func (c *WSClient) trySend(data []byte) {
	select {
	case c.send <- data:
	default:
	}
}

func (c *WSClient) sendResponse(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *WSClient) sendError(id, message string) {
	c.sendResponse(id, WSTypeError, map[string]string{"message": message})
}
