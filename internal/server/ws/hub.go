// Package ws streams bet events to browser clients over websockets.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/surebet/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 64
)

// client represents a single WebSocket connection.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu    sync.RWMutex
	types map[string]bool // event types; empty means all
	pairs map[string]bool // pair ids; empty means all
}

// subscribeMsg narrows or widens what a client receives, e.g.
// {"action":"subscribe","pairs":["<pairId>"],"types":["bet_settled"]}.
type subscribeMsg struct {
	Action string   `json:"action"`
	Types  []string `json:"types"`
	Pairs  []string `json:"pairs"`
}

// broadcastMsg carries a serialized event plus the fields clients filter on.
type broadcastMsg struct {
	eventType string
	pairID    string
	data      []byte
}

// Config captures runtime metadata sent to clients on connect.
type Config struct {
	Mode      string
	StartedAt time.Time
	// AllowedOrigins restricts the handshake Origin; empty allows any.
	AllowedOrigins []string
}

// Hub fans bet events out to connected clients. Events arrive either
// directly through PublishBetEvent or from a SignalBus channel via Relay.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client
	done       chan struct{} // closed once Run returns
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	logger     *slog.Logger
	mode       string
	startedAt  time.Time
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger, cfg Config) *Hub {
	mode := strings.TrimSpace(strings.ToLower(cfg.Mode))
	if mode == "" {
		mode = "unknown"
	}
	startedAt := cfg.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}

	h := &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		logger:     logger.With(slog.String("component", "ws_hub")),
		mode:       mode,
		startedAt:  startedAt,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// Run starts the hub's main event loop and blocks until ctx is cancelled.
// It must be called at most once.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("ws: client connected",
				slog.Int("total_clients", h.clientCount()),
			)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected",
				slog.Int("total_clients", h.clientCount()),
			)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if !c.wants(msg) {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					h.logger.Warn("ws: dropping message for slow client")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// PublishBetEvent queues evt for every interested client. It never blocks:
// when the hub is saturated the event is dropped and logged.
func (h *Hub) PublishBetEvent(ctx context.Context, evt domain.BetEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("ws: marshal %s event: %w", evt.Type, err)
	}
	select {
	case h.broadcast <- broadcastMsg{eventType: evt.Type, pairID: evt.PairID, data: data}:
	default:
		h.logger.WarnContext(ctx, "ws: broadcast queue full, dropping event",
			slog.String("type", evt.Type),
		)
	}
	return nil
}

// Relay forwards every message on a SignalBus channel to clients until ctx
// is cancelled. Payloads are bet events encoded as JSON.
func (h *Hub) Relay(ctx context.Context, bus domain.SignalBus, channel string) error {
	msgCh, err := bus.Subscribe(ctx, channel)
	if err != nil {
		return fmt.Errorf("ws: subscribe %s: %w", channel, err)
	}
	h.logger.Info("ws: relaying channel", slog.String("channel", channel))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-msgCh:
			if !ok {
				h.logger.Warn("ws: channel subscription closed", slog.String("channel", channel))
				return nil
			}
			var head struct {
				Type   string `json:"type"`
				PairID string `json:"pairId"`
			}
			if err := json.Unmarshal(data, &head); err != nil {
				h.logger.Warn("ws: skipping malformed event",
					slog.String("channel", channel),
					slog.String("error", err.Error()),
				)
				continue
			}
			select {
			case h.broadcast <- broadcastMsg{eventType: head.Type, pairID: head.PairID, data: data}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// HandleWS upgrades an HTTP request to a WebSocket connection and registers
// the client with the hub.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, sendBufferSize),
		types: make(map[string]bool),
		pairs: make(map[string]bool),
	}

	// Queue the hello before Run can see the client; from then on only Run
	// may close c.send.
	c.sendHello()
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// clientCount returns the number of currently connected clients.
func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readPump reads subscription changes until the connection closes.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var sub subscribeMsg
		if err := json.Unmarshal(message, &sub); err == nil && sub.Action != "" {
			c.handleSubscription(sub)
		}
	}
}

func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Action {
	case "subscribe":
		for _, t := range msg.Types {
			c.types[t] = true
		}
		for _, p := range msg.Pairs {
			c.pairs[p] = true
		}
	case "unsubscribe":
		for _, t := range msg.Types {
			delete(c.types, t)
		}
		for _, p := range msg.Pairs {
			delete(c.pairs, p)
		}
	}
}

// wants reports whether msg passes the client's filters.
func (c *client) wants(msg broadcastMsg) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.types) > 0 && !c.types[msg.eventType] {
		return false
	}
	if len(c.pairs) > 0 && !c.pairs[msg.pairID] {
		return false
	}
	return true
}

// sendHello tells the client the stream is live before any event flows.
func (c *client) sendHello() {
	uptime := max(int64(time.Since(c.hub.startedAt).Seconds()), 0)
	msg, err := json.Marshal(map[string]any{
		"type": "hello",
		"payload": map[string]any{
			"mode":          c.hub.mode,
			"uptimeSeconds": uptime,
		},
	})
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// writePump sends queued events as text frames and keeps the connection
// alive with pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var _ domain.EventPublisher = (*Hub)(nil)
