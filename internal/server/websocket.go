package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/conneroisu/sfclive/internal/errors"
	"github.com/conneroisu/sfclive/internal/logging"
	"github.com/conneroisu/sfclive/internal/trace"
	"github.com/conneroisu/sfclive/internal/validation"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Messages buffered per client before it is dropped as too slow.
	sendBuffer = 256
)

// Message types sent to websocket clients.
const (
	MessageHello  = "hello"
	MessageTrace  = "trace"
	MessageUpdate = "update"
	MessageEmit   = "emit"
)

// Message is one websocket frame.
type Message struct {
	Type      string       `json:"type"`
	Event     *trace.Event `json:"event,omitempty"`
	HTML      string       `json:"html,omitempty"`
	CSS       string       `json:"css,omitempty"`
	Name      string       `json:"name,omitempty"`
	Args      []any        `json:"args,omitempty"`
	Error     *APIError    `json:"error,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// Client represents a WebSocket client
type Client struct {
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.send) })
}

// Hub fans messages out to connected websocket clients. It implements
// trace.Sink so trace events can be streamed directly.
type Hub struct {
	logger         logging.Logger
	allowedOrigins []string
	originPatterns []string

	mu      sync.RWMutex
	clients map[*Client]struct{}
	closed  bool
}

// NewHub creates a hub accepting connections from allowedOrigins.
func NewHub(allowedOrigins []string, logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	var patterns []string
	for _, origin := range allowedOrigins {
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
		} else {
			patterns = append(patterns, origin)
		}
	}

	return &Hub{
		logger:         logger,
		allowedOrigins: allowedOrigins,
		originPatterns: patterns,
		clients:        make(map[*Client]struct{}),
	}
}

// Emit implements trace.Sink.
func (h *Hub) Emit(e trace.Event) {
	h.Broadcast(Message{Type: MessageTrace, Event: &e, Timestamp: e.Time})
}

// Broadcast queues msg for every client. Clients whose buffer is full are
// disconnected.
func (h *Hub) Broadcast(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error(context.Background(), err, "Failed to marshal websocket message", "type", msg.Type)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			delete(h.clients, client)
			client.close()
		}
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for client := range h.clients {
		client.close()
	}
	clear(h.clients)
}

func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
}

// ServeHTTP upgrades the request after checking its origin.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := validation.ValidateOrigin(r.Header.Get("Origin"), h.allowedOrigins); err != nil {
		h.logger.Warn(r.Context(), errors.NewValidationError("INVALID_ORIGIN", err.Error()),
			"Rejected websocket connection", "origin", r.Header.Get("Origin"))
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Warn(r.Context(), err, "WebSocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxMessageSize)

	client := &Client{conn: conn, send: make(chan []byte, sendBuffer)}

	ctx := r.Context()
	helloCtx, cancel := context.WithTimeout(ctx, writeWait)
	err = wsjson.Write(helloCtx, conn, Message{Type: MessageHello, Timestamp: time.Now()})
	cancel()
	if err != nil {
		conn.Close(websocket.StatusInternalError, "hello failed")
		return
	}

	if !h.register(client) {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	h.logger.Debug(ctx, "Client connected", "clients", h.Count())

	go h.writePump(ctx, client)
	h.readPump(ctx, client)
}

// readPump drains client frames until the connection closes. Clients are
// not expected to send anything.
func (h *Hub) readPump(ctx context.Context, c *Client) {
	defer func() {
		h.unregister(c)
		h.logger.Debug(ctx, "Client disconnected", "clients", h.Count())
	}()

	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				h.logger.Debug(ctx, "WebSocket read ended", "error", err.Error())
			}
			return
		}
	}
}

func (h *Hub) writePump(ctx context.Context, c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
