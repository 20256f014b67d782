package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/iotlink/internal/infrastructure/config"
	"github.com/nerrad567/iotlink/internal/infrastructure/logging"
)

// Event stream message types.
const (
	StreamTypeSubscribe   = "subscribe"
	StreamTypeUnsubscribe = "unsubscribe"
	StreamTypePing        = "ping"
	StreamTypePong        = "pong"
	StreamTypeEvent       = "event"
	StreamTypeResponse    = "response"
	StreamTypeError       = "error"

	// ChannelAll matches every component.
	ChannelAll = "*"

	// streamSendBufferSize is the per-client outbound message buffer size.
	streamSendBufferSize = 64
)

// StreamMessage is a message sent to or from a stream client.
type StreamMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Channel   string `json:"channel,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// StreamSubscribePayload is the payload for subscribe/unsubscribe messages.
type StreamSubscribePayload struct {
	Channels []string `json:"channels"`
}

// StreamEvent is the payload of an event message.
type StreamEvent struct {
	Component string         `json:"component"`
	Event     string         `json:"event"`
	Details   map[string]any `json:"details,omitempty"`
}

// Hub fans lifecycle events out to connected stream clients. Channels are
// component names (network, session, node).
//
// Thread Safety: All methods are safe for concurrent use. RecordEvent never
// blocks; a slow client misses messages.
type Hub struct {
	cfg     config.StreamConfig
	logger  *logging.Logger
	clients map[*streamClient]struct{}
	mu      sync.RWMutex
}

type streamClient struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	subscriptions map[string]struct{}
	mu            sync.RWMutex
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// NewHub creates a new event hub.
func NewHub(cfg config.StreamConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*streamClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// RecordEvent broadcasts a lifecycle event on the component's channel.
func (h *Hub) RecordEvent(component, event string, fields map[string]any) {
	h.Broadcast(component, StreamEvent{Component: component, Event: event, Details: fields})
}

func (h *Hub) register(client *streamClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("stream client connected", "clients", h.ClientCount())
}

// unregister removes a client. Only the caller that removes it from the
// map closes its send channel.
func (h *Hub) unregister(client *streamClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.logger.Debug("stream client disconnected", "clients", h.ClientCount())
}

// Broadcast sends payload to every client subscribed to channel.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := json.Marshal(StreamMessage{
		Type:      StreamTypeEvent,
		Channel:   channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("failed to marshal stream message", "error", err)
		return
	}

	// Snapshot under the hub lock; never hold hub and client locks together.
	h.mu.RLock()
	clients := make([]*streamClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if client.isSubscribed(channel) {
			client.trySend(data)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}

// handleEventStream upgrades to a WebSocket streaming lifecycle events.
// The optional channels query parameter (comma separated) sets the initial
// subscriptions; without it the client receives every channel.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeUnavailable(w, "event stream not configured")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("stream upgrade failed", "error", err)
		return
	}

	client := &streamClient{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, streamSendBufferSize),
		subscriptions: initialChannels(r.URL.Query().Get("channels")),
	}

	s.hub.register(client)

	go client.writePump()
	go client.readPump()
}

func initialChannels(query string) map[string]struct{} {
	subs := make(map[string]struct{})
	for _, ch := range strings.Split(query, ",") {
		if ch = strings.TrimSpace(ch); ch != "" {
			subs[ch] = struct{}{}
		}
	}
	if len(subs) == 0 {
		subs[ChannelAll] = struct{}{}
	}
	return subs
}

func (c *streamClient) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	cfg := c.hub.cfg
	if cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	}
	wait := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(wait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("stream read error", "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(wait))
		c.handleMessage(message)
	}
}

func (c *streamClient) writePump() {
	cfg := c.hub.cfg
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	writeWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *streamClient) handleMessage(data []byte) {
	var msg StreamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case StreamTypeSubscribe, StreamTypeUnsubscribe:
		c.handleSubscription(msg)
	case StreamTypePing:
		c.sendResponse(msg.ID, StreamTypePong, nil)
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

func (c *streamClient) handleSubscription(msg StreamMessage) {
	payloadBytes, err := json.Marshal(msg.Payload)
	if err != nil {
		c.sendError(msg.ID, "invalid payload")
		return
	}
	var sub StreamSubscribePayload
	if err := json.Unmarshal(payloadBytes, &sub); err != nil {
		c.sendError(msg.ID, "invalid "+msg.Type+" payload")
		return
	}

	c.mu.Lock()
	for _, ch := range sub.Channels {
		if msg.Type == StreamTypeSubscribe {
			c.subscriptions[ch] = struct{}{}
		} else {
			delete(c.subscriptions, ch)
		}
	}
	c.mu.Unlock()

	key := "subscribed"
	if msg.Type == StreamTypeUnsubscribe {
		key = "unsubscribed"
	}
	c.sendResponse(msg.ID, StreamTypeResponse, map[string]any{key: sub.Channels})
}

// trySend queues data without blocking. Sends to a closed channel (client
// gone mid-broadcast) and to a full buffer are dropped.
func (c *streamClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
	}
}

func (c *streamClient) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.subscriptions[ChannelAll]; ok {
		return true
	}
	_, ok := c.subscriptions[channel]
	return ok
}

func (c *streamClient) sendResponse(id, msgType string, payload any) {
	data, err := json.Marshal(StreamMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *streamClient) sendError(id, message string) {
	c.sendResponse(id, StreamTypeError, map[string]string{"message": message})
}
