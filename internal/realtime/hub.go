package realtime

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ncastellanos/vecino/pkg/metrics"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	defaultPingPeriod = 30 * time.Second
	maxMessageSize    = 1 << 20 // 1 MiB

	defaultBufferSize = 64
)

// OpHandler processes client-initiated alert operations arriving on a socket.
// Implementations must be safe for concurrent use.
type OpHandler interface {
	HandleSubmit(userID string, req SubmitRequest) (SubmitAck, error)
	HandleAck(userID string, req AckRequest) error
	HandleResolve(userID string, req ResolveRequest) error
}

// Hub tracks connected users and fans events out to their sockets. A user may
// hold several concurrent connections; presence means at least one socket.
type Hub struct {
	mu         sync.RWMutex
	conns      map[string]map[*connection]struct{}
	upgrader   websocket.Upgrader
	handler    OpHandler
	pingPeriod time.Duration
}

// HubOption customizes hub construction.
type HubOption func(*Hub)

// WithPingInterval overrides how often the hub pings idle sockets. The
// interval must stay below the pong wait or sockets time out between pings.
func WithPingInterval(interval time.Duration) HubOption {
	return func(h *Hub) {
		if interval > 0 {
			h.pingPeriod = interval
		}
	}
}

// NewHub constructs a realtime hub. The handler may be nil, in which case
// alert operations are answered with an error event.
func NewHub(handler OpHandler, opts ...HubOption) *Hub {
	hub := &Hub{
		conns:      make(map[string]map[*connection]struct{}),
		handler:    handler,
		pingPeriod: defaultPingPeriod,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				originHost := hostWithoutPort(origin)
				requestHost := hostWithoutPort(r.Host)
				return originHost == requestHost || isLoopback(originHost)
			},
		},
	}
	for _, opt := range opts {
		opt(hub)
	}
	return hub
}

// SetHandler installs the operation handler. Used at wiring time because the
// alert service and the hub reference each other.
func (h *Hub) SetHandler(handler OpHandler) {
	h.handler = handler
}

// Serve upgrades the HTTP connection and registers it under the authenticated
// user ID. Blocks until the socket closes.
func (h *Hub) Serve(userID string, w http.ResponseWriter, r *http.Request) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("realtime: upgrade failed: %v", err)
		return
	}

	client := newConnection(h, conn, userID)
	h.register(client)

	go client.writeLoop()
	client.readLoop()
}

// BroadcastToUser delivers an event to every connection held by the user.
// Reports whether at least one connection received it.
func (h *Hub) BroadcastToUser(userID string, event Event) bool {
	if userID == "" {
		return false
	}

	// Snapshot the targets before enqueueing: a full send buffer makes
	// enqueue close the connection, and close needs the write lock.
	h.mu.RLock()
	targets := make([]*connection, 0, len(h.conns[userID]))
	for client := range h.conns[userID] {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return false
	}
	for _, client := range targets {
		h.enqueue(client, event)
	}
	return true
}

// BroadcastToUsers delivers an event to each of the supplied users and returns
// how many of them were reachable.
func (h *Hub) BroadcastToUsers(userIDs []string, event Event) int {
	delivered := 0
	for _, userID := range userIDs {
		if h.BroadcastToUser(userID, event) {
			delivered++
		}
	}
	return delivered
}

// IsOnline reports whether the user holds at least one open connection.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID]) > 0
}

// ConnectedCount returns the number of distinct connected users.
func (h *Hub) ConnectedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) register(client *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conns[client.userID] == nil {
		h.conns[client.userID] = make(map[*connection]struct{})
	}
	h.conns[client.userID][client] = struct{}{}
	metrics.RealtimeConnections.Inc()
}

func (h *Hub) unregister(client *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	userClients := h.conns[client.userID]
	if _, ok := userClients[client]; !ok {
		return
	}
	delete(userClients, client)
	if len(userClients) == 0 {
		delete(h.conns, client.userID)
	}
	metrics.RealtimeConnections.Dec()
}

func (h *Hub) enqueue(client *connection, event Event) {
	select {
	case client.send <- event:
	default:
		log.Printf("realtime: dropping backpressure client (user=%s)", client.userID)
		client.close()
	}
}

func (h *Hub) dispatch(client *connection, msg Message) {
	switch strings.ToLower(strings.TrimSpace(msg.Op)) {
	case OpRegister:
		// Identity is bound from the authenticated upgrade; the register op
		// confirms the binding so clients can sequence their first submit.
		client.reply(msg.Ref, Event{Event: EventRegistered, Data: map[string]any{
			"user_id": client.userID,
		}})
	case OpPing:
		client.reply(msg.Ref, Event{Event: EventPong})
	case OpAlertSubmit:
		var req SubmitRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			client.replyError(msg.Ref, "bad_payload", "invalid alert.submit payload")
			return
		}
		if h.handler == nil {
			client.replyError(msg.Ref, "unavailable", "alert operations are not available")
			return
		}
		ack, err := h.handler.HandleSubmit(client.userID, req)
		if err != nil {
			client.replyError(msg.Ref, "submit_failed", err.Error())
			return
		}
		client.reply(msg.Ref, Event{Event: EventAlertSubmitAck, Data: ack})
	case OpAlertAck:
		var req AckRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			client.replyError(msg.Ref, "bad_payload", "invalid alert.ack payload")
			return
		}
		if h.handler == nil {
			return
		}
		if err := h.handler.HandleAck(client.userID, req); err != nil {
			client.replyError(msg.Ref, "ack_failed", err.Error())
		}
	case OpAlertResolve:
		var req ResolveRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			client.replyError(msg.Ref, "bad_payload", "invalid alert.resolve payload")
			return
		}
		if h.handler == nil {
			return
		}
		if err := h.handler.HandleResolve(client.userID, req); err != nil {
			client.replyError(msg.Ref, "resolve_failed", err.Error())
		}
	default:
		log.Printf("realtime: unsupported op '%s' for user=%s", msg.Op, client.userID)
	}
}

type connection struct {
	hub    *Hub
	socket *websocket.Conn
	userID string
	send   chan Event
	once   sync.Once
}

func newConnection(hub *Hub, conn *websocket.Conn, userID string) *connection {
	return &connection{
		hub:    hub,
		socket: conn,
		userID: userID,
		send:   make(chan Event, defaultBufferSize),
	}
}

func (c *connection) reply(ref string, event Event) {
	event.Ref = ref
	c.hub.enqueue(c, event)
}

func (c *connection) replyError(ref, code, message string) {
	c.reply(ref, Event{Event: EventError, Data: ErrorPayload{Code: code, Message: message}})
}

func (c *connection) readLoop() {
	defer c.close()

	c.socket.SetReadLimit(maxMessageSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("realtime: unexpected close for user=%s: %v", c.userID, err)
			}
			break
		}

		if len(payload) == 0 {
			continue
		}

		var msg Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			log.Printf("realtime: invalid payload for user=%s: %v", c.userID, err)
			continue
		}

		c.hub.dispatch(c, msg)
	}
}

func (c *connection) writeLoop() {
	defer c.close()

	ticker := time.NewTicker(c.hub.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.socket.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *connection) close() {
	c.once.Do(func() {
		c.hub.unregister(c)
		close(c.send)
		_ = c.socket.Close()
	})
}

func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}

	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		parsed, err := http.NewRequest(http.MethodGet, host, nil)
		if err == nil {
			return hostWithoutPort(parsed.URL.Host)
		}
	}

	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopback(host string) bool {
	ip := net.ParseIP(host)
	if ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}
