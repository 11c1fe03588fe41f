package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ncastellanos/vecino/internal/alerting"
	"github.com/ncastellanos/vecino/internal/realtime"
	"github.com/ncastellanos/vecino/pkg/logger"
)

const (
	dialTimeout      = 10 * time.Second
	submitTimeout    = 10 * time.Second
	clientWriteWait  = 10 * time.Second
	clientPongWait   = 60 * time.Second
	backoffInitial   = time.Second
	backoffCap       = 30 * time.Second
	sendBufferLength = 32
)

// ClientConfig configures the realtime socket client.
type ClientConfig struct {
	ServerURL   string
	AccessToken string
	// OnIncoming receives alert pushes targeted at this user.
	OnIncoming func(event realtime.Event)
	// OnConnect fires after every successful (re)connection and registration.
	OnConnect func()
}

// Client maintains a registered websocket session against the portal,
// reconnecting with capped exponential backoff. It implements the realtime
// alert channel for the dispatcher.
type Client struct {
	cfg    ClientConfig
	wsURL  string
	header http.Header

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan realtime.Event
	closed  bool
	done    chan struct{}
}

// NewClient constructs a Client. Run must be called to establish the session.
func NewClient(cfg ClientConfig) (*Client, error) {
	wsURL, err := websocketURL(cfg.ServerURL)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if cfg.AccessToken != "" {
		header.Set("Authorization", "Bearer "+cfg.AccessToken)
	}

	return &Client{
		cfg:     cfg,
		wsURL:   wsURL,
		header:  header,
		pending: make(map[string]chan realtime.Event),
		done:    make(chan struct{}),
	}, nil
}

// Run connects and keeps the session alive until ctx is cancelled or Close is
// called. Each drop triggers a reconnect with exponential backoff capped at
// thirty seconds, followed by re-registration.
func (c *Client) Run(ctx context.Context) {
	backoff := backoffInitial
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		conn, err := c.dial(ctx)
		if err != nil {
			logger.Warn("realtime connect failed, retrying",
				zap.Duration("backoff", backoff),
				zap.Error(err))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			case <-c.done:
				return
			}
			backoff *= 2
			if backoff > backoffCap {
				backoff = backoffCap
			}
			continue
		}

		backoff = backoffInitial
		c.setConn(conn)
		c.register()
		if c.cfg.OnConnect != nil {
			c.cfg.OnConnect()
		}

		c.readLoop(conn)
		c.setConn(nil)
		c.failPending(fmt.Errorf("transport: connection lost"))
	}
}

// Close tears the session down permanently.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	c.failPending(fmt.Errorf("transport: client closed"))
}

// SubmitAlert pushes the alert over the socket and waits for the delivery
// report. Implements alerting.RealtimeChannel.
func (c *Client) SubmitAlert(ctx context.Context, alert alerting.Alert) (alerting.Delivery, error) {
	req := realtime.SubmitRequest{
		OriginatorName:  alert.OriginatorName,
		Location:        alert.Location,
		GPSLatitude:     alert.GPSLatitude,
		GPSLongitude:    alert.GPSLongitude,
		Description:     alert.Description,
		RecipientIDs:    alert.RecipientIDs,
		DurationMinutes: alert.DurationMinutes,
		ExtremeMode:     alert.ExtremeMode,
		ActivatedFrom:   alert.ActivatedFrom,
	}

	event, err := c.roundTrip(ctx, realtime.OpAlertSubmit, req)
	if err != nil {
		return alerting.Delivery{}, err
	}

	var ack realtime.SubmitAck
	if err := decodeEventData(event, &ack); err != nil {
		return alerting.Delivery{}, fmt.Errorf("transport: decode submit ack: %w", err)
	}
	return alerting.Delivery{
		Notified:     ack.Notified,
		Offline:      ack.Offline,
		TotalTargets: ack.TotalTargets,
	}, nil
}

// Acknowledge reports that this user saw an alert. Fire-and-forget.
func (c *Client) Acknowledge(alertID string) error {
	return c.send(realtime.Message{Op: realtime.OpAlertAck, Data: mustMarshal(realtime.AckRequest{AlertID: alertID})})
}

// Resolve stands the alert down. Fire-and-forget.
func (c *Client) Resolve(alertID string) error {
	return c.send(realtime.Message{Op: realtime.OpAlertResolve, Data: mustMarshal(realtime.ResolveRequest{AlertID: alertID})})
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, resp, err := websocket.DefaultDialer.DialContext(dialCtx, c.wsURL, c.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", c.wsURL, err)
	}
	return conn, nil
}

func (c *Client) register() {
	_ = c.send(realtime.Message{Op: realtime.OpRegister})
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	old := c.conn
	c.conn = conn
	c.mu.Unlock()
	if old != nil && old != conn {
		_ = old.Close()
	}
}

func (c *Client) send(msg realtime.Message) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("transport: not connected")
	}

	_ = conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}

// roundTrip sends an operation and blocks until the correlated reply or ctx
// expiry.
func (c *Client) roundTrip(ctx context.Context, op string, payload any) (realtime.Event, error) {
	ref := uuid.NewString()
	ch := make(chan realtime.Event, 1)

	c.mu.Lock()
	c.pending[ref] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, ref)
		c.mu.Unlock()
	}()

	if err := c.send(realtime.Message{Op: op, Ref: ref, Data: mustMarshal(payload)}); err != nil {
		return realtime.Event{}, err
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, submitTimeout)
		defer cancel()
	}

	select {
	case event := <-ch:
		if event.Event == realtime.EventError {
			var payload realtime.ErrorPayload
			_ = decodeEventData(event, &payload)
			return realtime.Event{}, fmt.Errorf("transport: %s rejected: %s", op, payload.Message)
		}
		return event, nil
	case <-ctx.Done():
		return realtime.Event{}, fmt.Errorf("transport: %s timed out: %w", op, ctx.Err())
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(clientPongWait))
	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(clientPongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(clientWriteWait))
	})

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			logger.Debug("realtime read loop ended", zap.Error(err))
			return
		}

		var event realtime.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			logger.Warn("realtime: invalid server event", zap.Error(err))
			continue
		}

		if event.Ref != "" {
			c.mu.Lock()
			ch := c.pending[event.Ref]
			c.mu.Unlock()
			if ch != nil {
				ch <- event
				continue
			}
		}

		if event.Event == realtime.EventAlertIncoming && c.cfg.OnIncoming != nil {
			c.cfg.OnIncoming(event)
		}
	}
}

func (c *Client) failPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ref, ch := range c.pending {
		select {
		case ch <- realtime.Event{Event: realtime.EventError, Data: realtime.ErrorPayload{Code: "disconnected", Message: err.Error()}}:
		default:
		}
		delete(c.pending, ref)
	}
}

func websocketURL(serverURL string) (string, error) {
	serverURL = strings.TrimSpace(serverURL)
	if serverURL == "" {
		return "", fmt.Errorf("transport: server url is required")
	}

	parsed, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("transport: parse server url: %w", err)
	}

	switch parsed.Scheme {
	case "http", "ws":
		parsed.Scheme = "ws"
	case "https", "wss":
		parsed.Scheme = "wss"
	default:
		return "", fmt.Errorf("transport: unsupported scheme %q", parsed.Scheme)
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/") + "/ws"
	return parsed.String(), nil
}

func decodeEventData(event realtime.Event, out any) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}
