package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/quizclash/backend/go/internal/v1/logging"
	"github.com/quizclash/backend/go/internal/v1/metrics"
	"github.com/quizclash/backend/go/internal/v1/types"
)

// wsConnection defines the interface for WebSocket connection operations.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
}

// envelope is the wire format in both directions: {"event": ..., "data": ...}.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Client represents a single WebSocket connection. It implements
// types.EventSink: the dispatcher pushes serialized envelopes into the send
// channel and writePump drains them.
type Client struct {
	conn wsConnection
	hub  *Hub
	sid  types.SocketIDType

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once

	send chan []byte
}

func newClient(conn wsConnection, hub *Hub, sid types.SocketIDType) *Client {
	return &Client{
		conn: conn,
		hub:  hub,
		sid:  sid,
		send: make(chan []byte, 64),
	}
}

// SID returns the socket identifier.
func (c *Client) SID() types.SocketIDType { return c.sid }

// Send satisfies types.EventSink. Non-blocking: a slow consumer drops
// messages rather than stalling the broadcaster.
func (c *Client) Send(event string, payload any) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return
	}
	c.mu.RUnlock()

	data, err := json.Marshal(outEnvelope{Event: event, Data: payload})
	if err != nil {
		logging.Error(context.Background(), "Failed to marshal event",
			zap.String("event", event), zap.Error(err))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logging.Warn(context.Background(), "Recovered from send to closing client",
				zap.String("sid", string(c.sid)), zap.Any("panic", r))
		}
	}()

	select {
	case c.send <- data:
	default:
		logging.Warn(context.Background(), "Client send channel full, dropping event",
			zap.String("sid", string(c.sid)), zap.String("event", event))
	}
}

// Close satisfies types.EventSink. Closing the send channel makes writePump
// drain the buffer, send a close frame, and tear the connection down.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.closeOnce.Do(func() { close(c.send) })
}

// readPump processes incoming envelopes until the connection drops.
func (c *Client) readPump() {
	defer func() {
		c.hub.handleDisconnect(c)
		_ = c.conn.Close()
		metrics.DecConnection()
	}()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			logging.Warn(context.Background(), "Failed to unmarshal envelope",
				zap.String("sid", string(c.sid)), zap.Error(err))
			c.Send("error", map[string]string{"detail": "malformed message"})
			continue
		}

		c.hub.route(context.Background(), c, &env)
	}
}

func (c *Client) writePump() {
	defer func() { _ = c.conn.Close() }()
	writeWait := 10 * time.Second

	for {
		message, ok := <-c.send
		if !ok {
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			logging.Error(context.Background(), "error writing message", zap.Error(err))
			return
		}
	}
}
