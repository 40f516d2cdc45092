/*
Package chat contains the core logic for presence tracking and message routing.

This file defines the Client struct, representing an active WebSocket connection. It manages the client's
lifecycle, message communication loops (ReadPump and WritePump), and event dispatch into the Hub.
*/
package chat

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"courier/internal/pkg/errs"
	"courier/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// capacity of the per-client outbound queue; frames beyond it are dropped.
	sendQueueSize = 256
)

// Client struct represents an active WebSocket connection. Its identity, if
// any, lives in the Hub's registry; the Client itself only carries the opaque
// connection handle and the outbound queue.
type Client struct {
	// id is the opaque connection handle, one per live network connection.
	id string

	// hub holds the authoritative state this connection reads and mutates.
	hub *Hub

	// underlying WebSocket connection object.
	conn *websocket.Conn

	// a buffered channel used to queue frames waiting to be sent to the client.
	send chan []byte

	// sendMu and sendClosed guard the send channel: fan-out and disconnect run
	// on different goroutines, and queueing to a closed channel would panic.
	sendMu     sync.Mutex
	sendClosed bool

	// structured logger with connection context.
	logger zerolog.Logger
}

// NewClient constructs and returns a new Client instance for the given
// connection handle.
func NewClient(hub *Hub, wsConn *websocket.Conn, connectionID string) *Client {
	clientLogger := logx.Logger().With().
		Str("connection_id", connectionID).
		Logger()

	return &Client{
		id:     connectionID,
		hub:    hub,
		conn:   wsConn,
		send:   make(chan []byte, sendQueueSize),
		logger: clientLogger,
	}
}

// ID returns the opaque connection handle.
func (c *Client) ID() string {
	return c.id
}

// ReadPump handles reading frames from the WebSocket connection.
// It handles heartbeats (Pong), event parsing, and performs cleanup upon connection closure.
func (c *Client) ReadPump() {
	defer c.cleanupOnDisconnect()

	// The read limit is the transport ceiling for inline image payloads; the
	// router never sees an oversized frame.
	c.conn.SetReadLimit(c.hub.config.MaxPayloadBytes)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading message (Client close/going away)")
			}
			break
		}

		c.processInboundEvent(frame)
	}
}

// cleanupOnDisconnect handles the necessary cleanup steps when the client's
// ReadPump terminates. An abrupt reset and a graceful close land here alike.
func (c *Client) cleanupOnDisconnect() {
	c.logger.Info().Msg("Client connection cleanup starting.")

	c.hub.Detach(c)

	if err := c.conn.Close(); err != nil {
		c.logger.Error().Err(err).Msg("Client connection close error")
	}
}

// processInboundEvent handles one raw frame received from the client. A bad
// event is dropped with a log, never fatal.
func (c *Client) processInboundEvent(frame []byte) {
	var event Event
	if err := json.Unmarshal(frame, &event); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid JSON")
		return
	}

	switch event.Type {
	case TypeCheckUsername:
		c.handleCheckUsername(event.Payload)

	case TypeLogin:
		c.handleLogin(event.Payload)

	case TypeSetStatus:
		c.handleSetStatus(event.Payload)

	case TypePrivateMessage:
		c.handlePrivateMessage(event.Payload)

	case TypeGroupMessage:
		c.handleGroupMessage(event.Payload)

	case TypeTyping:
		c.handleTyping(event.Payload, false)

	case TypeStopTyping:
		c.handleTyping(event.Payload, true)

	case TypeCreateGroup:
		c.handleGroupAction(event.Payload, c.hub.CreateGroup)

	case TypeJoinGroup:
		c.handleGroupAction(event.Payload, c.hub.JoinGroup)

	default:
		c.logger.Warn().Str("event_type", string(event.Type)).Msg("Client sent unsupported event type")
	}
}

// handleCheckUsername answers the advisory availability probe.
func (c *Client) handleCheckUsername(payloadBytes json.RawMessage) {
	var payload CheckUsernamePayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid check_username payload")
		return
	}

	c.sendCheckResult(payload.Username, c.hub.CheckAvailable(payload.Username))
}

// handleLogin registers the connection's identity. A login that loses the
// uniqueness check is dropped on the wire; the client only gets a negative
// availability ack so it can re-prompt.
func (c *Client) handleLogin(payloadBytes json.RawMessage) {
	var payload LoginPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid login payload")
		return
	}

	if err := c.hub.Register(c, payload.Username, payload.Avatar, payload.Status); err != nil {
		c.logger.Warn().
			Int("code", err.Code).
			Str("username", payload.Username).
			Msg("Login rejected")

		if err.Code == errs.ErrUsernameTaken {
			c.sendCheckResult(payload.Username, false)
		}
	}
}

// handleSetStatus updates the connection's advertised presence state.
func (c *Client) handleSetStatus(payloadBytes json.RawMessage) {
	var payload SetStatusPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid set_status payload")
		return
	}

	if err := c.hub.UpdateStatus(c, payload.Status); err != nil {
		c.logger.Warn().Int("code", err.Code).Msg("set_status rejected")
	}
}

// handlePrivateMessage routes a private message through the Hub.
func (c *Client) handlePrivateMessage(payloadBytes json.RawMessage) {
	var payload PrivateMessagePayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid private_message payload")
		return
	}

	c.hub.RoutePrivate(c, payload.To, payload.Content, payload.Kind)
}

// handleGroupMessage routes a group message through the Hub.
func (c *Client) handleGroupMessage(payloadBytes json.RawMessage) {
	var payload GroupMessagePayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid group_message payload")
		return
	}

	c.hub.RouteGroup(c, payload.Group, payload.Content, payload.Kind)
}

// handleTyping forwards a typing or stop-typing signal.
func (c *Client) handleTyping(payloadBytes json.RawMessage, stop bool) {
	var payload TypingPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid typing payload")
		return
	}

	c.hub.RelayTyping(c, payload.Kind, payload.Target, stop)
}

// handleGroupAction dispatches create_group and join_group.
func (c *Client) handleGroupAction(payloadBytes json.RawMessage, action func(*Client, string)) {
	var payload GroupActionPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid group action payload")
		return
	}

	action(c, payload.Group)
}

// sendCheckResult queues a check_username ack frame to this connection.
func (c *Client) sendCheckResult(username string, available bool) {
	frame, err := EncodeEvent(TypeCheckUsername, CheckUsernameResult{
		Username:  username,
		Available: available,
	})
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to encode check_username ack")
		return
	}

	c.queueFrame(frame)
}

// queueFrame queues one outbound frame without blocking. Frames for a full or
// closed queue are dropped; delivery is fire-and-forget.
func (c *Client) queueFrame(frame []byte) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.sendClosed {
		return
	}

	select {
	case c.send <- frame:
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Client send queue full, dropping frame")
	}
}

// closeSend closes the outbound queue exactly once, which terminates WritePump.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
}

// WritePump handles writing frames from the Client.send channel to the WebSocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		// ensure the connection is closed on exit
		if err := c.conn.Close(); err != nil {
			c.logger.Error().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !c.writeQueuedFrame(frame, ok) {
				return
			}

		case <-ticker.C:
			if !c.writePingMessage() {
				return
			}
		}
	}
}

// writeQueuedFrame handles frames pulled from the send channel, writing them to the WebSocket.
// Returns true if the WritePump loop should continue, false if it should terminate.
func (c *Client) writeQueuedFrame(frame []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			c.logger.Error().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.logger.Error().Err(err).Msg("Error writing message")
		return false
	}

	return true
}

// writePingMessage sends a periodic WebSocket Ping message to maintain the connection heartbeat.
// Returns false if the WritePump loop should terminate due to write failure.
func (c *Client) writePingMessage() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Error().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}
