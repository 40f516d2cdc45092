/*
Package chat contains the core logic for presence tracking and message routing.

This file defines the wire protocol: the {type, payload} event frame exchanged
over WebSocket, the inbound payload structs, and the envelope structs the
router delivers.
*/
package chat

import (
	"encoding/json"
	"time"

	"courier/internal/pkg/randx"
)

// EventType identifies the kind of an event frame.
type EventType string

// Client-to-server event types.
const (
	TypeCheckUsername  EventType = "check_username"
	TypeLogin          EventType = "login"
	TypeSetStatus      EventType = "set_status"
	TypePrivateMessage EventType = "private_message"
	TypeGroupMessage   EventType = "group_message"
	TypeTyping         EventType = "typing"
	TypeStopTyping     EventType = "stop_typing"
	TypeCreateGroup    EventType = "create_group"
	TypeJoinGroup      EventType = "join_group"
)

// Server-to-client event types. TypeCheckUsername is reused as the ack frame
// carrying the probe result back to the caller.
const (
	TypeUpdateUsers    EventType = "update_users"
	TypeUpdateGroups   EventType = "update_groups"
	TypeReceivePrivate EventType = "receive_private"
	TypeReceiveGroup   EventType = "receive_group"
	TypeDisplayTyping  EventType = "display_typing"
	TypeHideTyping     EventType = "hide_typing"
)

// MessageKind distinguishes text content from inline image content.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
)

// Valid reports whether k is a known message kind.
func (k MessageKind) Valid() bool {
	return k == KindText || k == KindImage
}

// TargetKind distinguishes a private (username) target from a group target.
type TargetKind string

const (
	TargetPrivate TargetKind = "private"
	TargetGroup   TargetKind = "group"
)

// Event is the frame exchanged in both directions over the WebSocket.
type Event struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EncodeEvent marshals an outbound event frame with the given payload.
func EncodeEvent(eventType EventType, payload any) ([]byte, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return json.Marshal(Event{Type: eventType, Payload: payloadBytes})
}

// CheckUsernamePayload is the inbound advisory probe for username availability.
type CheckUsernamePayload struct {
	Username string `json:"username"`
}

// CheckUsernameResult is the ack returned to the probing connection. It is also
// sent after a login that lost the uniqueness check, so the client can re-prompt.
type CheckUsernameResult struct {
	Username  string `json:"username"`
	Available bool   `json:"available"`
}

// LoginPayload registers an identity for the sending connection.
type LoginPayload struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
	Status   Status `json:"status,omitempty"`
}

// SetStatusPayload updates the sender's advertised presence state.
type SetStatusPayload struct {
	Status Status `json:"status"`
}

// PrivateMessagePayload addresses one recipient by username.
type PrivateMessagePayload struct {
	To      string      `json:"to"`
	Content string      `json:"content"`
	Kind    MessageKind `json:"type"`
}

// GroupMessagePayload addresses every current member of a group.
type GroupMessagePayload struct {
	Group   string      `json:"groupName"`
	Content string      `json:"content"`
	Kind    MessageKind `json:"type"`
}

// TypingPayload starts or stops a typing indicator toward a private or group target.
type TypingPayload struct {
	Target string     `json:"target"`
	Kind   TargetKind `json:"type"`
}

// GroupActionPayload names the group for create_group and join_group.
type GroupActionPayload struct {
	Group string `json:"groupName"`
}

// PrivateEnvelope is the receive_private delivery, sent to the recipient (if
// online) and always echoed to the sender.
type PrivateEnvelope struct {
	ID        string      `json:"id"`
	From      string      `json:"from"`
	To        string      `json:"to"`
	Content   string      `json:"content"`
	Kind      MessageKind `json:"type"`
	Avatar    string      `json:"avatar,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// GroupEnvelope is the receive_group delivery, fanned out to every connection
// currently mapped to a member username.
type GroupEnvelope struct {
	ID        string      `json:"id"`
	Group     string      `json:"group"`
	From      string      `json:"from"`
	Content   string      `json:"content"`
	Kind      MessageKind `json:"type"`
	Avatar    string      `json:"avatar,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// TypingSignal is the display_typing / hide_typing payload. No state backs it;
// expiry is the receiving client's concern.
type TypingSignal struct {
	From    string `json:"from"`
	IsGroup bool   `json:"isGroup"`
	Group   string `json:"group,omitempty"`
}

// GroupInfo is one entry of the update_groups broadcast.
type GroupInfo struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// TimestampLayout is the wall-clock, minute-resolution format stamped onto
// envelopes. The server clock is authoritative.
const TimestampLayout = "15:04"

func newPrivateEnvelope(from Identity, to, content string, kind MessageKind) PrivateEnvelope {
	return PrivateEnvelope{
		ID:        randx.MessageID(),
		From:      from.Username,
		To:        to,
		Content:   content,
		Kind:      kind,
		Avatar:    from.Avatar,
		Timestamp: time.Now().Format(TimestampLayout),
	}
}

func newGroupEnvelope(from Identity, group, content string, kind MessageKind) GroupEnvelope {
	return GroupEnvelope{
		ID:        randx.MessageID(),
		Group:     group,
		From:      from.Username,
		Content:   content,
		Kind:      kind,
		Avatar:    from.Avatar,
		Timestamp: time.Now().Format(TimestampLayout),
	}
}
