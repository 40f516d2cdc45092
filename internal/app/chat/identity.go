/*
Package chat contains the core logic for presence tracking and message routing.

This file defines the Identity struct, the user-facing record bound to one live
connection, and the presence Status enum.
*/
package chat

// Status is the presence state a registered identity advertises to everyone else.
type Status string

const (
	StatusOnline Status = "online"
	StatusBusy   Status = "busy"
	StatusAway   Status = "away"
)

// Valid reports whether s is one of the known presence states.
// Absence is expressed by removal from the registry, never by a status value.
func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusBusy, StatusAway:
		return true
	default:
		return false
	}
}

// Identity represents the registered record of one connected participant.
// Fields use JSON tags for serialization in the update_users broadcast.
type Identity struct {

	// Username is the globally unique display name claimed at login.
	Username string `json:"username"`

	// Avatar is an opaque reference (URL or data URL) chosen by the client.
	Avatar string `json:"avatar,omitempty"`

	// Status is the advertised presence state.
	Status Status `json:"status"`
}
