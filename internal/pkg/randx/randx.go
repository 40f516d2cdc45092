/*
Package randx provides functions for generating unique identifiers and validating
client-supplied names.

It is primarily used to generate connection handles and message IDs (standard
UUIDs), and to validate the usernames and group names clients register.
*/
package randx

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// MaxNameLength is the maximum allowed length (in runes) for usernames and group names.
	MaxNameLength = 32
)

// ConnectionID generates a standard UUID v4 string to serve as the opaque handle
// for one live client connection.
func ConnectionID() string {
	return uuid.New().String()
}

// MessageID generates a standard UUID v4 string to serve as a unique identifier for a message envelope.
func MessageID() string {
	return uuid.New().String()
}

// IsValidName checks if the given string is acceptable as a username or group name.
// Validity criteria: valid UTF-8, between 1 and MaxNameLength runes after trimming,
// and no control characters.
func IsValidName(name string) bool {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || trimmed != name {
		return false
	}

	if !utf8.ValidString(name) {
		return false
	}

	if utf8.RuneCountInString(name) > MaxNameLength {
		return false
	}

	for _, char := range name {
		if char < 0x20 || char == 0x7f {
			return false
		}
	}

	return true
}
