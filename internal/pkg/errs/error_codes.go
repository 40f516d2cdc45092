/*
Package errs provides custom error types and application-level error code constants.

These error codes are used to clearly identify specific business or system errors
both internally within the server and in communication with clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect (e.g., syntax error).
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1005
)

// 2xxx: Identity and Presence Errors
const (
	// ErrUsernameInvalid indicates that the supplied username failed validation.
	ErrUsernameInvalid = 2101

	// ErrUsernameTaken indicates that the username is already claimed by a live connection.
	ErrUsernameTaken = 2102

	// ErrNotRegistered indicates that the connection attempted an operation before a successful login.
	ErrNotRegistered = 2103

	// ErrStatusInvalid indicates that the supplied presence status is not a known value.
	ErrStatusInvalid = 2104
)

// 3xxx: Group and Routing Errors
const (
	// ErrGroupNameInvalid indicates that the supplied group name failed validation.
	ErrGroupNameInvalid = 3101

	// ErrGroupNotFound indicates that the addressed group does not exist.
	ErrGroupNotFound = 3102

	// ErrNotGroupMember indicates that the sender is not a member of the addressed group.
	ErrNotGroupMember = 3103

	// ErrRecipientOffline indicates that the addressed username has no live connection.
	ErrRecipientOffline = 3104
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000
)
