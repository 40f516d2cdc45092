/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct, used to standardize
HTTP responses and internal error handling.
*/
package errs

import "net/http"

// errorMap stores the detailed CustomError struct corresponding to every application error code.
// The key is the error code (int), and the value contains the user message and HTTP status code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:        {Code: ErrInvalidParams, Message: "Invalid request parameters."},
	ErrUnsupportedMediaType: {Code: ErrUnsupportedMediaType, Message: "Unsupported request format."},
	ErrInvalidJSONFormat:    {Code: ErrInvalidJSONFormat, Message: "Unsupported request format."},
	ErrExtraContentInBody:   {Code: ErrExtraContentInBody, Message: "Request contains unexpected data."},
	ErrRateLimitExceeded:    {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	// 2xxx: Identity and Presence Errors
	ErrUsernameInvalid: {Code: ErrUsernameInvalid, Message: "Invalid username."},
	ErrUsernameTaken:   {Code: ErrUsernameTaken, Message: "Username is already taken."},
	ErrNotRegistered:   {Code: ErrNotRegistered, Message: "Please sign in first."},
	ErrStatusInvalid:   {Code: ErrStatusInvalid, Message: "Invalid status."},

	// 3xxx: Group and Routing Errors
	ErrGroupNameInvalid: {Code: ErrGroupNameInvalid, Message: "Invalid group name."},
	ErrGroupNotFound:    {Code: ErrGroupNotFound, Message: "Group not found."},
	ErrNotGroupMember:   {Code: ErrNotGroupMember, Message: "You are not a member of this group."},
	ErrRecipientOffline: {Code: ErrRecipientOffline, Message: "User is not online."},

	// 5xxx: Internal System Errors
	ErrUnknown: {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
}
