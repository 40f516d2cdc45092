/*
Package handler provides the REST handlers that sit beside the WebSocket endpoint.

This file contains the presence snapshot endpoint and the HTTP variant of the
username availability probe, both read-only views over the Hub's state.
*/
package handler

import (
	"net/http"

	"courier/internal/app/chat"
	"courier/internal/pkg/req"
	"courier/internal/pkg/resp"
)

// PresenceSnapshot is the /api/presence response body.
type PresenceSnapshot struct {
	Users  []chat.Identity  `json:"users"`
	Groups []chat.GroupInfo `json:"groups"`
}

// CheckUsernameRequest is the /api/username/check request body.
type CheckUsernameRequest struct {
	Username string `json:"username"`
}

// CheckUsernameResponse is the /api/username/check response body. The answer is
// advisory: registration itself decides uniqueness atomically.
type CheckUsernameResponse struct {
	Username  string `json:"username"`
	Available bool   `json:"available"`
}

// HandlePresenceSnapshot returns the current identity and group snapshots,
// the same payloads the update_users and update_groups broadcasts carry.
func HandlePresenceSnapshot(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot := PresenceSnapshot{
			Users:  deps.Hub.SnapshotUsers(),
			Groups: deps.Hub.SnapshotGroups(),
		}

		resp.RespondSuccess(w, r, snapshot)
	}
}

// HandleCheckUsername answers the advisory availability probe over HTTP, for
// clients that want to validate a name before opening the socket.
func HandleCheckUsername(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body CheckUsernameRequest
		if bindErr := req.BindJSON(r, &body); bindErr != nil {
			resp.RespondError(w, r, bindErr)
			return
		}

		result := CheckUsernameResponse{
			Username:  body.Username,
			Available: deps.Hub.CheckAvailable(body.Username),
		}

		resp.RespondSuccess(w, r, result)
	}
}
