/*
Package chat contains the core logic for presence tracking and message routing.

This file defines the Hub struct, the authoritative in-memory state for the
server: the connection registry, the username directory derived from it, and
the group directory. Every directory mutation and every routing decision runs
under the Hub's single mutual-exclusion domain, so check-then-act sequences
(duplicate-username check, membership check before fan-out, removal before
broadcast) are atomic. Frame delivery itself happens outside the lock and is
fire-and-forget: a slow client drops frames, it never stalls the directories.
*/
package chat

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"courier/internal/configs"
	"courier/internal/pkg/errs"
	"courier/internal/pkg/logx"
	"courier/internal/pkg/randx"
)

// Hub owns all live connection, identity, and group state.
type Hub struct {
	// Config holds the application's read-only configuration settings.
	config *configs.AppConfig

	// mu guards every map below. One lock for everything: the directories are
	// interdependent (usernames is a derived index of identities) and must
	// move together.
	mu sync.RWMutex

	// clients holds every attached connection, keyed by connection handle,
	// whether or not it has registered an identity yet.
	clients map[string]*Client

	// identities is the connection registry: connection handle -> Identity.
	identities map[string]Identity

	// usernames is the username directory, a derived index that always equals
	// the set of usernames present in identities.
	usernames map[string]string

	// groups maps group name -> member username set. Membership is keyed by
	// username, not connection handle, and groups are never destroyed; an
	// emptied group simply lingers.
	groups map[string]map[string]struct{}

	// order lists registered connection handles in registration order, used
	// for the update_users snapshot.
	order []string

	// closed is set by Shutdown; attaches after that are refused.
	closed bool

	// structured logger with Hub context.
	logger zerolog.Logger
}

// NewHub constructs and returns a new Hub instance.
func NewHub(cfg *configs.AppConfig) *Hub {
	hubLogger := logx.Logger().With().Str("component", "Hub").Logger()

	return &Hub{
		config:     cfg,
		clients:    make(map[string]*Client),
		identities: make(map[string]Identity),
		usernames:  make(map[string]string),
		groups:     make(map[string]map[string]struct{}),
		logger:     hubLogger,
	}
}

// Attach adds a live connection to the Hub before any identity exists for it.
// A connection refused because the Hub is shutting down gets its send queue
// closed immediately, which terminates its WritePump.
func (h *Hub) Attach(c *Client) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		c.closeSend()
		return
	}
	h.clients[c.id] = c
	h.mu.Unlock()
}

// CheckAvailable is the advisory username probe. It takes the same lock class
// as Register, but probe and register remain two calls: the real guarantee is
// Register's atomic check-and-set, not this answer.
func (h *Hub) CheckAvailable(username string) bool {
	if !randx.IsValidName(username) {
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	_, taken := h.usernames[username]
	return !taken
}

// Register binds an identity to the client's connection. Uniqueness is enforced
// atomically under the Hub lock: of two concurrent logins claiming the same
// username, exactly one wins. On success it broadcasts the user snapshot to
// everyone and sends the group snapshot to the caller.
func (h *Hub) Register(c *Client, username, avatar string, status Status) *errs.CustomError {
	if !randx.IsValidName(username) {
		return errs.NewError(errs.ErrUsernameInvalid)
	}

	if status == "" {
		status = StatusOnline
	}
	if !status.Valid() {
		return errs.NewError(errs.ErrStatusInvalid)
	}

	h.mu.Lock()

	if _, ok := h.identities[c.id]; ok {
		h.mu.Unlock()
		h.logger.Warn().Str("connection_id", c.id).Msg("Connection attempted a second login.")
		return errs.NewError(errs.ErrInvalidParams)
	}

	if _, taken := h.usernames[username]; taken {
		h.mu.Unlock()
		return errs.NewError(errs.ErrUsernameTaken)
	}

	h.clients[c.id] = c
	h.identities[c.id] = Identity{Username: username, Avatar: avatar, Status: status}
	h.usernames[username] = c.id
	h.order = append(h.order, c.id)

	total := len(h.identities)
	h.mu.Unlock()

	h.logger.Info().
		Str("connection_id", c.id).
		Str("username", username).
		Int("total_users", total).
		Msg("Identity registered.")

	h.BroadcastUsers()
	h.SendGroupsTo(c)

	return nil
}

// UpdateStatus mutates the caller's advertised presence state in place and
// broadcasts the new user snapshot.
func (h *Hub) UpdateStatus(c *Client, status Status) *errs.CustomError {
	if !status.Valid() {
		return errs.NewError(errs.ErrStatusInvalid)
	}

	h.mu.Lock()
	ident, ok := h.identities[c.id]
	if !ok {
		h.mu.Unlock()
		return errs.NewError(errs.ErrNotRegistered)
	}
	ident.Status = status
	h.identities[c.id] = ident
	h.mu.Unlock()

	h.BroadcastUsers()
	return nil
}

// LookupByUsername resolves a username to its live connection handle.
func (h *Hub) LookupByUsername(username string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	handle, ok := h.usernames[username]
	return handle, ok
}

// SnapshotUsers returns every registered identity in registration order.
func (h *Hub) SnapshotUsers() []Identity {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.snapshotUsersLocked()
}

func (h *Hub) snapshotUsersLocked() []Identity {
	users := make([]Identity, 0, len(h.order))
	for _, handle := range h.order {
		if ident, ok := h.identities[handle]; ok {
			users = append(users, ident)
		}
	}
	return users
}

// SnapshotGroups returns every group with its member list. Names and members
// are sorted so the wire payload is stable.
func (h *Hub) SnapshotGroups() []GroupInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.snapshotGroupsLocked()
}

func (h *Hub) snapshotGroupsLocked() []GroupInfo {
	names := make([]string, 0, len(h.groups))
	for name := range h.groups {
		names = append(names, name)
	}
	sort.Strings(names)

	snapshot := make([]GroupInfo, 0, len(names))
	for _, name := range names {
		members := make([]string, 0, len(h.groups[name]))
		for member := range h.groups[name] {
			members = append(members, member)
		}
		sort.Strings(members)
		snapshot = append(snapshot, GroupInfo{Name: name, Members: members})
	}
	return snapshot
}

// GroupMembers returns the member usernames of a group, sorted.
func (h *Hub) GroupMembers(name string) ([]string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	set, ok := h.groups[name]
	if !ok {
		return nil, false
	}

	members := make([]string, 0, len(set))
	for member := range set {
		members = append(members, member)
	}
	sort.Strings(members)
	return members, true
}

// IsMember reports whether username currently belongs to the named group.
func (h *Hub) IsMember(name, username string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	set, ok := h.groups[name]
	if !ok {
		return false
	}
	_, member := set[username]
	return member
}

// CreateGroup creates a group with the caller as its first member. Creating a
// name that already exists is a silent no-op on the wire; the caller only sees
// the (unchanged) group snapshot broadcast.
func (h *Hub) CreateGroup(c *Client, name string) {
	if !randx.IsValidName(name) {
		h.logger.Warn().
			Str("connection_id", c.id).
			Int("code", errs.ErrGroupNameInvalid).
			Msg("create_group dropped: invalid group name.")
		return
	}

	h.mu.Lock()
	ident, registered := h.identities[c.id]
	if !registered {
		h.mu.Unlock()
		h.logger.Warn().Str("connection_id", c.id).Msg("create_group dropped: connection not registered.")
		return
	}

	if _, exists := h.groups[name]; exists {
		h.mu.Unlock()
		h.logger.Debug().Str("group", name).Msg("create_group no-op: group already exists.")
	} else {
		h.groups[name] = map[string]struct{}{ident.Username: {}}
		h.mu.Unlock()
		h.logger.Info().Str("group", name).Str("creator", ident.Username).Msg("Group created.")
	}

	h.BroadcastGroups()
}

// JoinGroup adds the caller's username to the group's member set. Joining a
// missing group or a group the caller already belongs to is a silent no-op;
// either way the group snapshot is rebroadcast.
func (h *Hub) JoinGroup(c *Client, name string) {
	h.mu.Lock()
	ident, registered := h.identities[c.id]
	if !registered {
		h.mu.Unlock()
		h.logger.Warn().Str("connection_id", c.id).Msg("join_group dropped: connection not registered.")
		return
	}

	if members, exists := h.groups[name]; exists {
		members[ident.Username] = struct{}{}
		h.mu.Unlock()
		h.logger.Info().Str("group", name).Str("username", ident.Username).Msg("User joined group.")
	} else {
		h.mu.Unlock()
		h.logger.Debug().
			Str("group", name).
			Int("code", errs.ErrGroupNotFound).
			Msg("join_group no-op: group not found.")
	}

	h.BroadcastGroups()
}

// RoutePrivate delivers a private envelope to the addressed username's
// connection, if one is registered, and always echoes it to the sender. An
// offline recipient is not an error: the message is silently dropped and the
// sender cannot tell delivery from drop.
func (h *Hub) RoutePrivate(c *Client, to, content string, kind MessageKind) {
	if !kind.Valid() {
		h.logger.Warn().Str("connection_id", c.id).Str("kind", string(kind)).Msg("private_message dropped: unknown message kind.")
		return
	}

	h.mu.RLock()
	sender, registered := h.identities[c.id]
	if !registered {
		h.mu.RUnlock()
		h.logger.Warn().Str("connection_id", c.id).Msg("private_message dropped: connection not registered.")
		return
	}

	var recipient *Client
	if handle, online := h.usernames[to]; online {
		recipient = h.clients[handle]
	}
	h.mu.RUnlock()

	if recipient == nil {
		// delivery is dropped but the sender still gets its echo below
		h.logger.Debug().
			Str("to", to).
			Int("code", errs.ErrRecipientOffline).
			Msg("private_message recipient not online.")
	}

	frame, err := EncodeEvent(TypeReceivePrivate, newPrivateEnvelope(sender, to, content, kind))
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode private envelope.")
		return
	}

	if recipient != nil && recipient != c {
		recipient.queueFrame(frame)
	}
	c.queueFrame(frame)
}

// RouteGroup fans a group envelope out to every connection currently mapped to
// a member username, the sender included. A sender that is not a member gets
// nothing delivered and no error.
func (h *Hub) RouteGroup(c *Client, group, content string, kind MessageKind) {
	if !kind.Valid() {
		h.logger.Warn().Str("connection_id", c.id).Str("kind", string(kind)).Msg("group_message dropped: unknown message kind.")
		return
	}

	h.mu.RLock()
	sender, registered := h.identities[c.id]
	if !registered {
		h.mu.RUnlock()
		h.logger.Warn().Str("connection_id", c.id).Msg("group_message dropped: connection not registered.")
		return
	}

	targets, member := h.memberClientsLocked(group, sender.Username)
	h.mu.RUnlock()

	if !member {
		h.logger.Debug().
			Str("group", group).
			Str("username", sender.Username).
			Int("code", errs.ErrNotGroupMember).
			Msg("group_message dropped: sender is not a member.")
		return
	}

	frame, err := EncodeEvent(TypeReceiveGroup, newGroupEnvelope(sender, group, content, kind))
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode group envelope.")
		return
	}

	h.fanOut(targets, frame)
}

// RelayTyping forwards a typing (or stop-typing) signal to the same targets the
// router would resolve. Nothing is stored; debounce and expiry belong to the
// client. Group signals echo back to the sender, private ones do not.
func (h *Hub) RelayTyping(c *Client, kind TargetKind, target string, stop bool) {
	eventType := TypeDisplayTyping
	if stop {
		eventType = TypeHideTyping
	}

	h.mu.RLock()
	sender, registered := h.identities[c.id]
	if !registered {
		h.mu.RUnlock()
		h.logger.Warn().Str("connection_id", c.id).Msg("typing signal dropped: connection not registered.")
		return
	}

	var targets []*Client
	signal := TypingSignal{From: sender.Username}

	switch kind {
	case TargetPrivate:
		if handle, online := h.usernames[target]; online {
			if peer := h.clients[handle]; peer != nil && peer != c {
				targets = append(targets, peer)
			}
		}

	case TargetGroup:
		var member bool
		targets, member = h.memberClientsLocked(target, sender.Username)
		if !member {
			h.mu.RUnlock()
			return
		}
		signal.IsGroup = true
		signal.Group = target

	default:
		h.mu.RUnlock()
		h.logger.Warn().Str("connection_id", c.id).Str("target_kind", string(kind)).Msg("typing signal dropped: unknown target kind.")
		return
	}
	h.mu.RUnlock()

	frame, err := EncodeEvent(eventType, signal)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode typing signal.")
		return
	}

	h.fanOut(targets, frame)
}

// memberClientsLocked resolves a group's member usernames to their live
// connections. The second return reports whether sender belongs to the group;
// when it does not, no targets are returned. Callers must hold h.mu.
func (h *Hub) memberClientsLocked(group, sender string) ([]*Client, bool) {
	members, exists := h.groups[group]
	if !exists {
		return nil, false
	}
	if _, ok := members[sender]; !ok {
		return nil, false
	}

	targets := make([]*Client, 0, len(members))
	for username := range members {
		handle, online := h.usernames[username]
		if !online {
			continue
		}
		if peer := h.clients[handle]; peer != nil {
			targets = append(targets, peer)
		}
	}
	return targets, true
}

// Detach removes a connection and, if it had registered, its identity: the
// username leaves the directory, every group's member set, and the snapshot
// order, all in one critical section, before both snapshots are rebroadcast.
// Safe to call more than once per connection; only the first call for a
// registered connection returns its Identity.
func (h *Hub) Detach(c *Client) (Identity, bool) {
	h.mu.Lock()

	if current, attached := h.clients[c.id]; !attached || current != c {
		h.mu.Unlock()
		c.closeSend()
		return Identity{}, false
	}
	delete(h.clients, c.id)

	ident, registered := h.identities[c.id]
	if registered {
		delete(h.identities, c.id)
		delete(h.usernames, ident.Username)

		for _, members := range h.groups {
			delete(members, ident.Username)
		}

		for i, handle := range h.order {
			if handle == c.id {
				h.order = append(h.order[:i], h.order[i+1:]...)
				break
			}
		}
	}
	h.mu.Unlock()

	c.closeSend()

	if registered {
		h.logger.Info().
			Str("connection_id", c.id).
			Str("username", ident.Username).
			Msg("Identity removed on disconnect.")

		h.BroadcastUsers()
		h.BroadcastGroups()
	}

	return ident, registered
}

// BroadcastUsers sends the full identity snapshot to every attached connection.
// No diffing; connection counts are expected to stay small.
func (h *Hub) BroadcastUsers() {
	h.mu.RLock()
	users := h.snapshotUsersLocked()
	targets := h.attachedLocked()
	h.mu.RUnlock()

	frame, err := EncodeEvent(TypeUpdateUsers, users)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode user snapshot.")
		return
	}

	h.fanOut(targets, frame)
}

// BroadcastGroups sends the full group snapshot to every attached connection.
func (h *Hub) BroadcastGroups() {
	h.mu.RLock()
	groups := h.snapshotGroupsLocked()
	targets := h.attachedLocked()
	h.mu.RUnlock()

	frame, err := EncodeEvent(TypeUpdateGroups, groups)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode group snapshot.")
		return
	}

	h.fanOut(targets, frame)
}

// SendGroupsTo sends the full group snapshot to a single connection.
func (h *Hub) SendGroupsTo(c *Client) {
	frame, err := EncodeEvent(TypeUpdateGroups, h.SnapshotGroups())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode group snapshot.")
		return
	}

	c.queueFrame(frame)
}

func (h *Hub) attachedLocked() []*Client {
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	return targets
}

func (h *Hub) fanOut(targets []*Client, frame []byte) {
	for _, c := range targets {
		c.queueFrame(frame)
	}
}

// Shutdown closes every client's send queue and drops all state. Connections
// attached afterwards are refused.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.closed = true

	targets := h.attachedLocked()

	h.clients = make(map[string]*Client)
	h.identities = make(map[string]Identity)
	h.usernames = make(map[string]string)
	h.groups = make(map[string]map[string]struct{})
	h.order = nil
	h.mu.Unlock()

	for _, c := range targets {
		c.closeSend()
	}

	h.logger.Info().Int("connections_closed", len(targets)).Msg("Hub shutdown complete.")
}
