package chat

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/internal/configs"
	"courier/internal/pkg/errs"
	"courier/internal/pkg/randx"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	m.Run()
}

func testConfig() *configs.AppConfig {
	return &configs.AppConfig{
		Environment:     "test",
		Port:            8080,
		MaxPayloadBytes: configs.DefaultMaxPayloadBytes,
	}
}

// newTestClient attaches a client with no underlying connection; outbound
// frames pile up in its send queue where tests can inspect them.
func newTestClient(h *Hub) *Client {
	c := NewClient(h, nil, randx.ConnectionID())
	h.Attach(c)
	return c
}

func mustRegister(t *testing.T, h *Hub, c *Client, username string) {
	t.Helper()
	require.Nil(t, h.Register(c, username, "", StatusOnline))
}

// drainEvents empties the client's send queue and decodes each frame.
func drainEvents(t *testing.T, c *Client) []Event {
	t.Helper()
	var events []Event
	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				return events
			}
			var event Event
			require.NoError(t, json.Unmarshal(frame, &event))
			events = append(events, event)
		default:
			return events
		}
	}
}

func eventsOfType(events []Event, eventType EventType) []Event {
	var matched []Event
	for _, event := range events {
		if event.Type == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

func decodePayload(t *testing.T, event Event, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(event.Payload, dst))
}

func TestRegisterEnforcesUniqueness(t *testing.T) {
	h := NewHub(testConfig())
	alice := newTestClient(h)
	intruder := newTestClient(h)

	mustRegister(t, h, alice, "alice")
	assert.False(t, h.CheckAvailable("alice"))

	err := h.Register(intruder, "alice", "", StatusOnline)
	require.NotNil(t, err)
	assert.Equal(t, errs.ErrUsernameTaken, err.Code)

	// the loser holds no identity and can claim another name
	require.Nil(t, h.Register(intruder, "bob", "", StatusOnline))

	users := h.SnapshotUsers()
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Username)
	assert.Equal(t, "bob", users[1].Username)
}

func TestRegisterValidation(t *testing.T) {
	h := NewHub(testConfig())
	c := newTestClient(h)

	err := h.Register(c, "", "", StatusOnline)
	require.NotNil(t, err)
	assert.Equal(t, errs.ErrUsernameInvalid, err.Code)

	err = h.Register(c, " padded ", "", StatusOnline)
	require.NotNil(t, err)
	assert.Equal(t, errs.ErrUsernameInvalid, err.Code)

	err = h.Register(c, "alice", "", Status("invisible"))
	require.NotNil(t, err)
	assert.Equal(t, errs.ErrStatusInvalid, err.Code)

	// empty status defaults to online
	require.Nil(t, h.Register(c, "alice", "", ""))
	users := h.SnapshotUsers()
	require.Len(t, users, 1)
	assert.Equal(t, StatusOnline, users[0].Status)
}

func TestSecondLoginOnSameConnectionRejected(t *testing.T) {
	h := NewHub(testConfig())
	c := newTestClient(h)

	mustRegister(t, h, c, "alice")
	err := h.Register(c, "alice2", "", StatusOnline)
	require.NotNil(t, err)

	assert.True(t, h.CheckAvailable("alice2"))
	assert.Len(t, h.SnapshotUsers(), 1)
}

func TestUsernameFreedAfterDisconnect(t *testing.T) {
	h := NewHub(testConfig())
	first := newTestClient(h)

	mustRegister(t, h, first, "alice")
	h.Detach(first)

	assert.True(t, h.CheckAvailable("alice"))

	second := newTestClient(h)
	require.Nil(t, h.Register(second, "alice", "", StatusOnline))
}

func TestUpdateStatus(t *testing.T) {
	h := NewHub(testConfig())
	stranger := newTestClient(h)

	err := h.UpdateStatus(stranger, StatusBusy)
	require.NotNil(t, err)
	assert.Equal(t, errs.ErrNotRegistered, err.Code)

	mustRegister(t, h, stranger, "alice")
	drainEvents(t, stranger)

	require.Nil(t, h.UpdateStatus(stranger, StatusBusy))

	users := h.SnapshotUsers()
	require.Len(t, users, 1)
	assert.Equal(t, StatusBusy, users[0].Status)

	updates := eventsOfType(drainEvents(t, stranger), TypeUpdateUsers)
	require.NotEmpty(t, updates)

	var broadcast []Identity
	decodePayload(t, updates[len(updates)-1], &broadcast)
	require.Len(t, broadcast, 1)
	assert.Equal(t, StatusBusy, broadcast[0].Status)
}

func TestLoginBroadcastsUsersAndSendsGroupsToCaller(t *testing.T) {
	h := NewHub(testConfig())
	alice := newTestClient(h)
	bob := newTestClient(h)

	mustRegister(t, h, alice, "alice")
	drainEvents(t, alice)
	drainEvents(t, bob)

	mustRegister(t, h, bob, "bob")

	// both connections see the new user snapshot
	aliceUpdates := eventsOfType(drainEvents(t, alice), TypeUpdateUsers)
	require.NotEmpty(t, aliceUpdates)

	bobEvents := drainEvents(t, bob)
	require.NotEmpty(t, eventsOfType(bobEvents, TypeUpdateUsers))

	// only the caller gets the login group snapshot
	require.NotEmpty(t, eventsOfType(bobEvents, TypeUpdateGroups))
}

func TestPrivateMessageToOfflineUserEchoesOnce(t *testing.T) {
	h := NewHub(testConfig())
	alice := newTestClient(h)
	carol := newTestClient(h)

	mustRegister(t, h, alice, "alice")
	mustRegister(t, h, carol, "carol")
	drainEvents(t, alice)
	drainEvents(t, carol)

	h.RoutePrivate(alice, "ghost", "hey", KindText)

	echoes := eventsOfType(drainEvents(t, alice), TypeReceivePrivate)
	require.Len(t, echoes, 1)

	var envelope PrivateEnvelope
	decodePayload(t, echoes[0], &envelope)
	assert.Equal(t, "alice", envelope.From)
	assert.Equal(t, "ghost", envelope.To)
	assert.Equal(t, "hey", envelope.Content)
	assert.Equal(t, KindText, envelope.Kind)

	// nobody else sees anything, and no error event fires
	assert.Empty(t, drainEvents(t, carol))
}

func TestPrivateMessageDelivery(t *testing.T) {
	h := NewHub(testConfig())
	alice := newTestClient(h)
	bob := newTestClient(h)

	require.Nil(t, h.Register(alice, "alice", "https://cdn.example/a.png", StatusOnline))
	mustRegister(t, h, bob, "bob")
	drainEvents(t, alice)
	drainEvents(t, bob)

	h.RoutePrivate(alice, "bob", "hello bob", KindText)

	delivered := eventsOfType(drainEvents(t, bob), TypeReceivePrivate)
	require.Len(t, delivered, 1)

	var envelope PrivateEnvelope
	decodePayload(t, delivered[0], &envelope)
	assert.Equal(t, "alice", envelope.From)
	assert.Equal(t, "bob", envelope.To)
	assert.Equal(t, "hello bob", envelope.Content)
	assert.Equal(t, "https://cdn.example/a.png", envelope.Avatar)
	assert.NotEmpty(t, envelope.ID)

	_, err := time.Parse(TimestampLayout, envelope.Timestamp)
	assert.NoError(t, err)

	echoes := eventsOfType(drainEvents(t, alice), TypeReceivePrivate)
	require.Len(t, echoes, 1)
}

func TestPrivateMessageFromUnregisteredConnectionDropped(t *testing.T) {
	h := NewHub(testConfig())
	stranger := newTestClient(h)
	alice := newTestClient(h)

	mustRegister(t, h, alice, "alice")
	drainEvents(t, alice)
	drainEvents(t, stranger)

	h.RoutePrivate(stranger, "alice", "hi", KindText)

	assert.Empty(t, drainEvents(t, alice))
	assert.Empty(t, drainEvents(t, stranger))
}

func TestGroupMessageScenario(t *testing.T) {
	h := NewHub(testConfig())
	a := newTestClient(h)
	b := newTestClient(h)
	c := newTestClient(h)

	mustRegister(t, h, a, "A")
	mustRegister(t, h, b, "B")
	mustRegister(t, h, c, "C")

	h.CreateGroup(a, "team")
	h.JoinGroup(b, "team")

	members, ok := h.GroupMembers("team")
	require.True(t, ok)
	assert.Equal(t, []string{"A", "B"}, members)

	drainEvents(t, a)
	drainEvents(t, b)
	drainEvents(t, c)

	h.RouteGroup(a, "team", "hi", KindText)

	for _, member := range []*Client{a, b} {
		delivered := eventsOfType(drainEvents(t, member), TypeReceiveGroup)
		require.Len(t, delivered, 1)

		var envelope GroupEnvelope
		decodePayload(t, delivered[0], &envelope)
		assert.Equal(t, "team", envelope.Group)
		assert.Equal(t, "A", envelope.From)
		assert.Equal(t, "hi", envelope.Content)
		assert.Equal(t, KindText, envelope.Kind)
	}

	assert.Empty(t, eventsOfType(drainEvents(t, c), TypeReceiveGroup))
}

func TestGroupMessageFromNonMemberDropped(t *testing.T) {
	h := NewHub(testConfig())
	a := newTestClient(h)
	c := newTestClient(h)

	mustRegister(t, h, a, "A")
	mustRegister(t, h, c, "C")
	h.CreateGroup(a, "team")
	drainEvents(t, a)
	drainEvents(t, c)

	h.RouteGroup(c, "team", "let me in", KindText)

	assert.Empty(t, eventsOfType(drainEvents(t, a), TypeReceiveGroup))
	assert.Empty(t, eventsOfType(drainEvents(t, c), TypeReceiveGroup))
}

func TestCreateGroupDuplicateIsNoop(t *testing.T) {
	h := NewHub(testConfig())
	a := newTestClient(h)
	b := newTestClient(h)

	mustRegister(t, h, a, "A")
	mustRegister(t, h, b, "B")

	h.CreateGroup(a, "team")
	h.CreateGroup(b, "team")

	// the second create neither errors nor joins B
	members, ok := h.GroupMembers("team")
	require.True(t, ok)
	assert.Equal(t, []string{"A"}, members)
}

func TestJoinMissingGroupIsNoop(t *testing.T) {
	h := NewHub(testConfig())
	a := newTestClient(h)
	b := newTestClient(h)

	mustRegister(t, h, a, "A")
	h.CreateGroup(a, "team")
	mustRegister(t, h, b, "B")

	before := h.SnapshotGroups()
	drainEvents(t, b)

	h.JoinGroup(b, "no-such-group")

	assert.Equal(t, before, h.SnapshotGroups())

	// the (unchanged) snapshot is still rebroadcast
	updates := eventsOfType(drainEvents(t, b), TypeUpdateGroups)
	require.NotEmpty(t, updates)

	var groups []GroupInfo
	decodePayload(t, updates[len(updates)-1], &groups)
	require.Len(t, groups, 1)
	assert.Equal(t, "team", groups[0].Name)
}

func TestDisconnectScrubsGroupsAndUsers(t *testing.T) {
	h := NewHub(testConfig())
	a := newTestClient(h)
	b := newTestClient(h)

	mustRegister(t, h, a, "A")
	mustRegister(t, h, b, "B")
	h.CreateGroup(a, "team")
	h.JoinGroup(b, "team")

	h.Detach(b)

	members, ok := h.GroupMembers("team")
	require.True(t, ok)
	assert.Equal(t, []string{"A"}, members)

	users := h.SnapshotUsers()
	require.Len(t, users, 1)
	assert.Equal(t, "A", users[0].Username)

	// a returning user with the same name does not regain membership
	returning := newTestClient(h)
	mustRegister(t, h, returning, "B")
	assert.False(t, h.IsMember("team", "B"))
}

func TestDetachIsIdempotent(t *testing.T) {
	h := NewHub(testConfig())
	a := newTestClient(h)
	mustRegister(t, h, a, "A")

	ident, removed := h.Detach(a)
	require.True(t, removed)
	assert.Equal(t, "A", ident.Username)

	_, removed = h.Detach(a)
	assert.False(t, removed)

	assert.Empty(t, h.SnapshotUsers())
}

func TestEmptiedGroupLingers(t *testing.T) {
	h := NewHub(testConfig())
	a := newTestClient(h)

	mustRegister(t, h, a, "A")
	h.CreateGroup(a, "team")
	h.Detach(a)

	members, ok := h.GroupMembers("team")
	require.True(t, ok)
	assert.Empty(t, members)
}

func TestTypingPrivate(t *testing.T) {
	h := NewHub(testConfig())
	alice := newTestClient(h)
	bob := newTestClient(h)

	mustRegister(t, h, alice, "alice")
	mustRegister(t, h, bob, "bob")
	drainEvents(t, alice)
	drainEvents(t, bob)

	h.RelayTyping(alice, TargetPrivate, "bob", false)

	shown := eventsOfType(drainEvents(t, bob), TypeDisplayTyping)
	require.Len(t, shown, 1)

	var signal TypingSignal
	decodePayload(t, shown[0], &signal)
	assert.Equal(t, "alice", signal.From)
	assert.False(t, signal.IsGroup)
	assert.Empty(t, signal.Group)

	// no echo in the private case
	assert.Empty(t, drainEvents(t, alice))

	h.RelayTyping(alice, TargetPrivate, "bob", true)
	hidden := eventsOfType(drainEvents(t, bob), TypeHideTyping)
	require.Len(t, hidden, 1)
}

func TestTypingGroupEchoesToSender(t *testing.T) {
	h := NewHub(testConfig())
	a := newTestClient(h)
	b := newTestClient(h)
	c := newTestClient(h)

	mustRegister(t, h, a, "A")
	mustRegister(t, h, b, "B")
	mustRegister(t, h, c, "C")
	h.CreateGroup(a, "team")
	h.JoinGroup(b, "team")
	drainEvents(t, a)
	drainEvents(t, b)
	drainEvents(t, c)

	h.RelayTyping(a, TargetGroup, "team", false)

	for _, member := range []*Client{a, b} {
		shown := eventsOfType(drainEvents(t, member), TypeDisplayTyping)
		require.Len(t, shown, 1)

		var signal TypingSignal
		decodePayload(t, shown[0], &signal)
		assert.Equal(t, "A", signal.From)
		assert.True(t, signal.IsGroup)
		assert.Equal(t, "team", signal.Group)
	}

	assert.Empty(t, eventsOfType(drainEvents(t, c), TypeDisplayTyping))

	// non-member typing toward the group goes nowhere
	h.RelayTyping(c, TargetGroup, "team", false)
	assert.Empty(t, eventsOfType(drainEvents(t, a), TypeDisplayTyping))
}

func TestConcurrentRegistrationsSingleWinner(t *testing.T) {
	h := NewHub(testConfig())

	const contenders = 16
	var wg sync.WaitGroup
	results := make([]*errs.CustomError, contenders)

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			results[slot] = h.Register(newTestClient(h), "highlander", "", StatusOnline)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
		} else {
			assert.Equal(t, errs.ErrUsernameTaken, err.Code)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Len(t, h.SnapshotUsers(), 1)
}

func TestConcurrentGroupJoins(t *testing.T) {
	h := NewHub(testConfig())
	x := newTestClient(h)
	y := newTestClient(h)

	mustRegister(t, h, x, "X")
	mustRegister(t, h, y, "Y")
	h.CreateGroup(x, "g")

	var wg sync.WaitGroup
	for _, member := range []*Client{x, y} {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			h.JoinGroup(c, "g")
		}(member)
	}
	wg.Wait()

	members, ok := h.GroupMembers("g")
	require.True(t, ok)
	assert.Equal(t, []string{"X", "Y"}, members)
}

func TestSnapshotUsersKeepsRegistrationOrder(t *testing.T) {
	h := NewHub(testConfig())

	names := []string{"zoe", "adam", "mia"}
	for _, name := range names {
		mustRegister(t, h, newTestClient(h), name)
	}

	users := h.SnapshotUsers()
	require.Len(t, users, len(names))
	for i, name := range names {
		assert.Equal(t, name, users[i].Username)
	}
}

func TestShutdownClosesAttachedClients(t *testing.T) {
	h := NewHub(testConfig())
	a := newTestClient(h)
	mustRegister(t, h, a, "A")
	drainEvents(t, a)

	h.Shutdown()

	_, open := <-a.send
	assert.False(t, open)

	// attaches after shutdown are refused immediately
	late := NewClient(h, nil, randx.ConnectionID())
	h.Attach(late)
	_, open = <-late.send
	assert.False(t, open)
}
